package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"cellnet/internal/model"
)

// LossSummary condenses the evaluated epochs of a run. Watched is the series
// early stopping looks at: validation loss when the run had validation rows,
// training loss otherwise.
type LossSummary struct {
	Evaluations   int     `json:"evaluations"`
	Watched       string  `json:"watched"`
	InitialLoss   float64 `json:"initial_loss"`
	FinalLoss     float64 `json:"final_loss"`
	BestLoss      float64 `json:"best_loss"`
	BestEpoch     int     `json:"best_epoch"`
	MeanLoss      float64 `json:"mean_loss"`
	StdLoss       float64 `json:"std_loss"`
	Improvement   float64 `json:"improvement"`
	FinalAccuracy float64 `json:"final_accuracy"`
}

func Summarize(metrics []model.EpochMetrics) LossSummary {
	if len(metrics) == 0 {
		return LossSummary{}
	}

	watched := "train"
	for _, m := range metrics {
		if m.ValidationLoss != 0 || m.ValidationAccuracy != 0 {
			watched = "validation"
			break
		}
	}
	losses := make([]float64, len(metrics))
	for i, m := range metrics {
		if watched == "validation" {
			losses[i] = m.ValidationLoss
		} else {
			losses[i] = m.TrainLoss
		}
	}

	last := metrics[len(metrics)-1]
	best := floats.MinIdx(losses)
	summary := LossSummary{
		Evaluations: len(metrics),
		Watched:     watched,
		InitialLoss: losses[0],
		FinalLoss:   losses[len(losses)-1],
		BestLoss:    losses[best],
		BestEpoch:   metrics[best].Epoch,
		Improvement: losses[0] - losses[len(losses)-1],
	}
	if len(losses) > 1 {
		summary.MeanLoss, summary.StdLoss = stat.MeanStdDev(losses, nil)
	} else {
		summary.MeanLoss = losses[0]
	}
	if watched == "validation" {
		summary.FinalAccuracy = last.ValidationAccuracy
	} else {
		summary.FinalAccuracy = last.TrainAccuracy
	}
	return summary
}
