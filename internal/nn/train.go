package nn

import (
	"context"
	"errors"
	"fmt"

	"cellnet/internal/dataset"
	"cellnet/internal/model"
)

const (
	DefaultLogInterval = 50
	DefaultStopLoss    = 0.001
)

// ProgressFunc receives the metrics of every evaluated epoch.
type ProgressFunc func(model.EpochMetrics)

type trainConfig struct {
	logInterval int
	stopLoss    float64
	progress    ProgressFunc
}

type TrainOption func(*trainConfig)

// WithLogInterval evaluates every interval epochs. The last epoch is always
// evaluated.
func WithLogInterval(interval int) TrainOption {
	return func(c *trainConfig) {
		if interval > 0 {
			c.logInterval = interval
		}
	}
}

// WithStopLoss stops training once the evaluated loss drops below loss.
// A negative value disables early stopping.
func WithStopLoss(loss float64) TrainOption {
	return func(c *trainConfig) {
		c.stopLoss = loss
	}
}

func WithProgress(fn ProgressFunc) TrainOption {
	return func(c *trainConfig) {
		c.progress = fn
	}
}

// Train runs epochs passes over every mini-batch of batch. Early stopping
// watches the validation loss, or the training loss when batch has no
// validation rows. Cancelling ctx stops between mini-batches and returns the
// metrics gathered so far.
func (n *Network) Train(ctx context.Context, batch *dataset.Batch, learningRate float64, epochs int, opts ...TrainOption) ([]model.EpochMetrics, error) {
	if err := n.usable(); err != nil {
		return nil, err
	}
	if batch == nil || batch.Train == nil || batch.Train.Rows() == 0 || len(batch.Mini) == 0 {
		return nil, errors.New("training batch is required")
	}
	if epochs <= 0 {
		return nil, errors.New("epochs must be > 0")
	}
	if learningRate <= 0 || !finite(learningRate) {
		return nil, fmt.Errorf("learning rate must be > 0, got %v", learningRate)
	}

	cfg := trainConfig{logInterval: DefaultLogInterval, stopLoss: DefaultStopLoss}
	for _, opt := range opts {
		opt(&cfg)
	}

	metrics := make([]model.EpochMetrics, 0, epochs/cfg.logInterval+1)
	for epoch := 1; epoch <= epochs; epoch++ {
		for _, mini := range batch.Mini {
			if err := ctx.Err(); err != nil {
				return metrics, err
			}
			if _, err := n.step(mini, learningRate); err != nil {
				return metrics, fmt.Errorf("epoch %d: %w", epoch, err)
			}
		}
		if epoch%cfg.logInterval != 0 && epoch != epochs {
			continue
		}

		m, err := n.evaluate(epoch, batch)
		if err != nil {
			return metrics, err
		}
		metrics = append(metrics, m)
		if cfg.progress != nil {
			cfg.progress(m)
		}
		watched := m.TrainLoss
		if batch.Validation != nil && batch.Validation.Rows() > 0 {
			watched = m.ValidationLoss
		}
		if watched < cfg.stopLoss {
			break
		}
	}
	return metrics, nil
}

// Step trains on a single mini-batch and returns its loss before the update.
func (n *Network) Step(set *dataset.Set, learningRate float64) (float64, error) {
	if err := n.usable(); err != nil {
		return 0, err
	}
	if set == nil {
		return 0, errors.New("training set is required")
	}
	return n.step(set, learningRate)
}

func (n *Network) step(set *dataset.Set, learningRate float64) (float64, error) {
	n.training = true
	defer func() { n.training = false }()

	loss, err := n.computeError(set.Features, set.Target)
	if err != nil {
		return 0, err
	}
	if err := n.backPropagation(learningRate); err != nil {
		return 0, err
	}
	return loss, nil
}

func (n *Network) evaluate(epoch int, batch *dataset.Batch) (model.EpochMetrics, error) {
	m := model.EpochMetrics{Epoch: epoch}
	var err error
	if m.TrainLoss, m.TrainAccuracy, err = n.Evaluate(batch.Train); err != nil {
		return m, fmt.Errorf("epoch %d train: %w", epoch, err)
	}
	if batch.Validation != nil && batch.Validation.Rows() > 0 {
		if m.ValidationLoss, m.ValidationAccuracy, err = n.Evaluate(batch.Validation); err != nil {
			return m, fmt.Errorf("epoch %d validation: %w", epoch, err)
		}
	}
	return m, nil
}

// Evaluate returns the loss and accuracy of set without training.
func (n *Network) Evaluate(set *dataset.Set) (float64, float64, error) {
	loss, err := n.Error(set.Features, set.Target)
	if err != nil {
		return 0, 0, err
	}
	accuracy, err := n.Accuracy(set.Features, set.Target)
	if err != nil {
		return 0, 0, err
	}
	return loss, accuracy, nil
}
