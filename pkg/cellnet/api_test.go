package cellnet

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cellnet/internal/model"
)

func newMemoryClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{StoreKind: "memory"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func xorRequest() TrainRequest {
	return TrainRequest{
		Layers: []LayerConfig{
			{Dimension: 2, Activation: "transparent"},
			{Dimension: 4, Activation: "tanh"},
			{Dimension: 1, Activation: "sigmoid"},
		},
		Features:     [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		Target:       [][]float64{{0}, {1}, {1}, {0}},
		TrainPercent: 100,
		LearningRate: 0.2,
		Epochs:       200,
		Seed:         42,
		LogInterval:  50,
		StopLoss:     -1,
	}
}

func TestClientTrainPredictRunsInspect(t *testing.T) {
	ctx := context.Background()
	client := newMemoryClient(t)

	var progress []model.EpochMetrics
	req := xorRequest()
	req.Progress = func(m model.EpochMetrics) { progress = append(progress, m) }
	summary, err := client.Train(ctx, req)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if summary.RunID == "" || summary.NetworkID == "" {
		t.Fatalf("expected run and network ids: %+v", summary)
	}
	if len(summary.Metrics) != 4 || len(progress) != 4 || summary.Metrics[3].Epoch != 200 {
		t.Fatalf("unexpected metrics: %+v", summary.Metrics)
	}
	if summary.FinalLoss != summary.Metrics[3].TrainLoss || summary.TestRows != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	prediction, err := client.Predict(ctx, PredictRequest{NetworkID: summary.NetworkID, Inputs: [][]float64{{0, 1}, {1, 1}}})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(prediction) != 2 || len(prediction[0]) != 1 {
		t.Fatalf("unexpected prediction shape: %v", prediction)
	}
	for _, row := range prediction {
		if row[0] <= 0 || row[0] >= 1 || math.IsNaN(row[0]) {
			t.Fatalf("expected sigmoid output, got %v", row)
		}
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID || runs[0].Dataset != "inline" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	run, err := client.Run(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.NetworkID != summary.NetworkID || len(run.Metrics) != 4 || run.BatchSize != 4 {
		t.Fatalf("unexpected run record: %+v", run)
	}

	info, err := client.Inspect(ctx, summary.NetworkID)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.Inputs != 2 || info.Size != 7 || len(info.Layers) != 3 || info.Layers[0].Router != "any" {
		t.Fatalf("unexpected network summary: %+v", info)
	}
	if info.Layers[1].Kernel.Optimizer != "sgd" || info.Layers[2].Router != "" {
		t.Fatalf("unexpected layer records: %+v", info.Layers)
	}
}

func TestClientContinueTraining(t *testing.T) {
	ctx := context.Background()
	client := newMemoryClient(t)

	first, err := client.Train(ctx, xorRequest())
	if err != nil {
		t.Fatalf("first train: %v", err)
	}
	req := xorRequest()
	req.Layers = nil
	req.NetworkID = first.NetworkID
	second, err := client.Train(ctx, req)
	if err != nil {
		t.Fatalf("second train: %v", err)
	}
	if second.NetworkID != first.NetworkID || second.RunID == first.RunID {
		t.Fatalf("expected a new run on the same network: %+v %+v", first, second)
	}

	runs, err := client.Runs(ctx, RunsRequest{NetworkID: first.NetworkID})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected two runs, got %+v", runs)
	}
	best, err := client.Runs(ctx, RunsRequest{NetworkID: first.NetworkID, BestFirst: true})
	if err != nil {
		t.Fatalf("best runs: %v", err)
	}
	if len(best) != 2 || best[0].FinalLoss > best[1].FinalLoss {
		t.Fatalf("expected lowest final loss first, got %+v", best)
	}
	networks, err := client.Networks(ctx)
	if err != nil {
		t.Fatalf("networks: %v", err)
	}
	if len(networks) != 1 {
		t.Fatalf("expected a single stored network, got %d", len(networks))
	}
}

func TestClientTrainFromCSVWithClasses(t *testing.T) {
	ctx := context.Background()
	client := newMemoryClient(t)

	var b strings.Builder
	b.WriteString("x,y,label\n")
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			b.WriteString("0.1,0.2,low\n")
		} else {
			b.WriteString("5,4.5,high\n")
		}
	}
	path := filepath.Join(t.TempDir(), "points.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	summary, err := client.Train(ctx, TrainRequest{
		Layers: []LayerConfig{
			{Dimension: 2, Activation: "transparent"},
			{Dimension: 2, Activation: "soft_max", Cost: "cross_entropy"},
		},
		DatasetPath:  path,
		TargetLabels: []string{"label"},
		OneHot:       true,
		Normalize:    true,
		Shuffle:      true,
		BatchSize:    4,
		LearningRate: 0.1,
		Epochs:       20,
		Seed:         3,
		LogInterval:  10,
		StopLoss:     -1,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if summary.TestRows != 3 {
		t.Fatalf("expected default 70/15/15 split to leave 3 test rows, got %d", summary.TestRows)
	}

	info, err := client.Inspect(ctx, summary.NetworkID)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if strings.Join(info.TargetClasses, ",") != "high,low" {
		t.Fatalf("unexpected classes: %v", info.TargetClasses)
	}

	prediction, err := client.Predict(ctx, PredictRequest{NetworkID: summary.NetworkID, Inputs: [][]float64{{5, 4.5}}})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if total := prediction[0][0] + prediction[0][1]; math.Abs(total-1) > 1e-9 {
		t.Fatalf("expected soft max output, got %v", prediction[0])
	}
}

func TestClientTrainValidation(t *testing.T) {
	ctx := context.Background()
	client := newMemoryClient(t)

	cases := map[string]func(*TrainRequest){
		"no layers":       func(r *TrainRequest) { r.Layers = nil },
		"no data":         func(r *TrainRequest) { r.Features, r.Target = nil, nil },
		"ragged rows":     func(r *TrainRequest) { r.Features[1] = []float64{1} },
		"output mismatch": func(r *TrainRequest) { r.Layers[2].Dimension = 2 },
		"unknown kernel":  func(r *TrainRequest) { r.Layers[1].Activation = "swish" },
		"missing network": func(r *TrainRequest) { r.NetworkID = "missing" },
		"bad router":      func(r *TrainRequest) { r.Layers[0].Router = "recurrent" },
	}
	for name, mutate := range cases {
		req := xorRequest()
		mutate(&req)
		if _, err := client.Train(ctx, req); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if _, err := client.Predict(ctx, PredictRequest{NetworkID: "missing", Inputs: [][]float64{{1, 2}}}); err == nil {
		t.Fatal("expected predict on a missing network to fail")
	}
	if _, err := client.Inspect(ctx, "missing"); err == nil {
		t.Fatal("expected inspect on a missing network to fail")
	}
}

func TestClientExportWritesRunArtifacts(t *testing.T) {
	ctx := context.Background()
	client := newMemoryClient(t)

	summary, err := client.Train(ctx, xorRequest())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	outDir := t.TempDir()
	runDir, err := client.Export(ctx, summary.RunID, outDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if runDir != filepath.Join(outDir, summary.RunID) {
		t.Fatalf("unexpected export dir: %s", runDir)
	}
	for _, file := range []string{"run.json", "network.json", "metrics.csv", "summary.json"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected exported %s: %v", file, err)
		}
	}

	if _, err := client.Export(ctx, "missing", outDir); err == nil {
		t.Fatal("expected error for missing run")
	}
}
