package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTrainRequestFromConfigReadsLayersAndData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train_config.json")
	payload := map[string]any{
		"dataset":            "iris.csv",
		"target_labels":      "species",
		"one_hot":            true,
		"normalize":          true,
		"shuffle":            true,
		"train_percent":      60,
		"validation_percent": 20,
		"test_percent":       20,
		"batch_size":         16,
		"learning_rate":      0.05,
		"epochs":             300,
		"seed":               9,
		"log_interval":       25,
		"stop_loss":          -1,
		"layers": []any{
			map[string]any{"dimension": 8, "activation": "relu", "dropout": 0.2},
			map[string]any{"dimension": 3, "activation": "soft_max", "cost": "cross_entropy", "optimizer": "momentum"},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadTrainRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load train request: %v", err)
	}
	if req.DatasetPath != "iris.csv" || len(req.TargetLabels) != 1 || req.TargetLabels[0] != "species" {
		t.Fatalf("unexpected data fields: %+v", req)
	}
	if !req.OneHot || !req.Normalize || !req.Shuffle {
		t.Fatalf("expected preprocessing switches, got one_hot=%t normalize=%t shuffle=%t", req.OneHot, req.Normalize, req.Shuffle)
	}
	if req.TrainPercent != 60 || req.ValidationPercent != 20 || req.TestPercent != 20 || req.BatchSize != 16 {
		t.Fatalf("unexpected split fields: %+v", req)
	}
	if req.LearningRate != 0.05 || req.Epochs != 300 || req.Seed != 9 || req.LogInterval != 25 || req.StopLoss != -1 {
		t.Fatalf("unexpected training fields: %+v", req)
	}
	if len(req.Layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(req.Layers))
	}
	if req.Layers[0].Dimension != 8 || req.Layers[0].Activation != "relu" || req.Layers[0].Dropout != 0.2 {
		t.Fatalf("unexpected hidden layer: %+v", req.Layers[0])
	}
	if req.Layers[1].Cost != "cross_entropy" || req.Layers[1].Optimizer != "momentum" {
		t.Fatalf("unexpected output layer: %+v", req.Layers[1])
	}
}

func TestLoadTrainRequestFromConfigReadsInlineRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train_config.json")
	raw := `{
		"network_id": "net-1",
		"target_labels": ["y"],
		"features": [[0, 0], [0, 1.5]],
		"target": [[0], [1]]
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadTrainRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load train request: %v", err)
	}
	if req.NetworkID != "net-1" {
		t.Fatalf("expected network id net-1, got %q", req.NetworkID)
	}
	if len(req.Features) != 2 || req.Features[1][1] != 1.5 {
		t.Fatalf("unexpected features: %v", req.Features)
	}
	if len(req.Target) != 2 || req.Target[1][0] != 1 {
		t.Fatalf("unexpected target: %v", req.Target)
	}
}

func TestLoadTrainRequestFromConfigRejectsBadLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train_config.json")
	if err := os.WriteFile(path, []byte(`{"layers": [3]}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadTrainRequestFromConfig(path); err == nil {
		t.Fatal("expected error for non-object layer")
	}
	if _, err := loadOrDefaultTrainRequest(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestOverrideFromFlagsAppliesOnlySetFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train_config.json")
	if err := os.WriteFile(path, []byte(`{"epochs": 300, "learning_rate": 0.05, "seed": 4}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	req, err := loadOrDefaultTrainRequest(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	set := map[string]bool{"epochs": true, "layers": true}
	values := map[string]any{
		"epochs": 12,
		"lr":     0.9,
		"seed":   int64(8),
		"layers": "4:tanh,2:soft_max:cross_entropy",
	}
	if err := overrideFromFlags(&req, set, values); err != nil {
		t.Fatalf("override: %v", err)
	}
	if req.Epochs != 12 {
		t.Fatalf("expected epochs override 12, got %d", req.Epochs)
	}
	if req.LearningRate != 0.05 || req.Seed != 4 {
		t.Fatalf("unset flags must not override config, got lr=%f seed=%d", req.LearningRate, req.Seed)
	}
	if len(req.Layers) != 2 || req.Layers[1].Activation != "soft_max" || req.Layers[1].Cost != "cross_entropy" {
		t.Fatalf("unexpected layers override: %+v", req.Layers)
	}
}

func TestParseLayers(t *testing.T) {
	layers, err := parseLayers(" 3:tanh , 1 ")
	if err != nil {
		t.Fatalf("parse layers: %v", err)
	}
	if len(layers) != 2 || layers[0].Dimension != 3 || layers[0].Activation != "tanh" || layers[1].Dimension != 1 || layers[1].Activation != "" {
		t.Fatalf("unexpected layers: %+v", layers)
	}

	if layers, err := parseLayers(""); err != nil || layers != nil {
		t.Fatalf("expected no layers for empty text, got %+v err=%v", layers, err)
	}
	for _, text := range []string{"x:tanh", "3:tanh:mean_squared:extra"} {
		if _, err := parseLayers(text); err == nil {
			t.Fatalf("expected error for %q", text)
		}
	}
}

func TestParseRows(t *testing.T) {
	rows, err := parseRows("0,1; 1, 0 ;")
	if err != nil {
		t.Fatalf("parse rows: %v", err)
	}
	if len(rows) != 2 || rows[0][1] != 1 || rows[1][0] != 1 {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if _, err := parseRows("0,a"); err == nil {
		t.Fatal("expected error for non-numeric value")
	}
}
