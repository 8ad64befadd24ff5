package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	cellapi "cellnet/pkg/cellnet"
)

func loadTrainRequestFromConfig(path string) (cellapi.TrainRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cellapi.TrainRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return cellapi.TrainRequest{}, err
	}

	var req cellapi.TrainRequest
	if v, ok := asString(raw["network_id"]); ok {
		req.NetworkID = v
	}
	if v, ok := asString(raw["dataset"]); ok {
		req.DatasetPath = v
	}
	if v, ok := asStrings(raw["target_labels"]); ok {
		req.TargetLabels = v
	}
	if v, ok := asMatrix(raw["features"]); ok {
		req.Features = v
	}
	if v, ok := asMatrix(raw["target"]); ok {
		req.Target = v
	}
	if v, ok := asBool(raw["one_hot"]); ok {
		req.OneHot = v
	}
	if v, ok := asBool(raw["normalize"]); ok {
		req.Normalize = v
	}
	if v, ok := asBool(raw["shuffle"]); ok {
		req.Shuffle = v
	}
	if v, ok := asInt(raw["train_percent"]); ok {
		req.TrainPercent = v
	}
	if v, ok := asInt(raw["validation_percent"]); ok {
		req.ValidationPercent = v
	}
	if v, ok := asInt(raw["test_percent"]); ok {
		req.TestPercent = v
	}
	if v, ok := asInt(raw["batch_size"]); ok {
		req.BatchSize = v
	}
	if v, ok := asFloat64(raw["learning_rate"]); ok {
		req.LearningRate = v
	}
	if v, ok := asInt(raw["epochs"]); ok {
		req.Epochs = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["log_interval"]); ok {
		req.LogInterval = v
	}
	if v, ok := asFloat64(raw["stop_loss"]); ok {
		req.StopLoss = v
	}

	if layers, ok := raw["layers"].([]any); ok {
		for i, item := range layers {
			layerMap, ok := item.(map[string]any)
			if !ok {
				return cellapi.TrainRequest{}, fmt.Errorf("layers[%d]: expected an object", i)
			}
			req.Layers = append(req.Layers, layerFromMap(layerMap))
		}
	}
	return req, nil
}

func layerFromMap(raw map[string]any) cellapi.LayerConfig {
	var layer cellapi.LayerConfig
	if v, ok := asInt(raw["dimension"]); ok {
		layer.Dimension = v
	}
	if v, ok := asString(raw["activation"]); ok {
		layer.Activation = v
	}
	if v, ok := asString(raw["transfer"]); ok {
		layer.Transfer = v
	}
	if v, ok := asString(raw["aggregation"]); ok {
		layer.Aggregation = v
	}
	if v, ok := asString(raw["cost"]); ok {
		layer.Cost = v
	}
	if v, ok := asString(raw["optimizer"]); ok {
		layer.Optimizer = v
	}
	if v, ok := asString(raw["router"]); ok {
		layer.Router = v
	}
	if v, ok := asFloat64(raw["dropout"]); ok {
		layer.Dropout = v
	}
	return layer
}

func loadOrDefaultTrainRequest(configPath string) (cellapi.TrainRequest, error) {
	if configPath == "" {
		return cellapi.TrainRequest{}, nil
	}
	req, err := loadTrainRequestFromConfig(configPath)
	if err != nil {
		return cellapi.TrainRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

func overrideFromFlags(req *cellapi.TrainRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "network-id":
			req.NetworkID = v.(string)
		case "data":
			req.DatasetPath = v.(string)
		case "target":
			req.TargetLabels = splitList(v.(string))
		case "layers":
			layers, err := parseLayers(v.(string))
			if err != nil {
				return err
			}
			req.Layers = layers
		case "one-hot":
			req.OneHot = v.(bool)
		case "normalize":
			req.Normalize = v.(bool)
		case "shuffle":
			req.Shuffle = v.(bool)
		case "train-pct":
			req.TrainPercent = v.(int)
		case "validation-pct":
			req.ValidationPercent = v.(int)
		case "test-pct":
			req.TestPercent = v.(int)
		case "batch-size":
			req.BatchSize = v.(int)
		case "lr":
			req.LearningRate = v.(float64)
		case "epochs":
			req.Epochs = v.(int)
		case "seed":
			req.Seed = v.(int64)
		case "log-interval":
			req.LogInterval = v.(int)
		case "stop-loss":
			req.StopLoss = v.(float64)
		}
	}
	return nil
}

// parseLayers reads a comma separated layer list where each layer is
// dimension[:activation[:cost]], e.g. "3:tanh,2:soft_max:cross_entropy".
func parseLayers(text string) ([]cellapi.LayerConfig, error) {
	items := splitList(text)
	if len(items) == 0 {
		return nil, nil
	}
	layers := make([]cellapi.LayerConfig, 0, len(items))
	for i, item := range items {
		parts := strings.Split(item, ":")
		if len(parts) > 3 {
			return nil, fmt.Errorf("layer %d: expected dimension[:activation[:cost]], got %q", i, item)
		}
		dimension, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("layer %d dimension: %w", i, err)
		}
		layer := cellapi.LayerConfig{Dimension: dimension}
		if len(parts) > 1 {
			layer.Activation = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			layer.Cost = strings.TrimSpace(parts[2])
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// parseRows reads rows separated by ';' with comma separated values.
func parseRows(text string) ([][]float64, error) {
	var rows [][]float64
	for i, line := range strings.Split(text, ";") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitList(line)
		row := make([]float64, 0, len(fields))
		for _, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func splitList(text string) []string {
	var out []string
	for _, item := range strings.Split(text, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// asStrings accepts a list of strings or a single comma separated string.
func asStrings(v any) ([]string, bool) {
	switch x := v.(type) {
	case string:
		return splitList(x), true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func asMatrix(v any) ([][]float64, bool) {
	rows, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([][]float64, 0, len(rows))
	for _, item := range rows {
		values, ok := item.([]any)
		if !ok {
			return nil, false
		}
		row := make([]float64, 0, len(values))
		for _, value := range values {
			f, ok := asFloat64(value)
			if !ok {
				return nil, false
			}
			row = append(row, f)
		}
		out = append(out, row)
	}
	return out, true
}
