package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cellnet/internal/model"
)

const (
	runFile     = "run.json"
	networkFile = "network.json"
	metricsFile = "metrics.csv"
	summaryFile = "summary.json"
)

var metricsHeader = []string{"epoch", "train_loss", "train_accuracy", "validation_loss", "validation_accuracy"}

// RunArtifacts is everything exported for one training run. Network is the
// stored state of the trained network at export time.
type RunArtifacts struct {
	Run     model.TrainingRun
	Network model.NetworkSnapshot
}

// WriteRunArtifacts writes the run under baseDir/<run id> and returns that
// directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	runID := strings.TrimSpace(artifacts.Run.ID)
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if artifacts.Network.ID != "" && artifacts.Network.ID != artifacts.Run.NetworkID {
		return "", fmt.Errorf("network id mismatch: run=%s network=%s", artifacts.Run.NetworkID, artifacts.Network.ID)
	}

	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, runFile), artifacts.Run); err != nil {
		return "", err
	}
	if artifacts.Network.ID != "" {
		if err := writeJSON(filepath.Join(runDir, networkFile), artifacts.Network); err != nil {
			return "", err
		}
	}
	if err := WriteMetricsSeries(runDir, artifacts.Run.Metrics); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), Summarize(artifacts.Run.Metrics)); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRun(baseDir, runID string) (model.TrainingRun, bool, error) {
	var run model.TrainingRun
	ok, err := readJSON(filepath.Join(baseDir, runID, runFile), &run)
	return run, ok, err
}

func ReadLossSummary(baseDir, runID string) (LossSummary, bool, error) {
	var summary LossSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, summaryFile), &summary)
	return summary, ok, err
}

// WriteMetricsSeries writes one csv row per evaluated epoch.
func WriteMetricsSeries(runDir string, metrics []model.EpochMetrics) error {
	file, err := os.Create(filepath.Join(runDir, metricsFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(metricsHeader); err != nil {
		return err
	}
	for _, m := range metrics {
		if err := writer.Write([]string{
			strconv.Itoa(m.Epoch),
			formatFloat(m.TrainLoss),
			formatFloat(m.TrainAccuracy),
			formatFloat(m.ValidationLoss),
			formatFloat(m.ValidationAccuracy),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadMetricsSeries(baseDir, runID string) ([]model.EpochMetrics, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, metricsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.EpochMetrics{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != len(metricsHeader) {
		return nil, false, fmt.Errorf("metrics header must have %d columns, got %d", len(metricsHeader), len(header))
	}

	series := make([]model.EpochMetrics, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		m, err := parseMetrics(record)
		if err != nil {
			return nil, false, err
		}
		series = append(series, m)
	}
	return series, true, nil
}

func parseMetrics(record []string) (model.EpochMetrics, error) {
	var m model.EpochMetrics
	epoch, err := strconv.Atoi(record[0])
	if err != nil {
		return m, fmt.Errorf("metrics epoch: %w", err)
	}
	m.Epoch = epoch
	values := make([]float64, len(record)-1)
	for i, field := range record[1:] {
		if values[i], err = strconv.ParseFloat(field, 64); err != nil {
			return m, fmt.Errorf("metrics column %s: %w", metricsHeader[i+1], err)
		}
	}
	m.TrainLoss, m.TrainAccuracy, m.ValidationLoss, m.ValidationAccuracy = values[0], values[1], values[2], values[3]
	return m, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}
