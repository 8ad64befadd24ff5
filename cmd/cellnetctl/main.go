package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"cellnet/internal/model"
	"cellnet/internal/stats"
	"cellnet/internal/storage"
	cellapi "cellnet/pkg/cellnet"
)

const (
	defaultDBPath = "cellnet.db"
	exportsDir    = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "predict":
		return runPredict(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "run":
		return runShowRun(ctx, args[1:])
	case "inspect":
		return runInspect(ctx, args[1:])
	case "networks":
		return runNetworks(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "report":
		return runReport(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func storeFlags(fs *flag.FlagSet) (*string, *string) {
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	return storeKind, dbPath
}

func openClient(ctx context.Context, storeKind, dbPath string) (*cellapi.Client, error) {
	client, err := cellapi.New(cellapi.Options{StoreKind: storeKind, DBPath: dbPath})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional train config JSON path")
	storeKind, dbPath := storeFlags(fs)
	networkID := fs.String("network-id", "", "continue training a stored network")
	dataPath := fs.String("data", "", "CSV dataset path with a header row")
	target := fs.String("target", "", "comma separated target column labels")
	layers := fs.String("layers", "", "layers as dimension[:activation[:cost]], comma separated")
	oneHot := fs.Bool("one-hot", false, "one-hot encode a single class-index target column")
	normalize := fs.Bool("normalize", false, "standardize feature columns")
	shuffle := fs.Bool("shuffle", false, "shuffle rows before splitting")
	trainPct := fs.Int("train-pct", 70, "percentage of rows used for training")
	validationPct := fs.Int("validation-pct", 15, "percentage of rows used for validation")
	testPct := fs.Int("test-pct", 15, "percentage of rows used for testing")
	batchSize := fs.Int("batch-size", 0, "mini-batch size (0 uses the whole training set)")
	learningRate := fs.Float64("lr", 0.1, "learning rate")
	epochs := fs.Int("epochs", 1000, "epoch count")
	seed := fs.Int64("seed", 1, "rng seed")
	logInterval := fs.Int("log-interval", 50, "evaluate every N epochs")
	stopLoss := fs.Float64("stop-loss", 0.001, "early-stop loss threshold (negative disables)")
	quiet := fs.Bool("quiet", false, "do not print per-epoch metrics")
	jsonOut := fs.Bool("json", false, "emit the training summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultTrainRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		parsed, err := parseLayers(*layers)
		if err != nil {
			return err
		}
		req = cellapi.TrainRequest{
			NetworkID:         *networkID,
			Layers:            parsed,
			DatasetPath:       *dataPath,
			TargetLabels:      splitList(*target),
			OneHot:            *oneHot,
			Normalize:         *normalize,
			Shuffle:           *shuffle,
			TrainPercent:      *trainPct,
			ValidationPercent: *validationPct,
			TestPercent:       *testPct,
			BatchSize:         *batchSize,
			LearningRate:      *learningRate,
			Epochs:            *epochs,
			Seed:              *seed,
			LogInterval:       *logInterval,
			StopLoss:          *stopLoss,
		}
	} else {
		if err := overrideFromFlags(&req, setFlags, map[string]any{
			"network-id":     *networkID,
			"data":           *dataPath,
			"target":         *target,
			"layers":         *layers,
			"one-hot":        *oneHot,
			"normalize":      *normalize,
			"shuffle":        *shuffle,
			"train-pct":      *trainPct,
			"validation-pct": *validationPct,
			"test-pct":       *testPct,
			"batch-size":     *batchSize,
			"lr":             *learningRate,
			"epochs":         *epochs,
			"seed":           *seed,
			"log-interval":   *logInterval,
			"stop-loss":      *stopLoss,
		}); err != nil {
			return err
		}
	}
	if req.Epochs < 0 {
		return errors.New("epochs must be > 0")
	}
	if req.LearningRate < 0 {
		return errors.New("lr must be > 0")
	}
	if !*quiet && !*jsonOut {
		req.Progress = printEpoch
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}
	fmt.Printf("trained network_id=%s run_id=%s epochs_logged=%d final_loss=%.6f test_rows=%d test_loss=%.6f test_accuracy=%.4f\n",
		summary.NetworkID,
		summary.RunID,
		len(summary.Metrics),
		summary.FinalLoss,
		summary.TestRows,
		summary.TestLoss,
		summary.TestAccuracy,
	)
	return nil
}

func printEpoch(m model.EpochMetrics) {
	fmt.Printf("epoch=%d train_loss=%.6f train_accuracy=%.4f validation_loss=%.6f validation_accuracy=%.4f\n",
		m.Epoch,
		m.TrainLoss,
		m.TrainAccuracy,
		m.ValidationLoss,
		m.ValidationAccuracy,
	)
}

func runPredict(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	networkID := fs.String("network-id", "", "stored network id")
	inputs := fs.String("inputs", "", "input rows: comma separated values, rows separated by ';'")
	jsonOut := fs.Bool("json", false, "emit predictions as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *networkID == "" {
		return errors.New("predict requires --network-id")
	}
	rows, err := parseRows(*inputs)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.New("predict requires --inputs")
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Inspect(ctx, *networkID)
	if err != nil {
		return err
	}
	outputs, err := client.Predict(ctx, cellapi.PredictRequest{NetworkID: *networkID, Inputs: rows})
	if err != nil {
		return err
	}

	if *jsonOut {
		type predictItem struct {
			Output []float64 `json:"output"`
			Class  string    `json:"class,omitempty"`
		}
		items := make([]predictItem, 0, len(outputs))
		for _, output := range outputs {
			items = append(items, predictItem{Output: output, Class: predictedClass(output, summary.TargetClasses)})
		}
		return writeJSON(items)
	}
	for i, output := range outputs {
		line := fmt.Sprintf("row=%d output=%s", i, formatValues(output))
		if class := predictedClass(output, summary.TargetClasses); class != "" {
			line += " class=" + class
		}
		fmt.Println(line)
	}
	return nil
}

// predictedClass names the argmax of a one-hot output when the network was
// trained on a categorical target.
func predictedClass(output []float64, classes []string) string {
	if len(classes) == 0 || len(output) != len(classes) {
		return ""
	}
	best := 0
	for i, v := range output {
		if v > output[best] {
			best = i
		}
	}
	return classes[best]
}

func formatValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	networkID := fs.String("network-id", "", "only list runs of this network")
	limit := fs.Int("limit", 20, "max runs to list")
	best := fs.Bool("best", false, "order runs by lowest final loss")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, cellapi.RunsRequest{NetworkID: *networkID, BestFirst: *best, Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		type runsItem struct {
			RunID        string  `json:"run_id"`
			NetworkID    string  `json:"network_id"`
			CreatedAtUTC string  `json:"created_at_utc"`
			Dataset      string  `json:"dataset"`
			Epochs       int     `json:"epochs"`
			LearningRate float64 `json:"learning_rate"`
			FinalLoss    float64 `json:"final_loss"`
			TestAccuracy float64 `json:"test_accuracy"`
		}
		items := make([]runsItem, 0, len(runs))
		for _, r := range runs {
			items = append(items, runsItem{
				RunID:        r.RunID,
				NetworkID:    r.NetworkID,
				CreatedAtUTC: r.CreatedAtUTC,
				Dataset:      r.Dataset,
				Epochs:       r.Epochs,
				LearningRate: r.LearningRate,
				FinalLoss:    r.FinalLoss,
				TestAccuracy: r.TestAccuracy,
			})
		}
		return writeJSON(items)
	}

	for _, r := range runs {
		fmt.Printf("run_id=%s network_id=%s created_at=%s dataset=%s epochs=%d lr=%g final_loss=%.6f test_accuracy=%.4f\n",
			r.RunID,
			r.NetworkID,
			r.CreatedAtUTC,
			r.Dataset,
			r.Epochs,
			r.LearningRate,
			r.FinalLoss,
			r.TestAccuracy,
		)
	}
	return nil
}

func runShowRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	runID := fs.String("run-id", "", "training run id")
	jsonOut := fs.Bool("json", false, "emit the run as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("run requires --run-id")
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	trainingRun, err := client.Run(ctx, *runID)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(trainingRun)
	}
	fmt.Printf("run_id=%s network_id=%s dataset=%s lr=%g epochs=%d batch_size=%d seed=%d final_loss=%.6f test_loss=%.6f test_accuracy=%.4f\n",
		trainingRun.ID,
		trainingRun.NetworkID,
		trainingRun.Dataset,
		trainingRun.LearningRate,
		trainingRun.Epochs,
		trainingRun.BatchSize,
		trainingRun.Seed,
		trainingRun.FinalLoss,
		trainingRun.TestLoss,
		trainingRun.TestAccuracy,
	)
	for _, m := range trainingRun.Metrics {
		printEpoch(m)
	}
	printLossSummary(stats.Summarize(trainingRun.Metrics))
	return nil
}

func printLossSummary(loss stats.LossSummary) {
	if loss.Evaluations == 0 {
		return
	}
	fmt.Printf("summary watched=%s best_epoch=%d best_loss=%.6f mean_loss=%.6f std_loss=%.6f improvement=%.6f\n",
		loss.Watched,
		loss.BestEpoch,
		loss.BestLoss,
		loss.MeanLoss,
		loss.StdLoss,
		loss.Improvement,
	)
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	runID := fs.String("run-id", "", "training run id (defaults to the latest run)")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	id := *runID
	if id == "" {
		runs, err := client.Runs(ctx, cellapi.RunsRequest{Limit: 1})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return errors.New("no runs available to export")
		}
		id = runs[0].RunID
	}
	dir, err := client.Export(ctx, id, *outDir)
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", id, dir)
	loss, ok, err := stats.ReadLossSummary(*outDir, id)
	if err != nil {
		return err
	}
	if ok {
		printLossSummary(loss)
	}
	return nil
}

// runReport reads an exported run back from disk; it needs no store.
func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	dir := fs.String("dir", exportsDir, "export directory")
	runID := fs.String("run-id", "", "exported run id")
	jsonOut := fs.Bool("json", false, "emit the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("report requires --run-id")
	}

	trainingRun, ok, err := stats.ReadRun(*dir, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no exported run %s in %s", *runID, *dir)
	}
	series, ok, err := stats.ReadMetricsSeries(*dir, *runID)
	if err != nil {
		return err
	}
	if !ok {
		series = trainingRun.Metrics
	}
	loss, ok, err := stats.ReadLossSummary(*dir, *runID)
	if err != nil {
		return err
	}
	if !ok {
		loss = stats.Summarize(series)
	}

	if *jsonOut {
		return writeJSON(struct {
			Run     model.TrainingRun    `json:"run"`
			Metrics []model.EpochMetrics `json:"metrics"`
			Summary stats.LossSummary    `json:"summary"`
		}{Run: trainingRun, Metrics: series, Summary: loss})
	}
	fmt.Printf("run_id=%s network_id=%s dataset=%s epochs=%d final_loss=%.6f\n",
		trainingRun.ID,
		trainingRun.NetworkID,
		trainingRun.Dataset,
		trainingRun.Epochs,
		trainingRun.FinalLoss,
	)
	for _, m := range series {
		printEpoch(m)
	}
	printLossSummary(loss)
	return nil
}

func runInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	networkID := fs.String("network-id", "", "stored network id")
	jsonOut := fs.Bool("json", false, "emit the network summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *networkID == "" {
		return errors.New("inspect requires --network-id")
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Inspect(ctx, *networkID)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}
	printNetwork(summary)
	for i, layer := range summary.Layers {
		router := layer.Router
		if router == "" {
			router = "-"
		}
		fmt.Printf("layer=%d dimension=%d transfer=%s aggregation=%s activation=%s cost=%s optimizer=%s router=%s dropout=%g\n",
			i,
			layer.Dimension,
			layer.Kernel.Transfer,
			layer.Kernel.Aggregation,
			layer.Kernel.Activation,
			layer.Kernel.Cost,
			layer.Kernel.Optimizer,
			router,
			layer.Dropout,
		)
	}
	return nil
}

func runNetworks(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("networks", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	jsonOut := fs.Bool("json", false, "emit networks as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	networks, err := client.Networks(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(networks)
	}
	if len(networks) == 0 {
		fmt.Println("no networks found")
		return nil
	}
	for _, summary := range networks {
		printNetwork(summary)
	}
	return nil
}

func printNetwork(summary cellapi.NetworkSummary) {
	dims := make([]string, len(summary.Layers))
	for i, layer := range summary.Layers {
		dims[i] = fmt.Sprint(layer.Dimension)
	}
	classes := "-"
	if len(summary.TargetClasses) > 0 {
		classes = strings.Join(summary.TargetClasses, ",")
	}
	fmt.Printf("network_id=%s created_at=%s inputs=%d layers=%s size=%d classes=%s\n",
		summary.ID,
		summary.CreatedAtUTC,
		summary.Inputs,
		strings.Join(dims, "x"),
		summary.Size,
		classes,
	)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: cellnetctl <init|train|predict|runs|run|inspect|networks|export|report> [flags]", msg)
}
