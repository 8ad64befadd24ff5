package cellnet

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"cellnet/internal/dataset"
	"cellnet/internal/model"
	"cellnet/internal/nn"
	"cellnet/internal/stats"
	"cellnet/internal/storage"
)

const (
	defaultDBPath       = "cellnet.db"
	defaultLearningRate = 0.1
	defaultEpochs       = 1000
	defaultTrainPercent = 70
	defaultSplitPercent = 15
	defaultRunsLimit    = 20
)

type Options struct {
	StoreKind string
	DBPath    string
}

type Client struct {
	store       storage.Store
	initialized bool
}

// LayerConfig names the kernel functions of one layer. Empty names fall back
// to the kernel defaults and the "any" router.
type LayerConfig struct {
	Dimension   int
	Activation  string
	Transfer    string
	Aggregation string
	Cost        string
	Optimizer   string
	Router      string
	Dropout     float64
}

// TrainRequest trains a new network built from Layers, or continues training
// the stored network NetworkID. Data comes from DatasetPath or from the
// inline Features and Target rows.
type TrainRequest struct {
	NetworkID string
	Layers    []LayerConfig

	DatasetPath  string
	TargetLabels []string
	Features     [][]float64
	Target       [][]float64
	OneHot       bool
	Normalize    bool
	Shuffle      bool

	TrainPercent      int
	ValidationPercent int
	TestPercent       int
	BatchSize         int

	LearningRate float64
	Epochs       int
	Seed         int64
	LogInterval  int
	// StopLoss of 0 keeps the engine default; a negative value disables
	// early stopping.
	StopLoss float64
	Progress func(model.EpochMetrics)
}

type TrainSummary struct {
	RunID        string
	NetworkID    string
	Metrics      []model.EpochMetrics
	FinalLoss    float64
	TestLoss     float64
	TestAccuracy float64
	TestRows     int
}

type PredictRequest struct {
	NetworkID string
	Inputs    [][]float64
}

// RunsRequest lists runs newest first, or by lowest final loss when
// BestFirst is set.
type RunsRequest struct {
	NetworkID string
	BestFirst bool
	Limit     int
}

type RunItem struct {
	RunID        string
	NetworkID    string
	CreatedAtUTC string
	Dataset      string
	Epochs       int
	LearningRate float64
	FinalLoss    float64
	TestAccuracy float64
}

type NetworkSummary struct {
	ID            string
	CreatedAtUTC  string
	Inputs        int
	Layers        []model.LayerRecord
	Size          int
	TargetClasses []string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	if req.LearningRate == 0 {
		req.LearningRate = defaultLearningRate
	}
	if req.Epochs <= 0 {
		req.Epochs = defaultEpochs
	}
	if req.TrainPercent == 0 && req.ValidationPercent == 0 && req.TestPercent == 0 {
		req.TrainPercent = defaultTrainPercent
		req.ValidationPercent = defaultSplitPercent
		req.TestPercent = defaultSplitPercent
	}
	if req.NetworkID == "" && len(req.Layers) == 0 {
		return TrainSummary{}, errors.New("layers are required to build a new network")
	}
	if err := c.Init(ctx); err != nil {
		return TrainSummary{}, err
	}

	set, source, err := loadSet(req)
	if err != nil {
		return TrainSummary{}, err
	}
	rng := rand.New(rand.NewSource(req.Seed))
	if req.Shuffle {
		set.Shuffle(rng)
	}

	var (
		network  *nn.Network
		existing model.NetworkSnapshot
	)
	if req.NetworkID != "" {
		var ok bool
		existing, ok, err = c.store.GetNetwork(ctx, req.NetworkID)
		if err != nil {
			return TrainSummary{}, err
		}
		if !ok {
			return TrainSummary{}, fmt.Errorf("network not found: %s", req.NetworkID)
		}
		if len(existing.FeatureMeans) > 0 {
			if err := set.Standardize(existing.FeatureMeans, existing.FeatureDeviations); err != nil {
				return TrainSummary{}, err
			}
		}
		if network, err = nn.Restore(existing, nn.WithRand(rng)); err != nil {
			return TrainSummary{}, err
		}
	} else {
		if req.Normalize {
			existing.FeatureMeans, existing.FeatureDeviations = set.Normalize()
		}
		existing.TargetClasses = set.TargetClasses
		if network, err = buildNetwork(req.Layers, set, rng); err != nil {
			return TrainSummary{}, err
		}
	}
	defer network.Delete()

	if _, cols := set.Features.Dims(); network.Inputs() != 0 && network.Inputs() != cols {
		return TrainSummary{}, fmt.Errorf("network takes %d inputs, dataset has %d feature columns", network.Inputs(), cols)
	}
	res := network.Resolution()
	if _, cols := set.Target.Dims(); res.Dimensions[res.Layers-1] != cols {
		return TrainSummary{}, fmt.Errorf("output layer has %d cells, dataset has %d target columns", res.Dimensions[res.Layers-1], cols)
	}

	batch, err := dataset.Split(set, req.BatchSize, req.TrainPercent, req.ValidationPercent, req.TestPercent)
	if err != nil {
		return TrainSummary{}, err
	}

	opts := []nn.TrainOption{nn.WithLogInterval(req.LogInterval), nn.WithProgress(req.Progress)}
	if req.StopLoss != 0 {
		opts = append(opts, nn.WithStopLoss(req.StopLoss))
	}
	metrics, err := network.Train(ctx, batch, req.LearningRate, req.Epochs, opts...)
	if err != nil {
		return TrainSummary{}, err
	}

	summary := TrainSummary{Metrics: metrics}
	if len(metrics) > 0 {
		summary.FinalLoss = metrics[len(metrics)-1].TrainLoss
	}
	if summary.TestRows = batch.Test.Rows(); summary.TestRows > 0 {
		if summary.TestLoss, summary.TestAccuracy, err = network.Evaluate(batch.Test); err != nil {
			return TrainSummary{}, err
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	networkID := req.NetworkID
	if networkID == "" {
		networkID = uuid.NewString()
	}
	snapshot, err := network.Snapshot(networkID)
	if err != nil {
		return TrainSummary{}, err
	}
	snapshot.VersionedRecord = storage.CurrentVersion()
	snapshot.FeatureMeans = existing.FeatureMeans
	snapshot.FeatureDeviations = existing.FeatureDeviations
	snapshot.TargetClasses = existing.TargetClasses
	snapshot.CreatedAtUTC = existing.CreatedAtUTC
	if snapshot.CreatedAtUTC == "" {
		snapshot.CreatedAtUTC = now
	}
	if err := c.store.SaveNetwork(ctx, snapshot); err != nil {
		return TrainSummary{}, err
	}

	run := model.TrainingRun{
		VersionedRecord: storage.CurrentVersion(),
		ID:              uuid.NewString(),
		NetworkID:       networkID,
		Dataset:         source,
		LearningRate:    req.LearningRate,
		Epochs:          req.Epochs,
		BatchSize:       batch.Size,
		Seed:            req.Seed,
		Metrics:         metrics,
		FinalLoss:       summary.FinalLoss,
		TestLoss:        summary.TestLoss,
		TestAccuracy:    summary.TestAccuracy,
		CreatedAtUTC:    now,
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return TrainSummary{}, err
	}

	summary.RunID = run.ID
	summary.NetworkID = networkID
	return summary, nil
}

func (c *Client) Predict(ctx context.Context, req PredictRequest) ([][]float64, error) {
	if req.NetworkID == "" {
		return nil, errors.New("network id is required")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	snapshot, ok, err := c.store.GetNetwork(ctx, req.NetworkID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("network not found: %s", req.NetworkID)
	}

	input, err := matrixFromRows(req.Inputs)
	if err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	if len(snapshot.FeatureMeans) > 0 {
		scaled := &dataset.Set{Features: input}
		if err := scaled.Standardize(snapshot.FeatureMeans, snapshot.FeatureDeviations); err != nil {
			return nil, err
		}
	}

	network, err := nn.Restore(snapshot)
	if err != nil {
		return nil, err
	}
	defer network.Delete()

	output, err := network.Fire(input)
	if err != nil {
		return nil, err
	}
	rows, _ := output.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = mat.Row(nil, i, output)
	}
	return out, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	query := storage.RunQuery{NetworkID: req.NetworkID, Limit: req.Limit}
	if req.BestFirst {
		query.Order = storage.LowestLossFirst
	}
	runs, err := c.store.ListRuns(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunItem{
			RunID:        run.ID,
			NetworkID:    run.NetworkID,
			CreatedAtUTC: run.CreatedAtUTC,
			Dataset:      run.Dataset,
			Epochs:       run.Epochs,
			LearningRate: run.LearningRate,
			FinalLoss:    run.FinalLoss,
			TestAccuracy: run.TestAccuracy,
		})
	}
	return out, nil
}

func (c *Client) Run(ctx context.Context, runID string) (model.TrainingRun, error) {
	if err := c.Init(ctx); err != nil {
		return model.TrainingRun{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.TrainingRun{}, err
	}
	if !ok {
		return model.TrainingRun{}, fmt.Errorf("run not found: %s", runID)
	}
	return run, nil
}

// Export writes the run, its metrics series, a loss summary and the current
// state of its network under outDir/<run id>.
func (c *Client) Export(ctx context.Context, runID, outDir string) (string, error) {
	run, err := c.Run(ctx, runID)
	if err != nil {
		return "", err
	}
	network, ok, err := c.store.GetNetwork(ctx, run.NetworkID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("network not found: %s", run.NetworkID)
	}
	return stats.WriteRunArtifacts(outDir, stats.RunArtifacts{Run: run, Network: network})
}

func (c *Client) Inspect(ctx context.Context, networkID string) (NetworkSummary, error) {
	if err := c.Init(ctx); err != nil {
		return NetworkSummary{}, err
	}
	snapshot, ok, err := c.store.GetNetwork(ctx, networkID)
	if err != nil {
		return NetworkSummary{}, err
	}
	if !ok {
		return NetworkSummary{}, fmt.Errorf("network not found: %s", networkID)
	}
	return summarize(snapshot), nil
}

func (c *Client) Networks(ctx context.Context) ([]NetworkSummary, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	snapshots, err := c.store.ListNetworks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]NetworkSummary, 0, len(snapshots))
	for _, snapshot := range snapshots {
		out = append(out, summarize(snapshot))
	}
	return out, nil
}

func summarize(snapshot model.NetworkSnapshot) NetworkSummary {
	summary := NetworkSummary{
		ID:            snapshot.ID,
		CreatedAtUTC:  snapshot.CreatedAtUTC,
		Inputs:        snapshot.Inputs,
		Layers:        append([]model.LayerRecord(nil), snapshot.Layers...),
		TargetClasses: append([]string(nil), snapshot.TargetClasses...),
	}
	for _, layer := range snapshot.Layers {
		summary.Size += layer.Dimension
	}
	return summary
}

func loadSet(req TrainRequest) (*dataset.Set, string, error) {
	var (
		set    *dataset.Set
		source string
		err    error
	)
	switch {
	case req.DatasetPath != "" && len(req.Features) > 0:
		return nil, "", errors.New("use either a dataset path or inline rows")
	case req.DatasetPath != "":
		set, err = dataset.LoadCSV(req.DatasetPath, req.TargetLabels)
		source = req.DatasetPath
	case len(req.Features) > 0:
		var features, target *mat.Dense
		if features, err = matrixFromRows(req.Features); err != nil {
			return nil, "", fmt.Errorf("features: %w", err)
		}
		if target, err = matrixFromRows(req.Target); err != nil {
			return nil, "", fmt.Errorf("target: %w", err)
		}
		set, err = dataset.FromMatrix(features, target)
		source = "inline"
	default:
		return nil, "", errors.New("dataset is required")
	}
	if err != nil {
		return nil, "", err
	}
	if req.OneHot {
		if err := set.OneHotTarget(); err != nil {
			return nil, "", err
		}
	}
	return set, source, nil
}

func buildNetwork(layers []LayerConfig, set *dataset.Set, rng *rand.Rand) (*nn.Network, error) {
	records := make([]model.LayerRecord, len(layers))
	for i, layer := range layers {
		records[i] = model.LayerRecord{
			Kernel: model.KernelSpec{
				Transfer:    layer.Transfer,
				Aggregation: layer.Aggregation,
				Activation:  layer.Activation,
				Cost:        layer.Cost,
				Optimizer:   layer.Optimizer,
			},
			Router:    layer.Router,
			Dimension: layer.Dimension,
			Dropout:   layer.Dropout,
		}
		if i < len(layers)-1 && records[i].Router == "" {
			records[i].Router = "any"
		}
	}
	specs, err := nn.LayerSpecs(records)
	if err != nil {
		return nil, err
	}
	_, inputs := set.Features.Dims()
	return nn.New(specs, nn.WithRand(rng), nn.WithInputs(inputs))
}

func matrixFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New("at least one non-empty row is required")
	}
	width := len(rows[0])
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), width, data), nil
}
