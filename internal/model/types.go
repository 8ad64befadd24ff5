package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// KernelSpec names the function set bound to every cell of a layer.
type KernelSpec struct {
	Transfer    string `json:"transfer"`
	Aggregation string `json:"aggregation"`
	Activation  string `json:"activation"`
	Cost        string `json:"cost"`
	Optimizer   string `json:"optimizer"`
}

type LayerRecord struct {
	Kernel    KernelSpec `json:"kernel"`
	Router    string     `json:"router"`
	Dimension int        `json:"dimension"`
	Dropout   float64    `json:"dropout,omitempty"`
}

type CellRecord struct {
	Layer    int         `json:"layer"`
	Position int         `json:"position"`
	Bias     float64     `json:"bias"`
	Weight   [][]float64 `json:"weight"`
}

// NetworkSnapshot is enough to rebuild a network with identical outputs.
// FeatureMeans and FeatureDeviations hold the input scale applied in
// training, if any.
type NetworkSnapshot struct {
	VersionedRecord
	ID                string        `json:"id"`
	Inputs            int           `json:"inputs"`
	Layers            []LayerRecord `json:"layers"`
	Cells             []CellRecord  `json:"cells"`
	FeatureMeans      []float64     `json:"feature_means,omitempty"`
	FeatureDeviations []float64     `json:"feature_deviations,omitempty"`
	TargetClasses     []string      `json:"target_classes,omitempty"`
	CreatedAtUTC      string        `json:"created_at_utc,omitempty"`
}

type EpochMetrics struct {
	Epoch              int     `json:"epoch"`
	TrainLoss          float64 `json:"train_loss"`
	TrainAccuracy      float64 `json:"train_accuracy"`
	ValidationLoss     float64 `json:"validation_loss"`
	ValidationAccuracy float64 `json:"validation_accuracy"`
}

type TrainingRun struct {
	VersionedRecord
	ID           string         `json:"id"`
	NetworkID    string         `json:"network_id"`
	Dataset      string         `json:"dataset,omitempty"`
	LearningRate float64        `json:"learning_rate"`
	Epochs       int            `json:"epochs"`
	BatchSize    int            `json:"batch_size"`
	Seed         int64          `json:"seed"`
	Metrics      []EpochMetrics `json:"metrics"`
	FinalLoss    float64        `json:"final_loss"`
	TestLoss     float64        `json:"test_loss"`
	TestAccuracy float64        `json:"test_accuracy"`
	CreatedAtUTC string         `json:"created_at_utc"`
}
