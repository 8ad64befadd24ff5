package storage

import "cellnet/internal/model"

func testSnapshot(id, createdAt string) model.NetworkSnapshot {
	return model.NetworkSnapshot{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		Inputs:          2,
		Layers: []model.LayerRecord{
			{Kernel: model.KernelSpec{Transfer: "linear", Aggregation: "average", Activation: "relu", Cost: "mean_squared", Optimizer: "sgd"}, Router: "any", Dimension: 1},
			{Kernel: model.KernelSpec{Transfer: "linear", Aggregation: "average", Activation: "sigmoid", Cost: "mean_squared", Optimizer: "sgd"}, Dimension: 1},
		},
		Cells: []model.CellRecord{
			{Layer: 0, Position: 0, Bias: 0.25, Weight: [][]float64{{0.5}, {-0.5}}},
			{Layer: 1, Position: 0, Bias: -1, Weight: [][]float64{{2}}},
		},
		CreatedAtUTC: createdAt,
	}
}

func testRun(id, networkID, createdAt string) model.TrainingRun {
	return model.TrainingRun{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		NetworkID:       networkID,
		Dataset:         "xor.csv",
		LearningRate:    0.1,
		Epochs:          100,
		Metrics: []model.EpochMetrics{
			{Epoch: 50, TrainLoss: 0.2, TrainAccuracy: 0.5},
			{Epoch: 100, TrainLoss: 0.1, TrainAccuracy: 0.75},
		},
		FinalLoss:    0.1,
		CreatedAtUTC: createdAt,
	}
}
