package storage

import (
	"context"
	"sort"

	"cellnet/internal/model"
)

// Store persists network snapshots and training runs.
type Store interface {
	Init(ctx context.Context) error
	SaveNetwork(ctx context.Context, snapshot model.NetworkSnapshot) error
	GetNetwork(ctx context.Context, id string) (model.NetworkSnapshot, bool, error)
	ListNetworks(ctx context.Context) ([]model.NetworkSnapshot, error)
	SaveRun(ctx context.Context, run model.TrainingRun) error
	GetRun(ctx context.Context, id string) (model.TrainingRun, bool, error)
	ListRuns(ctx context.Context, query RunQuery) ([]model.TrainingRun, error)
}

type RunOrder int

const (
	NewestFirst RunOrder = iota
	LowestLossFirst
)

// RunQuery selects training runs. An empty NetworkID matches every network
// and a Limit <= 0 returns every match.
type RunQuery struct {
	NetworkID string
	Order     RunOrder
	Limit     int
}

func (q RunQuery) Matches(run model.TrainingRun) bool {
	return q.NetworkID == "" || run.NetworkID == q.NetworkID
}

// before reports whether a is listed ahead of b. Ties fall back to the newest
// run, then the larger id, so listings are stable across stores.
func (q RunQuery) before(a, b model.TrainingRun) bool {
	if q.Order == LowestLossFirst && a.FinalLoss != b.FinalLoss {
		return a.FinalLoss < b.FinalLoss
	}
	if a.CreatedAtUTC != b.CreatedAtUTC {
		return a.CreatedAtUTC > b.CreatedAtUTC
	}
	return a.ID > b.ID
}

// Select filters, orders and truncates runs in place.
func (q RunQuery) Select(runs []model.TrainingRun) []model.TrainingRun {
	kept := runs[:0]
	for _, run := range runs {
		if q.Matches(run) {
			kept = append(kept, run)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return q.before(kept[i], kept[j]) })
	if q.Limit > 0 && len(kept) > q.Limit {
		kept = kept[:q.Limit]
	}
	return kept
}

func (o RunOrder) orderBy() string {
	if o == LowestLossFirst {
		return "final_loss ASC, created_at DESC, id DESC"
	}
	return "created_at DESC, id DESC"
}
