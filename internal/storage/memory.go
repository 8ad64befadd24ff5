package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"cellnet/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	networks    map[string]model.NetworkSnapshot
	runs        map[string]model.TrainingRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.networks = make(map[string]model.NetworkSnapshot)
	s.runs = make(map[string]model.TrainingRun)
	return nil
}

func (s *MemoryStore) SaveNetwork(_ context.Context, snapshot model.NetworkSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	if snapshot.ID == "" {
		return errors.New("network id is required")
	}
	s.networks[snapshot.ID] = copyNetwork(snapshot)
	return nil
}

func (s *MemoryStore) GetNetwork(_ context.Context, id string) (model.NetworkSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.networks[id]
	if !ok {
		return model.NetworkSnapshot{}, false, nil
	}
	return copyNetwork(snapshot), true, nil
}

func (s *MemoryStore) ListNetworks(_ context.Context) ([]model.NetworkSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.NetworkSnapshot, 0, len(s.networks))
	for _, snapshot := range s.networks {
		out = append(out, copyNetwork(snapshot))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUTC != out[j].CreatedAtUTC {
			return out[i].CreatedAtUTC < out[j].CreatedAtUTC
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.TrainingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.TrainingRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.TrainingRun{}, false, nil
	}
	return copyRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, query RunQuery) ([]model.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.TrainingRun, 0, len(s.runs))
	for _, run := range s.runs {
		if query.Matches(run) {
			runs = append(runs, copyRun(run))
		}
	}
	return query.Select(runs), nil
}

func copyNetwork(snapshot model.NetworkSnapshot) model.NetworkSnapshot {
	out := snapshot
	out.Layers = append([]model.LayerRecord(nil), snapshot.Layers...)
	out.FeatureMeans = append([]float64(nil), snapshot.FeatureMeans...)
	out.FeatureDeviations = append([]float64(nil), snapshot.FeatureDeviations...)
	out.TargetClasses = append([]string(nil), snapshot.TargetClasses...)
	out.Cells = make([]model.CellRecord, len(snapshot.Cells))
	for i, cell := range snapshot.Cells {
		out.Cells[i] = cell
		out.Cells[i].Weight = make([][]float64, len(cell.Weight))
		for r, row := range cell.Weight {
			out.Cells[i].Weight[r] = append([]float64(nil), row...)
		}
	}
	return out
}

func copyRun(run model.TrainingRun) model.TrainingRun {
	out := run
	out.Metrics = append([]model.EpochMetrics(nil), run.Metrics...)
	return out
}
