// Package memory is the in-process snapshot store used by tests and
// BACKEND=memory runs. Contents vanish on exit.
package memory

import (
	"context"
	"fmt"
	"sync"

	"spendlens/internal/core"
)

type Store struct {
	mu       sync.Mutex
	datasets map[string]core.Dataset
	order    []string // insertion order, oldest first
	runs     []core.TrainingRun
}

func New() *Store {
	return &Store{datasets: make(map[string]core.Dataset)}
}

func (s *Store) Close() error { return nil }

// SaveDataset stores its own copy of the snapshot so later caller
// mutations cannot reach stored state.
func (s *Store) SaveDataset(_ context.Context, d *core.Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.datasets[d.ID]; exists {
		return fmt.Errorf("dataset %s already stored", d.ID)
	}
	cp := *d
	cp.Records = append([]core.Transaction(nil), d.Records...)
	s.datasets[d.ID] = cp
	s.order = append(s.order, d.ID)
	return nil
}

func (s *Store) GetDataset(_ context.Context, id string) (*core.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[id]
	if !ok {
		return nil, core.ErrDatasetNotFound
	}
	cp := d
	cp.Records = append([]core.Transaction(nil), d.Records...)
	return &cp, nil
}

func (s *Store) GetLatestDataset(ctx context.Context) (*core.Dataset, error) {
	s.mu.Lock()
	var latest string
	if n := len(s.order); n > 0 {
		latest = s.order[n-1]
	}
	s.mu.Unlock()
	if latest == "" {
		return nil, core.ErrDatasetNotFound
	}
	return s.GetDataset(ctx, latest)
}

// ListDatasets returns snapshot metadata, newest first.
func (s *Store) ListDatasets(_ context.Context) ([]core.DatasetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.DatasetInfo, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		d := s.datasets[s.order[i]]
		out = append(out, d.Info())
	}
	return out, nil
}

func (s *Store) DeleteDataset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[id]; !ok {
		return core.ErrDatasetNotFound
	}
	delete(s.datasets, id)
	for i, stored := range s.order {
		if stored == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	kept := s.runs[:0]
	for _, run := range s.runs {
		if run.DatasetID != id {
			kept = append(kept, run)
		}
	}
	s.runs = kept
	return nil
}

func (s *Store) RecordTrainingRun(_ context.Context, run core.TrainingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// ListTrainingRuns returns one dataset's training history, newest first.
func (s *Store) ListTrainingRuns(_ context.Context, datasetID string) ([]core.TrainingRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.TrainingRun
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].DatasetID == datasetID {
			out = append(out, s.runs[i])
		}
	}
	return out, nil
}
