package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"spendlens/internal/core"
)

func testDataset(t *testing.T, id, name string) *core.Dataset {
	t.Helper()
	d, err := core.ParseDate("2025-01-15")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return &core.Dataset{
		ID:        id,
		Name:      name,
		CreatedAt: time.Date(2025, time.January, 16, 10, 0, 0, 0, time.UTC),
		Records: []core.Transaction{
			core.Transaction{Date: d, Description: "corner cafe", Amount: 4.50, Category: "food/restaurant"}.WithDerived(),
			core.Transaction{Date: d, Description: "mystery shop", Amount: 20, Category: core.UnknownCategory}.WithDerived(),
		},
	}
}

func TestStoreSaveAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	ds := testDataset(t, "ds-1", "january")
	if err := s.SaveDataset(ctx, ds); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetDataset(ctx, "ds-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != ds.ID || got.Name != ds.Name || len(got.Records) != 2 {
		t.Fatalf("unexpected dataset: %+v", got)
	}
	if got.Records[0].Description != "corner cafe" {
		t.Fatalf("unexpected record: %+v", got.Records[0])
	}

	// Mutating the returned slice must not touch the stored copy.
	got.Records[0].Description = "tampered"
	again, err := s.GetDataset(ctx, "ds-1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Records[0].Description != "corner cafe" {
		t.Fatalf("stored copy was mutated: %+v", again.Records[0])
	}

	if err := s.SaveDataset(ctx, ds); err == nil {
		t.Fatalf("expected error on duplicate dataset ID")
	}

	if _, err := s.GetDataset(ctx, "missing"); !errors.Is(err, core.ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound, got %v", err)
	}
}

func TestStoreLatestAndList(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetLatestDataset(ctx); !errors.Is(err, core.ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound on empty store, got %v", err)
	}

	if err := s.SaveDataset(ctx, testDataset(t, "ds-1", "first")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveDataset(ctx, testDataset(t, "ds-2", "second")); err != nil {
		t.Fatalf("save: %v", err)
	}

	latest, err := s.GetLatestDataset(ctx)
	if err != nil || latest.ID != "ds-2" {
		t.Fatalf("latest = %+v, err = %v", latest, err)
	}

	infos, err := s.ListDatasets(ctx)
	if err != nil || len(infos) != 2 {
		t.Fatalf("list = %+v, err = %v", infos, err)
	}
	if infos[0].ID != "ds-2" || infos[1].ID != "ds-1" {
		t.Fatalf("expected newest first: %+v", infos)
	}
	if infos[0].RecordCount != 2 {
		t.Fatalf("record count = %d, want 2", infos[0].RecordCount)
	}
}

func TestStoreDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.SaveDataset(ctx, testDataset(t, "ds-1", "first")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.RecordTrainingRun(ctx, core.TrainingRun{ID: "run-1", DatasetID: "ds-1"}); err != nil {
		t.Fatalf("record run: %v", err)
	}

	if err := s.DeleteDataset(ctx, "ds-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetDataset(ctx, "ds-1"); !errors.Is(err, core.ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound after delete, got %v", err)
	}
	runs, err := s.ListTrainingRuns(ctx, "ds-1")
	if err != nil || len(runs) != 0 {
		t.Fatalf("runs survived delete: %+v, err = %v", runs, err)
	}

	if err := s.DeleteDataset(ctx, "ds-1"); !errors.Is(err, core.ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound for missing dataset, got %v", err)
	}
}

func TestStoreTrainingRuns(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, id := range []string{"run-1", "run-2"} {
		err := s.RecordTrainingRun(ctx, core.TrainingRun{
			ID:        id,
			DatasetID: "ds-1",
			Samples:   12,
			Accuracy:  0.9,
			Trigger:   "cli",
		})
		if err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	if err := s.RecordTrainingRun(ctx, core.TrainingRun{ID: "run-3", DatasetID: "ds-2"}); err != nil {
		t.Fatalf("record run-3: %v", err)
	}

	runs, err := s.ListTrainingRuns(ctx, "ds-1")
	if err != nil || len(runs) != 2 {
		t.Fatalf("runs = %+v, err = %v", runs, err)
	}
	if runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Fatalf("expected newest first: %+v", runs)
	}
}
