// Package storage persists dataset snapshots and training-run history in
// SQLite. Snapshots are immutable: writes insert whole datasets, never
// update records in place.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"spendlens/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateSchema(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveDataset stores the snapshot and its records in one transaction.
func (r *SQLiteRepository) SaveDataset(ctx context.Context, d *core.Dataset) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validate dataset: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO datasets (id, name, created_at, record_count) VALUES (?, ?, ?, ?)`,
		d.ID, d.Name, d.CreatedAt.UTC().Format(time.RFC3339), len(d.Records))
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (dataset_id, seq, date, description, amount, category, year, month, day_of_week)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range d.Records {
		_, err := stmt.ExecContext(ctx,
			d.ID, i, rec.Date.UTC().Format(time.RFC3339), rec.Description,
			rec.Amount, rec.Category, rec.Year, rec.Month, rec.DayOfWeek)
		if err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dataset: %w", err)
	}

	slog.InfoContext(ctx, "Dataset saved to SQLite",
		"dataset_id", d.ID,
		"dataset_name", d.Name,
		"record_count", len(d.Records))

	return nil
}

// GetDataset loads one snapshot with its records in ingestion order.
// Unknown IDs return core.ErrDatasetNotFound.
func (r *SQLiteRepository) GetDataset(ctx context.Context, id string) (*core.Dataset, error) {
	var (
		d       core.Dataset
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM datasets WHERE id = ?`, id).
		Scan(&d.ID, &d.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrDatasetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select dataset: %w", err)
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("parse dataset timestamp: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT date, description, amount, category, year, month, day_of_week
		 FROM records WHERE dataset_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec  core.Transaction
			date string
		)
		if err := rows.Scan(&date, &rec.Description, &rec.Amount, &rec.Category,
			&rec.Year, &rec.Month, &rec.DayOfWeek); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if rec.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, fmt.Errorf("parse record date: %w", err)
		}
		d.Records = append(d.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return &d, nil
}

// GetLatestDataset loads the most recently created snapshot.
func (r *SQLiteRepository) GetLatestDataset(ctx context.Context) (*core.Dataset, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM datasets ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrDatasetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select latest dataset: %w", err)
	}
	return r.GetDataset(ctx, id)
}

// ListDatasets returns snapshot metadata, newest first.
func (r *SQLiteRepository) ListDatasets(ctx context.Context) ([]core.DatasetInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at, record_count FROM datasets ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("select datasets: %w", err)
	}
	defer rows.Close()

	var out []core.DatasetInfo
	for rows.Next() {
		var (
			info    core.DatasetInfo
			created string
		)
		if err := rows.Scan(&info.ID, &info.Name, &created, &info.RecordCount); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		if info.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, fmt.Errorf("parse dataset timestamp: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}

	return out, nil
}

// DeleteDataset removes a snapshot, its records and its training history.
func (r *SQLiteRepository) DeleteDataset(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE dataset_id = ?`, id); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM training_runs WHERE dataset_id = ?`, id); err != nil {
		return fmt.Errorf("delete training runs: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrDatasetNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "Dataset deleted", "dataset_id", id)
	return nil
}

// RecordTrainingRun appends one training outcome to the history.
func (r *SQLiteRepository) RecordTrainingRun(ctx context.Context, run core.TrainingRun) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO training_runs (id, dataset_id, samples, labels, accuracy, duration_ms, triggered_by, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DatasetID, run.Samples, run.Labels, run.Accuracy,
		run.Duration.Milliseconds(), run.Trigger, run.FinishedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert training run: %w", err)
	}

	slog.InfoContext(ctx, "Training run recorded",
		"run_id", run.ID,
		"dataset_id", run.DatasetID,
		"samples", run.Samples,
		"accuracy", run.Accuracy)

	return nil
}

// ListTrainingRuns returns the training history for one dataset, newest
// first.
func (r *SQLiteRepository) ListTrainingRuns(ctx context.Context, datasetID string) ([]core.TrainingRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, dataset_id, samples, labels, accuracy, duration_ms, triggered_by, finished_at
		 FROM training_runs WHERE dataset_id = ? ORDER BY finished_at DESC, rowid DESC`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("select training runs: %w", err)
	}
	defer rows.Close()

	var out []core.TrainingRun
	for rows.Next() {
		var (
			run        core.TrainingRun
			durationMS int64
			finished   string
		)
		if err := rows.Scan(&run.ID, &run.DatasetID, &run.Samples, &run.Labels,
			&run.Accuracy, &durationMS, &run.Trigger, &finished); err != nil {
			return nil, fmt.Errorf("scan training run: %w", err)
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		if run.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
			return nil, fmt.Errorf("parse training run timestamp: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training runs: %w", err)
	}

	return out, nil
}
