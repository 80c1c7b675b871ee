package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"spendlens/internal/amqp"
	"spendlens/internal/categorize"
	"spendlens/internal/core"
)

// Store is the slice of the snapshot store the retrainer needs.
type Store interface {
	GetDataset(ctx context.Context, id string) (*core.Dataset, error)
	GetLatestDataset(ctx context.Context) (*core.Dataset, error)
	RecordTrainingRun(ctx context.Context, run core.TrainingRun) error
}

// Retrainer rebuilds the categorization model from stored dataset snapshots
// in response to queued retrain requests, and persists the result where the
// CLI picks it up.
type Retrainer struct {
	store     Store
	modelPath string
	opts      categorize.Options
}

func NewRetrainer(store Store, modelPath string, opts categorize.Options) *Retrainer {
	return &Retrainer{
		store:     store,
		modelPath: modelPath,
		opts:      opts,
	}
}

// HandleRetrainRequest processes a single retrain request from AMQP.
// A nil return acknowledges the delivery; errors send it back to the queue.
func (r *Retrainer) HandleRetrainRequest(ctx context.Context, msg *amqp.RetrainRequest) error {
	dataset, err := r.store.GetDataset(ctx, msg.DatasetID)
	if err != nil {
		if errors.Is(err, core.ErrDatasetNotFound) {
			// The snapshot is gone. Requeueing would loop forever, so
			// acknowledge and move on.
			slog.WarnContext(ctx, "Dataset vanished before retraining, dropping request",
				"dataset_id", msg.DatasetID)
			return nil
		}
		return fmt.Errorf("get dataset from storage: %w", err)
	}

	started := time.Now()
	model, report, err := categorize.Train(dataset.Records, r.opts)
	if err != nil {
		var insufficient core.InsufficientDataError
		if errors.As(err, &insufficient) {
			slog.WarnContext(ctx, "Skipping retrain, not enough labeled records",
				"dataset_id", dataset.ID,
				"labeled", insufficient.Got,
				"needed", insufficient.Need)
			return nil
		}
		return fmt.Errorf("train model: %w", err)
	}

	if err := model.Save(r.modelPath); err != nil {
		return fmt.Errorf("save model: %w", err)
	}

	run := core.TrainingRun{
		ID:         uuid.NewString(),
		DatasetID:  dataset.ID,
		Samples:    report.Samples,
		Labels:     report.Labels,
		Accuracy:   report.Accuracy,
		Duration:   time.Since(started),
		Trigger:    msg.Trigger,
		FinishedAt: time.Now().UTC(),
	}
	if err := r.store.RecordTrainingRun(ctx, run); err != nil {
		// Don't fail the delivery here - the model is already saved
		slog.ErrorContext(ctx, "Failed to record training run",
			"error", err,
			"dataset_id", dataset.ID)
	}

	slog.InfoContext(ctx, "Model retrained",
		"dataset_id", dataset.ID,
		"samples", report.Samples,
		"labels", report.Labels,
		"accuracy", report.Accuracy,
		"duration", run.Duration.Round(time.Millisecond),
		"model_path", r.modelPath)

	return nil
}

// StartupTrainCheck trains immediately when no usable model exists on disk
// but the latest stored dataset is already trainable. This recovers from
// retrain requests lost while the worker was down.
func (r *Retrainer) StartupTrainCheck(ctx context.Context) error {
	_, err := categorize.Load(r.modelPath)
	if err == nil {
		slog.InfoContext(ctx, "Model already present, skipping startup training",
			"model_path", r.modelPath)
		return nil
	}
	slog.InfoContext(ctx, "No usable model on disk, training from latest dataset",
		"reason", err)

	dataset, err := r.store.GetLatestDataset(ctx)
	if err != nil {
		if errors.Is(err, core.ErrDatasetNotFound) {
			slog.InfoContext(ctx, "No datasets stored yet, nothing to train on")
			return nil
		}
		return fmt.Errorf("get latest dataset: %w", err)
	}

	msg := amqp.NewRetrainRequest(dataset.ID, dataset.Name, dataset.LabeledCount(), "startup")
	return r.HandleRetrainRequest(ctx, msg)
}
