// Package services orchestrates the expense intelligence pipeline across
// storage, the optional retrain queue, the persisted model and the rule set.
// Snapshots handed out by the service are shared with its cache, so callers
// treat records as read-only.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"spendlens/internal/anomaly"
	"spendlens/internal/cache"
	"spendlens/internal/categorize"
	"spendlens/internal/core"
	"spendlens/internal/ingest"
	"spendlens/internal/insights"
	"spendlens/internal/query"
	"spendlens/internal/rules"
)

// Store is the snapshot and training-run storage the service runs on. The
// SQLite repository and the memory store both satisfy it.
type Store interface {
	SaveDataset(ctx context.Context, d *core.Dataset) error
	GetDataset(ctx context.Context, id string) (*core.Dataset, error)
	GetLatestDataset(ctx context.Context) (*core.Dataset, error)
	ListDatasets(ctx context.Context) ([]core.DatasetInfo, error)
	DeleteDataset(ctx context.Context, id string) error
	RecordTrainingRun(ctx context.Context, run core.TrainingRun) error
	ListTrainingRuns(ctx context.Context, datasetID string) ([]core.TrainingRun, error)
	Close() error
}

// Publisher is the retrain-queue side of the AMQP client. A nil Publisher
// disables queueing.
type Publisher interface {
	PublishRetrainRequest(ctx context.Context, datasetID, datasetName string, labeled int, trigger string) error
	Close() error
}

// Options tune the service. Zero values fall back to defaults.
type Options struct {
	// ModelPath is where the trained model bundle lives.
	ModelPath string

	// MinSamples is the labeled-record floor for training.
	MinSamples int

	// Sigma is the anomaly z-multiplier.
	Sigma float64
}

const (
	datasetCacheSize = 8
	datasetCacheTTL  = 5 * time.Minute
	modelCacheSize   = 2
	modelCacheTTL    = time.Minute

	ingestReadLimit = 4
	topMerchants    = 5
)

// Intelligence orchestrates ingestion, categorization, querying, anomaly
// detection and training over immutable dataset snapshots.
type Intelligence struct {
	store     Store
	publisher Publisher
	rules     *rules.Set
	modelPath string
	trainOpts categorize.Options
	sigma     float64

	datasets *cache.LRUCache[*core.Dataset]
	models   *cache.LRUCache[*categorize.Model]
	caches   *cache.Manager
}

func NewIntelligence(store Store, publisher Publisher, rs *rules.Set, opts Options) *Intelligence {
	if opts.ModelPath == "" {
		opts.ModelPath = "model.json"
	}
	if opts.Sigma <= 0 {
		opts.Sigma = 2
	}

	s := &Intelligence{
		store:     store,
		publisher: publisher,
		rules:     rs,
		modelPath: opts.ModelPath,
		trainOpts: categorize.Options{MinSamples: opts.MinSamples},
		sigma:     opts.Sigma,
		datasets:  cache.NewLRUCache[*core.Dataset](datasetCacheSize, datasetCacheTTL),
		models:    cache.NewLRUCache[*categorize.Model](modelCacheSize, modelCacheTTL),
		caches:    cache.NewManager(),
	}
	s.caches.Register(s.datasets)
	s.caches.Register(s.models)
	return s
}

// StartCacheCleanup begins periodic expiry of the snapshot and model caches.
// One-shot commands skip it; long-running processes call it once.
func (s *Intelligence) StartCacheCleanup(interval time.Duration) {
	s.caches.StartCleanup(interval)
}

// IngestFiles reads, canonicalizes and stores a snapshot built from one or
// more CSV files. Files are read and canonicalized concurrently, each
// resolving its own columns; the merged record set is deduplicated across
// files with earlier files winning. A stored snapshot with labeled records
// also enqueues a retrain request, best-effort.
func (s *Intelligence) IngestFiles(ctx context.Context, name string, paths []string) (*core.Dataset, ingest.Report, error) {
	if len(paths) == 0 {
		return nil, ingest.Report{}, errors.New("no input files given")
	}

	sets := make([][]core.Transaction, len(paths))
	reports := make([]ingest.Report, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestReadLimit)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			table, err := ingest.ReadCSVFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			records, rep, err := ingest.Canonicalize(table)
			if err != nil {
				return fmt.Errorf("canonicalize %s: %w", path, err)
			}
			sets[i] = records
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, ingest.Report{}, err
	}

	var rep ingest.Report
	for i := range reports {
		rep.Add(reports[i])
	}
	records, collapsed := ingest.Merge(sets...)
	rep.Deduplicated += collapsed
	rep.Kept = len(records)

	ds, err := s.saveSnapshot(ctx, name, records)
	if err != nil {
		return nil, rep, err
	}
	return ds, rep, nil
}

// IngestTable canonicalizes and stores a snapshot from an in-memory table,
// the path the Google Sheets source uses.
func (s *Intelligence) IngestTable(ctx context.Context, name string, table ingest.Table) (*core.Dataset, ingest.Report, error) {
	records, rep, err := ingest.Canonicalize(table)
	if err != nil {
		return nil, rep, err
	}
	ds, err := s.saveSnapshot(ctx, name, records)
	if err != nil {
		return nil, rep, err
	}
	return ds, rep, nil
}

func (s *Intelligence) saveSnapshot(ctx context.Context, name string, records []core.Transaction) (*core.Dataset, error) {
	ds := &core.Dataset{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Records:   records,
	}
	if err := s.store.SaveDataset(ctx, ds); err != nil {
		return nil, fmt.Errorf("save dataset: %w", err)
	}
	s.datasets.Set(ds.ID, ds)

	slog.InfoContext(ctx, "Snapshot stored",
		"dataset_id", ds.ID,
		"dataset_name", ds.Name,
		"records", len(ds.Records),
		"labeled", ds.LabeledCount())

	s.publishRetrain(ctx, ds, "queue")
	return ds, nil
}

// publishRetrain enqueues retraining after a snapshot lands. Queue problems
// are logged, never surfaced: the snapshot is already saved locally.
func (s *Intelligence) publishRetrain(ctx context.Context, ds *core.Dataset, trigger string) {
	if s.publisher == nil {
		return
	}
	labeled := ds.LabeledCount()
	if labeled == 0 {
		slog.InfoContext(ctx, "Snapshot has no labeled records, skipping retrain request",
			"dataset_id", ds.ID)
		return
	}
	if err := s.publisher.PublishRetrainRequest(ctx, ds.ID, ds.Name, labeled, trigger); err != nil {
		slog.ErrorContext(ctx, "Failed to publish retrain request",
			"dataset_id", ds.ID,
			"error", err)
	}
}

// Categorize fills the unknown categories of a snapshot using the persisted
// model and stores the result as a successor snapshot. The source snapshot
// is never modified; when nothing is unknown, no successor is created and
// the source comes back with filled == 0.
func (s *Intelligence) Categorize(ctx context.Context, selector string) (*core.Dataset, int, error) {
	ds, err := s.resolveDataset(ctx, selector)
	if err != nil {
		return nil, 0, err
	}

	model, err := s.loadModel()
	if err != nil {
		return nil, 0, err
	}

	records, filled, err := model.Infer(ds.Records)
	if err != nil {
		return nil, 0, err
	}
	if filled == 0 {
		slog.InfoContext(ctx, "No unknown categories to fill", "dataset_id", ds.ID)
		return ds, 0, nil
	}

	successor := &core.Dataset{
		ID:        uuid.NewString(),
		Name:      successorName(ds.Name),
		CreatedAt: time.Now().UTC(),
		Records:   records,
	}
	if err := s.store.SaveDataset(ctx, successor); err != nil {
		return nil, 0, fmt.Errorf("save categorized snapshot: %w", err)
	}
	s.datasets.Set(successor.ID, successor)

	slog.InfoContext(ctx, "Categories filled",
		"source_dataset_id", ds.ID,
		"dataset_id", successor.ID,
		"filled", filled)

	return successor, filled, nil
}

func successorName(name string) string {
	const suffix = "-categorized"
	if strings.HasSuffix(name, suffix) {
		return name
	}
	return name + suffix
}

// Ask answers a free-text question against a snapshot. Interpretation never
// fails; storage is the only error source.
func (s *Intelligence) Ask(ctx context.Context, selector, text string) (query.Result, error) {
	ds, err := s.resolveDataset(ctx, selector)
	if err != nil {
		return query.Result{}, err
	}
	res := query.Interpret(text, ds.Records, s.rules, time.Now())
	slog.DebugContext(ctx, "Query interpreted",
		"dataset_id", ds.ID,
		"matches", len(res.Matches),
		"recognized", res.Recognized)
	return res, nil
}

// Anomalies runs one-sided outlier detection over a snapshot. The records
// the flags align with are returned alongside so callers can report flagged
// expenses without re-resolving the snapshot.
func (s *Intelligence) Anomalies(ctx context.Context, selector string, scope anomaly.Scope) ([]core.Transaction, []anomaly.Flag, error) {
	ds, err := s.resolveDataset(ctx, selector)
	if err != nil {
		return nil, nil, err
	}
	flags := anomaly.Detect(ds.Records, anomaly.Options{Scope: scope, Sigma: s.sigma})
	return ds.Records, flags, nil
}

// Spikes flags days whose spending total towers over the surrounding week.
func (s *Intelligence) Spikes(ctx context.Context, selector string) ([]anomaly.Spike, error) {
	ds, err := s.resolveDataset(ctx, selector)
	if err != nil {
		return nil, err
	}
	return anomaly.DetectSpikes(ds.Records, anomaly.Options{Sigma: s.sigma}), nil
}

// Insights aggregates descriptive statistics for a snapshot.
func (s *Intelligence) Insights(ctx context.Context, selector string) (insights.Summary, error) {
	ds, err := s.resolveDataset(ctx, selector)
	if err != nil {
		return insights.Summary{}, err
	}
	return insights.Build(ds.Records, topMerchants), nil
}

// Train fits a fresh model on a snapshot, persists it and records the run.
// Too few labeled records surface as core.InsufficientDataError unwrapped,
// so callers can advise instead of fail.
func (s *Intelligence) Train(ctx context.Context, selector, trigger string) (core.TrainingRun, error) {
	ds, err := s.resolveDataset(ctx, selector)
	if err != nil {
		return core.TrainingRun{}, err
	}

	if s.publisher != nil && trigger == "cli" {
		slog.WarnContext(ctx, "Training locally while a retrain queue is configured, the worker may overwrite this model",
			"model_path", s.modelPath)
	}

	started := time.Now()
	model, report, err := categorize.Train(ds.Records, s.trainOpts)
	if err != nil {
		return core.TrainingRun{}, err
	}
	if err := model.Save(s.modelPath); err != nil {
		return core.TrainingRun{}, fmt.Errorf("save model: %w", err)
	}

	run := core.TrainingRun{
		ID:         uuid.NewString(),
		DatasetID:  ds.ID,
		Samples:    report.Samples,
		Labels:     report.Labels,
		Accuracy:   report.Accuracy,
		Duration:   time.Since(started),
		Trigger:    trigger,
		FinishedAt: time.Now().UTC(),
	}
	if err := s.store.RecordTrainingRun(ctx, run); err != nil {
		// Don't fail the training here - the model is already saved
		slog.ErrorContext(ctx, "Failed to record training run",
			"error", err,
			"dataset_id", ds.ID)
	}

	slog.InfoContext(ctx, "Model trained",
		"dataset_id", ds.ID,
		"samples", report.Samples,
		"labels", report.Labels,
		"accuracy", report.Accuracy,
		"model_path", s.modelPath)

	return run, nil
}

// RequestRetrain enqueues training on the worker instead of running it
// in-process.
func (s *Intelligence) RequestRetrain(ctx context.Context, selector string) error {
	if s.publisher == nil {
		return errors.New("no retrain queue configured")
	}
	ds, err := s.resolveDataset(ctx, selector)
	if err != nil {
		return err
	}
	if err := s.publisher.PublishRetrainRequest(ctx, ds.ID, ds.Name, ds.LabeledCount(), "queue"); err != nil {
		return fmt.Errorf("publish retrain request: %w", err)
	}
	return nil
}

// Datasets lists stored snapshots, newest first.
func (s *Intelligence) Datasets(ctx context.Context) ([]core.DatasetInfo, error) {
	return s.store.ListDatasets(ctx)
}

// DeleteDataset removes a snapshot and its training history.
func (s *Intelligence) DeleteDataset(ctx context.Context, id string) error {
	if err := s.store.DeleteDataset(ctx, id); err != nil {
		return err
	}
	s.datasets.Delete(id)
	return nil
}

// TrainingRuns lists a snapshot's training history, newest first.
func (s *Intelligence) TrainingRuns(ctx context.Context, datasetID string) ([]core.TrainingRun, error) {
	return s.store.ListTrainingRuns(ctx, datasetID)
}

// resolveDataset finds the working snapshot. An empty selector means the
// most recent snapshot; otherwise the selector is tried as a dataset ID
// first and then as a name, where the newest snapshot with that name wins.
func (s *Intelligence) resolveDataset(ctx context.Context, selector string) (*core.Dataset, error) {
	if selector == "" {
		ds, err := s.store.GetLatestDataset(ctx)
		if err != nil {
			return nil, err
		}
		s.datasets.Set(ds.ID, ds)
		return ds, nil
	}

	if ds, ok := s.datasets.Get(selector); ok {
		return ds, nil
	}

	ds, err := s.store.GetDataset(ctx, selector)
	if err == nil {
		s.datasets.Set(ds.ID, ds)
		return ds, nil
	}
	if !errors.Is(err, core.ErrDatasetNotFound) {
		return nil, err
	}

	infos, err := s.store.ListDatasets(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name == selector {
			ds, err := s.store.GetDataset(ctx, info.ID)
			if err != nil {
				return nil, err
			}
			s.datasets.Set(ds.ID, ds)
			return ds, nil
		}
	}
	return nil, fmt.Errorf("dataset %q: %w", selector, core.ErrDatasetNotFound)
}

// loadModel returns the current model bundle, re-reading the file only when
// its mtime changes. The worker may retrain underneath a long-lived process.
func (s *Intelligence) loadModel() (*categorize.Model, error) {
	key := s.modelPath
	if fi, err := os.Stat(s.modelPath); err == nil {
		key = s.modelPath + "|" + strconv.FormatInt(fi.ModTime().UnixNano(), 10)
	}
	if m, ok := s.models.Get(key); ok {
		return m, nil
	}

	m, err := categorize.Load(s.modelPath)
	if err != nil {
		return nil, err
	}
	s.models.Set(key, m)
	return m, nil
}

// Close stops cache cleanup and releases storage and queue connections.
func (s *Intelligence) Close() error {
	s.caches.Stop()

	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close intelligence service: %v", errs)
	}
	return nil
}
