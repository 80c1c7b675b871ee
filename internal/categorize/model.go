package categorize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"spendlens/internal/core"
)

// Options bound training. Zero values fall back to the defaults, so an
// empty Options trains the standard configuration.
type Options struct {
	// MinSamples is the labeled-record floor below which training fails
	// with core.InsufficientDataError.
	MinSamples int

	// MaxFeatures caps the TF-IDF vocabulary.
	MaxFeatures int

	Rounds       int
	Depth        int
	LearningRate float64
}

// DefaultOptions returns the standard training configuration.
func DefaultOptions() Options {
	return Options{
		MinSamples:   10,
		MaxFeatures:  1000,
		Rounds:       100,
		Depth:        6,
		LearningRate: 0.3,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MinSamples <= 0 {
		o.MinSamples = def.MinSamples
	}
	if o.MaxFeatures <= 0 {
		o.MaxFeatures = def.MaxFeatures
	}
	if o.Rounds <= 0 {
		o.Rounds = def.Rounds
	}
	if o.Depth <= 0 {
		o.Depth = def.Depth
	}
	if o.LearningRate <= 0 {
		o.LearningRate = def.LearningRate
	}
	return o
}

// TrainReport summarizes one training for callers that log or record it.
type TrainReport struct {
	Samples  int
	Labels   int
	Accuracy float64
}

// Model is the fitted vectorizer/classifier pair. The two halves share a
// PairID and are persisted as one bundle; they are never valid separately.
type Model struct {
	PairID     string
	Vectorizer *Vectorizer
	Classifier *Boosted
	Labels     []string
	TrainedAt  time.Time
	Samples    int
	Accuracy   float64
}

// Train fits a model on the records that carry a real category label.
// Fewer labeled records than Options.MinSamples is a
// core.InsufficientDataError; the caller proceeds without
// auto-categorization.
func Train(records []core.Transaction, opts Options) (*Model, TrainReport, error) {
	opts = opts.withDefaults()

	var texts []string
	var cats []string
	for _, r := range records {
		if r.Labeled() {
			texts = append(texts, r.Description)
			cats = append(cats, r.Category)
		}
	}
	if len(texts) < opts.MinSamples {
		return nil, TrainReport{}, core.InsufficientDataError{Got: len(texts), Need: opts.MinSamples}
	}

	labels := uniqueSorted(cats)
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	y := make([]int, len(cats))
	for i, c := range cats {
		y[i] = index[c]
	}

	vec := NewVectorizer(opts.MaxFeatures)
	vec.Fit(texts)
	if !vec.Fitted() {
		return nil, TrainReport{}, fmt.Errorf("training corpus produced an empty vocabulary")
	}
	X := vec.TransformAll(texts)

	clf := &Boosted{
		Rounds:       opts.Rounds,
		Depth:        opts.Depth,
		LearningRate: opts.LearningRate,
		Classes:      len(labels),
	}
	clf.Fit(X, y)

	correct := 0
	for i, x := range X {
		if clf.Predict(x) == y[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(X))

	m := &Model{
		PairID:     uuid.NewString(),
		Vectorizer: vec,
		Classifier: clf,
		Labels:     labels,
		TrainedAt:  time.Now().UTC(),
		Samples:    len(texts),
		Accuracy:   accuracy,
	}
	rep := TrainReport{Samples: len(texts), Labels: len(labels), Accuracy: accuracy}
	return m, rep, nil
}

// Infer fills the unknown categories of a record set and returns a new
// slice; records already carrying a real label pass through unchanged.
// The second result is the number of records filled.
func (m *Model) Infer(records []core.Transaction) ([]core.Transaction, int, error) {
	if !m.Usable() {
		return nil, 0, core.ErrModelNotTrained
	}

	out := make([]core.Transaction, len(records))
	copy(out, records)
	filled := 0
	for i := range out {
		if out[i].Labeled() {
			continue
		}
		x := m.Vectorizer.Transform(out[i].Description)
		out[i].Category = m.Labels[m.Classifier.Predict(x)]
		filled++
	}
	return out, filled, nil
}

// Usable reports whether the model can serve inference.
func (m *Model) Usable() bool {
	return m != nil && m.Vectorizer.Fitted() && m.Classifier.Fitted() && len(m.Labels) > 0
}

// bundle is the persisted form: both halves carry the pair ID so a loader
// can detect a vectorizer and classifier that never trained together.
type bundle struct {
	Version    int              `json:"version"`
	Labels     []string         `json:"labels"`
	TrainedAt  time.Time        `json:"trained_at"`
	Samples    int              `json:"samples"`
	Accuracy   float64          `json:"accuracy"`
	Vectorizer bundleVectorizer `json:"vectorizer"`
	Classifier bundleClassifier `json:"classifier"`
}

type bundleVectorizer struct {
	PairID string `json:"pair_id"`
	*Vectorizer
}

type bundleClassifier struct {
	PairID string `json:"pair_id"`
	*Boosted
}

const bundleVersion = 1

// Save writes the model bundle atomically (temp file + rename) so a
// concurrent reader never sees half a model.
func (m *Model) Save(path string) error {
	if !m.Usable() {
		return core.ErrModelNotTrained
	}

	b := bundle{
		Version:    bundleVersion,
		Labels:     m.Labels,
		TrainedAt:  m.TrainedAt,
		Samples:    m.Samples,
		Accuracy:   m.Accuracy,
		Vectorizer: bundleVectorizer{PairID: m.PairID, Vectorizer: m.Vectorizer},
		Classifier: bundleClassifier{PairID: m.PairID, Boosted: m.Classifier},
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("creating temp model file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing model file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing model file: %w", err)
	}
	return nil
}

// Load reads a persisted bundle. A missing file maps to
// core.ErrModelNotTrained so callers can fall back to leaving categories
// unknown; halves with different pair IDs fail with core.ErrModelMismatch.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("model file %s: %w", path, core.ErrModelNotTrained)
		}
		return nil, fmt.Errorf("reading model file: %w", err)
	}

	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding model file %s: %w", path, err)
	}
	if b.Vectorizer.PairID == "" || b.Vectorizer.PairID != b.Classifier.PairID {
		return nil, fmt.Errorf("model file %s: %w", path, core.ErrModelMismatch)
	}

	m := &Model{
		PairID:     b.Vectorizer.PairID,
		Vectorizer: b.Vectorizer.Vectorizer,
		Classifier: b.Classifier.Boosted,
		Labels:     b.Labels,
		TrainedAt:  b.TrainedAt,
		Samples:    b.Samples,
		Accuracy:   b.Accuracy,
	}
	if !m.Usable() {
		return nil, fmt.Errorf("model file %s is unfitted: %w", path, core.ErrModelNotTrained)
	}
	return m, nil
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
