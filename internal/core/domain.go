package core

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	// UnknownCategory marks records whose category could not be resolved.
	// Downstream code checks against this sentinel instead of branching on
	// empty strings.
	UnknownCategory = "unknown"

	// PlaceholderDescription replaces descriptions that are empty after
	// cleanup so every record carries searchable text.
	PlaceholderDescription = "uncategorized"
)

type (
	// Transaction is the canonical expense record every component consumes.
	// Year, Month and DayOfWeek are derived from Date once during
	// canonicalization and never recomputed downstream.
	Transaction struct {
		Date        time.Time
		Description string
		Amount      float64
		Category    string
		Year        int
		Month       int // 1..12
		DayOfWeek   int // 0=Sunday .. 6=Saturday
	}

	// Dataset is an immutable named snapshot of canonical records.
	// Re-ingestion produces a new Dataset with a fresh ID; snapshots are
	// never patched in place.
	Dataset struct {
		ID        string
		Name      string
		CreatedAt time.Time
		Records   []Transaction
	}

	// DatasetInfo is Dataset metadata without the records, for listings.
	DatasetInfo struct {
		ID          string
		Name        string
		CreatedAt   time.Time
		RecordCount int
	}

	// TrainingRun records one categorization-model training.
	TrainingRun struct {
		ID         string
		DatasetID  string
		Samples    int
		Labels     int
		Accuracy   float64
		Duration   time.Duration
		Trigger    string // "cli", "queue" or "startup"
		FinishedAt time.Time
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
)

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(strings.TrimSpace(t.Category)) == 0 {
		return ErrEmptyCategory
	}
	return nil
}

// Labeled reports whether the record carries a real category label rather
// than the unknown sentinel.
func (t Transaction) Labeled() bool {
	return t.Category != "" && t.Category != UnknownCategory
}

// Key identifies a record for deduplication: two records with identical
// date, description and amount collapse to one.
func (t Transaction) Key() string {
	return t.Date.Format("2006-01-02") + "\x1f" + t.Description + "\x1f" +
		strconv.FormatFloat(t.Amount, 'f', -1, 64)
}

// WithDerived returns a copy with Year, Month and DayOfWeek computed from
// Date.
func (t Transaction) WithDerived() Transaction {
	t.Year = t.Date.Year()
	t.Month = int(t.Date.Month())
	t.DayOfWeek = int(t.Date.Weekday())
	return t
}

func (d Dataset) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("dataset ID cannot be empty")
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("dataset name cannot be empty")
	}
	for i, r := range d.Records {
		if err := r.Validate(); err != nil {
			return errors.New("record " + strconv.Itoa(i) + ": " + err.Error())
		}
	}
	return nil
}

// Info returns the dataset's metadata without its records.
func (d Dataset) Info() DatasetInfo {
	return DatasetInfo{
		ID:          d.ID,
		Name:        d.Name,
		CreatedAt:   d.CreatedAt,
		RecordCount: len(d.Records),
	}
}

// LabeledCount returns how many records carry a real category label.
func (d Dataset) LabeledCount() int {
	n := 0
	for _, r := range d.Records {
		if r.Labeled() {
			n++
		}
	}
	return n
}
