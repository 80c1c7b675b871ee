package core

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotTrained is returned when inference is attempted with an
	// absent or unfitted model. Callers may fall back to leaving categories
	// unknown.
	ErrModelNotTrained = errors.New("categorization model not trained")

	// ErrModelMismatch is returned when the persisted vectorizer and
	// classifier do not form a pair. Using one without the other would
	// silently mis-predict, so loading fails loudly instead.
	ErrModelMismatch = errors.New("vectorizer and classifier are not a matched pair")

	// ErrDatasetNotFound is returned by stores when no snapshot matches.
	ErrDatasetNotFound = errors.New("dataset not found")
)

// MissingColumnError reports that canonicalization could not resolve any
// input column for a required field. Fatal to the ingestion call.
type MissingColumnError struct {
	Field string
}

func (e MissingColumnError) Error() string {
	return fmt.Sprintf("no column resolvable for required field %q", e.Field)
}

// InsufficientDataError reports that training was attempted with fewer
// labeled records than the configured minimum. Recoverable: the caller
// proceeds without auto-categorization.
type InsufficientDataError struct {
	Got  int
	Need int
}

func (e InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient labeled records for training: got %d, need %d", e.Got, e.Need)
}
