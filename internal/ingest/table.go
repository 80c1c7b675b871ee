package ingest

import "context"

// Table is a raw tabular input: one header row plus string cells. Sources
// produce it; Canonicalize consumes it without mutating it.
type Table struct {
	Header []string
	Rows   [][]string
}

// TableSource produces one raw table per call. The Google Sheets client
// implements it; file-based ingestion goes through ReadCSVFile directly.
type TableSource interface {
	FetchTable(ctx context.Context) (Table, error)
}

// Empty reports whether the table has no data rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}
