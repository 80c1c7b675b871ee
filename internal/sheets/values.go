package sheets

import (
	"fmt"
	"strings"

	"spendlens/internal/ingest"
)

// tableFromValues converts a values matrix (as returned by the Sheets API)
// into a raw table. Blank rows are skipped, the first remaining row becomes
// the header and data rows are padded or truncated to the header width,
// matching what the CSV reader produces.
func tableFromValues(values [][]interface{}) ingest.Table {
	var table ingest.Table
	for _, raw := range values {
		row := toStrings(raw)
		if blankRow(row) {
			continue
		}
		if table.Header == nil {
			table.Header = row
			continue
		}
		table.Rows = append(table.Rows, fitRow(row, len(table.Header)))
	}
	return table
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func blankRow(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

// fitRow pads or truncates row to width cells.
func fitRow(row []string, width int) []string {
	switch {
	case len(row) < width:
		padded := make([]string, width)
		copy(padded, row)
		return padded
	case len(row) > width:
		return row[:width]
	}
	return row
}
