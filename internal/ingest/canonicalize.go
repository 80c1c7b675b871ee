// Package ingest turns arbitrary tabular input into canonical transaction
// records: it resolves free-form column names against an alias table,
// coerces cell values, drops rows that cannot be repaired, deduplicates and
// derives the date features every downstream component relies on.
package ingest

import (
	"sort"
	"strings"

	"spendlens/internal/core"
)

// Canonical field names, also used as the keys of Report.Columns.
const (
	fieldDate        = "date"
	fieldAmount      = "amount"
	fieldDescription = "description"
	fieldCategory    = "category"
)

// fieldOrder is the column-resolution priority. A header claimed by an
// earlier field is not considered for later ones, so "transaction date"
// resolves to date, not description.
var fieldOrder = []string{fieldDate, fieldAmount, fieldDescription, fieldCategory}

// fieldAliases lists, per field, the substrings that identify a source
// column. Matching is case-insensitive; the first header containing any
// alias wins.
var fieldAliases = map[string][]string{
	fieldDate:        {"date", "datetime", "time", "when", "posted"},
	fieldAmount:      {"amount", "amt", "price", "cost", "value", "expense", "spent", "debit"},
	fieldDescription: {"description", "desc", "details", "merchant", "vendor", "item", "transaction", "name", "store", "payee"},
	fieldCategory:    {"category", "cat", "type", "expense_type", "tag", "label"},
}

// Report counts what happened to the input rows. Row-level problems are
// absorbed here instead of failing the ingestion.
type Report struct {
	RowsIn             int
	Kept               int
	DroppedBadDate     int
	DroppedBadAmount   int
	DroppedNonPositive int
	Deduplicated       int

	// Columns records the resolved header per canonical field, for
	// reporting back to the user. Unresolved optional fields are absent.
	Columns map[string]string
}

// Add folds another report into this one (multi-file ingestion).
// Column resolutions are kept from the receiver when both are set.
func (r *Report) Add(other Report) {
	r.RowsIn += other.RowsIn
	r.Kept += other.Kept
	r.DroppedBadDate += other.DroppedBadDate
	r.DroppedBadAmount += other.DroppedBadAmount
	r.DroppedNonPositive += other.DroppedNonPositive
	r.Deduplicated += other.Deduplicated
	if r.Columns == nil {
		r.Columns = make(map[string]string)
	}
	for field, col := range other.Columns {
		if _, ok := r.Columns[field]; !ok {
			r.Columns[field] = col
		}
	}
}

// Dropped returns the total number of rows removed for data-quality
// reasons, dedup collapses excluded.
func (r Report) Dropped() int {
	return r.DroppedBadDate + r.DroppedBadAmount + r.DroppedNonPositive
}

// Canonicalize converts a raw table into canonical records.
//
// It fails only when no column can be resolved for date or amount
// (core.MissingColumnError); every row-level problem is counted in the
// report and the row dropped. The result is deduplicated by
// (date, description, amount), carries the derived date features and is
// sorted by date ascending. The input table is never mutated.
func Canonicalize(table Table) ([]core.Transaction, Report, error) {
	rep := Report{RowsIn: len(table.Rows)}

	cols, err := resolveColumns(table.Header)
	if err != nil {
		return nil, rep, err
	}
	rep.Columns = make(map[string]string, len(cols))
	for field, idx := range cols {
		rep.Columns[field] = table.Header[idx]
	}

	descIdx, hasDesc := cols[fieldDescription]
	catIdx, hasCat := cols[fieldCategory]

	// Unclaimed textual columns feed description synthesis when no
	// description column exists.
	claimed := make(map[int]bool, len(cols))
	for _, idx := range cols {
		claimed[idx] = true
	}

	seen := make(map[string]struct{}, len(table.Rows))
	records := make([]core.Transaction, 0, len(table.Rows))

	for _, row := range table.Rows {
		date, err := core.ParseDate(cell(row, cols[fieldDate]))
		if err != nil {
			rep.DroppedBadDate++
			continue
		}
		amount, err := core.ParseAmount(cell(row, cols[fieldAmount]))
		if err != nil {
			rep.DroppedBadAmount++
			continue
		}
		if amount <= 0 {
			rep.DroppedNonPositive++
			continue
		}

		var desc string
		if hasDesc {
			desc = strings.TrimSpace(cell(row, descIdx))
		} else {
			desc = synthesizeDescription(row, claimed)
		}
		if desc == "" {
			desc = core.PlaceholderDescription
		}

		cat := core.UnknownCategory
		if hasCat {
			if v := strings.ToLower(strings.TrimSpace(cell(row, catIdx))); v != "" {
				cat = v
			}
		}

		rec := core.Transaction{
			Date:        date,
			Description: desc,
			Amount:      amount,
			Category:    cat,
		}.WithDerived()

		if _, dup := seen[rec.Key()]; dup {
			rep.Deduplicated++
			continue
		}
		seen[rec.Key()] = struct{}{}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})

	rep.Kept = len(records)
	return records, rep, nil
}

// Merge combines already-canonical record sets from several inputs into
// one, deduplicating across sets (first occurrence wins) and re-sorting.
// Each returned collapse is counted in the returned number.
func Merge(sets ...[]core.Transaction) ([]core.Transaction, int) {
	seen := make(map[string]struct{})
	var merged []core.Transaction
	collapsed := 0
	for _, set := range sets {
		for _, rec := range set {
			if _, dup := seen[rec.Key()]; dup {
				collapsed++
				continue
			}
			seen[rec.Key()] = struct{}{}
			merged = append(merged, rec)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.Before(merged[j].Date)
	})
	return merged, collapsed
}

// resolveColumns maps canonical fields to header indexes. Date and amount
// are required; description and category are optional.
func resolveColumns(header []string) (map[string]int, error) {
	lowered := make([]string, len(header))
	for i, h := range header {
		lowered[i] = strings.ToLower(strings.TrimSpace(h))
	}

	cols := make(map[string]int, len(fieldOrder))
	taken := make(map[int]bool, len(fieldOrder))

	for _, field := range fieldOrder {
		for i, h := range lowered {
			if taken[i] || h == "" {
				continue
			}
			if containsAny(h, fieldAliases[field]) {
				cols[field] = i
				taken[i] = true
				break
			}
		}
	}

	if _, ok := cols[fieldDate]; !ok {
		return nil, core.MissingColumnError{Field: fieldDate}
	}
	if _, ok := cols[fieldAmount]; !ok {
		return nil, core.MissingColumnError{Field: fieldAmount}
	}
	return cols, nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// synthesizeDescription joins a row's unclaimed cells that look like text.
func synthesizeDescription(row []string, claimed map[int]bool) string {
	var parts []string
	for i, v := range row {
		if claimed[i] {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		// Purely numeric leftovers (ids, balances) make poor descriptions.
		if _, err := core.ParseAmount(v); err == nil {
			continue
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

// cell returns row[idx] or "" when the row is shorter than the header.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
