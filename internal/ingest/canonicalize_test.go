package ingest

import (
	"errors"
	"strconv"
	"testing"

	"spendlens/internal/core"
)

func TestResolveColumnsAliases(t *testing.T) {
	cases := []struct {
		header []string
		field  string
		want   string // resolved source header
	}{
		{[]string{"Txn Date", "Amt", "Desc"}, "date", "Txn Date"},
		{[]string{"Txn Date", "Amt", "Desc"}, "amount", "Amt"},
		{[]string{"Txn Date", "Amt", "Desc"}, "description", "Desc"},
		{[]string{"when", "price", "merchant", "cat"}, "date", "when"},
		{[]string{"when", "price", "merchant", "cat"}, "amount", "price"},
		{[]string{"when", "price", "merchant", "cat"}, "category", "cat"},
		{[]string{"Posted", "Cost", "Vendor", "Expense Type"}, "category", "Expense Type"},
		{[]string{"DATE", "VALUE", "DETAILS"}, "amount", "VALUE"},
		// "transaction date" must resolve to date, not description.
		{[]string{"transaction date", "amount", "payee"}, "date", "transaction date"},
		{[]string{"transaction date", "amount", "payee"}, "description", "payee"},
		// "expense date" is a date column even though "expense" is an
		// amount alias: date resolves first.
		{[]string{"expense date", "spent", "store"}, "date", "expense date"},
		{[]string{"expense date", "spent", "store"}, "amount", "spent"},
	}
	for i, tc := range cases {
		cols, err := resolveColumns(tc.header)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		idx, ok := cols[tc.field]
		if !ok {
			t.Fatalf("case %d: field %s not resolved", i, tc.field)
		}
		if tc.header[idx] != tc.want {
			t.Fatalf("case %d: field %s resolved to %q, want %q", i, tc.field, tc.header[idx], tc.want)
		}
	}
}

func TestCanonicalizeMissingColumns(t *testing.T) {
	cases := []struct {
		name   string
		header []string
		field  string
	}{
		{"no date", []string{"amount", "description"}, "date"},
		{"no amount", []string{"date", "description"}, "amount"},
		{"nothing resolvable", []string{"foo", "bar"}, "date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Canonicalize(Table{Header: tc.header, Rows: [][]string{{"x", "y"}}})
			var mce core.MissingColumnError
			if !errors.As(err, &mce) {
				t.Fatalf("expected MissingColumnError, got %v", err)
			}
			if mce.Field != tc.field {
				t.Fatalf("error names field %q, want %q", mce.Field, tc.field)
			}
		})
	}
}

func TestCanonicalizeDropsAndCounts(t *testing.T) {
	table := Table{
		Header: []string{"date", "amount", "description", "category"},
		Rows: [][]string{
			{"2025-01-05", "$12.50", "coffee shop", "Food"},
			{"not-a-date", "10", "bad date", ""},
			{"2025-01-06", "n/a", "bad amount", ""},
			{"2025-01-07", "0", "zero amount", ""},
			{"2025-01-08", "-25.00", "refund notation", ""},
			{"2025-01-05", "12.50", "coffee shop", "food"}, // duplicate of row 1
		},
	}

	records, rep, err := Canonicalize(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rep.RowsIn != 6 || rep.Kept != 2 {
		t.Fatalf("report rows: in=%d kept=%d", rep.RowsIn, rep.Kept)
	}
	if rep.DroppedBadDate != 1 || rep.DroppedBadAmount != 1 || rep.DroppedNonPositive != 1 {
		t.Fatalf("drop counts: %+v", rep)
	}
	if rep.Deduplicated != 1 {
		t.Fatalf("dedup count = %d, want 1", rep.Deduplicated)
	}

	for i, r := range records {
		if r.Date.IsZero() || r.Amount <= 0 || r.Category == "" {
			t.Fatalf("record %d violates canonical invariants: %+v", i, r)
		}
	}

	// Negative amounts fold to positive expenses.
	last := records[len(records)-1]
	if last.Amount != 25 || last.Description != "refund notation" {
		t.Fatalf("folded record wrong: %+v", last)
	}
	// Categories are lowercased; blanks become the sentinel.
	if records[0].Category != "food" {
		t.Fatalf("category = %q, want food", records[0].Category)
	}
	if records[1].Category != core.UnknownCategory {
		t.Fatalf("blank category = %q, want %q", records[1].Category, core.UnknownCategory)
	}
}

func TestCanonicalizeDescriptionSynthesis(t *testing.T) {
	t.Run("no description column", func(t *testing.T) {
		table := Table{
			Header: []string{"date", "amount", "notes", "ref"},
			Rows: [][]string{
				{"2025-02-01", "30", "weekly groceries", "12345"},
			},
		}
		records, _, err := Canonicalize(table)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// No header matches a description alias, so the unclaimed text
		// cells are joined; the numeric ref is skipped.
		if records[0].Description != "weekly groceries" {
			t.Fatalf("description = %q", records[0].Description)
		}
	})

	t.Run("blank description cell", func(t *testing.T) {
		table := Table{
			Header: []string{"date", "amount", "description"},
			Rows:   [][]string{{"2025-02-01", "30", "   "}},
		}
		records, _, err := Canonicalize(table)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if records[0].Description != core.PlaceholderDescription {
			t.Fatalf("description = %q, want %q", records[0].Description, core.PlaceholderDescription)
		}
	})

	t.Run("nothing to synthesize from", func(t *testing.T) {
		table := Table{
			Header: []string{"date", "amount"},
			Rows:   [][]string{{"2025-02-01", "30"}},
		}
		records, _, err := Canonicalize(table)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if records[0].Description != core.PlaceholderDescription {
			t.Fatalf("description = %q, want %q", records[0].Description, core.PlaceholderDescription)
		}
	})
}

func TestCanonicalizeSortsByDate(t *testing.T) {
	table := Table{
		Header: []string{"date", "amount", "description"},
		Rows: [][]string{
			{"2025-03-10", "1", "c"},
			{"2025-01-02", "2", "a"},
			{"2025-02-15", "3", "b"},
		},
	}
	records, _, err := Canonicalize(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(records); i++ {
		if records[i].Date.Before(records[i-1].Date) {
			t.Fatalf("records not sorted at %d", i)
		}
	}
	if records[0].Description != "a" || records[2].Description != "c" {
		t.Fatalf("unexpected order: %+v", records)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	table := Table{
		Header: []string{"date", "amount", "description", "category"},
		Rows: [][]string{
			{"2025-01-05", "12.50", "coffee", "food"},
			{"2025-01-05", "12.50", "coffee", "food"},
			{"2025-01-06", "40", "groceries", "food"},
			{"2025-01-07", "15", "taxi", "transport"},
		},
	}

	first, _, err := Canonicalize(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Render the canonical output back to a table and canonicalize again.
	rendered := Table{Header: []string{"date", "amount", "description", "category"}}
	for _, r := range first {
		rendered.Rows = append(rendered.Rows, []string{
			r.Date.Format("2006-01-02"),
			strconv.FormatFloat(r.Amount, 'f', -1, 64),
			r.Description,
			r.Category,
		})
	}
	second, rep, err := Canonicalize(rendered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Deduplicated != 0 {
		t.Fatalf("re-canonicalizing deduplicated output collapsed %d rows", rep.Deduplicated)
	}
	if len(second) != len(first) {
		t.Fatalf("record count changed: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Date.Equal(second[i].Date) ||
			first[i].Description != second[i].Description ||
			first[i].Amount != second[i].Amount ||
			first[i].Category != second[i].Category {
			t.Fatalf("record %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestMerge(t *testing.T) {
	a := []core.Transaction{
		mustTx(t, "2025-01-05", "coffee", 12.50, "food"),
		mustTx(t, "2025-01-06", "groceries", 40, "food"),
	}
	b := []core.Transaction{
		mustTx(t, "2025-01-05", "coffee", 12.50, "food"), // dup across files
		mustTx(t, "2025-01-02", "taxi", 15, "transport"),
	}

	merged, collapsed := Merge(a, b)
	if collapsed != 1 {
		t.Fatalf("collapsed = %d, want 1", collapsed)
	}
	if len(merged) != 3 {
		t.Fatalf("len = %d, want 3", len(merged))
	}
	if merged[0].Description != "taxi" {
		t.Fatalf("merge did not re-sort by date: %+v", merged[0])
	}
}

func mustTx(t *testing.T, date, desc string, amount float64, cat string) core.Transaction {
	t.Helper()
	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatalf("parse date %q: %v", date, err)
	}
	return core.Transaction{Date: d, Description: desc, Amount: amount, Category: cat}.WithDerived()
}
