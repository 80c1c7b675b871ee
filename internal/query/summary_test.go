package query

import (
	"testing"

	"spendlens/internal/core"
)

func TestBuildSummaryBareClause(t *testing.T) {
	// Unknown-only labels produce no "mostly on" clause, a single day no
	// date range.
	records := []core.Transaction{
		qtx(t, "2025-01-05", "mystery shop", 10, core.UnknownCategory),
		qtx(t, "2025-01-05", "mystery shop again", 5, core.UnknownCategory),
	}
	got := buildSummary(records, Filter{})
	want := "You spent $15.00 across 2 transactions."
	if got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}
}

func TestBuildSummaryYearOnly(t *testing.T) {
	records := []core.Transaction{
		qtx(t, "2025-01-05", "corner cafe", 20, "food/restaurant"),
	}
	got := buildSummary(records, Filter{Year: 2025, Category: "food/restaurant"})
	want := "You spent $20.00 across 1 transaction on food/restaurant in 2025."
	if got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}
}

func TestTopCategoryTies(t *testing.T) {
	records := []core.Transaction{
		qtx(t, "2025-01-05", "a", 30, "travel"),
		qtx(t, "2025-01-06", "b", 30, "bills"),
	}
	if got := topCategory(records); got != "bills" {
		t.Fatalf("tie winner = %q, want alphabetically first", got)
	}
}
