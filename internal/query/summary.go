package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"spendlens/internal/core"
)

// NoMatchSummary is the fixed sentence returned for an empty result set.
const NoMatchSummary = "No expenses found matching your query."

func buildSummary(matches []core.Transaction, f Filter) string {
	if len(matches) == 0 {
		return NoMatchSummary
	}

	var sum float64
	for _, r := range matches {
		sum += r.Amount
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You spent $%s across %d transaction", core.FormatAmount(sum), len(matches))
	if len(matches) != 1 {
		b.WriteByte('s')
	}

	if f.Category != "" {
		fmt.Fprintf(&b, " on %s", f.Category)
	} else if top := topCategory(matches); top != "" {
		fmt.Fprintf(&b, ", mostly on %s", top)
	}

	switch {
	case f.Month > 0 && f.Year > 0:
		fmt.Fprintf(&b, " in %s %d", time.Month(f.Month), f.Year)
	case f.Month > 0:
		fmt.Fprintf(&b, " in %s", time.Month(f.Month))
	case f.Year > 0:
		fmt.Fprintf(&b, " in %d", f.Year)
	default:
		first, last := dateSpan(matches)
		if !first.Equal(last) {
			fmt.Fprintf(&b, " between %s and %s",
				first.Format("Jan 2, 2006"), last.Format("Jan 2, 2006"))
		}
	}

	b.WriteByte('.')
	return b.String()
}

// topCategory returns the real label with the largest total, ignoring
// unknown. Ties resolve to the alphabetically first label.
func topCategory(records []core.Transaction) string {
	totals := make(map[string]float64)
	for _, r := range records {
		if r.Category == "" || r.Category == core.UnknownCategory {
			continue
		}
		totals[r.Category] += r.Amount
	}
	if len(totals) == 0 {
		return ""
	}
	names := make([]string, 0, len(totals))
	for c := range totals {
		names = append(names, c)
	}
	sort.Strings(names)
	best := names[0]
	for _, c := range names[1:] {
		if totals[c] > totals[best] {
			best = c
		}
	}
	return best
}

func dateSpan(records []core.Transaction) (first, last time.Time) {
	first, last = records[0].Date, records[0].Date
	for _, r := range records[1:] {
		if r.Date.Before(first) {
			first = r.Date
		}
		if r.Date.After(last) {
			last = r.Date
		}
	}
	return first, last
}
