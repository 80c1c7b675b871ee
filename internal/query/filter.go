package query

import (
	"strings"

	"spendlens/internal/core"
)

// Filter is the conjunction of constraints extracted from one query.
// Zero fields mean "no constraint"; amount bounds are strict.
type Filter struct {
	Month    int      `json:"month,omitempty"`
	Year     int      `json:"year,omitempty"`
	Category string   `json:"category,omitempty"`
	Above    float64  `json:"above,omitempty"`
	HasAbove bool     `json:"-"`
	Below    float64  `json:"below,omitempty"`
	HasBelow bool     `json:"-"`
	Keywords []string `json:"keywords,omitempty"`
}

// Empty reports whether no constraint was extracted at all.
func (f Filter) Empty() bool {
	return f.Month == 0 && f.Year == 0 && f.Category == "" &&
		!f.HasAbove && !f.HasBelow && len(f.Keywords) == 0
}

// Apply returns the records satisfying every constraint, in input order.
// The input slice is never modified.
func (f Filter) Apply(records []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(records))
	for _, r := range records {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f Filter) matches(r core.Transaction) bool {
	if f.Month > 0 && r.Month != f.Month {
		return false
	}
	if f.Year > 0 && r.Year != f.Year {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.HasAbove && r.Amount <= f.Above {
		return false
	}
	if f.HasBelow && r.Amount >= f.Below {
		return false
	}
	if len(f.Keywords) > 0 {
		desc := strings.ToLower(r.Description)
		for _, kw := range f.Keywords {
			if !strings.Contains(desc, kw) {
				return false
			}
		}
	}
	return true
}
