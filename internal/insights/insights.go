// Package insights computes descriptive reports over canonical records:
// overall statistics, category and monthly breakdowns, top merchants.
package insights

import (
	"sort"
	"time"

	"spendlens/internal/core"
)

// Stats describes one record set as a whole.
type Stats struct {
	Count  int       `json:"count"`
	Total  float64   `json:"total"`
	Mean   float64   `json:"mean"`
	Median float64   `json:"median"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
}

// CategoryBreakdown is one category's slice of the total.
type CategoryBreakdown struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Total    float64 `json:"total"`
	Share    float64 `json:"share"`
}

// MonthTotal is one observed calendar month's spend. Change is the percent
// difference against the previous observed month, zero for the first.
type MonthTotal struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Total  float64 `json:"total"`
	Change float64 `json:"change"`
}

// Merchant aggregates spend per exact description.
type Merchant struct {
	Description string  `json:"description"`
	Count       int     `json:"count"`
	Total       float64 `json:"total"`
}

// Summary bundles every report for one record set.
type Summary struct {
	Stats      Stats               `json:"stats"`
	Categories []CategoryBreakdown `json:"categories"`
	Monthly    []MonthTotal        `json:"monthly"`
	Merchants  []Merchant          `json:"merchants"`
}

// Build assembles the full Summary, keeping the top n merchants.
func Build(records []core.Transaction, n int) Summary {
	return Summary{
		Stats:      Describe(records),
		Categories: ByCategory(records),
		Monthly:    MonthlyTotals(records),
		Merchants:  TopMerchants(records, n),
	}
}

// Describe computes overall statistics; empty input yields zero values.
func Describe(records []core.Transaction) Stats {
	if len(records) == 0 {
		return Stats{}
	}
	s := Stats{
		Count: len(records),
		Min:   records[0].Amount,
		Max:   records[0].Amount,
		First: records[0].Date,
		Last:  records[0].Date,
	}
	amounts := make([]float64, len(records))
	for i, r := range records {
		amounts[i] = r.Amount
		s.Total += r.Amount
		if r.Amount < s.Min {
			s.Min = r.Amount
		}
		if r.Amount > s.Max {
			s.Max = r.Amount
		}
		if r.Date.Before(s.First) {
			s.First = r.Date
		}
		if r.Date.After(s.Last) {
			s.Last = r.Date
		}
	}
	s.Mean = s.Total / float64(len(records))
	sort.Float64s(amounts)
	mid := len(amounts) / 2
	if len(amounts)%2 == 0 {
		s.Median = (amounts[mid-1] + amounts[mid]) / 2
	} else {
		s.Median = amounts[mid]
	}
	return s
}

// ByCategory breaks spend down per label, unknown included, sorted by
// total descending with alphabetical ties.
func ByCategory(records []core.Transaction) []CategoryBreakdown {
	totals := make(map[string]*CategoryBreakdown)
	var grand float64
	for _, r := range records {
		cat := r.Category
		if cat == "" {
			cat = core.UnknownCategory
		}
		b, ok := totals[cat]
		if !ok {
			b = &CategoryBreakdown{Category: cat}
			totals[cat] = b
		}
		b.Count++
		b.Total += r.Amount
		grand += r.Amount
	}
	out := make([]CategoryBreakdown, 0, len(totals))
	for _, b := range totals {
		if grand > 0 {
			b.Share = b.Total / grand
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// MonthlyTotals sums spend per observed year-month, ascending, with the
// percent change against the previous observed month attached.
func MonthlyTotals(records []core.Transaction) []MonthTotal {
	type ym struct{ y, m int }
	totals := make(map[ym]float64)
	for _, r := range records {
		totals[ym{r.Year, r.Month}] += r.Amount
	}
	keys := make([]ym, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].y != keys[j].y {
			return keys[i].y < keys[j].y
		}
		return keys[i].m < keys[j].m
	})
	out := make([]MonthTotal, len(keys))
	for i, k := range keys {
		out[i] = MonthTotal{Year: k.y, Month: k.m, Total: totals[k]}
		if i > 0 && out[i-1].Total > 0 {
			out[i].Change = (out[i].Total - out[i-1].Total) / out[i-1].Total * 100
		}
	}
	return out
}

// TopMerchants returns the n largest description totals, ties resolved
// alphabetically. n <= 0 returns nil.
func TopMerchants(records []core.Transaction, n int) []Merchant {
	if n <= 0 {
		return nil
	}
	totals := make(map[string]*Merchant)
	for _, r := range records {
		m, ok := totals[r.Description]
		if !ok {
			m = &Merchant{Description: r.Description}
			totals[r.Description] = m
		}
		m.Count++
		m.Total += r.Amount
	}
	out := make([]Merchant, 0, len(totals))
	for _, m := range totals {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Description < out[j].Description
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
