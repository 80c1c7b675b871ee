// Package query turns plain-English questions about spending into
// conjunctive filters over canonical records plus a one-sentence answer.
//
// Interpretation is rule-based and total: every printable input yields a
// Result. Queries with no recognizable part simply match everything.
package query

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"spendlens/internal/core"
	"spendlens/internal/rules"
)

// Result is the outcome of interpreting one query against a record set.
// Recognized is false when no query part produced a filter, so callers can
// tell "matched everything" from "filtered down to everything".
type Result struct {
	Matches    []core.Transaction `json:"matches"`
	Filter     Filter             `json:"filter"`
	Summary    string             `json:"summary"`
	Recognized bool               `json:"recognized"`
}

// Interpret parses text into a Filter, applies it to records and renders
// the summary sentence. It never returns an error; now anchors relative
// phrases such as "last month".
func Interpret(text string, records []core.Transaction, rs *rules.Set, now time.Time) Result {
	toks := tokenize(text)
	consumed := make([]bool, len(toks))

	// Amounts bind before time so an operator's 4-digit bound is never
	// read as a year.
	var f Filter
	extractAmount(toks, consumed, &f)
	extractTime(toks, consumed, rs, now, &f)
	extractCategory(toks, consumed, rs, &f)
	f.Keywords = residualKeywords(toks, consumed, rs)

	matches := f.Apply(records)
	return Result{
		Matches:    matches,
		Filter:     f,
		Summary:    buildSummary(matches, f),
		Recognized: !f.Empty(),
	}
}

// tokenTrim lists the punctuation stripped from token edges. Dollar signs
// and interior separators stay so amount tokens survive intact.
const tokenTrim = ".,!?;:\"()[]{}"

func tokenize(text string) []string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "'", "")
	text = strings.ReplaceAll(text, "’", "")
	text = strings.ReplaceAll(text, "<", " < ")
	text = strings.ReplaceAll(text, ">", " > ")

	var out []string
	for _, field := range strings.Fields(text) {
		field = strings.Trim(field, tokenTrim)
		if field != "" {
			out = append(out, field)
		}
	}
	return out
}

type operator int

const (
	opNone operator = iota
	opAbove
	opBelow
)

// operatorAt recognizes an amount operator starting at toks[i] and reports
// how many tokens it spans.
func operatorAt(toks []string, i int) (operator, int) {
	if i+1 < len(toks) {
		switch toks[i] + " " + toks[i+1] {
		case "more than", "greater than":
			return opAbove, 2
		case "less than", "lower than":
			return opBelow, 2
		}
	}
	switch toks[i] {
	case "above", "over", ">":
		return opAbove, 1
	case "below", "under", "<":
		return opBelow, 1
	}
	return opNone, 0
}

func isOperatorWord(tok string) bool {
	switch tok {
	case "above", "over", "below", "under", "more", "less", "greater", "lower", "than", ">", "<":
		return true
	}
	return false
}

// extractAmount finds the first operator followed by a parseable number and
// sets the matching strict bound.
func extractAmount(toks []string, consumed []bool, f *Filter) {
	for i := range toks {
		op, width := operatorAt(toks, i)
		if op == opNone {
			continue
		}
		j := i + width
		if j >= len(toks) {
			continue
		}
		v, err := core.ParseAmount(toks[j])
		if err != nil {
			continue
		}
		for k := i; k <= j; k++ {
			consumed[k] = true
		}
		if op == opAbove {
			f.Above, f.HasAbove = v, true
		} else {
			f.Below, f.HasBelow = v, true
		}
		return
	}
}

// extractTime resolves the first month mention ("last month" and "this
// month" count, anchored to now) and the first bare 4-digit year. A year
// found without a month still filters on its own.
func extractTime(toks []string, consumed []bool, rs *rules.Set, now time.Time, f *Filter) {
	relative := false
	for i := 0; i < len(toks) && f.Month == 0; i++ {
		if consumed[i] {
			continue
		}
		if i+1 < len(toks) && !consumed[i+1] && toks[i+1] == "month" {
			switch toks[i] {
			case "last":
				y, m := now.Year(), int(now.Month())-1
				if m == 0 {
					m, y = 12, y-1
				}
				f.Month, f.Year = m, y
				consumed[i], consumed[i+1] = true, true
				relative = true
				continue
			case "this":
				f.Month, f.Year = int(now.Month()), now.Year()
				consumed[i], consumed[i+1] = true, true
				relative = true
				continue
			}
		}
		if m, ok := rs.Month(toks[i]); ok {
			f.Month = m
			consumed[i] = true
		}
	}
	if relative {
		return
	}
	for i, tok := range toks {
		if consumed[i] {
			continue
		}
		if y, ok := yearToken(tok); ok {
			f.Year = y
			consumed[i] = true
			return
		}
	}
}

func yearToken(tok string) (int, bool) {
	if len(tok) != 4 {
		return 0, false
	}
	y, err := strconv.Atoi(tok)
	if err != nil || y < 1970 || y > 2100 {
		return 0, false
	}
	return y, true
}

// extractCategory takes the first token known to the keyword table, in
// query order.
func extractCategory(toks []string, consumed []bool, rs *rules.Set, f *Filter) {
	for i, tok := range toks {
		if consumed[i] {
			continue
		}
		if c, ok := rs.Category(tok); ok {
			f.Category = c
			consumed[i] = true
			return
		}
	}
}

// residualKeywords collects the leftover tokens as description filters.
// Stopwords, numbers and recognized vocabulary that did not produce a
// filter (a second month, a second category word) are never keywords.
func residualKeywords(toks []string, consumed []bool, rs *rules.Set) []string {
	var out []string
	seen := make(map[string]bool)
	for i, tok := range toks {
		if consumed[i] || seen[tok] {
			continue
		}
		if utf8.RuneCountInString(tok) < 2 {
			continue
		}
		if rs.IsStopword(tok) || isOperatorWord(tok) {
			continue
		}
		if _, ok := rs.Month(tok); ok {
			continue
		}
		if _, ok := rs.Category(tok); ok {
			continue
		}
		if _, err := core.ParseAmount(tok); err == nil {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}
