// Package core provides the canonical transaction model and the scalar
// parsers used during canonicalization.
//
// This file contains functions for coercing raw cell text into amounts and
// dates. Row-level parse failures are reported as errors so the caller can
// drop and count the offending row; nothing here is fatal to a whole
// ingestion.
package core

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// amountStrip lists the characters removed before numeric parsing:
// currency symbols, thousands separators and spaces.
const amountStrip = "$€£₹, "

// ParseAmount coerces a raw cell into a positive amount.
//
// Currency symbols and group separators are stripped, the remainder is
// parsed as a signed decimal and the sign is folded away (refunds and
// debit-notation negatives count as expenses). A zero result is returned
// as-is; the canonicalizer drops non-positive rows and counts them.
//
// Examples:
//
//	ParseAmount("$1,234.56") -> 1234.56, nil
//	ParseAmount("-12.30")    -> 12.30, nil
//	ParseAmount("12,30")     -> 1230, nil (comma is a group separator)
//	ParseAmount("n/a")       -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(amountStrip, r) {
			continue
		}
		b.WriteRune(r)
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidAmount
	}
	return math.Abs(v), nil
}

// dateFormats are tried in order; first parse wins. Slash-separated dates
// resolve month-first.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ParseDate coerces a raw cell into a calendar date, accepting the common
// formats in dateFormats. Unparseable input returns ErrInvalidDate and the
// canonicalizer drops the row.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// FormatAmount renders an amount with two decimals and comma-grouped
// thousands, e.g. 1234.5 -> "1,234.50".
func FormatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	whole, frac := s[:dot], s[dot:]
	if len(whole) > 3 {
		var b strings.Builder
		lead := len(whole) % 3
		if lead > 0 {
			b.WriteString(whole[:lead])
		}
		for i := lead; i < len(whole); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(whole[i : i+3])
		}
		whole = b.String()
	}
	if neg {
		return "-" + whole + frac
	}
	return whole + frac
}
