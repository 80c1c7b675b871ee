package anomaly

import (
	"testing"

	"spendlens/internal/core"
)

func onDay(t *testing.T, date string, vals ...float64) []core.Transaction {
	t.Helper()
	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatalf("parse date %q: %v", date, err)
	}
	out := make([]core.Transaction, len(vals))
	for i, v := range vals {
		out[i] = core.Transaction{Date: d, Description: "x", Amount: v, Category: "food"}.WithDerived()
	}
	return out
}

func TestDetectSpikesFlagsTenfoldDay(t *testing.T) {
	var records []core.Transaction
	days := []string{
		"2025-01-01", "2025-01-02", "2025-01-03",
		"2025-01-04",
		"2025-01-05", "2025-01-06", "2025-01-07",
	}
	for _, d := range days {
		if d == "2025-01-04" {
			// Two records on the spike day: totals aggregate per day.
			records = append(records, onDay(t, d, 50, 50)...)
			continue
		}
		records = append(records, onDay(t, d, 10)...)
	}

	spikes := DetectSpikes(records, Options{})
	if len(spikes) != 1 {
		t.Fatalf("spikes = %d, want 1: %+v", len(spikes), spikes)
	}
	s := spikes[0]
	if got := s.Date.Format("2006-01-02"); got != "2025-01-04" {
		t.Fatalf("spike date = %s, want 2025-01-04", got)
	}
	if s.Total != 100 {
		t.Fatalf("spike total = %v, want 100", s.Total)
	}
	if s.Threshold >= s.Total {
		t.Fatalf("threshold %v not below total %v", s.Threshold, s.Total)
	}
}

func TestDetectSpikesNeedsThreeDays(t *testing.T) {
	records := append(
		onDay(t, "2025-01-01", 10, 20, 30),
		onDay(t, "2025-01-02", 500)...,
	)
	if spikes := DetectSpikes(records, Options{}); spikes != nil {
		t.Fatalf("two observed days produced spikes: %+v", spikes)
	}
}

func TestDetectSpikesFlatWeek(t *testing.T) {
	var records []core.Transaction
	for _, d := range []string{"2025-01-01", "2025-01-02", "2025-01-03", "2025-01-04"} {
		records = append(records, onDay(t, d, 25)...)
	}
	if spikes := DetectSpikes(records, Options{}); len(spikes) != 0 {
		t.Fatalf("flat week produced spikes: %+v", spikes)
	}
}
