package anomaly

import (
	"math"
	"sort"
	"time"

	"spendlens/internal/core"
)

// Spike marks a day whose total spending stands out from its surrounding
// week.
type Spike struct {
	Date        time.Time
	Total       float64
	RollingMean float64
	Threshold   float64
}

// spikeWindow is the centered rolling window over observed days: up to
// three days before and after each day, the day itself included.
const spikeWindow = 7

// spikeMinPoints is the smallest number of observed days that yields a
// meaningful rolling deviation; fewer days produce no spikes.
const spikeMinPoints = 3

// DetectSpikes aggregates spending per calendar day and flags days whose
// total exceeds the centered rolling mean by more than Sigma rolling
// standard deviations (sample deviation, matching a rolling-window
// estimate over few points).
func DetectSpikes(records []core.Transaction, opts Options) []Spike {
	opts = opts.withDefaults()

	totals := make(map[time.Time]float64)
	for _, r := range records {
		day := r.Date.Truncate(24 * time.Hour)
		totals[day] += r.Amount
	}
	if len(totals) < spikeMinPoints {
		return nil
	}

	days := make([]time.Time, 0, len(totals))
	for d := range totals {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	half := spikeWindow / 2
	var spikes []Spike
	for i, day := range days {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(days)-1 {
			hi = len(days) - 1
		}
		n := hi - lo + 1
		var sum float64
		for _, d := range days[lo : hi+1] {
			sum += totals[d]
		}
		mean := sum / float64(n)

		var sq float64
		for _, d := range days[lo : hi+1] {
			diff := totals[d] - mean
			sq += diff * diff
		}
		std := math.Sqrt(sq / float64(n-1))
		if std <= 0 {
			continue
		}

		threshold := mean + opts.Sigma*std
		if totals[day] > threshold {
			spikes = append(spikes, Spike{
				Date:        day,
				Total:       totals[day],
				RollingMean: mean,
				Threshold:   threshold,
			})
		}
	}
	return spikes
}

