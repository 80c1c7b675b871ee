// Package anomaly flags statistically unusual transactions. A record is
// anomalous when its amount exceeds its scope's mean by more than the
// configured number of standard deviations; only unusually large expenses
// are flagged, never unusually small ones.
package anomaly

import (
	"fmt"
	"math"

	"spendlens/internal/core"
)

// Scope selects the partition over which mean and deviation are computed.
type Scope string

const (
	// ScopeDataset treats the whole record set as one partition.
	ScopeDataset Scope = "dataset"
	// ScopeCategory computes statistics per category label.
	ScopeCategory Scope = "category"
)

// DefaultSigma is the z-multiplier applied when Options.Sigma is unset.
const DefaultSigma = 2.0

// Options configure a detection pass.
type Options struct {
	Scope Scope
	Sigma float64
}

func (o Options) withDefaults() Options {
	if o.Scope == "" {
		o.Scope = ScopeDataset
	}
	if o.Sigma <= 0 {
		o.Sigma = DefaultSigma
	}
	return o
}

// Flag is the per-record detection result, positionally aligned with the
// input. Mean, StdDev and Threshold describe the record's partition so a
// caller can explain any flag without recomputing statistics.
type Flag struct {
	Anomalous bool
	Mean      float64
	StdDev    float64
	Threshold float64
	Scope     string
	Reason    string
}

// Detect computes one flag per record. Records are never removed or
// reordered. A partition with fewer than two records or zero deviation
// flags nothing; that is a defined edge case, not an error.
func Detect(records []core.Transaction, opts Options) []Flag {
	opts = opts.withDefaults()

	partitions := make(map[string][]int)
	for i, r := range records {
		key := string(ScopeDataset)
		if opts.Scope == ScopeCategory {
			key = r.Category
		}
		partitions[key] = append(partitions[key], i)
	}

	flags := make([]Flag, len(records))
	for key, idxs := range partitions {
		mean, std := meanStd(records, idxs)
		threshold := mean + opts.Sigma*std

		for _, i := range idxs {
			f := Flag{
				Mean:      mean,
				StdDev:    std,
				Threshold: threshold,
				Scope:     key,
			}
			// Inclusive: a lone large outlier among n-1 identical small
			// amounts lands exactly on mean+2*sigma, and it must flag.
			if len(idxs) >= 2 && std > 0 && records[i].Amount >= threshold {
				f.Anomalous = true
				f.Reason = fmt.Sprintf(
					"amount %.2f exceeds the %s average %.2f by at least %.1f standard deviations",
					records[i].Amount, key, mean, opts.Sigma)
			}
			flags[i] = f
		}
	}
	return flags
}

// meanStd returns the mean and population standard deviation of the
// amounts at the given indexes.
func meanStd(records []core.Transaction, idxs []int) (float64, float64) {
	n := float64(len(idxs))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, i := range idxs {
		sum += records[i].Amount
	}
	mean := sum / n

	var sq float64
	for _, i := range idxs {
		d := records[i].Amount - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}
