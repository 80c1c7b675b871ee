package categorize

import "math"

// Boosted is a gradient-boosted multi-class classifier: per round, one
// shallow regression tree per class is fit to the softmax residuals and
// added to the class score. Training is deterministic for a fixed input
// ordering; across retrains with reordered data the fitted trees can
// differ, so callers must not expect exact label reproducibility.
type Boosted struct {
	Rounds       int          `json:"rounds"`
	Depth        int          `json:"depth"`
	LearningRate float64      `json:"learning_rate"`
	Classes      int          `json:"classes"`
	Trees        [][]*regNode `json:"trees"`
}

// Fitted reports whether the classifier went through Fit. A single-class
// fit converges with no trees and still predicts that class.
func (b *Boosted) Fitted() bool {
	return b != nil && b.Classes > 0
}

// Fit trains on sparse vectors X with class indexes y in [0, Classes).
func (b *Boosted) Fit(X []Vector, y []int) {
	n := len(X)
	if n == 0 || b.Classes <= 0 {
		return
	}

	samples := make([]int, n)
	for i := range samples {
		samples[i] = i
	}

	F := make([][]float64, n)
	for i := range F {
		F[i] = make([]float64, b.Classes)
	}

	params := treeParams{
		maxDepth:  b.Depth,
		minSplit:  2,
		leafValue: friedmanLeaf(b.Classes),
	}

	b.Trees = nil
	targets := make([]float64, n)

	for m := 0; m < b.Rounds; m++ {
		P := make([][]float64, n)
		maxResid := 0.0
		for i := range P {
			P[i] = softmax(F[i])
			for k := 0; k < b.Classes; k++ {
				r := onehot(y[i], k) - P[i][k]
				if math.Abs(r) > maxResid {
					maxResid = math.Abs(r)
				}
			}
		}
		if maxResid < 1e-6 {
			break
		}

		round := make([]*regNode, b.Classes)
		for k := 0; k < b.Classes; k++ {
			for i := 0; i < n; i++ {
				targets[i] = onehot(y[i], k) - P[i][k]
			}
			tree := growTree(X, samples, targets, 0, params)
			round[k] = tree
			for i := 0; i < n; i++ {
				F[i][k] += b.LearningRate * tree.predict(X[i])
			}
		}
		b.Trees = append(b.Trees, round)
	}
}

// Scores returns the raw additive score per class.
func (b *Boosted) Scores(x Vector) []float64 {
	F := make([]float64, b.Classes)
	for _, round := range b.Trees {
		for k, tree := range round {
			F[k] += b.LearningRate * tree.predict(x)
		}
	}
	return F
}

// Predict returns the class index with the highest score; ties resolve to
// the lowest index.
func (b *Boosted) Predict(x Vector) int {
	scores := b.Scores(x)
	best := 0
	for k := 1; k < len(scores); k++ {
		if scores[k] > scores[best] {
			best = k
		}
	}
	return best
}

func onehot(y, k int) float64 {
	if y == k {
		return 1
	}
	return 0
}

func softmax(scores []float64) []float64 {
	maxS := scores[0]
	for _, s := range scores[1:] {
		if s > maxS {
			maxS = s
		}
	}
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - maxS)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// friedmanLeaf is the multi-class logloss leaf step. The denominator is
// floored and the step clamped so saturated leaves cannot emit infinities.
func friedmanLeaf(classes int) func([]float64) float64 {
	scale := float64(classes-1) / float64(classes)
	if classes == 1 {
		scale = 0
	}
	return func(targets []float64) float64 {
		var num, den float64
		for _, r := range targets {
			num += r
			den += math.Abs(r) * (1 - math.Abs(r))
		}
		if den < 1e-10 {
			den = 1e-10
		}
		step := scale * num / den
		switch {
		case step > 10:
			return 10
		case step < -10:
			return -10
		}
		return step
	}
}
