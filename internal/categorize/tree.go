package categorize

import (
	"math"
	"sort"
)

// regNode is one node of a regression tree grown on sparse vectors.
// Internal nodes route on feature value <= threshold; leaves carry the
// boosting step value.
type regNode struct {
	Feature   int      `json:"f"`
	Threshold float64  `json:"t"`
	Value     float64  `json:"v"`
	Leaf      bool     `json:"leaf"`
	Left      *regNode `json:"l,omitempty"`
	Right     *regNode `json:"r,omitempty"`
}

type treeParams struct {
	maxDepth  int
	minSplit  int
	leafValue func(targets []float64) float64
}

func (n *regNode) predict(x Vector) float64 {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// growTree fits a regression tree to the targets of the given samples by
// greedy SSE minimization. Split search is deterministic: features are
// visited in ascending index order and only strict improvements replace
// the incumbent, so equal-quality splits resolve to the lowest feature.
func growTree(X []Vector, samples []int, targets []float64, depth int, p treeParams) *regNode {
	if depth >= p.maxDepth || len(samples) < p.minSplit || pureTargets(samples, targets) {
		return leafNode(samples, targets, p)
	}

	feat, thr, ok := bestSplit(X, samples, targets)
	if !ok {
		return leafNode(samples, targets, p)
	}

	var left, right []int
	for _, i := range samples {
		if X[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return leafNode(samples, targets, p)
	}

	return &regNode{
		Feature:   feat,
		Threshold: thr,
		Left:      growTree(X, left, targets, depth+1, p),
		Right:     growTree(X, right, targets, depth+1, p),
	}
}

func leafNode(samples []int, targets []float64, p treeParams) *regNode {
	vals := make([]float64, len(samples))
	for i, s := range samples {
		vals[i] = targets[s]
	}
	return &regNode{Leaf: true, Value: p.leafValue(vals)}
}

func pureTargets(samples []int, targets []float64) bool {
	for _, s := range samples[1:] {
		if math.Abs(targets[s]-targets[samples[0]]) > 1e-12 {
			return false
		}
	}
	return true
}

// bestSplit scans every feature present in the sample subset and every
// threshold between consecutive distinct values (absent entries count as
// zero) for the split with the lowest left+right SSE.
func bestSplit(X []Vector, samples []int, targets []float64) (int, float64, bool) {
	featSet := make(map[int]struct{})
	for _, i := range samples {
		for f := range X[i] {
			featSet[f] = struct{}{}
		}
	}
	feats := make([]int, 0, len(featSet))
	for f := range featSet {
		feats = append(feats, f)
	}
	sort.Ints(feats)

	n := len(samples)
	var sumAll, sqAll float64
	for _, i := range samples {
		sumAll += targets[i]
		sqAll += targets[i] * targets[i]
	}
	baseSSE := sqAll - sumAll*sumAll/float64(n)

	bestSSE := baseSSE
	bestFeat, bestThr := -1, 0.0
	found := false

	type vt struct{ v, t float64 }
	pairs := make([]vt, n)

	for _, f := range feats {
		for idx, i := range samples {
			pairs[idx] = vt{X[i][f], targets[i]}
		}
		sort.Slice(pairs, func(a, b int) bool { return pairs[a].v < pairs[b].v })

		var sumL, sqL float64
		for k := 0; k < n-1; k++ {
			sumL += pairs[k].t
			sqL += pairs[k].t * pairs[k].t
			if pairs[k].v == pairs[k+1].v {
				continue
			}
			nl, nr := float64(k+1), float64(n-k-1)
			sumR, sqR := sumAll-sumL, sqAll-sqL
			sse := (sqL - sumL*sumL/nl) + (sqR - sumR*sumR/nr)
			if sse < bestSSE-1e-12 {
				bestSSE = sse
				bestFeat = f
				bestThr = (pairs[k].v + pairs[k+1].v) / 2
				found = true
			}
		}
	}
	return bestFeat, bestThr, found
}
