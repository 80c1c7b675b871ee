package categorize

import "testing"

// vectors builds a tiny separable problem: feature 0 marks class 0,
// feature 1 marks class 1.
func separable() ([]Vector, []int) {
	X := []Vector{
		{0: 1.0},
		{0: 0.9, 2: 0.1},
		{0: 0.8},
		{1: 1.0},
		{1: 0.7, 2: 0.2},
		{1: 0.9},
	}
	y := []int{0, 0, 0, 1, 1, 1}
	return X, y
}

func TestBoostedFitPredict(t *testing.T) {
	X, y := separable()
	b := &Boosted{Rounds: 20, Depth: 3, LearningRate: 0.3, Classes: 2}
	b.Fit(X, y)

	if !b.Fitted() {
		t.Fatalf("classifier reports unfitted after Fit")
	}
	for i, x := range X {
		if got := b.Predict(x); got != y[i] {
			t.Fatalf("sample %d predicted %d, want %d", i, got, y[i])
		}
	}
}

func TestBoostedDeterministic(t *testing.T) {
	X, y := separable()
	a := &Boosted{Rounds: 10, Depth: 3, LearningRate: 0.3, Classes: 2}
	a.Fit(X, y)
	b := &Boosted{Rounds: 10, Depth: 3, LearningRate: 0.3, Classes: 2}
	b.Fit(X, y)

	probe := Vector{0: 0.5, 1: 0.4}
	sa, sb := a.Scores(probe), b.Scores(probe)
	for k := range sa {
		if sa[k] != sb[k] {
			t.Fatalf("scores differ at class %d: %v vs %v", k, sa[k], sb[k])
		}
	}
}

func TestBoostedSingleClass(t *testing.T) {
	X := []Vector{{0: 1}, {1: 1}, {2: 1}}
	y := []int{0, 0, 0}
	b := &Boosted{Rounds: 10, Depth: 3, LearningRate: 0.3, Classes: 1}
	b.Fit(X, y)

	if !b.Fitted() {
		t.Fatalf("single-class fit must still be usable")
	}
	if got := b.Predict(Vector{5: 1}); got != 0 {
		t.Fatalf("predicted %d, want 0", got)
	}
}
