// Package categorize implements the supervised categorization engine: a
// TF-IDF text vectorizer paired with a gradient-boosted multi-class
// classifier, trained on the user's own labeled records and persisted as a
// single bundle so the pair can never drift apart.
package categorize

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Vector is a sparse feature vector: vocabulary index to TF-IDF weight.
// Absent indexes are zero.
type Vector map[int]float64

// Vectorizer converts description text into L2-normalized TF-IDF vectors
// over a capped vocabulary. Fit selects the MaxFeatures most frequent
// corpus terms (ties alphabetical) and freezes document frequencies; the
// vocabulary never grows at inference time.
type Vectorizer struct {
	MaxFeatures int            `json:"max_features"`
	Vocab       map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
	Docs        int            `json:"documents"`
}

// NewVectorizer returns an unfitted vectorizer with the given vocabulary
// cap. A cap of 0 or less falls back to 1000 terms.
func NewVectorizer(maxFeatures int) *Vectorizer {
	if maxFeatures <= 0 {
		maxFeatures = 1000
	}
	return &Vectorizer{MaxFeatures: maxFeatures}
}

// Fitted reports whether Fit has produced a usable vocabulary.
func (v *Vectorizer) Fitted() bool {
	return v != nil && len(v.Vocab) > 0 && len(v.IDF) == len(v.Vocab)
}

// Fit builds the vocabulary and IDF table from the training corpus only.
func (v *Vectorizer) Fit(texts []string) {
	type termStat struct {
		term  string
		corpus int // total occurrences across the corpus
		docs   int // documents containing the term
	}

	stats := make(map[string]*termStat)
	for _, text := range texts {
		tokens := tokenize(text)
		inDoc := make(map[string]bool, len(tokens))
		for _, tok := range tokens {
			st, ok := stats[tok]
			if !ok {
				st = &termStat{term: tok}
				stats[tok] = st
			}
			st.corpus++
			if !inDoc[tok] {
				st.docs++
				inDoc[tok] = true
			}
		}
	}

	ordered := make([]*termStat, 0, len(stats))
	for _, st := range stats {
		ordered = append(ordered, st)
	}
	// Most frequent corpus terms first; alphabetical tie-break keeps the
	// selection deterministic.
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].corpus != ordered[j].corpus {
			return ordered[i].corpus > ordered[j].corpus
		}
		return ordered[i].term < ordered[j].term
	})
	if len(ordered) > v.MaxFeatures {
		ordered = ordered[:v.MaxFeatures]
	}

	// Vocabulary indexes are alphabetical over the selected terms so the
	// fitted state is independent of map iteration order.
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].term < ordered[j].term })

	v.Docs = len(texts)
	v.Vocab = make(map[string]int, len(ordered))
	v.IDF = make([]float64, len(ordered))
	for i, st := range ordered {
		v.Vocab[st.term] = i
		// Smoothed IDF; every selected term gets a positive weight even
		// when it appears in all documents.
		v.IDF[i] = math.Log(float64(1+v.Docs)/float64(1+st.docs)) + 1
	}
}

// Transform vectorizes one text with the frozen vocabulary. Unknown terms
// are ignored; the result is L2-normalized. Text with no known terms maps
// to the zero vector.
func (v *Vectorizer) Transform(text string) Vector {
	counts := make(map[int]float64)
	for _, tok := range tokenize(text) {
		if idx, ok := v.Vocab[tok]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return Vector{}
	}

	var norm float64
	vec := make(Vector, len(counts))
	for idx, tf := range counts {
		w := tf * v.IDF[idx]
		vec[idx] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for idx := range vec {
		vec[idx] /= norm
	}
	return vec
}

// TransformAll vectorizes a corpus.
func (v *Vectorizer) TransformAll(texts []string) []Vector {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		out[i] = v.Transform(t)
	}
	return out
}

// tokenize lowercases the text and emits runs of letters and digits at
// least two runes long, with English stopwords removed.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) >= 2 {
			tok := string(cur)
			if !isStopword(tok) {
				tokens = append(tokens, tok)
			}
		}
		cur = cur[:0]
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur = append(cur, r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}
