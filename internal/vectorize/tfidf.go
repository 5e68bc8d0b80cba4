// Package vectorize turns documents into fixed-basis TF-IDF vectors. The
// model is refitted over the whole corpus on every run so all vectors share
// one vocabulary, cached or not.
package vectorize

import (
	"errors"
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	// MaxFeatures bounds the vocabulary, and therefore vector dimension.
	MaxFeatures = 200

	// maxDocFreqRatio drops terms present in nearly every document; they
	// carry no separating signal.
	maxDocFreqRatio = 0.95
)

var errEmptyVocabulary = errors.New("empty vocabulary")

// tfidfModel is a fitted vocabulary with per-term inverse document
// frequencies. The vocabulary is sorted, so transforms are deterministic.
type tfidfModel struct {
	terms []string
	index map[string]int
	idf   []float64
}

// fitTFIDF builds the model from every document's text: unigrams + bigrams,
// high-document-frequency terms dropped, then the MaxFeatures most frequent
// terms kept (ties alphabetical) and ordered alphabetically.
func fitTFIDF(texts []string) (*tfidfModel, error) {
	n := len(texts)
	if n == 0 {
		return nil, errEmptyVocabulary
	}

	docFreq := make(map[string]int)
	totalFreq := make(map[string]int)
	for _, text := range texts {
		counts := termCounts(text)
		for term, count := range counts {
			docFreq[term]++
			totalFreq[term] += count
		}
	}

	maxDF := maxDocFreqRatio * float64(n)
	kept := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if float64(df) > maxDF {
			continue
		}
		kept = append(kept, term)
	}
	if len(kept) == 0 {
		return nil, errEmptyVocabulary
	}

	if len(kept) > MaxFeatures {
		sort.Slice(kept, func(i, j int) bool {
			if totalFreq[kept[i]] != totalFreq[kept[j]] {
				return totalFreq[kept[i]] > totalFreq[kept[j]]
			}
			return kept[i] < kept[j]
		})
		kept = kept[:MaxFeatures]
	}
	sort.Strings(kept)

	m := &tfidfModel{
		terms: kept,
		index: make(map[string]int, len(kept)),
		idf:   make([]float64, len(kept)),
	}
	for i, term := range kept {
		m.index[term] = i
		// Smoothed IDF: never zero, never divides by zero.
		m.idf[i] = math.Log(float64(1+n)/float64(1+docFreq[term])) + 1
	}
	return m, nil
}

// dim returns the vector dimension.
func (m *tfidfModel) dim() int {
	return len(m.terms)
}

// transform maps one text into the fitted vector space, L2-normalized.
func (m *tfidfModel) transform(text string) []float64 {
	vec := make([]float64, len(m.terms))
	for term, count := range termCounts(text) {
		if i, ok := m.index[term]; ok {
			vec[i] = float64(count) * m.idf[i]
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// termCounts returns unigram and bigram counts for a text.
func termCounts(text string) map[string]int {
	tokens := tokenize(text)
	counts := make(map[string]int, len(tokens)*2)
	for i, token := range tokens {
		counts[token]++
		if i+1 < len(tokens) {
			counts[token+" "+tokens[i+1]]++
		}
	}
	return counts
}

// tokenize lowercases and splits on non-word runes, keeping tokens of at
// least two runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if len([]rune(field)) >= 2 {
			tokens = append(tokens, field)
		}
	}
	return tokens
}
