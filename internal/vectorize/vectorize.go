package vectorize

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/notegraph/internal/cache"
	"github.com/thebtf/notegraph/pkg/models"
)

// emptyPlaceholder stands in for zero-length content so every document gets
// a valid, stable vector.
const emptyPlaceholder = "empty"

// Result carries the vectors plus enough bookkeeping for callers and tests
// to tell cache hits, recomputes, and soft failures apart.
type Result struct {
	Vectors       [][]float64
	CachedCount   int
	ComputedCount int
	FallbackUsed  bool
}

// Vectorize produces one vector per document, in document order.
//
// Cache hits are looked up by (document id, content hash). When any document
// needs computing, the TF-IDF model is refitted over the whole corpus and
// every document — cached ones included — is re-transformed through it, so
// the run's vector space stays uniform even after the vocabulary shifted.
// Only when every document hits the cache are stored vectors used verbatim.
func Vectorize(documents []models.Document, cc *cache.ContentCache) Result {
	if len(documents) == 0 {
		return Result{Vectors: [][]float64{}}
	}

	res := Result{Vectors: make([][]float64, len(documents))}
	hashes := make([]string, len(documents))
	var toCompute []int

	for i, doc := range documents {
		hashes[i] = cache.ContentHash(doc.Content)
		if vec, ok := cc.Embedding(doc.ID, hashes[i]); ok {
			res.Vectors[i] = vec
			res.CachedCount++
			continue
		}
		toCompute = append(toCompute, i)
	}
	res.ComputedCount = len(toCompute)

	if len(toCompute) == 0 {
		return res
	}

	texts := make([]string, len(documents))
	for i, doc := range documents {
		texts[i] = sampleText(doc.Content)
	}

	model, err := fitTFIDF(texts)
	if err != nil {
		// Degenerate corpus: substitute zero vectors for the documents we
		// could not compute and keep whatever the cache had for the rest.
		log.Error().Err(err).Int("documents", len(documents)).Msg("Vectorization failed, substituting zero vectors")
		res.FallbackUsed = true
		for _, i := range toCompute {
			res.Vectors[i] = make([]float64, fallbackDim(res.Vectors))
		}
		return res
	}

	for i := range documents {
		res.Vectors[i] = model.transform(texts[i])
		cc.SetEmbedding(documents[i].ID, hashes[i], res.Vectors[i])
	}

	log.Debug().
		Int("cached", res.CachedCount).
		Int("computed", res.ComputedCount).
		Int("dimension", model.dim()).
		Msg("Vectorized corpus")

	return res
}

// sampleText normalizes content for vectorization.
func sampleText(content string) string {
	if strings.TrimSpace(content) == "" {
		return emptyPlaceholder
	}
	return content
}

// fallbackDim picks a zero-vector dimension consistent with any vectors
// already present, defaulting to the feature bound.
func fallbackDim(vectors [][]float64) int {
	for _, vec := range vectors {
		if vec != nil {
			return len(vec)
		}
	}
	return MaxFeatures
}
