package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/notegraph/pkg/models"
)

// clusterHashPrefixLen bounds how much of each member document feeds the
// cluster content hash. Truncation keeps hashing cheap and lets near-identical
// clusters share a label even when a member changed elsewhere.
const clusterHashPrefixLen = 200

// ContentCache is the content-addressed view of a cache File: document
// embeddings keyed by (document id, content hash) and cluster labels keyed by
// membership content hash.
type ContentCache struct {
	f *File
}

// NewContentCache wraps a loaded cache file.
func NewContentCache(f *File) *ContentCache {
	return &ContentCache{f: f}
}

// ContentHash returns a stable hex digest of text, truncated for compactness.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// ClusterContentHash hashes the sorted set of member content prefixes, so the
// result is invariant to member ordering.
func ClusterContentHash(contents []string) string {
	prefixes := make([]string, len(contents))
	for i, content := range contents {
		prefixes[i] = truncateRunes(content, clusterHashPrefixLen)
	}
	sort.Strings(prefixes)
	return ContentHash(strings.Join(prefixes, "||"))
}

// Embedding returns the cached vector for documentID if the stored content
// hash matches. A hash mismatch (edited document) is a miss, not an error.
func (c *ContentCache) Embedding(documentID, contentHash string) ([]float64, bool) {
	entry, ok := c.f.data.Embeddings[documentID]
	if !ok || entry.Hash != contentHash {
		return nil, false
	}
	return entry.Vector, true
}

// SetEmbedding stores a vector for documentID. Last writer wins.
func (c *ContentCache) SetEmbedding(documentID, contentHash string, vector []float64) {
	c.f.data.Embeddings[documentID] = embeddingEntry{Hash: contentHash, Vector: vector}
}

// EmbeddingCount returns the number of cached embeddings.
func (c *ContentCache) EmbeddingCount() int {
	return len(c.f.data.Embeddings)
}

// ClusterLabel returns the cached label for a cluster content hash.
func (c *ContentCache) ClusterLabel(clusterHash string) (models.ClusterLabel, bool) {
	label, ok := c.f.data.ClusterLabels[clusterHash]
	return label, ok
}

// SetClusterLabel stores a generated label under its cluster content hash.
// Writes are idempotent for a given hash, so concurrent label generation may
// store results in any order.
func (c *ContentCache) SetClusterLabel(clusterHash string, label models.ClusterLabel) {
	c.f.data.ClusterLabels[clusterHash] = label
}

// LabelCount returns the number of cached cluster labels.
func (c *ContentCache) LabelCount() int {
	return len(c.f.data.ClusterLabels)
}

// GC drops embeddings for documents no longer in the corpus and returns how
// many were removed. Label entries are content-addressed and self-expire, so
// they are left alone.
func (c *ContentCache) GC(currentIDs map[string]struct{}) int {
	var removed []string
	for id := range c.f.data.Embeddings {
		if _, ok := currentIDs[id]; !ok {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(c.f.data.Embeddings, id)
	}

	if len(removed) > 0 {
		sort.Strings(removed)
		log.Info().Int("count", len(removed)).Strs("paths", removed).Msg("Dropped stale embedding cache entries")
	}
	return len(removed)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
