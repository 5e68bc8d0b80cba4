// Package labeler derives a human-readable label and keyword set for each
// cluster, caching results by cluster-membership content hash so unchanged
// clusters never cost a second generation call.
package labeler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/notegraph/internal/cache"
	"github.com/thebtf/notegraph/internal/textgen"
	"github.com/thebtf/notegraph/pkg/models"
)

const (
	// maxSampleDocs and sampleCharLimit bound the prompt: a handful of
	// member excerpts is enough to name a topic.
	maxSampleDocs   = 5
	sampleCharLimit = 500

	// promptTokenBudget caps the sample after assembly so small local
	// models never overflow their context.
	promptTokenBudget = 2000

	// labelConcurrency bounds in-flight generation calls.
	labelConcurrency = 4
)

const schemaHint = `{"label": "", "keywords": []}`

// Source records how a cluster's label was obtained.
type Source string

const (
	SourceCache     Source = "cache"
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Result carries the resolved labels plus cache bookkeeping. Fallback labels
// count as generated; Sources tells them apart.
type Result struct {
	Labels         map[int]models.ClusterLabel
	Sources        map[int]Source
	CachedCount    int
	GeneratedCount int
}

// Resolver labels clusters through a text generator.
type Resolver struct {
	gen   textgen.Generator
	codec tokenizer.Codec
}

// New creates a Resolver. Tokenizer setup failure is tolerated; the sample
// is then bounded by characters only.
func New(gen textgen.Generator) *Resolver {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("Tokenizer unavailable, prompt budget falls back to characters")
		codec = nil
	}
	return &Resolver{gen: gen, codec: codec}
}

// FallbackLabel is the deterministic label used when generation fails or no
// label is known for a cluster.
func FallbackLabel(clusterID int) string {
	return fmt.Sprintf("Topic %d", clusterID+1)
}

// Resolve labels every cluster in clusterContents. Cache hits are returned
// verbatim; misses are generated concurrently and written back to the cache
// before returning. Generation failures degrade to the fallback label —
// labeling never fails a build.
func (r *Resolver) Resolve(ctx context.Context, clusterContents map[int][]string, cc *cache.ContentCache) Result {
	res := Result{
		Labels:  make(map[int]models.ClusterLabel, len(clusterContents)),
		Sources: make(map[int]Source, len(clusterContents)),
	}

	ids := make([]int, 0, len(clusterContents))
	for id := range clusterContents {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	// Resolve every cache hit before spawning any generation goroutine: the
	// cache map and the result maps are unguarded here, so all host-side
	// accesses must finish first.
	type missedCluster struct {
		id       int
		hash     string
		contents []string
	}
	missed := make([]missedCluster, 0, len(ids))
	for _, id := range ids {
		contents := clusterContents[id]
		hash := cache.ClusterContentHash(contents)

		if label, ok := cc.ClusterLabel(hash); ok {
			res.Labels[id] = label
			res.Sources[id] = SourceCache
			res.CachedCount++
			continue
		}
		missed = append(missed, missedCluster{id: id, hash: hash, contents: contents})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(labelConcurrency)

	for _, m := range missed {
		m := m
		g.Go(func() error {
			label, source := r.generate(gctx, m.id, m.contents)

			mu.Lock()
			defer mu.Unlock()
			if source == SourceGenerated {
				// Writes are keyed by content hash, so the order in which
				// concurrent results land does not matter.
				cc.SetClusterLabel(m.hash, label)
			}
			res.Labels[m.id] = label
			res.Sources[m.id] = source
			res.GeneratedCount++
			return nil
		})
	}

	_ = g.Wait()
	return res
}

// generate issues one labeling call and degrades to the fallback on any
// failure.
func (r *Resolver) generate(ctx context.Context, clusterID int, contents []string) (models.ClusterLabel, Source) {
	fallback := models.ClusterLabel{Label: FallbackLabel(clusterID), Keywords: []string{}}

	prompt := r.buildPrompt(contents)
	obj, err := r.gen.GenerateJSON(ctx, prompt, schemaHint)
	if err != nil {
		log.Warn().Err(err).Int("cluster", clusterID).Msg("Label generation failed, using fallback")
		return fallback, SourceFallback
	}

	label, _ := obj["label"].(string)
	if strings.TrimSpace(label) == "" {
		log.Warn().Int("cluster", clusterID).Msg("Label generation returned no label, using fallback")
		return fallback, SourceFallback
	}

	keywords := []string{}
	if raw, ok := obj["keywords"].([]any); ok {
		for _, item := range raw {
			if kw, ok := item.(string); ok && kw != "" {
				keywords = append(keywords, kw)
			}
		}
	}

	return models.ClusterLabel{Label: label, Keywords: keywords}, SourceGenerated
}

// buildPrompt samples member excerpts and asks for a short label plus
// keywords.
func (r *Resolver) buildPrompt(contents []string) string {
	samples := make([]string, 0, maxSampleDocs)
	for i, content := range contents {
		if i >= maxSampleDocs {
			break
		}
		samples = append(samples, truncateRunes(content, sampleCharLimit))
	}
	sample := r.capTokens(strings.Join(samples, "\n---\n"))

	return "The following notes share a common topic. Analyze what they have in common.\n\n" +
		"Notes:\n" + sample + "\n\n" +
		"Respond with a JSON object of the form " + schemaHint + " where \"label\" is a concise 2-3 word topic label " +
		"and \"keywords\" holds up to 3 keywords. Output JSON only."
}

// capTokens truncates text to the prompt token budget when a tokenizer is
// available.
func (r *Resolver) capTokens(text string) string {
	if r.codec == nil {
		return text
	}
	ids, _, err := r.codec.Encode(text)
	if err != nil || len(ids) <= promptTokenBudget {
		return text
	}
	capped, err := r.codec.Decode(ids[:promptTokenBudget])
	if err != nil {
		return text
	}
	log.Debug().Int("tokens", len(ids)).Int("budget", promptTokenBudget).Msg("Truncated label prompt sample")
	return capped
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
