package labeler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/notegraph/internal/cache"
)

// fakeGenerator returns canned objects keyed by a substring of the prompt,
// and records every call.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	respond func(prompt string) (map[string]any, error)
}

func (g *fakeGenerator) GenerateJSON(ctx context.Context, prompt, schemaHint string) (map[string]any, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.respond == nil {
		return map[string]any{"label": "Generated", "keywords": []any{"kw"}}, nil
	}
	return g.respond(prompt)
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func testCache(t *testing.T) *cache.ContentCache {
	t.Helper()
	f, err := cache.Open(t.TempDir(), "/test/vault")
	require.NoError(t, err)
	return cache.NewContentCache(f)
}

func TestFallbackLabel(t *testing.T) {
	assert.Equal(t, "Topic 1", FallbackLabel(0))
	assert.Equal(t, "Topic 8", FallbackLabel(7))
}

func TestResolve_GeneratesAndCaches(t *testing.T) {
	gen := &fakeGenerator{respond: func(prompt string) (map[string]any, error) {
		if strings.Contains(prompt, "garden") {
			return map[string]any{"label": "Gardening", "keywords": []any{"plants", "soil"}}, nil
		}
		return map[string]any{"label": "Budget", "keywords": []any{"money"}}, nil
	}}
	r := New(gen)
	cc := testCache(t)

	contents := map[int][]string{
		0: {"garden notes about plants", "more garden content"},
		1: {"budget spreadsheet and money"},
	}

	res := r.Resolve(context.Background(), contents, cc)

	assert.Equal(t, 0, res.CachedCount)
	assert.Equal(t, 2, res.GeneratedCount)
	assert.Equal(t, "Gardening", res.Labels[0].Label)
	assert.Equal(t, []string{"plants", "soil"}, res.Labels[0].Keywords)
	assert.Equal(t, "Budget", res.Labels[1].Label)
	assert.Equal(t, SourceGenerated, res.Sources[0])
	assert.Equal(t, 2, gen.callCount())

	// Second resolve with identical membership hits the cache entirely
	again := r.Resolve(context.Background(), contents, cc)
	assert.Equal(t, 2, again.CachedCount)
	assert.Equal(t, 0, again.GeneratedCount)
	assert.Equal(t, res.Labels, again.Labels)
	assert.Equal(t, SourceCache, again.Sources[0])
	assert.Equal(t, 2, gen.callCount(), "no further generation calls")
}

func TestResolve_MembershipChangeRegenerates(t *testing.T) {
	gen := &fakeGenerator{}
	r := New(gen)
	cc := testCache(t)

	r.Resolve(context.Background(), map[int][]string{0: {"note one"}}, cc)
	require.Equal(t, 1, gen.callCount())

	// Different membership, different hash, new generation
	res := r.Resolve(context.Background(), map[int][]string{0: {"note one", "note two"}}, cc)
	assert.Equal(t, 1, res.GeneratedCount)
	assert.Equal(t, 2, gen.callCount())
}

func TestResolve_SameContentDifferentIDHitsCache(t *testing.T) {
	gen := &fakeGenerator{}
	r := New(gen)
	cc := testCache(t)

	r.Resolve(context.Background(), map[int][]string{0: {"shared content"}}, cc)

	// The cache is keyed by membership hash, not cluster id
	res := r.Resolve(context.Background(), map[int][]string{4: {"shared content"}}, cc)
	assert.Equal(t, 1, res.CachedCount)
	assert.Equal(t, 1, gen.callCount())
}

func TestResolve_InterleavedHitsAndMisses(t *testing.T) {
	gen := &fakeGenerator{}
	r := New(gen)
	cc := testCache(t)

	// Seed the cache with even-numbered clusters
	seeded := map[int][]string{}
	for i := 0; i < 8; i += 2 {
		seeded[i] = []string{fmt.Sprintf("stable cluster %d content", i)}
	}
	r.Resolve(context.Background(), seeded, cc)
	require.Equal(t, 4, gen.callCount())

	// A rebuild where unchanged clusters interleave with changed ones: hits
	// resolve on the host while misses generate concurrently
	mixed := map[int][]string{}
	for i := 0; i < 8; i++ {
		if i%2 == 0 {
			mixed[i] = seeded[i]
		} else {
			mixed[i] = []string{fmt.Sprintf("fresh cluster %d content", i)}
		}
	}

	res := r.Resolve(context.Background(), mixed, cc)

	assert.Equal(t, 4, res.CachedCount)
	assert.Equal(t, 4, res.GeneratedCount)
	assert.Len(t, res.Labels, 8)
	for i := 0; i < 8; i++ {
		if i%2 == 0 {
			assert.Equal(t, SourceCache, res.Sources[i])
		} else {
			assert.Equal(t, SourceGenerated, res.Sources[i])
		}
	}
	assert.Equal(t, 8, cc.LabelCount())
}

func TestResolve_ErrorFallsBack(t *testing.T) {
	gen := &fakeGenerator{respond: func(string) (map[string]any, error) {
		return nil, errors.New("provider unreachable")
	}}
	r := New(gen)
	cc := testCache(t)

	res := r.Resolve(context.Background(), map[int][]string{2: {"content"}}, cc)

	assert.Equal(t, "Topic 3", res.Labels[2].Label)
	assert.Empty(t, res.Labels[2].Keywords)
	assert.Equal(t, SourceFallback, res.Sources[2])
	// Fallbacks count as generated in the totals
	assert.Equal(t, 1, res.GeneratedCount)
	assert.Equal(t, 0, cc.LabelCount(), "fallback labels are never cached")
}

func TestResolve_EmptyLabelFallsBack(t *testing.T) {
	gen := &fakeGenerator{respond: func(string) (map[string]any, error) {
		return map[string]any{"label": "   ", "keywords": []any{"kw"}}, nil
	}}
	r := New(gen)
	cc := testCache(t)

	res := r.Resolve(context.Background(), map[int][]string{0: {"content"}}, cc)

	assert.Equal(t, "Topic 1", res.Labels[0].Label)
	assert.Equal(t, SourceFallback, res.Sources[0])
	assert.Equal(t, 0, cc.LabelCount())
}

func TestResolve_MalformedKeywordsTolerated(t *testing.T) {
	gen := &fakeGenerator{respond: func(string) (map[string]any, error) {
		return map[string]any{"label": "Mixed", "keywords": []any{"good", 42, ""}}, nil
	}}
	r := New(gen)

	res := r.Resolve(context.Background(), map[int][]string{0: {"content"}}, testCache(t))

	assert.Equal(t, "Mixed", res.Labels[0].Label)
	assert.Equal(t, []string{"good"}, res.Labels[0].Keywords)
}

func TestResolve_EmptyInput(t *testing.T) {
	gen := &fakeGenerator{}
	r := New(gen)

	res := r.Resolve(context.Background(), map[int][]string{}, testCache(t))

	assert.Empty(t, res.Labels)
	assert.Zero(t, gen.callCount())
}

func TestBuildPrompt_SamplesAndTruncates(t *testing.T) {
	r := New(&fakeGenerator{})

	long := strings.Repeat("x", 600)
	contents := []string{long, "second", "third", "fourth", "fifth", "sixth", "seventh"}

	prompt := r.buildPrompt(contents)

	// Only the first five members are sampled, each capped
	assert.NotContains(t, prompt, "sixth")
	assert.NotContains(t, prompt, "seventh")
	assert.Contains(t, prompt, "fifth")
	assert.NotContains(t, prompt, strings.Repeat("x", 501))
	assert.Contains(t, prompt, strings.Repeat("x", 500))
	assert.Contains(t, prompt, schemaHint)
}
