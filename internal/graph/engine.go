// Package graph assembles the note graph: it orchestrates vectorization,
// clustering, similarity, labeling, and override resolution into one build,
// and persists updated cache state exactly once per successful build.
package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/notegraph/internal/cache"
	"github.com/thebtf/notegraph/internal/clusterer"
	"github.com/thebtf/notegraph/internal/labeler"
	"github.com/thebtf/notegraph/internal/similarity"
	"github.com/thebtf/notegraph/internal/textgen"
	"github.com/thebtf/notegraph/internal/vectorize"
	"github.com/thebtf/notegraph/pkg/models"
)

const (
	// DefaultMinSimilarity is the edge threshold when the caller passes none.
	DefaultMinSimilarity = 0.3
	// DefaultMaxClusters is the cluster bound when the caller passes none.
	DefaultMaxClusters = 8

	// nodeSizeDivisor scales word count into a node size.
	nodeSizeDivisor = 100
)

// BuildParams are the only tunables a build accepts.
type BuildParams struct {
	MinSimilarity float64
	MaxClusters   int
}

func (p BuildParams) withDefaults() BuildParams {
	if p.MinSimilarity <= 0 {
		p.MinSimilarity = DefaultMinSimilarity
	}
	if p.MaxClusters <= 0 {
		p.MaxClusters = DefaultMaxClusters
	}
	return p
}

// Engine builds note graphs. One Engine serves all vaults; per-vault cache
// files keep them independent. A single build is synchronous and owns its
// cache file for the duration, so callers must serialize builds per vault.
type Engine struct {
	cacheDir string
	resolver *labeler.Resolver
	metrics  *Metrics
}

// NewEngine creates an engine that persists per-vault state under cacheDir
// and labels clusters through gen.
func NewEngine(cacheDir string, gen textgen.Generator) *Engine {
	return &Engine{
		cacheDir: cacheDir,
		resolver: labeler.New(gen),
		metrics:  NewMetrics(),
	}
}

// Metrics exposes the engine's build counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// CacheDir returns the directory holding per-vault cache files.
func (e *Engine) CacheDir() string {
	return e.cacheDir
}

// OpenState loads the persisted cache file for a vault. Callers that only
// need override or snapshot state use this without running a build.
func (e *Engine) OpenState(vaultPath string) (*cache.File, error) {
	return cache.Open(e.cacheDir, vaultPath)
}

// Build produces the full graph for a document set. Recoverable per-item
// failures (one bad vector, one failed label) degrade to fallbacks; only a
// failed save is returned as an error, and in that case the prior cache file
// is left untouched.
func (e *Engine) Build(ctx context.Context, vaultPath string, documents []models.Document, params BuildParams) (*models.GraphData, error) {
	start := time.Now()
	params = params.withDefaults()

	// An empty vault is a normal state, not an error — and it must not
	// touch the cache file.
	if len(documents) == 0 {
		return &models.GraphData{
			Nodes:    []models.GraphNode{},
			Edges:    []models.GraphEdge{},
			Clusters: []models.ClusterInfo{},
		}, nil
	}

	f, err := cache.Open(e.cacheDir, vaultPath)
	if err != nil {
		return nil, err
	}
	contentCache := cache.NewContentCache(f)
	overrides := cache.NewOverrideStore(f)

	currentIDs := make(map[string]struct{}, len(documents))
	for _, doc := range documents {
		currentIDs[doc.ID] = struct{}{}
	}
	contentCache.GC(currentIDs)

	vec := vectorize.Vectorize(documents, contentCache)

	k := clusterer.ClampK(params.MaxClusters, len(documents))
	assignments := clusterer.Cluster(vec.Vectors, k)

	simMatrix := similarity.Matrix(vec.Vectors)

	clusterContents := make(map[int][]string)
	for i, clusterID := range assignments {
		clusterContents[clusterID] = append(clusterContents[clusterID], documents[i].Content)
	}

	labels := e.resolver.Resolve(ctx, clusterContents, contentCache)

	// Lock capture must run before resolution so a freshly locked document
	// pins its current AI assignment, exactly once.
	effective := make([]int, len(documents))
	aiAssignments := make(map[string]int, len(documents))
	for i, doc := range documents {
		overrides.ApplyLockCapture(doc.ID, assignments[i])
		effective[i] = overrides.Resolve(doc.ID, assignments[i])
		aiAssignments[doc.ID] = assignments[i]
	}

	f.SetAIAssignments(aiAssignments)
	f.SetAILabels(labels.Labels)

	data := e.assemble(documents, effective, simMatrix, labels.Labels, overrides, params.MinSimilarity)

	if err := f.Save(); err != nil {
		return nil, fmt.Errorf("persist graph state: %w", err)
	}

	fallbacks := 0
	for _, source := range labels.Sources {
		if source == labeler.SourceFallback {
			fallbacks++
		}
	}
	e.metrics.RecordBuild(time.Since(start), vec.CachedCount, vec.ComputedCount,
		labels.CachedCount, labels.GeneratedCount-fallbacks, fallbacks)

	log.Info().
		Int("nodes", len(data.Nodes)).
		Int("edges", len(data.Edges)).
		Int("clusters", len(data.Clusters)).
		Int("embeddingsCached", vec.CachedCount).
		Int("embeddingsComputed", vec.ComputedCount).
		Int("labelsCached", labels.CachedCount).
		Int("labelsGenerated", labels.GeneratedCount).
		Dur("elapsed", time.Since(start)).
		Msg("Graph build complete")

	return data, nil
}

// assemble builds the node, edge, and cluster views with customization
// precedence applied.
func (e *Engine) assemble(
	documents []models.Document,
	effective []int,
	simMatrix [][]float64,
	aiLabels map[int]models.ClusterLabel,
	overrides *cache.OverrideStore,
	minSimilarity float64,
) *models.GraphData {
	nodes := make([]models.GraphNode, 0, len(documents))
	for i, doc := range documents {
		clusterID := effective[i]
		label, color, _ := Display(overrides, clusterID, aiLabels[clusterID])
		nodes = append(nodes, models.GraphNode{
			ID:           doc.ID,
			Label:        doc.Title,
			Cluster:      clusterID,
			ClusterLabel: label,
			Size:         nodeSize(doc.WordCount),
			Color:        color,
		})
	}

	edges := make([]models.GraphEdge, 0)
	for i := 0; i < len(documents); i++ {
		for j := i + 1; j < len(documents); j++ {
			if simMatrix[i][j] >= minSimilarity {
				edges = append(edges, models.GraphEdge{
					Source: documents[i].ID,
					Target: documents[j].ID,
					Weight: simMatrix[i][j],
					Type:   "similarity",
				})
			}
		}
	}

	counts := make(map[int]int)
	for _, clusterID := range effective {
		counts[clusterID]++
	}

	memberIDs := make([]int, 0, len(counts))
	for clusterID := range counts {
		memberIDs = append(memberIDs, clusterID)
	}
	sort.Ints(memberIDs)

	clusters := make([]models.ClusterInfo, 0, len(counts))
	for _, clusterID := range memberIDs {
		label, color, keywords := Display(overrides, clusterID, aiLabels[clusterID])
		clusters = append(clusters, models.ClusterInfo{
			ID:        clusterID,
			Label:     label,
			Color:     color,
			NoteCount: counts[clusterID],
			Keywords:  keywords,
		})
	}

	// Customized clusters with no members still appear, so user-created
	// clusters render before anything is moved into them.
	emptyIDs := make([]int, 0)
	for clusterID := range overrides.Customizations() {
		if _, ok := counts[clusterID]; !ok {
			emptyIDs = append(emptyIDs, clusterID)
		}
	}
	sort.Ints(emptyIDs)
	for _, clusterID := range emptyIDs {
		label, color, keywords := Display(overrides, clusterID, aiLabels[clusterID])
		clusters = append(clusters, models.ClusterInfo{
			ID:        clusterID,
			Label:     label,
			Color:     color,
			NoteCount: 0,
			Keywords:  keywords,
		})
	}

	return &models.GraphData{
		Nodes:      nodes,
		Edges:      edges,
		Clusters:   clusters,
		TotalNotes: len(documents),
	}
}

// Display resolves the presented label, color, and keywords for a cluster:
// customization wins field by field, the AI label fills the gaps, and the
// palette colors anything else. An explicitly empty customized keyword list
// is respected.
func Display(overrides *cache.OverrideStore, clusterID int, ai models.ClusterLabel) (string, string, []string) {
	label := ai.Label
	if label == "" {
		label = labeler.FallbackLabel(clusterID)
	}
	color := PaletteColor(clusterID)
	keywords := ai.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	if custom, ok := overrides.Customization(clusterID); ok {
		if custom.Label != nil && *custom.Label != "" {
			label = *custom.Label
		}
		if custom.Color != nil && *custom.Color != "" {
			color = *custom.Color
		}
		if custom.Keywords != nil {
			keywords = append([]string(nil), (*custom.Keywords)...)
			if keywords == nil {
				keywords = []string{}
			}
		}
	}
	return label, color, keywords
}

func nodeSize(wordCount int) int {
	size := wordCount / nodeSizeDivisor
	if size < 1 {
		size = 1
	}
	return size
}
