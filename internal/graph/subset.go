package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/thebtf/notegraph/internal/cache"
	"github.com/thebtf/notegraph/internal/clusterer"
	"github.com/thebtf/notegraph/internal/labeler"
	"github.com/thebtf/notegraph/internal/vectorize"
	"github.com/thebtf/notegraph/pkg/models"
)

// ClusterResult is the response to an ad-hoc clustering request.
type ClusterResult struct {
	Clusters        []models.ClusterInfo `json:"clusters"`
	NoteAssignments map[string]int       `json:"noteAssignments"`
}

// ClusterSubset clusters an arbitrary document selection without applying
// overrides or touching the AI snapshot. Embeddings and labels still go
// through the shared cache, so a later full build reuses them.
func (e *Engine) ClusterSubset(ctx context.Context, vaultPath string, documents []models.Document, numClusters int) (*ClusterResult, error) {
	if len(documents) == 0 {
		return &ClusterResult{
			Clusters:        []models.ClusterInfo{},
			NoteAssignments: map[string]int{},
		}, nil
	}

	f, err := cache.Open(e.cacheDir, vaultPath)
	if err != nil {
		return nil, err
	}
	contentCache := cache.NewContentCache(f)

	vec := vectorize.Vectorize(documents, contentCache)

	if numClusters > len(documents) {
		numClusters = len(documents)
	}
	if numClusters < 1 {
		numClusters = 1
	}
	assignments := clusterer.Cluster(vec.Vectors, numClusters)

	clusterContents := make(map[int][]string)
	for i, clusterID := range assignments {
		clusterContents[clusterID] = append(clusterContents[clusterID], documents[i].Content)
	}

	labels := e.resolver.Resolve(ctx, clusterContents, contentCache)

	if err := f.Save(); err != nil {
		return nil, fmt.Errorf("persist graph state: %w", err)
	}

	ids := make([]int, 0, len(clusterContents))
	for clusterID := range clusterContents {
		ids = append(ids, clusterID)
	}
	sort.Ints(ids)

	clusters := make([]models.ClusterInfo, 0, len(ids))
	for _, clusterID := range ids {
		label := labels.Labels[clusterID]
		if label.Label == "" {
			label.Label = labeler.FallbackLabel(clusterID)
		}
		keywords := label.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		clusters = append(clusters, models.ClusterInfo{
			ID:        clusterID,
			Label:     label.Label,
			Color:     PaletteColor(clusterID),
			NoteCount: len(clusterContents[clusterID]),
			Keywords:  keywords,
		})
	}

	assignmentsByID := make(map[string]int, len(documents))
	for i, doc := range documents {
		assignmentsByID[doc.ID] = assignments[i]
	}

	return &ClusterResult{
		Clusters:        clusters,
		NoteAssignments: assignmentsByID,
	}, nil
}
