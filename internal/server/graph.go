package server

import (
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/notegraph/internal/cache"
	"github.com/thebtf/notegraph/internal/graph"
	"github.com/thebtf/notegraph/internal/vault"
)

type graphDataPayload struct {
	MinSimilarity float64 `json:"minSimilarity"`
	MaxClusters   int     `json:"maxClusters"`
}

// handleGraphData builds the full graph for the current vault. Builds are
// serialized per vault.
func (s *Service) handleGraphData(w http.ResponseWriter, r *http.Request) {
	payload := graphDataPayload{
		MinSimilarity: s.config.MinSimilarity,
		MaxClusters:   s.config.MaxClusters,
	}
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	vaultPath := s.registry.CurrentPath()
	documents, err := vault.ListDocuments(vaultPath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	mu := s.vaultLock(vaultPath)
	mu.Lock()
	defer mu.Unlock()

	data, err := s.engine.Build(r.Context(), vaultPath, documents, graph.BuildParams{
		MinSimilarity: payload.MinSimilarity,
		MaxClusters:   payload.MaxClusters,
	})
	if err != nil {
		log.Error().Err(err).Str("vault", vaultPath).Msg("Graph build failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, data)
}

type clusterNotesPayload struct {
	NotePaths   []string `json:"notePaths"`
	NumClusters int      `json:"numClusters"`
}

// handleClusterNotes clusters a subset of notes without applying overrides.
func (s *Service) handleClusterNotes(w http.ResponseWriter, r *http.Request) {
	payload := clusterNotesPayload{NumClusters: s.config.MaxClusters}
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	vaultPath := s.registry.CurrentPath()
	documents, err := vault.ListDocuments(vaultPath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if len(payload.NotePaths) > 0 {
		wanted := make(map[string]struct{}, len(payload.NotePaths))
		for _, p := range payload.NotePaths {
			wanted[p] = struct{}{}
		}
		filtered := documents[:0]
		for _, doc := range documents {
			if _, ok := wanted[doc.ID]; ok {
				filtered = append(filtered, doc)
			}
		}
		documents = filtered
	}

	mu := s.vaultLock(vaultPath)
	mu.Lock()
	defer mu.Unlock()

	result, err := s.engine.ClusterSubset(r.Context(), vaultPath, documents, payload.NumClusters)
	if err != nil {
		log.Error().Err(err).Str("vault", vaultPath).Msg("Subset clustering failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleStats reports corpus totals, cache state, and build metrics.
func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	vaultPath := s.registry.CurrentPath()
	documents, err := vault.ListDocuments(vaultPath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	totalWords := 0
	for _, doc := range documents {
		totalWords += doc.WordCount
	}
	avgWords := 0
	if len(documents) > 0 {
		avgWords = totalWords / len(documents)
	}

	f, err := s.engine.OpenState(vaultPath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	contents := cache.NewContentCache(f)

	var lastUpdated any
	if t := f.LastUpdated(); !t.IsZero() {
		lastUpdated = t
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"totalNotes":   len(documents),
		"totalWords":   totalWords,
		"averageWords": avgWords,
		"cache": map[string]any{
			"cachedEmbeddings": contents.EmbeddingCount(),
			"cachedLabels":     contents.LabelCount(),
			"lastUpdated":      lastUpdated,
		},
		"metrics": s.engine.Metrics().Snapshot(),
	})
}

// handleClearCache removes the vault's persisted graph state.
func (s *Service) handleClearCache(w http.ResponseWriter, r *http.Request) {
	vaultPath := s.registry.CurrentPath()

	mu := s.vaultLock(vaultPath)
	mu.Lock()
	defer mu.Unlock()

	f, err := s.engine.OpenState(vaultPath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := f.Delete(); err != nil && !os.IsNotExist(err) {
		log.Error().Err(err).Str("vault", vaultPath).Msg("Failed to clear graph cache")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("vault", vaultPath).Msg("Graph cache cleared")
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "cache cleared",
	})
}

type environmentPayload struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (s *Service) handleListEnvironments(w http.ResponseWriter, r *http.Request) {
	envs, currentID := s.registry.Environments()
	if envs == nil {
		envs = []vault.Environment{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"environments": envs,
		"currentId":    currentID,
		"currentPath":  s.registry.CurrentPath(),
	})
}

func (s *Service) handleAddEnvironment(w http.ResponseWriter, r *http.Request) {
	var payload environmentPayload
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Name == "" || payload.Path == "" {
		respondError(w, http.StatusBadRequest, "name and path are required")
		return
	}

	env, err := s.registry.Add(payload.Name, payload.Path)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, env)
}

func (s *Service) handleSetCurrentEnvironment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.ID == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := s.registry.SetCurrent(payload.ID); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": payload.ID})
}

// effectiveCluster resolves a note's cluster from overrides first, then the
// persisted AI assignment snapshot.
func effectiveCluster(overrides map[string]int, assignments map[string]int, notePath string) (int, bool) {
	if id, ok := overrides[notePath]; ok {
		return id, true
	}
	if id, ok := assignments[notePath]; ok {
		return id, true
	}
	return 0, false
}
