package server

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/notegraph/internal/cache"
	"github.com/thebtf/notegraph/internal/graph"
	"github.com/thebtf/notegraph/internal/labeler"
	"github.com/thebtf/notegraph/pkg/models"
)

// clusterCustomization is a customization with its cluster id attached, as
// used by the settings payloads.
type clusterCustomization struct {
	ID       int       `json:"id"`
	Label    *string   `json:"label,omitempty"`
	Color    *string   `json:"color,omitempty"`
	Keywords *[]string `json:"keywords,omitempty"`
}

type clusterSettingsResponse struct {
	Customizations []clusterCustomization `json:"customizations"`
	NoteOverrides  []models.NoteOverride  `json:"noteOverrides"`
}

// openOverrides loads the current vault's override store.
func (s *Service) openOverrides() (*cache.File, *cache.OverrideStore, error) {
	f, err := s.engine.OpenState(s.registry.CurrentPath())
	if err != nil {
		return nil, nil, err
	}
	return f, cache.NewOverrideStore(f), nil
}

// lockedOverrides is openOverrides under the vault's build mutex, so a
// load-mutate-save cannot interleave with a build or another mutation. The
// returned unlock must be called once the save is done.
func (s *Service) lockedOverrides() (*cache.File, *cache.OverrideStore, func(), error) {
	vaultPath := s.registry.CurrentPath()
	mu := s.vaultLock(vaultPath)
	mu.Lock()

	f, err := s.engine.OpenState(vaultPath)
	if err != nil {
		mu.Unlock()
		return nil, nil, nil, err
	}
	return f, cache.NewOverrideStore(f), mu.Unlock, nil
}

func settingsResponse(overrides *cache.OverrideStore) clusterSettingsResponse {
	resp := clusterSettingsResponse{
		Customizations: []clusterCustomization{},
		NoteOverrides:  []models.NoteOverride{},
	}

	customs := overrides.Customizations()
	ids := make([]int, 0, len(customs))
	for id := range customs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		custom := customs[id]
		resp.Customizations = append(resp.Customizations, clusterCustomization{
			ID:       id,
			Label:    custom.Label,
			Color:    custom.Color,
			Keywords: custom.Keywords,
		})
	}

	ovs := overrides.Overrides()
	paths := make([]string, 0, len(ovs))
	for path := range ovs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		resp.NoteOverrides = append(resp.NoteOverrides, models.NoteOverride{
			NotePath:  path,
			ClusterID: ovs[path],
		})
	}

	return resp
}

// handleGetSettings returns all customizations and note overrides.
func (s *Service) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	_, overrides, err := s.openOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, settingsResponse(overrides))
}

type saveSettingsPayload struct {
	Customizations []clusterCustomization `json:"customizations"`
	NoteOverrides  []models.NoteOverride  `json:"noteOverrides"`
}

// handleSaveSettings applies a batch of customizations and overrides, then
// returns the stored state.
func (s *Service) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var payload saveSettingsPayload
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, overrides, unlock, err := s.lockedOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unlock()

	for _, custom := range payload.Customizations {
		overrides.SetCustomization(custom.ID, models.Customization{
			Label:    custom.Label,
			Color:    custom.Color,
			Keywords: custom.Keywords,
		})
	}
	for _, ov := range payload.NoteOverrides {
		overrides.SetOverride(ov.NotePath, ov.ClusterID)
	}

	if err := f.Save(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().
		Int("customizations", len(payload.Customizations)).
		Int("overrides", len(payload.NoteOverrides)).
		Msg("Saved cluster settings")
	respondJSON(w, http.StatusOK, settingsResponse(overrides))
}

// handleUpdateCluster updates one cluster's customization.
func (s *Service) handleUpdateCluster(w http.ResponseWriter, r *http.Request) {
	clusterID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid cluster id")
		return
	}

	var payload struct {
		Label    *string   `json:"label"`
		Color    *string   `json:"color"`
		Keywords *[]string `json:"keywords"`
	}
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, overrides, unlock, err := s.lockedOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unlock()

	overrides.SetCustomization(clusterID, models.Customization{
		Label:    payload.Label,
		Color:    payload.Color,
		Keywords: payload.Keywords,
	})
	if err := f.Save(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"clusterId": clusterID,
		"label":     payload.Label,
		"color":     payload.Color,
		"keywords":  payload.Keywords,
	})
}

type createClusterPayload struct {
	Label    string   `json:"label"`
	Color    string   `json:"color"`
	Keywords []string `json:"keywords"`
}

// handleCreateCluster creates an empty user-defined cluster with the next
// free id.
func (s *Service) handleCreateCluster(w http.ResponseWriter, r *http.Request) {
	payload := createClusterPayload{
		Label: "New cluster",
		Color: "#8b5cf6",
	}
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Keywords == nil {
		payload.Keywords = []string{}
	}

	f, overrides, unlock, err := s.lockedOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unlock()

	// Next free id across customizations and the AI snapshot.
	newID := 0
	for id := range overrides.Customizations() {
		if id >= newID {
			newID = id + 1
		}
	}
	for id := range f.AILabels() {
		if id >= newID {
			newID = id + 1
		}
	}

	overrides.SetCustomization(newID, models.Customization{
		Label:    &payload.Label,
		Color:    &payload.Color,
		Keywords: &payload.Keywords,
	})
	if err := f.Save(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Int("cluster", newID).Str("label", payload.Label).Msg("Created custom cluster")
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"cluster": models.ClusterInfo{
			ID:        newID,
			Label:     payload.Label,
			Color:     payload.Color,
			NoteCount: 0,
			Keywords:  payload.Keywords,
		},
	})
}

// handleDeleteCluster removes a cluster's customization and any overrides
// pointing at it.
func (s *Service) handleDeleteCluster(w http.ResponseWriter, r *http.Request) {
	clusterID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid cluster id")
		return
	}

	f, overrides, unlock, err := s.lockedOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unlock()

	removed := overrides.DeleteCluster(clusterID)
	if err := f.Save(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Int("cluster", clusterID).Int("removed_overrides", removed).Msg("Deleted cluster")
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"clusterId":        clusterID,
		"removedOverrides": removed,
	})
}

// handleClearCustomizations wipes all customizations, overrides, and locks.
func (s *Service) handleClearCustomizations(w http.ResponseWriter, r *http.Request) {
	f, overrides, unlock, err := s.lockedOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unlock()

	overrides.ClearCustomizations()
	if err := f.Save(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Msg("Cleared all cluster customizations")
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "customizations cleared",
	})
}

type moveNotePayload struct {
	NotePath        string `json:"notePath"`
	TargetClusterID int    `json:"targetClusterId"`
}

// handleMoveNote pins a note to a cluster.
func (s *Service) handleMoveNote(w http.ResponseWriter, r *http.Request) {
	var payload moveNotePayload
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.NotePath == "" {
		respondError(w, http.StatusBadRequest, "notePath is required")
		return
	}

	f, overrides, unlock, err := s.lockedOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unlock()

	overrides.SetOverride(payload.NotePath, payload.TargetClusterID)
	if err := f.Save(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("note", payload.NotePath).Int("cluster", payload.TargetClusterID).Msg("Moved note to cluster")
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"notePath":  payload.NotePath,
		"clusterId": payload.TargetClusterID,
	})
}

// handleResetNote removes a note's override, restoring the AI assignment.
func (s *Service) handleResetNote(w http.ResponseWriter, r *http.Request) {
	notePath := chi.URLParam(r, "*")
	if notePath == "" {
		respondError(w, http.StatusBadRequest, "note path is required")
		return
	}

	f, overrides, unlock, err := s.lockedOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unlock()

	overrides.RemoveOverride(notePath)
	if err := f.Save(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("note", notePath).Msg("Reset note cluster override")
	respondJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"notePath": notePath,
	})
}

type lockNotePayload struct {
	NotePath string `json:"notePath"`
	Locked   bool   `json:"locked"`
}

// handleLockNote locks or unlocks a single note.
func (s *Service) handleLockNote(w http.ResponseWriter, r *http.Request) {
	var payload lockNotePayload
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.NotePath == "" {
		respondError(w, http.StatusBadRequest, "notePath is required")
		return
	}

	f, overrides, unlock, err := s.lockedOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unlock()

	if payload.Locked {
		overrides.Lock(payload.NotePath)
	} else {
		overrides.Unlock(payload.NotePath)
	}
	if err := f.Save(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("note", payload.NotePath).Bool("locked", payload.Locked).Msg("Updated note lock")
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"notePath": payload.NotePath,
		"locked":   payload.Locked,
	})
}

type lockNotesBatchPayload struct {
	NotePaths []string `json:"notePaths"`
	Locked    *bool    `json:"locked"`
}

// handleLockNotesBatch locks or unlocks a set of notes in one call.
func (s *Service) handleLockNotesBatch(w http.ResponseWriter, r *http.Request) {
	var payload lockNotesBatchPayload
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	locked := true
	if payload.Locked != nil {
		locked = *payload.Locked
	}

	f, overrides, unlock, err := s.lockedOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unlock()

	for _, notePath := range payload.NotePaths {
		if locked {
			overrides.Lock(notePath)
		} else {
			overrides.Unlock(notePath)
		}
	}
	if err := f.Save(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Int("count", len(payload.NotePaths)).Bool("locked", locked).Msg("Batch updated note locks")
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"count":  len(payload.NotePaths),
		"locked": locked,
	})
}

// handleLockedNotes lists all locked notes.
func (s *Service) handleLockedNotes(w http.ResponseWriter, r *http.Request) {
	_, overrides, err := s.openOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	locked := overrides.LockedNotes()
	respondJSON(w, http.StatusOK, map[string]any{
		"lockedNotes": locked,
		"count":       len(locked),
	})
}

// handleNoteInfo reports one note's effective cluster and lock state using
// the persisted AI snapshot.
func (s *Service) handleNoteInfo(w http.ResponseWriter, r *http.Request) {
	notePath := chi.URLParam(r, "*")
	if notePath == "" {
		respondError(w, http.StatusBadRequest, "note path is required")
		return
	}
	notePath = strings.ReplaceAll(notePath, "\\", "/")
	if !strings.HasSuffix(notePath, ".md") {
		notePath += ".md"
	}

	f, overrides, err := s.openOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	clusterID, ok := effectiveCluster(overrides.Overrides(), f.AIAssignments(), notePath)
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{
			"notePath":   notePath,
			"hasCluster": false,
			"cluster":    nil,
			"isLocked":   overrides.IsLocked(notePath),
		})
		return
	}

	ai, found := f.AILabels()[clusterID]
	if !found {
		ai = models.ClusterLabel{Label: labeler.FallbackLabel(clusterID), Keywords: []string{}}
	}
	label, color, keywords := graph.Display(overrides, clusterID, ai)

	respondJSON(w, http.StatusOK, map[string]any{
		"notePath":   notePath,
		"hasCluster": true,
		"cluster": map[string]any{
			"id":       clusterID,
			"label":    label,
			"color":    color,
			"keywords": keywords,
		},
		"isLocked": overrides.IsLocked(notePath),
	})
}

// handleClusters lists every known cluster with effective note counts from
// the persisted snapshot plus overrides.
func (s *Service) handleClusters(w http.ResponseWriter, r *http.Request) {
	f, overrides, err := s.openOverrides()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	assignments := f.AIAssignments()
	aiLabels := f.AILabels()
	ovs := overrides.Overrides()
	customs := overrides.Customizations()

	counts := make(map[int]int)
	for notePath, clusterID := range assignments {
		if _, overridden := ovs[notePath]; !overridden {
			counts[clusterID]++
		}
	}
	for _, clusterID := range ovs {
		counts[clusterID]++
	}

	idSet := make(map[int]struct{})
	for id := range counts {
		idSet[id] = struct{}{}
	}
	for id := range customs {
		idSet[id] = struct{}{}
	}
	ids := make([]int, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	clusters := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		ai, hasAI := aiLabels[id]
		if !hasAI {
			ai = models.ClusterLabel{Label: labeler.FallbackLabel(id), Keywords: []string{}}
		}
		label, color, keywords := graph.Display(overrides, id, ai)
		_, hasCustom := customs[id]

		clusters = append(clusters, map[string]any{
			"id":        id,
			"label":     label,
			"color":     color,
			"keywords":  keywords,
			"noteCount": counts[id],
			"isCustom":  hasCustom && !hasAI,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"clusters":      clusters,
		"totalClusters": len(clusters),
	})
}
