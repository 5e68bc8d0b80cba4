package cache

import (
	"sort"
	"strconv"

	"github.com/thebtf/notegraph/pkg/models"
)

// OverrideStore is the user-intent view of a cache File: manual cluster
// reassignments, locked documents, and per-cluster cosmetic customizations.
// All of it survives across builds; AI assignments never overwrite it.
type OverrideStore struct {
	f *File
}

// NewOverrideStore wraps a loaded cache file.
func NewOverrideStore(f *File) *OverrideStore {
	return &OverrideStore{f: f}
}

// Resolve returns the effective cluster id for a document: the stored
// override if present, else the AI assignment.
func (s *OverrideStore) Resolve(documentID string, aiClusterID int) int {
	if cluster, ok := s.f.data.NoteOverrides[documentID]; ok {
		return cluster
	}
	return aiClusterID
}

// ApplyLockCapture converts a lock into an override exactly once: if the
// document is locked and has no override yet, the current AI assignment is
// captured so later reclustering cannot move it.
func (s *OverrideStore) ApplyLockCapture(documentID string, aiClusterID int) {
	if !s.IsLocked(documentID) {
		return
	}
	if _, ok := s.f.data.NoteOverrides[documentID]; ok {
		return
	}
	s.f.data.NoteOverrides[documentID] = aiClusterID
}

// SetOverride pins a document to a cluster.
func (s *OverrideStore) SetOverride(documentID string, clusterID int) {
	s.f.data.NoteOverrides[documentID] = clusterID
}

// RemoveOverride unpins a document; it falls back to the AI assignment on
// the next build.
func (s *OverrideStore) RemoveOverride(documentID string) {
	delete(s.f.data.NoteOverrides, documentID)
}

// Override returns the stored override for a document, if any.
func (s *OverrideStore) Override(documentID string) (int, bool) {
	cluster, ok := s.f.data.NoteOverrides[documentID]
	return cluster, ok
}

// Overrides returns a copy of all stored overrides.
func (s *OverrideStore) Overrides() map[string]int {
	out := make(map[string]int, len(s.f.data.NoteOverrides))
	for id, cluster := range s.f.data.NoteOverrides {
		out[id] = cluster
	}
	return out
}

// Lock marks a document so AI reclustering cannot move it.
func (s *OverrideStore) Lock(documentID string) {
	for _, id := range s.f.data.LockedNotes {
		if id == documentID {
			return
		}
	}
	s.f.data.LockedNotes = append(s.f.data.LockedNotes, documentID)
}

// Unlock removes the lock; any captured override stays until removed
// explicitly.
func (s *OverrideStore) Unlock(documentID string) {
	for i, id := range s.f.data.LockedNotes {
		if id == documentID {
			s.f.data.LockedNotes = append(s.f.data.LockedNotes[:i], s.f.data.LockedNotes[i+1:]...)
			return
		}
	}
}

// IsLocked reports whether the document is locked.
func (s *OverrideStore) IsLocked(documentID string) bool {
	for _, id := range s.f.data.LockedNotes {
		if id == documentID {
			return true
		}
	}
	return false
}

// LockedNotes returns the locked document ids in sorted order.
func (s *OverrideStore) LockedNotes() []string {
	out := make([]string, len(s.f.data.LockedNotes))
	copy(out, s.f.data.LockedNotes)
	sort.Strings(out)
	return out
}

// SetCustomization merges non-nil fields into the cluster's customization.
// A non-nil empty keyword list is stored as-is: "cleared keywords" and
// "no keyword override" are different states.
func (s *OverrideStore) SetCustomization(clusterID int, custom models.Customization) {
	key := strconv.Itoa(clusterID)
	existing := s.f.data.Customizations[key]
	if custom.Label != nil {
		existing.Label = custom.Label
	}
	if custom.Color != nil {
		existing.Color = custom.Color
	}
	if custom.Keywords != nil {
		existing.Keywords = custom.Keywords
	}
	s.f.data.Customizations[key] = existing
}

// Customization returns the stored customization for a cluster, if any.
func (s *OverrideStore) Customization(clusterID int) (models.Customization, bool) {
	custom, ok := s.f.data.Customizations[strconv.Itoa(clusterID)]
	return custom, ok
}

// Customizations returns all customizations keyed by cluster id.
func (s *OverrideStore) Customizations() map[int]models.Customization {
	out := make(map[int]models.Customization, len(s.f.data.Customizations))
	for key, custom := range s.f.data.Customizations {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out[id] = custom
	}
	return out
}

// ClearCustomizations wipes all customizations, overrides, and locks.
func (s *OverrideStore) ClearCustomizations() {
	s.f.data.Customizations = make(map[string]models.Customization)
	s.f.data.NoteOverrides = make(map[string]int)
	s.f.data.LockedNotes = nil
}

// DeleteCluster removes a cluster's customization and every override
// pointing at it, returning how many overrides were dropped. In-memory AI
// assignments are untouched; affected documents revert on the next build.
func (s *OverrideStore) DeleteCluster(clusterID int) int {
	delete(s.f.data.Customizations, strconv.Itoa(clusterID))

	var removed []string
	for id, cluster := range s.f.data.NoteOverrides {
		if cluster == clusterID {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(s.f.data.NoteOverrides, id)
	}
	return len(removed)
}
