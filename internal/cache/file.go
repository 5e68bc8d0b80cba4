// Package cache persists per-vault graph state: content-addressed embeddings,
// cluster-label results, user customizations, overrides, and locks. Everything
// lives in one JSON file per vault so distinct vaults never collide.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/notegraph/pkg/models"
)

type embeddingEntry struct {
	Hash   string    `json:"hash"`
	Vector []float64 `json:"vector"`
}

// payload is the on-disk schema. Unknown top-level keys are ignored on load
// and missing ones default to empty, so older files keep working.
type payload struct {
	Embeddings     map[string]embeddingEntry       `json:"embeddings,omitempty"`
	ClusterLabels  map[string]models.ClusterLabel  `json:"cluster_labels,omitempty"`
	Customizations map[string]models.Customization `json:"cluster_customizations,omitempty"`
	NoteOverrides  map[string]int                  `json:"note_overrides,omitempty"`
	LockedNotes    []string                        `json:"locked_notes,omitempty"`
	AIAssignments  map[string]int                  `json:"ai_assignments,omitempty"`
	AILabels       map[string]models.ClusterLabel  `json:"ai_labels,omitempty"`
	LastUpdated    string                          `json:"last_updated,omitempty"`
}

// File is the persisted cache unit for one vault. It is loaded at the start
// of a build, mutated in memory, and written back once at the end. File is
// not safe for concurrent use; callers serialize builds per vault.
type File struct {
	path string
	data payload
}

// VaultKey derives the cache file name for a vault path.
func VaultKey(vaultPath string) string {
	sum := md5.Sum([]byte(vaultPath))
	return hex.EncodeToString(sum[:])[:12]
}

// Open loads the cache file for vaultPath from dir, creating dir if needed.
// A missing or unparsable file yields an empty cache, not an error.
func Open(dir, vaultPath string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	f := &File{path: filepath.Join(dir, VaultKey(vaultPath)+".json")}
	f.normalize()

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", f.path).Msg("Failed to read graph cache, starting empty")
		}
		return f, nil
	}

	if err := json.Unmarshal(raw, &f.data); err != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("Corrupt graph cache, starting empty")
		f.data = payload{}
	}
	f.normalize()

	log.Debug().
		Int("embeddings", len(f.data.Embeddings)).
		Int("labels", len(f.data.ClusterLabels)).
		Str("path", f.path).
		Msg("Graph cache loaded")

	return f, nil
}

// normalize replaces nil maps so lookups and writes never have to check.
func (f *File) normalize() {
	if f.data.Embeddings == nil {
		f.data.Embeddings = make(map[string]embeddingEntry)
	}
	if f.data.ClusterLabels == nil {
		f.data.ClusterLabels = make(map[string]models.ClusterLabel)
	}
	if f.data.Customizations == nil {
		f.data.Customizations = make(map[string]models.Customization)
	}
	if f.data.NoteOverrides == nil {
		f.data.NoteOverrides = make(map[string]int)
	}
	if f.data.AIAssignments == nil {
		f.data.AIAssignments = make(map[string]int)
	}
	if f.data.AILabels == nil {
		f.data.AILabels = make(map[string]models.ClusterLabel)
	}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Save writes the cache atomically: marshal to a temp file in the same
// directory, then rename over the old file. A failed save leaves the prior
// file untouched.
func (f *File) Save() error {
	f.data.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".graph-cache-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write graph cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace graph cache: %w", err)
	}
	return nil
}

// Delete removes the backing file and resets in-memory state.
func (f *File) Delete() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove graph cache: %w", err)
	}
	f.data = payload{}
	f.normalize()
	return nil
}

// LastUpdated returns when the file was last saved, or the zero time.
func (f *File) LastUpdated() time.Time {
	t, err := time.Parse(time.RFC3339, f.data.LastUpdated)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AI snapshot: the last build's raw assignments and labels. These are
// advisory (a build always recomputes them) but let single-note lookups and
// cluster listings answer without a rebuild.

// SetAIAssignments replaces the stored document -> cluster id snapshot.
func (f *File) SetAIAssignments(assignments map[string]int) {
	f.data.AIAssignments = make(map[string]int, len(assignments))
	for id, cluster := range assignments {
		f.data.AIAssignments[id] = cluster
	}
}

// AIAssignments returns a copy of the stored assignment snapshot.
func (f *File) AIAssignments() map[string]int {
	out := make(map[string]int, len(f.data.AIAssignments))
	for id, cluster := range f.data.AIAssignments {
		out[id] = cluster
	}
	return out
}

// SetAILabels replaces the stored cluster id -> label snapshot.
func (f *File) SetAILabels(labels map[int]models.ClusterLabel) {
	f.data.AILabels = make(map[string]models.ClusterLabel, len(labels))
	for id, label := range labels {
		f.data.AILabels[strconv.Itoa(id)] = label
	}
}

// AILabels returns the stored label snapshot keyed by cluster id.
func (f *File) AILabels() map[int]models.ClusterLabel {
	out := make(map[int]models.ClusterLabel, len(f.data.AILabels))
	for key, label := range f.data.AILabels {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out[id] = label
	}
	return out
}
