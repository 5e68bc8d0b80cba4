// Package vault supplies documents to the graph engine: an environments
// registry selecting the active vault directory, and a markdown walker that
// turns its files into documents.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/notegraph/internal/watcher"
)

const registryFile = "environments.json"

// Environment is one registered vault.
type Environment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

type registryPayload struct {
	Environments []Environment `json:"environments"`
	CurrentID    string        `json:"current_id,omitempty"`
}

// Registry tracks registered vaults and the current selection, persisted as
// environments.json in the data directory. The parsed file is cached in
// memory; a file watcher invalidates the cache when anything else rewrites
// it (the desktop app does).
type Registry struct {
	dataDir     string
	defaultPath string

	mu      sync.Mutex
	cached  *registryPayload
	watcher *watcher.Watcher
}

// NewRegistry creates a registry rooted at dataDir. defaultPath is returned
// by CurrentPath when no environment is selected.
func NewRegistry(dataDir, defaultPath string) *Registry {
	return &Registry{dataDir: dataDir, defaultPath: defaultPath}
}

// Watch starts invalidating the in-memory registry cache on file changes.
func (r *Registry) Watch() error {
	w, err := watcher.New(r.path(), func() {
		r.mu.Lock()
		r.cached = nil
		r.mu.Unlock()
		log.Debug().Msg("Environment registry changed on disk, cache invalidated")
	})
	if err != nil {
		return fmt.Errorf("create registry watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("start registry watcher: %w", err)
	}
	r.watcher = w
	return nil
}

// Close stops the watcher if one is running.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Stop()
}

func (r *Registry) path() string {
	return filepath.Join(r.dataDir, registryFile)
}

// load returns the cached registry, reading it from disk when needed. A
// missing or corrupt file is an empty registry.
func (r *Registry) load() *registryPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return r.cached
	}

	payload := &registryPayload{}
	raw, err := os.ReadFile(r.path())
	if err == nil {
		if err := json.Unmarshal(raw, payload); err != nil {
			log.Warn().Err(err).Str("path", r.path()).Msg("Corrupt environment registry, treating as empty")
			payload = &registryPayload{}
		}
	} else if !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", r.path()).Msg("Failed to read environment registry")
	}

	r.cached = payload
	return payload
}

// save persists the registry and refreshes the cache.
func (r *Registry) save(payload *registryPayload) error {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal environment registry: %w", err)
	}
	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(r.path(), raw, 0o644); err != nil {
		return fmt.Errorf("write environment registry: %w", err)
	}

	r.mu.Lock()
	r.cached = payload
	r.mu.Unlock()
	return nil
}

// CurrentPath returns the selected vault directory, falling back to the
// default when nothing valid is selected.
func (r *Registry) CurrentPath() string {
	payload := r.load()
	if payload.CurrentID == "" {
		return r.defaultPath
	}
	for _, env := range payload.Environments {
		if env.ID == payload.CurrentID {
			if _, err := os.Stat(env.Path); err == nil {
				return env.Path
			}
			log.Warn().Str("path", env.Path).Msg("Selected vault path does not exist, using default")
			return r.defaultPath
		}
	}
	return r.defaultPath
}

// Environments returns all registered vaults and the current selection id.
func (r *Registry) Environments() ([]Environment, string) {
	payload := r.load()
	out := make([]Environment, len(payload.Environments))
	copy(out, payload.Environments)
	return out, payload.CurrentID
}

// Add registers a vault and returns it with a fresh id.
func (r *Registry) Add(name, path string) (Environment, error) {
	if _, err := os.Stat(path); err != nil {
		return Environment{}, fmt.Errorf("vault path %q: %w", path, err)
	}

	payload := r.load()
	next := &registryPayload{
		Environments: append([]Environment{}, payload.Environments...),
		CurrentID:    payload.CurrentID,
	}
	env := Environment{ID: uuid.NewString(), Name: name, Path: path}
	next.Environments = append(next.Environments, env)

	if err := r.save(next); err != nil {
		return Environment{}, err
	}
	return env, nil
}

// SetCurrent selects a registered vault by id.
func (r *Registry) SetCurrent(id string) error {
	payload := r.load()
	for _, env := range payload.Environments {
		if env.ID == id {
			next := &registryPayload{
				Environments: append([]Environment{}, payload.Environments...),
				CurrentID:    id,
			}
			return r.save(next)
		}
	}
	return fmt.Errorf("unknown environment id %q", id)
}
