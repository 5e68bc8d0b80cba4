package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestListDocuments(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "journal/today.md", "# Today\n\nwrote some notes about the day")
	writeNote(t, root, "ideas.md", "no heading here, just words")
	writeNote(t, root, "misc/readme.txt", "not markdown")
	writeNote(t, root, ".trash/deleted.md", "# Gone")
	writeNote(t, root, ".obsidian/config.md", "# Hidden")

	docs, err := ListDocuments(root)
	require.NoError(t, err)

	require.Len(t, docs, 2)
	// Sorted by id
	assert.Equal(t, "ideas.md", docs[0].ID)
	assert.Equal(t, "journal/today.md", docs[1].ID)

	// Title from first heading, else the relative path sans extension
	assert.Equal(t, "Today", docs[1].Title)
	assert.Equal(t, "ideas", docs[0].Title)

	assert.Equal(t, 5, docs[0].WordCount)
}

func TestListDocuments_ContentTruncated(t *testing.T) {
	root := t.TempDir()
	long := strings.Repeat("word ", 1000) // 5000 chars, 1000 words
	writeNote(t, root, "big.md", long)

	docs, err := ListDocuments(root)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	// Word count reflects the full file; content is capped for vectorization
	assert.Equal(t, 1000, docs[0].WordCount)
	assert.Len(t, []rune(docs[0].Content), 3000)
}

func TestListDocuments_MissingVault(t *testing.T) {
	docs, err := ListDocuments(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestListDocuments_VaultIsAFile(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "plain.md", "# Not a vault")

	docs, err := ListDocuments(filepath.Join(root, "plain.md"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestListDocuments_EmptyVault(t *testing.T) {
	docs, err := ListDocuments(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRegistry_CurrentPathFallsBack(t *testing.T) {
	r := NewRegistry(t.TempDir(), "/default/vault")
	assert.Equal(t, "/default/vault", r.CurrentPath())
}

func TestRegistry_AddAndSelect(t *testing.T) {
	dataDir := t.TempDir()
	vaultDir := t.TempDir()
	r := NewRegistry(dataDir, "/default/vault")

	env, err := r.Add("work", vaultDir)
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "work", env.Name)

	// Nothing selected yet
	assert.Equal(t, "/default/vault", r.CurrentPath())

	require.NoError(t, r.SetCurrent(env.ID))
	assert.Equal(t, vaultDir, r.CurrentPath())

	// State survives a fresh registry over the same data dir
	r2 := NewRegistry(dataDir, "/default/vault")
	envs, currentID := r2.Environments()
	require.Len(t, envs, 1)
	assert.Equal(t, env.ID, currentID)
	assert.Equal(t, vaultDir, r2.CurrentPath())
}

func TestRegistry_AddRejectsMissingPath(t *testing.T) {
	r := NewRegistry(t.TempDir(), "/default/vault")
	_, err := r.Add("broken", "/does/not/exist")
	assert.Error(t, err)
}

func TestRegistry_SetCurrentUnknownID(t *testing.T) {
	r := NewRegistry(t.TempDir(), "/default/vault")
	assert.Error(t, r.SetCurrent("no-such-id"))
}

func TestRegistry_SelectedPathGoneFallsBack(t *testing.T) {
	dataDir := t.TempDir()
	vaultDir := t.TempDir()
	r := NewRegistry(dataDir, "/default/vault")

	env, err := r.Add("temp", vaultDir)
	require.NoError(t, err)
	require.NoError(t, r.SetCurrent(env.ID))

	require.NoError(t, os.RemoveAll(vaultDir))
	assert.Equal(t, "/default/vault", r.CurrentPath())
}

func TestRegistry_CorruptFileTreatedAsEmpty(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "environments.json"), []byte("{oops"), 0o644))

	r := NewRegistry(dataDir, "/default/vault")
	envs, currentID := r.Environments()
	assert.Empty(t, envs)
	assert.Empty(t, currentID)
	assert.Equal(t, "/default/vault", r.CurrentPath())
}
