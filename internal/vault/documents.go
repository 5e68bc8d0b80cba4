package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/notegraph/pkg/models"
)

const maxContentRunes = 3000

var headingPattern = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// ListDocuments walks vaultPath and returns one document per markdown file,
// sorted by id. Files under .trash and hidden directories are skipped.
// Document ids are slash-separated paths relative to the vault root. A vault
// path that does not exist or is not a directory is an empty corpus, not an
// error.
func ListDocuments(vaultPath string) ([]models.Document, error) {
	info, err := os.Stat(vaultPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", vaultPath).Msg("Vault path does not exist, treating as empty")
			return []models.Document{}, nil
		}
		return nil, fmt.Errorf("vault path %q: %w", vaultPath, err)
	}
	if !info.IsDir() {
		log.Warn().Str("path", vaultPath).Msg("Vault path is not a directory, treating as empty")
		return []models.Document{}, nil
	}

	var docs []models.Document
	err = filepath.WalkDir(vaultPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable vault entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != vaultPath && (name == ".trash" || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		rel, err := filepath.Rel(vaultPath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", rel).Msg("Skipping unreadable note")
			return nil
		}
		docs = append(docs, buildDocument(rel, string(raw)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault %q: %w", vaultPath, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func buildDocument(id, content string) models.Document {
	wordCount := len(strings.Fields(content))

	title := ""
	if m := headingPattern.FindStringSubmatch(content); m != nil {
		title = strings.TrimSpace(m[1])
	}
	if title == "" {
		title = strings.TrimSuffix(id, ".md")
	}

	if runes := []rune(content); len(runes) > maxContentRunes {
		content = string(runes[:maxContentRunes])
	}

	return models.Document{
		ID:        id,
		Title:     title,
		Content:   content,
		WordCount: wordCount,
	}
}
