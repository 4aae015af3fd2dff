package skills

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// fileRecord is the on-disk catalog entry format: one JSON object per file.
type fileRecord struct {
	Metadata
	Prompt string `json:"prompt"`
}

// LoadFile decodes one skill definition from a JSON catalog file.
func LoadFile(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill file: %w", err)
	}

	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse skill file %s: %w", filepath.Base(path), err)
	}
	if record.Name == "" {
		return nil, fmt.Errorf("skill file %s: missing name", filepath.Base(path))
	}
	if record.Prompt == "" {
		return nil, fmt.Errorf("skill file %s: missing prompt", filepath.Base(path))
	}

	return &Definition{Meta: record.Metadata, Prompt: record.Prompt}, nil
}

// LoadDir loads every *.json skill definition in dir into the manager,
// replacing same-named entries. Unparsable files are logged and skipped.
// Returns the names of the skills loaded.
func (m *Manager) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	var loaded []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		s, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			slog.Warn("skipping skill file", "file", entry.Name(), "error", err)
			continue
		}
		m.Register(s)
		loaded = append(loaded, s.Metadata().Name)
	}
	return loaded, nil
}
