// Package file implements core/store.Store as a single JSON file, written
// atomically via write-to-temp-then-rename so a crash mid-write never
// corrupts the previously persisted settings.
package file

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/devskill-org/pv-load-manager/core/store"
)

// Store persists settings to a single JSON file on disk.
type Store struct {
	path string
}

// New returns a file-backed Store writing to path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the settings file. A missing or undecodable file is not an
// error: it reports ok=false so the caller falls back to defaults, and an
// undecodable file is logged as a warning.
func (s *Store) Load() (store.Settings, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return store.Settings{}, false, nil
		}
		return store.Settings{}, false, fmt.Errorf("file store: reading %s: %w", s.path, err)
	}
	var settings store.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		log.Printf("file store: decoding %s: %v; using defaults", s.path, err)
		return store.Settings{}, false, nil
	}
	return settings, true, nil
}

// Save writes settings to a temp file in the same directory and renames it
// over the destination, so readers never observe a partially written file.
func (s *Store) Save(settings store.Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: encoding settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("file store: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("file store: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("file store: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("file store: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("file store: renaming temp file into place: %w", err)
	}
	return nil
}
