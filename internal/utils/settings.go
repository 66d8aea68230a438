package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"
)

// Settings is a small persistent key/value store backed by a JSON file.
// Each Set rewrites the whole file atomically; there is no transaction
// spanning several keys and the last write wins.
type Settings struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// OpenSettings loads the settings file at path. The file may contain
// comments. A missing file yields an empty store that is created on the
// first Set.
func OpenSettings(path string) (*Settings, error) {
	s := &Settings{path: path, values: map[string]string{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &s.values); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set stores value under key and persists the store. An empty value
// removes the key.
func (s *Settings) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == "" {
		delete(s.values, key)
	} else {
		s.values[key] = value
	}
	return s.save()
}

// save writes to a temporary file in the same directory, syncs it and
// renames it into place so a crash never leaves a truncated file.
func (s *Settings) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary settings file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temporary settings file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing temporary settings file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temporary settings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming settings file into place: %w", err)
	}
	return nil
}
