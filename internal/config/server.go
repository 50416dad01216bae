// ABOUTME: server.json persistence for groups/clients configuration, loaded on start and rewritten atomically on change
// ABOUTME: Atomic-rewrite pattern grounded on internal/artwork.Downloader's cache-file write, generalized to temp-file+rename
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ClientConfig is one client's persisted preferences.
type ClientConfig struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GroupID string `json:"group_id"`
	Volume  int    `json:"volume"`
	Muted   bool   `json:"muted"`
	Latency int    `json:"latency_ms"`
}

// GroupConfig is a persisted playback group: a set of clients bound to
// one stream, sharing mute/volume state.
type GroupConfig struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	StreamID string   `json:"stream_id"`
	Muted    bool     `json:"muted"`
	Clients  []string `json:"clients"`
}

// ServerConfig is the full on-disk state: groups, clients, and the
// known stream URIs that back them.
type ServerConfig struct {
	Groups  []GroupConfig  `json:"groups"`
	Clients []ClientConfig `json:"clients"`
	Streams []string       `json:"streams"`
}

// Store owns a ServerConfig and rewrites it atomically on every change.
type Store struct {
	mu   sync.Mutex
	path string
	cfg  ServerConfig
}

// LoadStore reads path if it exists, or starts from an empty config.
func LoadStore(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return s, nil
}

// Snapshot returns a copy of the current config.
func (s *Store) Snapshot() ServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Update applies fn to the config under lock and persists the result.
// fn mutating cfg in place is safe; Update rewrites server.json after
// fn returns nil.
func (s *Store) Update(fn func(cfg *ServerConfig) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(&s.cfg); err != nil {
		return err
	}
	return s.persistLocked()
}

// persistLocked writes the config to a temp file in the same directory
// and renames it over the target path, so a crash mid-write never
// leaves a truncated server.json.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".server-config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: rename temp file: %w", err)
	}
	return nil
}
