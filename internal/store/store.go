package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"presetd/pkg/types"
)

// Store is the durable key/value store for presets, model aliases, and
// runtime settings. State is a single JSON file rewritten atomically
// (temp file + rename) on every mutation; all methods are synchronous.
type Store struct {
	mu   sync.RWMutex
	path string
	st   state
}

type state struct {
	Presets  map[string]types.Preset `json:"presets"`
	Aliases  map[string]string       `json:"aliases"`
	Settings types.Settings          `json:"settings"`
}

// Open loads the store file at path, creating an empty store when the file
// does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, st: state{
		Presets: make(map[string]types.Preset),
		Aliases: make(map[string]string),
	}}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	if err := json.Unmarshal(b, &s.st); err != nil {
		return nil, fmt.Errorf("decode store: %w", err)
	}
	if s.st.Presets == nil {
		s.st.Presets = make(map[string]types.Preset)
	}
	if s.st.Aliases == nil {
		s.st.Aliases = make(map[string]string)
	}
	return s, nil
}

// Presets returns all presets sorted by id.
func (s *Store) Presets() []types.Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Preset, 0, len(s.st.Presets))
	for _, p := range s.st.Presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetPreset looks a preset up by id, following aliases.
func (s *Store) GetPreset(id string) (types.Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if target, ok := s.st.Aliases[id]; ok {
		id = target
	}
	p, ok := s.st.Presets[id]
	return p, ok
}

// CreatePreset inserts a new preset; the id must be unused.
func (s *Store) CreatePreset(p types.Preset) error {
	if p.ID == "" {
		return fmt.Errorf("preset id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.st.Presets[p.ID]; exists {
		return ErrPresetExists(p.ID)
	}
	s.st.Presets[p.ID] = p
	return s.persistLocked()
}

// UpdatePreset replaces the preset stored under id. When p.ID differs from
// id the preset is renamed; the new id must be unused.
func (s *Store) UpdatePreset(id string, p types.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.Presets[id]; !ok {
		return ErrPresetNotFound(id)
	}
	if p.ID == "" {
		p.ID = id
	}
	if p.ID != id {
		if _, exists := s.st.Presets[p.ID]; exists {
			return ErrPresetExists(p.ID)
		}
		delete(s.st.Presets, id)
	}
	s.st.Presets[p.ID] = p
	return s.persistLocked()
}

// DeletePreset removes a preset. Callers must reject deletion of the
// currently active preset before calling.
func (s *Store) DeletePreset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.Presets[id]; !ok {
		return ErrPresetNotFound(id)
	}
	delete(s.st.Presets, id)
	for alias, target := range s.st.Aliases {
		if target == id {
			delete(s.st.Aliases, alias)
		}
	}
	return s.persistLocked()
}

// SetAlias maps an alternate model id to a preset id.
func (s *Store) SetAlias(alias, presetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.Presets[presetID]; !ok {
		return ErrPresetNotFound(presetID)
	}
	s.st.Aliases[alias] = presetID
	return s.persistLocked()
}

// Settings returns the current settings record.
func (s *Store) Settings() types.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Settings
}

// SetSettings replaces the settings record.
func (s *Store) SetSettings(settings types.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Settings = settings
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil // in-memory store (tests)
	}
	b, err := json.MarshalIndent(s.st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("store dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename store: %w", err)
	}
	return nil
}
