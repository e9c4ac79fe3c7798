package store

import (
	"path/filepath"
	"testing"

	"presetd/pkg/types"
)

func TestCreateGetDeletePreset(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	p := types.Preset{ID: "a", Name: "A", Context: 8192}
	if err := s.CreatePreset(p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreatePreset(p); err == nil || !IsPresetExists(err) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	got, ok := s.GetPreset("a")
	if !ok || got.Context != 8192 {
		t.Fatalf("get: ok=%v got=%+v", ok, got)
	}
	if err := s.DeletePreset("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeletePreset("a"); err == nil || !IsPresetNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdatePresetRename(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.CreatePreset(types.Preset{ID: "old"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreatePreset(types.Preset{ID: "taken"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpdatePreset("old", types.Preset{ID: "taken"}); err == nil || !IsPresetExists(err) {
		t.Fatalf("expected collision on rename, got %v", err)
	}
	if err := s.UpdatePreset("old", types.Preset{ID: "new", Name: "renamed"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, ok := s.GetPreset("old"); ok {
		t.Fatalf("old id still present after rename")
	}
	got, ok := s.GetPreset("new")
	if !ok || got.Name != "renamed" {
		t.Fatalf("renamed preset missing: ok=%v got=%+v", ok, got)
	}
}

func TestAliasesResolveAndFollowDeletes(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SetAlias("gpt-4", "missing"); err == nil {
		t.Fatalf("expected error aliasing to unknown preset")
	}
	if err := s.CreatePreset(types.Preset{ID: "real"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SetAlias("gpt-4", "real"); err != nil {
		t.Fatalf("alias: %v", err)
	}
	if got, ok := s.GetPreset("gpt-4"); !ok || got.ID != "real" {
		t.Fatalf("alias lookup failed: ok=%v got=%+v", ok, got)
	}
	if err := s.DeletePreset("real"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.GetPreset("gpt-4"); ok {
		t.Fatalf("alias survived preset deletion")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.CreatePreset(types.Preset{ID: "a", Context: 4096}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SetSettings(types.Settings{DefaultReasoningEffort: "high", ModelsMax: 4}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, ok := reopened.GetPreset("a"); !ok || got.Context != 4096 {
		t.Fatalf("preset lost across reopen: ok=%v got=%+v", ok, got)
	}
	if st := reopened.Settings(); st.DefaultReasoningEffort != "high" || st.ModelsMax != 4 {
		t.Fatalf("settings lost across reopen: %+v", st)
	}
}
