package manager

import (
	"fmt"
	"path/filepath"
	"strings"

	"presetd/internal/common/fsutil"
	"presetd/internal/registry"
	"presetd/pkg/types"
)

// ResolvedKind tags the result of model id resolution.
type ResolvedKind int

const (
	// ResolvedPreset means the id mapped to a stored preset.
	ResolvedPreset ResolvedKind = iota
	// ResolvedFile means the id named a raw model file under the root.
	ResolvedFile
)

// Resolved is the tagged result of Resolve.
type Resolved struct {
	Kind   ResolvedKind
	Preset types.Preset // valid when Kind == ResolvedPreset
	Path   string       // absolute file path when Kind == ResolvedFile
	Rel    string       // top-level folder name relative to the model root
}

// Resolve maps a client-supplied model identifier to a preset or a raw file
// path. Resolution order, first match wins: exact preset id (aliases
// included), existing model file under the root, reverse filename lookup
// against stored preset paths. Resolve is idempotent: the same unresolved
// identifier always yields the same tagged result.
func (m *Manager) Resolve(modelID string) (Resolved, error) {
	if modelID == "" {
		return Resolved{}, ErrModelNotFound("(unspecified)")
	}
	if p, ok := m.store.GetPreset(modelID); ok {
		return Resolved{Kind: ResolvedPreset, Preset: p}, nil
	}
	if registry.IsModelFile(modelID) {
		candidate := filepath.Join(m.cfg.ModelsDir, filepath.FromSlash(modelID))
		if fsutil.PathExists(candidate) {
			// Direct file usage should migrate to a preset.
			m.sink.Add("resolver", fmt.Sprintf("deprecated: request addressed model file %q directly; create a preset instead", modelID))
			return Resolved{
				Kind: ResolvedFile,
				Path: candidate,
				Rel:  fsutil.TopLevelRel(m.cfg.ModelsDir, candidate),
			}, nil
		}
	}
	for _, p := range m.store.Presets() {
		if p.ModelPath == "" {
			continue
		}
		if filepath.Base(p.ModelPath) == modelID || strings.HasSuffix(p.ModelPath, modelID) {
			return Resolved{Kind: ResolvedPreset, Preset: p}, nil
		}
	}
	return Resolved{}, ErrModelNotFound(modelID)
}

// ResolvePath derives the launch-time model path/repo string the engine
// expects, reduced to the top-level folder name under the model root
// (the engine addresses multi-file/sharded models by folder). Returns ""
// when nothing is resolvable, e.g. a preset referencing a not-yet-downloaded
// remote model; callers must surface that as a 404-class error.
func (m *Manager) ResolvePath(r Resolved) string {
	if r.Kind == ResolvedFile {
		return r.Rel
	}
	return m.presetLaunchPath(r.Preset)
}

func (m *Manager) presetLaunchPath(p types.Preset) string {
	if p.ModelPath != "" && fsutil.PathExists(p.ModelPath) {
		if rel := fsutil.TopLevelRel(m.cfg.ModelsDir, p.ModelPath); rel != "" {
			return rel
		}
	}
	if p.HFRepo != "" {
		// Downloaded repos land under the root in a folder derived from the
		// repo string ('/' and ':' replaced by '_').
		folder := repoFolderName(p.HFRepo)
		if fsutil.PathExists(filepath.Join(m.cfg.ModelsDir, folder)) {
			return folder
		}
	}
	return ""
}

func repoFolderName(repo string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(repo)
}

// PresetStatus reports how a preset relates to the running engine. It never
// claims loaded for an incompatible-but-resident model, since using that
// model would silently ignore the preset's sampling parameters.
func (m *Manager) PresetStatus(p types.Preset, engineModels []EngineModel) types.ModelStatus {
	if m.Mode() == ModeSingle && m.ActivePresetID() == p.ID {
		return types.StatusLoaded
	}
	path := m.presetLaunchPath(p)
	if path == "" {
		return types.StatusNotDownloaded
	}
	for _, em := range engineModels {
		if em.Status.Value != "loaded" {
			continue
		}
		if em.ID == path || strings.HasSuffix(em.ID, path) {
			if m.IsCompatible(&p).Compatible {
				return types.StatusLoaded
			}
		}
	}
	return types.StatusAvailable
}
