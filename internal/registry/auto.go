package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"presetd/internal/common/fsutil"
	"presetd/pkg/types"
)

// DerivePreset builds a preset skeleton for a scanned model file. rel is the
// slash-separated path relative to the model root, as returned by ScanRoot.
// The preset id comes from the file name without the extension; callers can
// rename it through the normal update path afterwards.
func DerivePreset(root, rel string) (types.Preset, error) {
	base, err := fsutil.ExpandHome(root)
	if err != nil {
		return types.Preset{}, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return types.Preset{}, fmt.Errorf("abs path: %w", err)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return types.Preset{}, fmt.Errorf("model path %q is outside the model root", rel)
	}
	path := filepath.Join(abs, clean)
	name := filepath.Base(path)
	if !IsModelFile(name) {
		return types.Preset{}, fmt.Errorf("not a model file: %s", rel)
	}
	if _, err := os.Stat(path); err != nil {
		return types.Preset{}, fmt.Errorf("model file: %w", err)
	}
	id := name[:len(name)-len(ModelExt)]
	return types.Preset{ID: id, Name: id, ModelPath: path}, nil
}
