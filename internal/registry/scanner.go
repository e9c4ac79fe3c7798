package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"presetd/internal/common/fsutil"
	"presetd/pkg/types"
)

// ModelExt is the engine's model-file extension.
const ModelExt = ".gguf"

// ScanRoot discovers model files under the managed model root. Files may sit
// directly in the root or one folder deep (sharded/multi-file models live in
// their own folder and the engine addresses them by folder name).
func ScanRoot(dir string) ([]types.ScannedModel, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.ScannedModel
	for _, e := range entries {
		if e.IsDir() {
			sub := filepath.Join(abs, e.Name())
			subEntries, err := os.ReadDir(sub)
			if err != nil {
				continue
			}
			for _, se := range subEntries {
				if se.IsDir() || !IsModelFile(se.Name()) {
					continue
				}
				p := filepath.Join(sub, se.Name())
				models = append(models, scanned(abs, p))
			}
			continue
		}
		if !IsModelFile(e.Name()) {
			continue
		}
		models = append(models, scanned(abs, filepath.Join(abs, e.Name())))
	}
	return models, nil
}

// IsModelFile reports whether name carries the engine's model extension.
func IsModelFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ModelExt)
}

func scanned(root, path string) types.ScannedModel {
	rel, _ := filepath.Rel(root, path)
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	return types.ScannedModel{RelPath: filepath.ToSlash(rel), Path: path, SizeBytes: size}
}
