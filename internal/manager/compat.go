package manager

import (
	"fmt"

	"presetd/pkg/types"
)

// Compatibility is the result of comparing a preset's launch requirements
// against the committed runtime configuration.
type Compatibility struct {
	Compatible bool
	Reasons    []string
}

// IsCompatible compares a candidate preset field by field against the
// running engine configuration. A nil preset is always compatible (the
// caller intends to use the engine's current defaults). The check never
// short-circuits on the first mismatch so callers can log every reason.
//
// Sampling parameters (temperature, top-p/k, min-p) are excluded: they are
// applied per-request at the proxy layer and never require a restart.
// ModelsMax is set by the router start path but not compared here.
func (m *Manager) IsCompatible(p *types.Preset) Compatibility {
	if p == nil {
		return Compatibility{Compatible: true}
	}
	rc := m.Runtime()
	var reasons []string
	if p.Context > 0 && p.Context != rc.Context {
		reasons = append(reasons, fmt.Sprintf("context mismatch: preset requires %d, engine running with %d", p.Context, rc.Context))
	}
	if p.Config.GPULayers != nil && *p.Config.GPULayers != rc.GPULayers {
		reasons = append(reasons, fmt.Sprintf("gpu layers mismatch: preset requires %d, engine running with %d", *p.Config.GPULayers, rc.GPULayers))
	}
	if p.Config.FlashAttn != nil && *p.Config.FlashAttn != rc.FlashAttn {
		reasons = append(reasons, fmt.Sprintf("flash attention mismatch: preset requires %v, engine running with %v", *p.Config.FlashAttn, rc.FlashAttn))
	}
	if p.Config.ReasoningFormat != nil && *p.Config.ReasoningFormat != rc.ReasoningFormat {
		reasons = append(reasons, fmt.Sprintf("reasoning format mismatch: preset requires %q, engine running with %q", *p.Config.ReasoningFormat, rc.ReasoningFormat))
	}
	return Compatibility{Compatible: len(reasons) == 0, Reasons: reasons}
}
