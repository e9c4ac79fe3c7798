package manager

// Mode is the engine operating mode.
type Mode string

const (
	// ModeRouter hosts multiple models concurrently, loading on demand.
	ModeRouter Mode = "router"
	// ModeSingle dedicates the engine to one active preset's launch params.
	ModeSingle Mode = "single"
)

// RuntimeConfig is the orchestrator's belief about what the running engine
// process was actually launched with. The committed copy always reflects
// the last successfully health-checked launch, never a pending or failed
// one; a pending candidate is folded into it only after the health check
// passes.
type RuntimeConfig struct {
	Context         int
	GPULayers       int
	FlashAttn       bool
	ModelsMax       int
	ReasoningFormat string
	ExtraSwitches   string
}

// stateSnapshot captures everything the restart path mutates, for rollback.
type stateSnapshot struct {
	committed    RuntimeConfig
	mode         Mode
	activePreset string
}

func (m *Manager) snapshotState() stateSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return stateSnapshot{committed: m.committed, mode: m.mode, activePreset: m.activePreset}
}

func (m *Manager) restoreState(s stateSnapshot) {
	m.mu.Lock()
	m.committed = s.committed
	m.mode = s.mode
	m.activePreset = s.activePreset
	m.mu.Unlock()
}

// setModeOptimistic records the target mode/preset before the health check.
// The committed runtime config is left untouched until commit.
func (m *Manager) setModeOptimistic(mode Mode, presetID string) {
	m.mu.Lock()
	m.mode = mode
	m.activePreset = presetID
	m.mu.Unlock()
}

// commit folds the pending runtime config into the committed state.
func (m *Manager) commit(pending RuntimeConfig) {
	m.mu.Lock()
	m.committed = pending
	m.lastErr = ""
	m.mu.Unlock()
}

func (m *Manager) setLastError(msg string) {
	m.mu.Lock()
	m.lastErr = msg
	m.mu.Unlock()
}
