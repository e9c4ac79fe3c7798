package manager

import (
	"context"
	"sync"
	"time"

	"presetd/internal/logsink"
	"presetd/internal/store"
	"presetd/pkg/types"
)

type Manager struct {
	cfg    ManagerConfig
	store  *store.Store
	engine EngineProcess
	sink   logsink.Sink

	mu            sync.RWMutex
	committed     RuntimeConfig
	mode          Mode
	activePreset  string
	lastErr       string
	restartsTotal uint64

	// restartCh is the RestartLock: a capacity-1 semaphore. At most one
	// restart sequence executes at a time; waiters are bounded by LockWait.
	restartCh chan struct{}
	startTime time.Time
}

// Mode returns the current operating mode.
func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// ActivePresetID returns the active preset id; empty unless single mode.
func (m *Manager) ActivePresetID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activePreset
}

// Runtime returns a copy of the committed engine runtime configuration.
func (m *Manager) Runtime() RuntimeConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.committed
}

// Restarting reports whether a restart sequence currently holds the lock.
func (m *Manager) Restarting() bool {
	return len(m.restartCh) > 0
}

// EngineBaseURL returns the engine's local HTTP endpoint.
func (m *Manager) EngineBaseURL() string { return m.engine.BaseURL() }

// Store exposes the preset/settings store to the HTTP layer.
func (m *Manager) Store() *store.Store { return m.store }

// ModelsDir returns the managed model root.
func (m *Manager) ModelsDir() string { return m.cfg.ModelsDir }

// Sink exposes the shared log sink.
func (m *Manager) Sink() logsink.Sink { return m.sink }

// EngineHealthy performs a single engine readiness probe.
func (m *Manager) EngineHealthy(ctx context.Context) bool {
	return m.engine.Healthy(ctx)
}

// DeletePreset removes a preset unless it is currently active.
func (m *Manager) DeletePreset(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModeSingle && m.activePreset == id {
		return ErrPresetActive(id)
	}
	return m.store.DeletePreset(id)
}

// UpdatePreset rewrites a stored preset. Renaming the active preset moves
// the activation to the new id so the active preset stays protected from
// deletion.
func (m *Manager) UpdatePreset(id string, p types.Preset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.UpdatePreset(id, p); err != nil {
		return err
	}
	if m.mode == ModeSingle && m.activePreset == id && p.ID != "" {
		m.activePreset = p.ID
	}
	return nil
}

// Status builds the response for GET /api/status.
func (m *Manager) Status(ctx context.Context) types.StatusResponse {
	m.mu.RLock()
	mode := m.mode
	active := m.activePreset
	rc := m.committed
	lastErr := m.lastErr
	restarts := m.restartsTotal
	m.mu.RUnlock()
	return types.StatusResponse{
		Mode:           string(mode),
		ActivePresetID: active,
		EngineHealthy:  m.engine.Healthy(ctx),
		Restarting:     m.Restarting(),
		Runtime: types.RuntimeConfigView{
			Context:         rc.Context,
			GPULayers:       rc.GPULayers,
			FlashAttn:       rc.FlashAttn,
			ModelsMax:       rc.ModelsMax,
			ReasoningFormat: rc.ReasoningFormat,
			ExtraSwitches:   rc.ExtraSwitches,
		},
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
		RestartsTotal:  restarts,
		LastError:      lastErr,
	}
}
