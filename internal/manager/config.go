package manager

import (
	"time"

	"presetd/internal/logsink"
	"presetd/internal/store"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultLockWait       = 60 * time.Second
	defaultHealthWait     = 45 * time.Second
	defaultHealthInterval = 500 * time.Millisecond
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Store     *store.Store
	Engine    EngineProcess
	Sink      logsink.Sink
	ModelsDir string

	// LockWait bounds how long a caller waits for a concurrent restart to
	// clear before failing with a timeout.
	LockWait time.Duration
	// HealthWait bounds the post-start health poll.
	HealthWait time.Duration
	// HealthInterval is the health poll period.
	HealthInterval time.Duration
}

// New constructs a Manager from ManagerConfig, applying package defaults
// for unset durations.
func New(cfg ManagerConfig) *Manager {
	if cfg.Sink == nil {
		cfg.Sink = logsink.Nop{}
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	if cfg.HealthWait <= 0 {
		cfg.HealthWait = defaultHealthWait
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	return &Manager{
		cfg:       cfg,
		store:     cfg.Store,
		engine:    cfg.Engine,
		sink:      cfg.Sink,
		restartCh: make(chan struct{}, 1),
		startTime: time.Now(),
	}
}
