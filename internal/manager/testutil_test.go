package manager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"presetd/internal/logsink"
	"presetd/internal/store"
	"presetd/pkg/types"
)

// fakeEngine is an in-memory EngineProcess for orchestrator tests.
type fakeEngine struct {
	mu           sync.Mutex
	healthy      bool
	healthyAfter bool // whether Start makes the engine healthy
	startErr     error
	startDelay   time.Duration
	starts       []LaunchParams
	stops        int32
}

func (f *fakeEngine) Start(ctx context.Context, params LaunchParams) error {
	if f.startDelay > 0 {
		time.Sleep(f.startDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, params)
	f.healthy = f.healthyAfter
	return nil
}

func (f *fakeEngine) Stop(ctx context.Context) error {
	atomic.AddInt32(&f.stops, 1)
	f.mu.Lock()
	f.healthy = false
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Healthy(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeEngine) BaseURL() string { return "http://127.0.0.1:0" }

func (f *fakeEngine) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakeEngine) lastStart(t *testing.T) LaunchParams {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.starts) == 0 {
		t.Fatalf("engine never started")
	}
	return f.starts[len(f.starts)-1]
}

// newTestManager builds a Manager around a temp store and models dir.
func newTestManager(t *testing.T, eng EngineProcess, presets ...types.Preset) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	for _, p := range presets {
		if err := st.CreatePreset(p); err != nil {
			t.Fatalf("create preset %s: %v", p.ID, err)
		}
	}
	modelsDir := filepath.Join(dir, "models")
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	m := New(ManagerConfig{
		Store:          st,
		Engine:         eng,
		Sink:           logsink.NewMemory(0),
		ModelsDir:      modelsDir,
		LockWait:       2 * time.Second,
		HealthWait:     500 * time.Millisecond,
		HealthInterval: 10 * time.Millisecond,
	})
	return m, modelsDir
}

// writeModel drops a model file under the models dir and returns its path.
func writeModel(t *testing.T, modelsDir string, rel string) string {
	t.Helper()
	p := filepath.Join(modelsDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }
