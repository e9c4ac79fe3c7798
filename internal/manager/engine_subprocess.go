package manager

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"presetd/internal/logsink"
)

// SubprocessConfig configures the subprocess-backed EngineProcess.
type SubprocessConfig struct {
	// Command is the external launch script/command. It receives the
	// launch parameters via ENGINE_* environment variables.
	Command string
	Host    string
	Port    int
	// StopGrace is how long to wait after SIGTERM before SIGKILL.
	StopGrace time.Duration
}

// Subprocess supervises the single child inference-server process.
type Subprocess struct {
	cfg    SubprocessConfig
	sink   logsink.Sink
	client *http.Client

	mu     sync.Mutex
	cmd    *exec.Cmd
	waitCh chan error
}

// NewSubprocess constructs a subprocess supervisor. All HTTP calls use
// context-based timeouts, so the client's own timeout stays unset.
func NewSubprocess(cfg SubprocessConfig, sink logsink.Sink) *Subprocess {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	if sink == nil {
		sink = logsink.Nop{}
	}
	return &Subprocess{cfg: cfg, sink: sink, client: &http.Client{Timeout: 0}}
}

// BaseURL returns the engine's local HTTP endpoint.
func (s *Subprocess) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.cfg.Host, s.cfg.Port)
}

// Start launches the engine command with the launch parameters exported as
// environment variables and wires stdout/stderr into the shared log sink.
// It returns once the process is running; readiness is the orchestrator's
// health poll.
func (s *Subprocess) Start(ctx context.Context, params LaunchParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		// A previous start was not stopped cleanly; tear it down first.
		s.stopLocked(ctx)
	}

	cmd := exec.Command(s.cfg.Command)
	cmd.Env = append(os.Environ(),
		"ENGINE_HOST="+s.cfg.Host,
		"ENGINE_PORT="+strconv.Itoa(s.cfg.Port),
		"ENGINE_MODEL="+params.Model,
		"ENGINE_MODELS_DIR="+params.ModelsDir,
		"ENGINE_CTX_SIZE="+strconv.Itoa(params.Context),
		"ENGINE_GPU_LAYERS="+strconv.Itoa(params.GPULayers),
		"ENGINE_FLASH_ATTN="+boolEnv(params.FlashAttn),
		"ENGINE_MODELS_MAX="+strconv.Itoa(params.ModelsMax),
		"ENGINE_REASONING_FORMAT="+params.ReasoningFormat,
		"ENGINE_EXTRA_ARGS="+strings.Join(params.ExtraSwitches, " "),
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	s.sink.Add("engine", fmt.Sprintf("started pid=%d port=%d model=%q", cmd.Process.Pid, s.cfg.Port, params.Model))

	go s.captureLines("engine", stdout)
	go s.captureLines("engine-err", stderr)

	waitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		if err != nil {
			s.sink.Add("engine", fmt.Sprintf("exited pid=%d err=%v", cmd.Process.Pid, err))
		} else {
			s.sink.Add("engine", fmt.Sprintf("exited pid=%d", cmd.Process.Pid))
		}
		waitCh <- err
	}()

	s.cmd = cmd
	s.waitCh = waitCh
	return nil
}

// Stop gracefully terminates the engine: SIGTERM, bounded grace period,
// then SIGKILL, plus a best-effort sweep for orphans holding the engine
// port or matching the engine command name. It is resilient to the process
// already being gone.
func (s *Subprocess) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
	return nil
}

func (s *Subprocess) stopLocked(ctx context.Context) {
	cmd := s.cmd
	waitCh := s.waitCh
	s.cmd = nil
	s.waitCh = nil
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-waitCh:
			// exited gracefully
		case <-time.After(s.cfg.StopGrace):
			_ = cmd.Process.Kill()
			<-waitCh
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			<-waitCh
		}
	}
	s.killOrphans()
}

// killOrphans cleans up engine processes this supervisor lost track of,
// e.g. after a daemon crash. Best effort, platform-specific.
func (s *Subprocess) killOrphans() {
	if out, err := exec.Command("fuser", "-k", fmt.Sprintf("%d/tcp", s.cfg.Port)).CombinedOutput(); err == nil && len(out) > 0 {
		s.sink.Add("engine", fmt.Sprintf("killed orphan holding port %d", s.cfg.Port))
	}
	name := s.cfg.Command
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name != "" {
		_ = exec.Command("pkill", "-f", name).Run()
	}
}

// Healthy performs a single readiness probe against GET /health.
func (s *Subprocess) Healthy(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, s.BaseURL()+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (s *Subprocess) captureLines(source string, r interface{ Read([]byte) (int, error) }) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			s.sink.Add(source, line)
		}
	}
}

func boolEnv(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
