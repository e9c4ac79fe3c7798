package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"presetd/internal/common/fsutil"
	"presetd/internal/config"
	"presetd/internal/httpapi"
	"presetd/internal/logsink"
	"presetd/internal/manager"
	"presetd/internal/proxy"
	"presetd/internal/store"
	"presetd/pkg/types"
)

type options struct {
	configPath    string
	addr          string
	modelsDir     string
	statePath     string
	engineCommand string
	engineHost    string
	enginePort    int
	corsOrigins   string
	logLevel      string
}

func main() {
	opts := &options{}
	root := &cobra.Command{
		Use:          "presetd",
		Short:        "Control-plane daemon supervising a local inference engine",
		Long:         "presetd supervises a single local inference-engine subprocess, exposes preset management, and proxies OpenAI/Anthropic-style requests to it.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	fl := root.Flags()
	fl.StringVar(&opts.configPath, "config", envStr("PRESETD_CONFIG", ""), "Path to a yaml/json/toml config file")
	fl.StringVar(&opts.addr, "addr", envStr("PRESETD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	fl.StringVar(&opts.modelsDir, "models-dir", envStr("PRESETD_MODELS_DIR", "~/models/llm"), "Directory to scan for *.gguf model files")
	fl.StringVar(&opts.statePath, "state", envStr("PRESETD_STATE", "~/.config/presetd/state.json"), "Path to the preset/settings store")
	fl.StringVar(&opts.engineCommand, "engine-command", envStr("PRESETD_ENGINE_COMMAND", "llama-server"), "Engine launch command")
	fl.StringVar(&opts.engineHost, "engine-host", envStr("PRESETD_ENGINE_HOST", "127.0.0.1"), "Engine listen host")
	fl.IntVar(&opts.enginePort, "engine-port", envInt("PRESETD_ENGINE_PORT", 8081), "Engine listen port")
	fl.StringVar(&opts.corsOrigins, "cors-origins", envStr("PRESETD_CORS_ORIGINS", ""), "Comma-separated allowed CORS origins (empty disables CORS)")
	fl.StringVar(&opts.logLevel, "log-level", envStr("PRESETD_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, opts *options) error {
	logger := newLogger(opts.logLevel)

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	statePath, err := fsutil.ExpandHome(cfg.StatePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
		return err
	}
	st, err := store.Open(statePath)
	if err != nil {
		return err
	}
	seedSettings(st, cfg)

	modelsDir, err := fsutil.ExpandHome(cfg.ModelsDir)
	if err != nil {
		return err
	}

	sink := logsink.Zerolog{Log: logger}
	// Conversation history is kept in memory; log lines also go to the
	// structured logger.
	recorder := logsink.NewMemory(1000)

	engine := manager.NewSubprocess(manager.SubprocessConfig{
		Command:   cfg.EngineCommand,
		Host:      cfg.EngineHost,
		Port:      cfg.EnginePort,
		StopGrace: time.Duration(cfg.StopGraceSeconds) * time.Second,
	}, sink)

	mgr := manager.New(manager.ManagerConfig{
		Store:      st,
		Engine:     engine,
		Sink:       sink,
		ModelsDir:  modelsDir,
		LockWait:   time.Duration(cfg.LockWaitSeconds) * time.Second,
		HealthWait: time.Duration(cfg.HealthWaitSeconds) * time.Second,
	})
	gw := proxy.New(mgr, sink, recorder)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(logger)
	if opts.corsOrigins != "" {
		httpapi.SetCORSOptions(true,
			splitCSV(opts.corsOrigins),
			[]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			[]string{"Accept", "Authorization", "Content-Type", "X-Log-Level"},
		)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr, gw)}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("models_dir", modelsDir).Msg("presetd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	if err := engine.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("engine stop error")
	}
	return nil
}

// loadConfig starts from the config file when given and lets explicitly set
// flags override it. Flags not touched by the user only apply when the file
// leaves the field empty.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	fl := cmd.Flags()
	if cfg.Addr == "" || fl.Changed("addr") {
		cfg.Addr = opts.addr
	}
	if cfg.ModelsDir == "" || fl.Changed("models-dir") {
		cfg.ModelsDir = opts.modelsDir
	}
	if cfg.StatePath == "" || fl.Changed("state") {
		cfg.StatePath = opts.statePath
	}
	if cfg.EngineCommand == "" || fl.Changed("engine-command") {
		cfg.EngineCommand = opts.engineCommand
	}
	if cfg.EngineHost == "" || fl.Changed("engine-host") {
		cfg.EngineHost = opts.engineHost
	}
	if cfg.EnginePort == 0 || fl.Changed("engine-port") {
		cfg.EnginePort = opts.enginePort
	}
	return cfg, nil
}

// seedSettings writes launch defaults from the config file into a fresh
// store so the settings API reflects them from the first start.
func seedSettings(st *store.Store, cfg config.Config) {
	if !settingsEmpty(st.Settings()) {
		return
	}
	if cfg.DefaultContext == 0 && cfg.DefaultGPULayers == 0 && cfg.ModelsMax == 0 && cfg.ExtraSwitches == "" {
		return
	}
	_ = st.SetSettings(types.Settings{
		DefaultContext:   cfg.DefaultContext,
		DefaultGPULayers: cfg.DefaultGPULayers,
		ModelsMax:        cfg.ModelsMax,
		ExtraSwitches:    cfg.ExtraSwitches,
	})
}

func settingsEmpty(s types.Settings) bool {
	return s.DefaultContext == 0 && s.DefaultGPULayers == 0 && !s.FlashAttn &&
		s.ModelsMax == 0 && s.ReasoningFormat == "" && s.ExtraSwitches == "" &&
		s.DefaultReasoningEffort == "" && len(s.ReasoningEffortOverrides) == 0
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// splitCSV splits a comma-separated list, trimming whitespace and dropping
// empty items.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
