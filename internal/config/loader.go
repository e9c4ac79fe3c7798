package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	StatePath string `json:"state_path" yaml:"state_path" toml:"state_path"`

	// Engine subprocess launch.
	EngineCommand string `json:"engine_command" yaml:"engine_command" toml:"engine_command"`
	EngineHost    string `json:"engine_host" yaml:"engine_host" toml:"engine_host"`
	EnginePort    int    `json:"engine_port" yaml:"engine_port" toml:"engine_port"`

	// Launch-time defaults merged under preset overrides.
	DefaultContext   int    `json:"default_context" yaml:"default_context" toml:"default_context"`
	DefaultGPULayers int    `json:"default_gpu_layers" yaml:"default_gpu_layers" toml:"default_gpu_layers"`
	ModelsMax        int    `json:"models_max" yaml:"models_max" toml:"models_max"`
	ExtraSwitches    string `json:"extra_switches" yaml:"extra_switches" toml:"extra_switches"`

	// Bounds for the restart sequence (seconds; 0 = package defaults).
	LockWaitSeconds   int `json:"lock_wait_seconds" yaml:"lock_wait_seconds" toml:"lock_wait_seconds"`
	HealthWaitSeconds int `json:"health_wait_seconds" yaml:"health_wait_seconds" toml:"health_wait_seconds"`
	StopGraceSeconds  int `json:"stop_grace_seconds" yaml:"stop_grace_seconds" toml:"stop_grace_seconds"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
