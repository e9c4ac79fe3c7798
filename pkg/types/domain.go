package types

// Preset is a named, durable launch configuration for the engine.
type Preset struct {
	// Stable identifier, unique across the preset store.
	// example: qwen3-8b-q4
	ID string `json:"id" example:"qwen3-8b-q4"`
	// Human-friendly name.
	// example: Qwen3 8B (Q4_K_M)
	Name string `json:"name" example:"Qwen3 8B (Q4_K_M)"`
	// Optional free-form description.
	Description string `json:"description,omitempty"`
	// Absolute path to a local model file. Mutually authoritative with
	// HFRepo; when both are set, HFRepo wins.
	// example: /home/user/models/qwen3-8b/Qwen3-8B.Q4_K_M.gguf
	ModelPath string `json:"modelPath,omitempty" example:"/home/user/models/qwen3-8b/Qwen3-8B.Q4_K_M.gguf"`
	// Remote repository plus quantization identifier.
	// example: Qwen/Qwen3-8B-GGUF:Q4_K_M
	HFRepo string `json:"hfRepo,omitempty" example:"Qwen/Qwen3-8B-GGUF:Q4_K_M"`
	// Context window size. 0 means "use engine default".
	// example: 8192
	Context int `json:"context" example:"8192"`
	// Sampling and runtime overrides.
	Config PresetConfig `json:"config"`
}

// PresetConfig carries per-preset sampling and launch overrides.
// Pointer fields distinguish "unset" from an explicit zero value; unset
// fields never force a restart.
type PresetConfig struct {
	// Sampling temperature.
	// example: 0.7
	Temp float64 `json:"temp,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"topP,omitempty" example:"0.9"`
	// Top-K sampling cutoff.
	// example: 40
	TopK int `json:"topK,omitempty" example:"40"`
	// Minimum probability cutoff.
	// example: 0.05
	MinP float64 `json:"minP,omitempty" example:"0.05"`
	// Opaque JSON object merged into request chat_template_kwargs.
	// example: {"enable_thinking": true}
	ChatTemplateKwargs string `json:"chatTemplateKwargs,omitempty" example:"{\"enable_thinking\": true}"`
	// Reasoning output format passed to the engine at launch.
	ReasoningFormat *string `json:"reasoningFormat,omitempty"`
	// Number of layers offloaded to the GPU.
	GPULayers *int `json:"gpuLayers,omitempty"`
	// Flash attention toggle.
	FlashAttn *bool `json:"flashAttn,omitempty"`
	// Additional raw launch switches. The templating switch is always
	// ensured to be present at launch time.
	ExtraSwitches string `json:"extraSwitches,omitempty"`
}

// EffortOverride maps a glob-style model id pattern to a reasoning effort.
// Patterns support '*' and '?' wildcards and are evaluated in order.
type EffortOverride struct {
	// example: gpt-oss*
	Pattern string `json:"pattern" example:"gpt-oss*"`
	// example: low
	Effort string `json:"effort" example:"low"`
}

// Settings is the durable runtime settings record.
type Settings struct {
	// Default context size applied when a preset leaves Context at 0.
	// example: 4096
	DefaultContext int `json:"defaultContext" example:"4096"`
	// Default GPU layer count.
	// example: 99
	DefaultGPULayers int `json:"defaultGpuLayers" example:"99"`
	// Default flash attention toggle.
	FlashAttn bool `json:"flashAttn"`
	// Maximum resident models in router mode.
	// example: 4
	ModelsMax int `json:"modelsMax" example:"4"`
	// Default reasoning output format.
	ReasoningFormat string `json:"reasoningFormat,omitempty"`
	// Extra launch switches appended for every start.
	ExtraSwitches string `json:"extraSwitches,omitempty"`
	// Reasoning effort injected when a request carries none and no
	// override pattern matches. Empty disables injection.
	// example: high
	DefaultReasoningEffort string `json:"defaultReasoningEffort,omitempty" example:"high"`
	// Per-model effort overrides, highest priority first.
	ReasoningEffortOverrides []EffortOverride `json:"reasoningEffortOverrides,omitempty"`
}

// ModelStatus describes how a preset relates to the running engine.
type ModelStatus string

const (
	// StatusLoaded means the preset is live and compatible right now.
	StatusLoaded ModelStatus = "loaded"
	// StatusAvailable means the model exists on disk but is not serving,
	// or is resident with a configuration that would ignore the preset.
	StatusAvailable ModelStatus = "available"
	// StatusNotDownloaded means no local path resolves for the preset.
	StatusNotDownloaded ModelStatus = "not_downloaded"
)
