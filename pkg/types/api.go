package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: preset not found: qwen3-8b-q4
	Error string `json:"error" example:"preset not found: qwen3-8b-q4"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// RuntimeConfigView is the committed engine launch configuration as
// reported by GET /api/status.
type RuntimeConfigView struct {
	// example: 8192
	Context int `json:"context" example:"8192"`
	// example: 99
	GPULayers int `json:"gpu_layers" example:"99"`
	FlashAttn bool `json:"flash_attn"`
	// example: 4
	ModelsMax       int    `json:"models_max" example:"4"`
	ReasoningFormat string `json:"reasoning_format,omitempty"`
	ExtraSwitches   string `json:"extra_switches,omitempty"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	// Operating mode: router or single.
	// example: single
	Mode string `json:"mode" example:"single"`
	// Active preset id; empty unless mode is single.
	// example: qwen3-8b-q4
	ActivePresetID string `json:"active_preset_id,omitempty" example:"qwen3-8b-q4"`
	// Whether the engine subprocess currently answers its health probe.
	EngineHealthy bool `json:"engine_healthy"`
	// Whether a restart sequence is in flight.
	Restarting bool `json:"restarting"`
	// Committed launch configuration of the running engine.
	Runtime RuntimeConfigView `json:"runtime"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Total restart sequences attempted since start.
	RestartsTotal uint64 `json:"restarts_total"`
	// Last terminal error observed by the orchestrator, if any.
	LastError string `json:"last_error,omitempty"`
}

// PresetStatusView pairs a preset with its resolution status for listings.
type PresetStatusView struct {
	Preset Preset `json:"preset"`
	// example: available
	Status ModelStatus `json:"status" example:"available"`
}

// ScannedModel is a model file discovered under the managed model root.
type ScannedModel struct {
	// Path relative to the model root.
	// example: qwen3-8b/Qwen3-8B.Q4_K_M.gguf
	RelPath string `json:"rel_path" example:"qwen3-8b/Qwen3-8B.Q4_K_M.gguf"`
	// Absolute path on disk.
	Path string `json:"path"`
	// File size in bytes.
	SizeBytes int64 `json:"size_bytes"`
	// Whether a preset already references this file.
	HasPreset bool `json:"has_preset"`
}

// ConversationEntry is the structured record emitted once per proxied
// request, completed or failed.
type ConversationEntry struct {
	// Unique record id.
	ID string `json:"id"`
	// Model id as requested by the client.
	Model string `json:"model"`
	// Wall-clock duration of the request in milliseconds.
	DurationMs int64 `json:"duration_ms"`
	// Token accounting extracted from the engine response.
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	// Whether the response was streamed.
	Streamed bool `json:"streamed"`
	// Raw upstream error text on failure.
	Error string `json:"error,omitempty"`
	// Original request body, retained for operator-triggered resubmission
	// when the request failed.
	RequestBody string `json:"request_body,omitempty"`
	// Record creation time in unix seconds.
	CreatedUnix int64 `json:"created_unix"`
}
