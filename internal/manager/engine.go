package manager

import "context"

// LaunchParams are handed to the engine process on start. The engine launch
// contract is environment-variable based: an external command is invoked
// with these values exported, captures its own model loading, and exposes a
// local HTTP endpoint.
type LaunchParams struct {
	// Model is the engine-path/repo string for single mode; empty in
	// router mode (the engine scans ModelsDir itself).
	Model     string
	ModelsDir string
	Context   int
	GPULayers int
	FlashAttn bool
	// ModelsMax caps resident models in router mode.
	ModelsMax       int
	ReasoningFormat string
	// ExtraSwitches always includes the templating switch.
	ExtraSwitches []string
}

// EngineProcess owns the lifecycle of the single child inference-server
// process. Stop must be resilient to the process already being gone; the
// kill-by-port/by-name orphan fallback is an implementation detail behind
// this interface.
type EngineProcess interface {
	Start(ctx context.Context, params LaunchParams) error
	Stop(ctx context.Context) error
	// Healthy performs a single readiness probe; the orchestrator owns
	// the polling loop.
	Healthy(ctx context.Context) bool
	BaseURL() string
}

// EngineModel is one entry of the engine's live model list (GET /models).
type EngineModel struct {
	ID     string `json:"id"`
	Status struct {
		Value string `json:"value"`
	} `json:"status"`
	Args map[string]any `json:"args,omitempty"`
}

// EngineModelList is the engine's GET /models response shape.
type EngineModelList struct {
	Data []EngineModel `json:"data"`
}
