// Package manager provides preset resolution, compatibility checking, and
// the mutex-guarded engine restart orchestration. It is structured into
// small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; New applies defaults.
//   - state.go: Mode and the committed/pending RuntimeConfig pair.
//   - errors.go: error types and helpers (IsModelNotFound, IsUnavailable).
//   - engine.go: the EngineProcess interface and launch parameter types.
//   - engine_subprocess.go: subprocess-backed EngineProcess (spawn, signal,
//     orphan cleanup by port/name, stdout/stderr capture).
//   - engine_client.go: control-plane calls against the engine's HTTP
//     surface (model list, unload).
//   - resolver.go: model id resolution, launch path derivation, preset status.
//   - compat.go: field-by-field compatibility check against the running config.
//   - restart.go: the restart state machine (Idle -> Restarting -> Healthy/Failed)
//     and the router-mode start path.
//
// Concurrency: the committed runtime configuration, the operating mode, and
// the active preset id are the only process-wide mutable state. They are
// written exclusively by the restart/router paths in this package and read
// by everyone else; the restart lock serializes whole restart sequences.
//
// External packages should treat this package as the orchestration layer and
// use public methods only (New, Resolve, IsCompatible, RestartForPreset,
// StartRouter, Status). Internal types are subject to change.
package manager
