package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"presetd/pkg/types"
)

// templatingSwitch must be present in every launch so the engine applies
// chat templates server-side.
const templatingSwitch = "--jinja"

// RestartForPreset stops, reconfigures, restarts, and health-checks the
// engine so that it runs with the preset's exact launch parameters.
//
// The sequence is exclusive process-wide: a concurrent caller waits up to
// LockWait for the lock to clear; if the configuration produced by the
// concurrent restart is already compatible it returns success without a
// redundant second restart. On any failure the tracked configuration, mode,
// and active preset are rolled back to their pre-call values and the caller
// must not assume the engine is usable.
func (m *Manager) RestartForPreset(ctx context.Context, preset types.Preset) error {
	waited, err := m.acquireRestartLock(ctx)
	if err != nil {
		return err
	}
	// Guaranteed release on every path; a leaked lock would permanently
	// wedge all future restarts.
	defer func() { <-m.restartCh }()

	if waited {
		// A concurrent caller restarted while we waited; re-evaluate
		// against the new running configuration.
		if comp := m.IsCompatible(&preset); comp.Compatible && m.engine.Healthy(ctx) {
			m.sink.Add("orchestrator", fmt.Sprintf("restart for %q satisfied by concurrent restart", preset.ID))
			return nil
		}
	}

	launchModel := m.presetLaunchPath(preset)
	if launchModel == "" {
		return ErrModelNotFound(preset.ID)
	}

	m.mu.Lock()
	m.restartsTotal++
	m.mu.Unlock()

	snap := m.snapshotState()
	m.sink.Add("orchestrator", fmt.Sprintf("restarting engine for preset %q (model %q)", preset.ID, launchModel))

	// Stop is resilient to the process already being gone; a stop error is
	// logged but does not abort the sequence.
	if err := m.engine.Stop(ctx); err != nil {
		m.sink.Add("orchestrator", fmt.Sprintf("engine stop: %v", err))
	}

	params, pending := m.launchParamsFor(preset, launchModel)
	m.setModeOptimistic(ModeSingle, preset.ID)

	if err := m.engine.Start(ctx, params); err != nil {
		m.restoreState(snap)
		msg := fmt.Sprintf("engine start failed for preset %q: %v", preset.ID, err)
		m.setLastError(msg)
		m.sink.Add("orchestrator", msg)
		return ErrUnavailable(msg)
	}

	if err := m.awaitHealthy(ctx); err != nil {
		m.restoreState(snap)
		_ = m.engine.Stop(context.Background())
		msg := fmt.Sprintf("health check timeout for preset %q: %v", preset.ID, err)
		m.setLastError(msg)
		m.sink.Add("orchestrator", msg)
		return ErrUnavailable(msg)
	}

	m.commit(pending)
	m.sink.Add("orchestrator", fmt.Sprintf("engine healthy with preset %q (context=%d gpu_layers=%d)", preset.ID, pending.Context, pending.GPULayers))
	return nil
}

// StartRouter launches the engine in router mode: no dedicated model, the
// engine loads and unloads models from the root on demand.
func (m *Manager) StartRouter(ctx context.Context) error {
	if _, err := m.acquireRestartLock(ctx); err != nil {
		return err
	}
	defer func() { <-m.restartCh }()

	m.mu.Lock()
	m.restartsTotal++
	m.mu.Unlock()

	snap := m.snapshotState()
	m.sink.Add("orchestrator", "starting engine in router mode")

	if err := m.engine.Stop(ctx); err != nil {
		m.sink.Add("orchestrator", fmt.Sprintf("engine stop: %v", err))
	}

	st := m.store.Settings()
	pending := RuntimeConfig{
		Context:         st.DefaultContext,
		GPULayers:       st.DefaultGPULayers,
		FlashAttn:       st.FlashAttn,
		ModelsMax:       st.ModelsMax,
		ReasoningFormat: st.ReasoningFormat,
		ExtraSwitches:   strings.Join(mergeSwitches(st.ExtraSwitches, "", st.FlashAttn, st.ReasoningFormat), " "),
	}
	params := LaunchParams{
		ModelsDir:       m.cfg.ModelsDir,
		Context:         pending.Context,
		GPULayers:       pending.GPULayers,
		FlashAttn:       pending.FlashAttn,
		ModelsMax:       pending.ModelsMax,
		ReasoningFormat: pending.ReasoningFormat,
		ExtraSwitches:   strings.Fields(pending.ExtraSwitches),
	}
	m.setModeOptimistic(ModeRouter, "")

	if err := m.engine.Start(ctx, params); err != nil {
		m.restoreState(snap)
		msg := fmt.Sprintf("router start failed: %v", err)
		m.setLastError(msg)
		m.sink.Add("orchestrator", msg)
		return ErrUnavailable(msg)
	}
	if err := m.awaitHealthy(ctx); err != nil {
		m.restoreState(snap)
		_ = m.engine.Stop(context.Background())
		msg := fmt.Sprintf("router health check timeout: %v", err)
		m.setLastError(msg)
		m.sink.Add("orchestrator", msg)
		return ErrUnavailable(msg)
	}
	m.commit(pending)
	m.sink.Add("orchestrator", "engine healthy in router mode")
	return nil
}

// acquireRestartLock takes the restart semaphore, waiting up to LockWait.
// waited reports whether the lock was held by someone else first.
func (m *Manager) acquireRestartLock(ctx context.Context) (waited bool, err error) {
	select {
	case m.restartCh <- struct{}{}:
		return false, nil
	default:
	}
	timer := time.NewTimer(m.cfg.LockWait)
	defer timer.Stop()
	select {
	case m.restartCh <- struct{}{}:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		msg := fmt.Sprintf("restart lock wait timed out after %s", m.cfg.LockWait)
		m.sink.Add("orchestrator", msg)
		return false, ErrUnavailable(msg)
	}
}

// awaitHealthy polls the engine's health endpoint at a fixed interval until
// it reports ready or the overall bound elapses.
func (m *Manager) awaitHealthy(ctx context.Context) error {
	deadline := time.Now().Add(m.cfg.HealthWait)
	for {
		if m.engine.Healthy(ctx) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("engine not ready within %s", m.cfg.HealthWait)
		}
		select {
		case <-time.After(m.cfg.HealthInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// launchParamsFor merges preset overrides with configured defaults into the
// launch parameters and the pending runtime config candidate.
func (m *Manager) launchParamsFor(p types.Preset, launchModel string) (LaunchParams, RuntimeConfig) {
	st := m.store.Settings()
	ctxSize := st.DefaultContext
	if p.Context > 0 {
		ctxSize = p.Context
	}
	gpuLayers := st.DefaultGPULayers
	if p.Config.GPULayers != nil {
		gpuLayers = *p.Config.GPULayers
	}
	flashAttn := st.FlashAttn
	if p.Config.FlashAttn != nil {
		flashAttn = *p.Config.FlashAttn
	}
	reasoningFormat := st.ReasoningFormat
	if p.Config.ReasoningFormat != nil {
		reasoningFormat = *p.Config.ReasoningFormat
	}
	switches := mergeSwitches(st.ExtraSwitches, p.Config.ExtraSwitches, flashAttn, reasoningFormat)
	pending := RuntimeConfig{
		Context:         ctxSize,
		GPULayers:       gpuLayers,
		FlashAttn:       flashAttn,
		ModelsMax:       st.ModelsMax,
		ReasoningFormat: reasoningFormat,
		ExtraSwitches:   strings.Join(switches, " "),
	}
	params := LaunchParams{
		Model:           launchModel,
		ModelsDir:       m.cfg.ModelsDir,
		Context:         ctxSize,
		GPULayers:       gpuLayers,
		FlashAttn:       flashAttn,
		ModelsMax:       st.ModelsMax,
		ReasoningFormat: reasoningFormat,
		ExtraSwitches:   switches,
	}
	return params, pending
}

// mergeSwitches combines default and preset extra switches, always ensuring
// the templating switch is present and appending the flash-attention and
// reasoning-format switches only when not already given (duplicate flags
// confuse the engine's argument parser).
func mergeSwitches(defaults, presetExtra string, flashAttn bool, reasoningFormat string) []string {
	out := strings.Fields(defaults)
	out = append(out, strings.Fields(presetExtra)...)
	if !containsSwitch(out, templatingSwitch) {
		out = append(out, templatingSwitch)
	}
	if flashAttn && !containsSwitch(out, "--flash-attn") {
		out = append(out, "--flash-attn")
	}
	if reasoningFormat != "" && !containsSwitch(out, "--reasoning-format") {
		out = append(out, "--reasoning-format", reasoningFormat)
	}
	return out
}

func containsSwitch(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}
