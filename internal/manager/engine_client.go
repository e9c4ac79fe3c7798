package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Control-plane calls against the engine's own HTTP surface (model listing
// and unloading). These are short administrative requests, distinct from the
// proxied inference traffic.

var engineClient = &http.Client{Timeout: 5 * time.Second}

// EngineModels fetches the engine's live model list (GET /models).
func (m *Manager) EngineModels(ctx context.Context) ([]EngineModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.engine.BaseURL()+"/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := engineClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine model list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine model list: status %d", resp.StatusCode)
	}
	var list EngineModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("engine model list: %w", err)
	}
	return list.Data, nil
}

// UnloadModel asks the engine to drop a resident model (POST /models/unload).
func (m *Manager) UnloadModel(ctx context.Context, id string) error {
	payload, err := json.Marshal(map[string]string{"model": id})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.engine.BaseURL()+"/models/unload", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := engineClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine unload %s: %w", id, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("engine unload %s: status %d", id, resp.StatusCode)
	}
	return nil
}
