package proxy

import (
	"encoding/json"

	"presetd/pkg/types"
)

// applyPresetDefaults merges the preset's sampling defaults into the request
// body, only for fields the caller did not already set; caller-supplied
// values always win. Chat-template kwargs are merged as an object union,
// again with caller values taking precedence per key.
func applyPresetDefaults(body map[string]any, p types.Preset) {
	cfg := p.Config
	if cfg.Temp != 0 {
		setIfAbsent(body, "temperature", cfg.Temp)
	}
	if cfg.TopP != 0 {
		setIfAbsent(body, "top_p", cfg.TopP)
	}
	if cfg.TopK != 0 {
		setIfAbsent(body, "top_k", cfg.TopK)
	}
	if cfg.MinP != 0 {
		setIfAbsent(body, "min_p", cfg.MinP)
	}
	if cfg.ChatTemplateKwargs == "" {
		return
	}
	var presetKwargs map[string]any
	if err := json.Unmarshal([]byte(cfg.ChatTemplateKwargs), &presetKwargs); err != nil {
		return // opaque blob that is not an object; nothing to merge
	}
	kwargs, _ := body["chat_template_kwargs"].(map[string]any)
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	for k, v := range presetKwargs {
		if _, ok := kwargs[k]; !ok {
			kwargs[k] = v
		}
	}
	body["chat_template_kwargs"] = kwargs
}

func setIfAbsent(body map[string]any, key string, value any) {
	if _, ok := body[key]; !ok {
		body[key] = value
	}
}
