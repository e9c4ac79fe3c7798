package proxy

import (
	"regexp"
	"strings"

	"presetd/pkg/types"
)

const effortKey = "reasoning_effort"

// injectReasoningEffort fills in a reasoning effort for requests that carry
// none, matching the model id against the configured glob-style override
// patterns ('*'/'?') in priority order and falling back to the global
// default. A request that already sets the effort, top-level or inside the
// template kwargs, is left untouched.
func injectReasoningEffort(body map[string]any, modelID string, st types.Settings) {
	if _, ok := body[effortKey]; ok {
		return
	}
	kwargs, _ := body["chat_template_kwargs"].(map[string]any)
	if kwargs != nil {
		if _, ok := kwargs[effortKey]; ok {
			return
		}
	}
	effort := st.DefaultReasoningEffort
	for _, ov := range st.ReasoningEffortOverrides {
		if matchModelID(ov.Pattern, modelID) {
			effort = ov.Effort
			break
		}
	}
	if effort == "" {
		return
	}
	if kwargs == nil {
		kwargs = map[string]any{}
		body["chat_template_kwargs"] = kwargs
	}
	kwargs[effortKey] = effort
}

// matchModelID matches a '*'/'?' glob pattern against a model id. Model ids
// may carry slashes (direct file paths, hf repo forms), so '/' is an
// ordinary character here; path.Match would treat it as a separator and
// wildcards would stop at it.
func matchModelID(pattern, modelID string) bool {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	return err == nil && re.MatchString(modelID)
}
