package proxy

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
)

// usageTotals accumulates token accounting while a response is relayed.
// When the engine never reports a usage object (streams cut short, older
// endpoints), the number of content-bearing chunks stands in as a completion
// token estimate.
type usageTotals struct {
	prompt     int
	completion int
	sawUsage   bool
	chunks     int
}

func (u *usageTotals) completionTokens() int {
	if u.sawUsage {
		return u.completion
	}
	return u.chunks
}

// relayStream copies an SSE response to the client line by line, flushing
// after every line so tokens reach the client as the engine emits them, and
// parsing data events on the side for token accounting. A client that hangs
// up mid-stream surfaces as a write error; the upstream read side is closed
// by the caller.
func relayStream(w http.ResponseWriter, resp *http.Response) (usageTotals, error) {
	var totals usageTotals
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	flusher, _ := w.(http.Flusher)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := w.Write([]byte(line + "\n")); err != nil {
			return totals, err
		}
		if flusher != nil {
			flusher.Flush()
		}
		parseStreamLine(line, &totals)
	}
	return totals, scanner.Err()
}

func parseStreamLine(line string, totals *usageTotals) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return
	}
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "[DONE]" {
		return
	}
	var chunk map[string]any
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return
	}
	extractUsage(chunk, totals)
	if hasStreamContent(chunk) {
		totals.chunks++
	}
}

// extractUsage pulls token counts from a response or stream chunk. Both the
// OpenAI shape (usage.prompt_tokens/completion_tokens) and the Anthropic
// shape (usage.input_tokens/output_tokens, also nested under message) are
// recognized.
func extractUsage(m map[string]any, totals *usageTotals) {
	usage, ok := m["usage"].(map[string]any)
	if !ok {
		if msg, ok := m["message"].(map[string]any); ok {
			usage, _ = msg["usage"].(map[string]any)
		}
	}
	if usage == nil {
		return
	}
	if v, ok := numberField(usage, "prompt_tokens", "input_tokens"); ok {
		totals.prompt = v
		totals.sawUsage = true
	}
	if v, ok := numberField(usage, "completion_tokens", "output_tokens"); ok {
		totals.completion = v
		totals.sawUsage = true
	}
}

func numberField(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		if f, ok := m[k].(float64); ok {
			return int(f), true
		}
	}
	return 0, false
}

func hasStreamContent(chunk map[string]any) bool {
	choices, ok := chunk["choices"].([]any)
	if !ok {
		// Anthropic streams deliver text via content_block_delta events.
		t, _ := chunk["type"].(string)
		return t == "content_block_delta"
	}
	for _, raw := range choices {
		choice, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		delta, ok := choice["delta"].(map[string]any)
		if !ok {
			continue
		}
		if s, ok := delta["content"].(string); ok && s != "" {
			return true
		}
	}
	return false
}
