// Package proxy forwards OpenAI- and Anthropic-style inference requests to
// the supervised engine, resolving the requested model through presets,
// merging sampling defaults, restarting the engine when the preset is
// incompatible with the running configuration, and recovering once from
// engine-side load failures (by evicting other resident models) and
// chat-template rejections (by sanitizing assistant messages).
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"presetd/internal/logsink"
	"presetd/internal/manager"
	"presetd/pkg/types"
)

const (
	maxRequestBody = 32 << 20
	maxErrorBody   = 64 << 10

	connectInitialInterval = 200 * time.Millisecond
	connectMaxInterval     = 2 * time.Second
	connectMaxRetries      = 4
)

// Gateway proxies inference endpoints to the engine.
type Gateway struct {
	mgr    *manager.Manager
	sink   logsink.Sink
	rec    logsink.Recorder
	client *http.Client
}

// New constructs a Gateway. The client carries no timeout: streamed
// completions are open-ended and cancellation rides the request context.
func New(mgr *manager.Manager, sink logsink.Sink, rec logsink.Recorder) *Gateway {
	if sink == nil {
		sink = logsink.Nop{}
	}
	if rec == nil {
		rec = logsink.Nop{}
	}
	return &Gateway{mgr: mgr, sink: sink, rec: rec, client: &http.Client{}}
}

// Handler returns the http.HandlerFunc proxying the given engine endpoint
// path, e.g. "/v1/chat/completions".
func (g *Gateway) Handler(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.handle(w, r, endpoint)
	}
}

func (g *Gateway) handle(w http.ResponseWriter, r *http.Request, endpoint string) {
	start := time.Now()
	defer r.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	modelID, _ := body["model"].(string)

	conv := newConversation(g.rec, modelID, start)
	defer conv.flush()

	res, err := g.mgr.Resolve(modelID)
	if err != nil {
		conv.fail(err.Error(), body)
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	launchModel := g.mgr.ResolvePath(res)
	if launchModel == "" {
		msg := fmt.Sprintf("model %q references an undownloaded model", modelID)
		conv.fail(msg, body)
		writeError(w, http.StatusNotFound, msg)
		return
	}
	body["model"] = launchModel

	if res.Kind == manager.ResolvedPreset {
		applyPresetDefaults(body, res.Preset)
		if compat := g.mgr.IsCompatible(&res.Preset); !compat.Compatible {
			g.sink.Add("proxy", fmt.Sprintf("preset %s incompatible with running engine (%s); restarting",
				res.Preset.ID, strings.Join(compat.Reasons, "; ")))
			restartsTriggered.Inc()
			if err := g.mgr.RestartForPreset(r.Context(), res.Preset); err != nil {
				conv.fail(err.Error(), body)
				status := http.StatusInternalServerError
				switch {
				case manager.IsUnavailable(err):
					status = http.StatusServiceUnavailable
				case manager.IsModelNotFound(err):
					status = http.StatusNotFound
				}
				writeError(w, status, err.Error())
				return
			}
		}
	}

	injectReasoningEffort(body, modelID, g.mgr.Store().Settings())

	payload, err := json.Marshal(body)
	if err != nil {
		conv.fail(err.Error(), nil)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := g.forwardWithRecovery(r.Context(), endpoint, body, payload)
	if err != nil {
		conv.fail(err.Error(), body)
		if up := upstreamOf(err); up != nil {
			// Upstream errors pass through byte for byte.
			upstreamErrors.WithLabelValues(strconv.Itoa(up.Status)).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(up.Status)
			w.Write(up.Body)
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer resp.Body.Close()

	if isStreamRequest(body) {
		totals, relayErr := relayStream(w, resp)
		conv.finish(totals, true, relayErr)
		return
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		conv.fail(err.Error(), nil)
		writeError(w, http.StatusBadGateway, "reading engine response: "+err.Error())
		return
	}
	var totals usageTotals
	var out map[string]any
	if json.Unmarshal(raw, &out) == nil {
		extractUsage(out, &totals)
		out["proxy"] = proxyAnnotation(start, totals)
		if annotated, err := json.Marshal(out); err == nil {
			raw = annotated
		}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(raw)
	conv.finish(totals, false, nil)
}

func proxyAnnotation(start time.Time, totals usageTotals) map[string]any {
	latency := time.Since(start)
	tps := 0.0
	if ct := totals.completionTokens(); ct > 0 && latency > 0 {
		tps = float64(ct) / latency.Seconds()
	}
	return map[string]any{
		"latency_ms":        latency.Milliseconds(),
		"tokens_per_second": tps,
	}
}

// forwardWithRecovery forwards the request and applies at most one recovery
// retry: eviction for load failures, sanitization for template rejections.
// Each recovery runs once per request; a second classified failure passes
// through to the caller.
func (g *Gateway) forwardWithRecovery(ctx context.Context, endpoint string, body map[string]any, payload []byte) (*http.Response, error) {
	resp, err := g.forward(ctx, endpoint, payload)
	if err == nil {
		return resp, nil
	}
	switch err.(type) {
	case *LoadFailureError:
		keep, _ := body["model"].(string)
		freed := g.evictOthers(ctx, keep)
		if freed == 0 {
			return nil, err
		}
		evictionRetries.Inc()
		g.sink.Add("proxy", fmt.Sprintf("load failure for %s: evicted %d resident model(s), retrying once", keep, freed))
		return g.forward(ctx, endpoint, payload)
	case *TemplateError:
		if !sanitizeMessages(body) {
			return nil, err
		}
		sanitized, mErr := json.Marshal(body)
		if mErr != nil {
			return nil, err
		}
		sanitizeRetries.Inc()
		g.sink.Add("proxy", "template rejection: sanitized assistant messages, retrying once")
		return g.forward(ctx, endpoint, sanitized)
	}
	return nil, err
}

// forward sends one request to the engine, retrying connection-level
// failures with bounded exponential backoff since the engine may be
// mid-restart. HTTP error responses are classified, never retried here.
func (g *Gateway) forward(ctx context.Context, endpoint string, payload []byte) (*http.Response, error) {
	var resp *http.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.mgr.EngineBaseURL()+endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		r, err := g.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			connectionRetries.Inc()
			return &ConnectionError{Err: err}
		}
		resp = r
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = connectInitialInterval
	bo.MaxInterval = connectMaxInterval
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, connectMaxRetries), ctx)); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, classifyUpstream(resp.StatusCode, raw)
	}
	return resp, nil
}

// evictOthers unloads every resident engine model except keep and reports
// how many were actually freed. Errors are logged, not returned; a zero
// count tells the caller there is nothing to gain from retrying.
func (g *Gateway) evictOthers(ctx context.Context, keep string) int {
	models, err := g.mgr.EngineModels(ctx)
	if err != nil {
		g.sink.Add("proxy", "eviction aborted: "+err.Error())
		return 0
	}
	freed := 0
	for _, em := range models {
		if em.Status.Value != "loaded" || em.ID == keep {
			continue
		}
		if err := g.mgr.UnloadModel(ctx, em.ID); err != nil {
			g.sink.Add("proxy", err.Error())
			continue
		}
		g.sink.Add("proxy", "evicted resident model "+em.ID)
		freed++
	}
	return freed
}

func isStreamRequest(body map[string]any) bool {
	stream, _ := body["stream"].(bool)
	return stream
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// conversation guarantees exactly one ConversationEntry per request across
// every exit path, including streams cut short by the client.
type conversation struct {
	rec   logsink.Recorder
	entry types.ConversationEntry
	start time.Time
	done  bool
}

func newConversation(rec logsink.Recorder, model string, start time.Time) *conversation {
	return &conversation{
		rec: rec,
		entry: types.ConversationEntry{
			ID:          uuid.NewString(),
			Model:       model,
			CreatedUnix: start.Unix(),
		},
		start: start,
	}
}

// fail records a failed request; the original body is retained so the
// request can be replayed by an operator.
func (c *conversation) fail(msg string, body map[string]any) {
	if c.done {
		return
	}
	c.entry.Error = msg
	if body != nil {
		if raw, err := json.Marshal(body); err == nil {
			c.entry.RequestBody = string(raw)
		}
	}
	c.emit()
}

func (c *conversation) finish(totals usageTotals, streamed bool, streamErr error) {
	if c.done {
		return
	}
	c.entry.PromptTokens = totals.prompt
	c.entry.CompletionTokens = totals.completionTokens()
	c.entry.Streamed = streamed
	if streamErr != nil {
		c.entry.Error = streamErr.Error()
	}
	c.emit()
}

func (c *conversation) flush() {
	if !c.done {
		c.emit()
	}
}

func (c *conversation) emit() {
	c.entry.DurationMs = time.Since(c.start).Milliseconds()
	c.done = true
	c.rec.RecordConversation(c.entry)
}
