package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"presetd/internal/logsink"
	"presetd/internal/manager"
	"presetd/internal/store"
	"presetd/pkg/types"
)

// stubEngine satisfies manager.EngineProcess but points its base URL at the
// fake upstream server; the process lifecycle itself is a no-op.
type stubEngine struct {
	base   string
	mu     sync.Mutex
	starts int
}

func (e *stubEngine) Start(context.Context, manager.LaunchParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	return nil
}

func (e *stubEngine) Stop(context.Context) error   { return nil }
func (e *stubEngine) Healthy(context.Context) bool { return true }

func (e *stubEngine) BaseURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base
}

func (e *stubEngine) setBase(base string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.base = base
}

func (e *stubEngine) startCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

type scriptedResponse struct {
	status      int
	contentType string
	body        string
}

// fakeUpstream plays the engine's HTTP surface: scripted responses for the
// inference endpoint (last one repeats), a model list, and an unload
// endpoint that records what was evicted.
type fakeUpstream struct {
	mu        sync.Mutex
	responses []scriptedResponse
	bodies    []map[string]any
	models    []manager.EngineModel
	unloads   []string
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/models":
		json.NewEncoder(w).Encode(manager.EngineModelList{Data: f.engineModels()})
	case "/models/unload":
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.unloads = append(f.unloads, req["model"])
		f.mu.Unlock()
		w.Write([]byte("{}"))
	default:
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.bodies = append(f.bodies, body)
		idx := len(f.bodies) - 1
		if idx >= len(f.responses) {
			idx = len(f.responses) - 1
		}
		resp := f.responses[idx]
		f.mu.Unlock()
		ct := resp.contentType
		if ct == "" {
			ct = "application/json"
		}
		w.Header().Set("Content-Type", ct)
		w.WriteHeader(resp.status)
		w.Write([]byte(resp.body))
	}
}

func (f *fakeUpstream) engineModels() []manager.EngineModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]manager.EngineModel, len(f.models))
	copy(out, f.models)
	return out
}

func (f *fakeUpstream) attemptBodies() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.bodies))
	copy(out, f.bodies)
	return out
}

func (f *fakeUpstream) unloaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.unloads))
	copy(out, f.unloads)
	return out
}

func loadedModel(id string) manager.EngineModel {
	var em manager.EngineModel
	em.ID = id
	em.Status.Value = "loaded"
	return em
}

const successBody = `{"choices":[{"message":{"content":"hi"}}],"usage":{"prompt_tokens":12,"completion_tokens":34}}`

type gwFixture struct {
	gw       *Gateway
	mgr      *manager.Manager
	st       *store.Store
	eng      *stubEngine
	mem      *logsink.Memory
	upstream *fakeUpstream
	// modelRel is the launch folder name resolved for the seeded model file.
	modelRel string
}

// newFixture wires a gateway against a fake upstream engine, with one model
// file on disk under qwen3-8b/ and the given presets stored. Preset
// ModelPath values are filled in to point at that file when left empty.
func newFixture(t *testing.T, upstream *fakeUpstream, presets ...types.Preset) *gwFixture {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	modelsDir := filepath.Join(dir, "models")
	modelPath := filepath.Join(modelsDir, "qwen3-8b", "Qwen3-8B.Q4_K_M.gguf")
	if err := os.MkdirAll(filepath.Dir(modelPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(modelPath, []byte("gguf"), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := store.Open(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range presets {
		if p.ModelPath == "" {
			p.ModelPath = modelPath
		}
		if err := st.CreatePreset(p); err != nil {
			t.Fatal(err)
		}
	}

	eng := &stubEngine{base: srv.URL}
	mem := logsink.NewMemory(100)
	mgr := manager.New(manager.ManagerConfig{
		Store:          st,
		Engine:         eng,
		Sink:           mem,
		ModelsDir:      modelsDir,
		LockWait:       2 * time.Second,
		HealthWait:     500 * time.Millisecond,
		HealthInterval: 10 * time.Millisecond,
	})
	return &gwFixture{
		gw:       New(mgr, mem, mem),
		mgr:      mgr,
		st:       st,
		eng:      eng,
		mem:      mem,
		upstream: upstream,
		modelRel: "qwen3-8b",
	}
}

func (f *gwFixture) post(t *testing.T, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(string(raw)))
	w := httptest.NewRecorder()
	f.gw.Handler("/v1/chat/completions")(w, req)
	return w
}

func TestGatewayForwardsAndAnnotates(t *testing.T) {
	up := &fakeUpstream{responses: []scriptedResponse{{status: 200, body: successBody}}}
	f := newFixture(t, up, types.Preset{ID: "qwen", Name: "Qwen"})

	w := f.post(t, map[string]any{"model": "qwen", "messages": []any{}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	proxy, ok := out["proxy"].(map[string]any)
	if !ok {
		t.Fatalf("response missing proxy annotation: %s", w.Body.String())
	}
	if _, ok := proxy["latency_ms"]; !ok {
		t.Fatalf("annotation missing latency_ms: %#v", proxy)
	}

	sent := up.attemptBodies()
	if len(sent) != 1 {
		t.Fatalf("upstream attempts = %d, want 1", len(sent))
	}
	if sent[0]["model"] != f.modelRel {
		t.Fatalf("forwarded model = %v, want %s", sent[0]["model"], f.modelRel)
	}
}

func TestGatewayMergePrecedence(t *testing.T) {
	up := &fakeUpstream{responses: []scriptedResponse{{status: 200, body: successBody}}}
	f := newFixture(t, up, types.Preset{
		ID: "qwen",
		Config: types.PresetConfig{
			Temp:               0.6,
			TopK:               20,
			ChatTemplateKwargs: `{"enable_thinking": false}`,
		},
	})

	w := f.post(t, map[string]any{
		"model":                "qwen",
		"temperature":          0.9,
		"chat_template_kwargs": map[string]any{"enable_thinking": true},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	sent := up.attemptBodies()[0]
	if sent["temperature"] != 0.9 {
		t.Fatalf("temperature = %v, caller value must win", sent["temperature"])
	}
	if sent["top_k"] != float64(20) {
		t.Fatalf("top_k = %v, want preset default 20", sent["top_k"])
	}
	kwargs := sent["chat_template_kwargs"].(map[string]any)
	if kwargs["enable_thinking"] != true {
		t.Fatalf("enable_thinking = %v, caller value must win", kwargs["enable_thinking"])
	}
}

func TestGatewayRestartsIncompatiblePresetOnce(t *testing.T) {
	up := &fakeUpstream{responses: []scriptedResponse{{status: 200, body: successBody}}}
	f := newFixture(t, up, types.Preset{ID: "qwen", Context: 8192})

	w := f.post(t, map[string]any{"model": "qwen"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := f.eng.startCount(); got != 1 {
		t.Fatalf("engine starts = %d, want 1", got)
	}
	if got := f.mgr.Runtime().Context; got != 8192 {
		t.Fatalf("committed context = %d, want 8192", got)
	}

	// Same preset again: now compatible, no second restart.
	w = f.post(t, map[string]any{"model": "qwen"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := f.eng.startCount(); got != 1 {
		t.Fatalf("engine starts after second request = %d, want 1", got)
	}
}

func TestGatewayInjectsReasoningEffort(t *testing.T) {
	up := &fakeUpstream{responses: []scriptedResponse{{status: 200, body: successBody}}}
	f := newFixture(t, up, types.Preset{ID: "gpt-oss-20b"})
	if err := f.st.SetSettings(types.Settings{
		DefaultReasoningEffort:   "high",
		ReasoningEffortOverrides: []types.EffortOverride{{Pattern: "gpt-oss*", Effort: "low"}},
	}); err != nil {
		t.Fatal(err)
	}

	w := f.post(t, map[string]any{"model": "gpt-oss-20b"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	kwargs, _ := up.attemptBodies()[0]["chat_template_kwargs"].(map[string]any)
	if kwargs == nil || kwargs["reasoning_effort"] != "low" {
		t.Fatalf("reasoning_effort = %v, want low", kwargs)
	}
}

func TestGatewayEvictionRetry(t *testing.T) {
	loadErr := `{"error":{"message":"failed to load model 'qwen3-8b'"}}`
	up := &fakeUpstream{
		responses: []scriptedResponse{
			{status: 500, body: loadErr},
			{status: 200, body: successBody},
		},
		models: []manager.EngineModel{loadedModel("qwen3-8b"), loadedModel("other-model")},
	}
	f := newFixture(t, up, types.Preset{ID: "qwen"})

	w := f.post(t, map[string]any{"model": "qwen"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := up.unloaded(); len(got) != 1 || got[0] != "other-model" {
		t.Fatalf("unloaded = %v, want exactly [other-model]", got)
	}
	if got := len(up.attemptBodies()); got != 2 {
		t.Fatalf("upstream attempts = %d, want 2", got)
	}
}

func TestGatewayLoadFailureNothingToEvict(t *testing.T) {
	loadErr := `{"error":{"message":"failed to load model 'qwen3-8b'"}}`
	up := &fakeUpstream{
		responses: []scriptedResponse{{status: 500, body: loadErr}},
		models:    []manager.EngineModel{loadedModel("qwen3-8b")},
	}
	f := newFixture(t, up, types.Preset{ID: "qwen"})

	w := f.post(t, map[string]any{"model": "qwen"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want upstream 500 passed through", w.Code)
	}
	if w.Body.String() != loadErr {
		t.Fatalf("body = %s, want original upstream error unmodified", w.Body.String())
	}
	if got := len(up.unloaded()); got != 0 {
		t.Fatalf("unloads = %d, want 0", got)
	}
	if got := len(up.attemptBodies()); got != 1 {
		t.Fatalf("upstream attempts = %d, want 1 (no retry without eviction)", got)
	}
}

func TestGatewaySanitizeRetry(t *testing.T) {
	tmplErr := `{"error":"Cannot specify both content and thinking in the template"}`
	up := &fakeUpstream{
		responses: []scriptedResponse{
			{status: 400, body: tmplErr},
			{status: 200, body: successBody},
		},
	}
	f := newFixture(t, up, types.Preset{ID: "qwen"})

	w := f.post(t, map[string]any{
		"model": "qwen",
		"messages": []any{
			map[string]any{
				"role":       "assistant",
				"content":    "x",
				"thinking":   "y",
				"tool_calls": []any{map[string]any{"id": "call_1"}},
			},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	attempts := up.attemptBodies()
	if len(attempts) != 2 {
		t.Fatalf("upstream attempts = %d, want 2", len(attempts))
	}
	msg := attempts[1]["messages"].([]any)[0].(map[string]any)
	if msg["thinking"] != "y\nx" {
		t.Fatalf("retried thinking = %v, want merged %q", msg["thinking"], "y\nx")
	}
	if _, ok := msg["content"]; ok {
		t.Fatalf("retried message still carries content: %#v", msg)
	}
}

func TestGatewayUpstreamErrorPassthrough(t *testing.T) {
	up := &fakeUpstream{responses: []scriptedResponse{{status: 429, body: `{"error":"slow down"}`}}}
	f := newFixture(t, up, types.Preset{ID: "qwen"})

	w := f.post(t, map[string]any{"model": "qwen"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 passed through", w.Code)
	}
	if w.Body.String() != `{"error":"slow down"}` {
		t.Fatalf("body = %s, want upstream body verbatim", w.Body.String())
	}
	if got := len(up.attemptBodies()); got != 1 {
		t.Fatalf("upstream attempts = %d, want 1", got)
	}
}

func TestGatewayUnknownModel(t *testing.T) {
	up := &fakeUpstream{responses: []scriptedResponse{{status: 200, body: successBody}}}
	f := newFixture(t, up)

	w := f.post(t, map[string]any{"model": "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	convs := f.mem.Conversations()
	if len(convs) != 1 {
		t.Fatalf("conversation records = %d, want 1", len(convs))
	}
	if convs[0].Error == "" || convs[0].RequestBody == "" {
		t.Fatalf("failed record must retain error and request body: %+v", convs[0])
	}
}

func TestGatewayUndownloadedPreset(t *testing.T) {
	up := &fakeUpstream{responses: []scriptedResponse{{status: 200, body: successBody}}}
	f := newFixture(t, up, types.Preset{
		ID:        "remote",
		ModelPath: "/nonexistent/model.gguf",
		HFRepo:    "Someone/NotDownloaded-GGUF:Q4_K_M",
	})

	w := f.post(t, map[string]any{"model": "remote"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for undownloaded preset", w.Code)
	}
	if !strings.Contains(w.Body.String(), "undownloaded") {
		t.Fatalf("body = %s, want undownloaded hint", w.Body.String())
	}
}

func TestGatewayConversationRecordOnce(t *testing.T) {
	up := &fakeUpstream{responses: []scriptedResponse{{status: 200, body: successBody}}}
	f := newFixture(t, up, types.Preset{ID: "qwen"})

	w := f.post(t, map[string]any{"model": "qwen"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	convs := f.mem.Conversations()
	if len(convs) != 1 {
		t.Fatalf("conversation records = %d, want exactly 1", len(convs))
	}
	c := convs[0]
	if c.Model != "qwen" || c.PromptTokens != 12 || c.CompletionTokens != 34 || c.Streamed {
		t.Fatalf("record = %+v", c)
	}
	if c.ID == "" {
		t.Fatal("record missing id")
	}
	if c.Error != "" || c.RequestBody != "" {
		t.Fatalf("successful record must not retain error or body: %+v", c)
	}
}

func TestGatewayStreamRelay(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"he"}}]}`,
		"",
		`data: {"choices":[{"delta":{"content":"llo"}}]}`,
		"",
		`data: {"choices":[{"delta":{}}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`,
		"",
		"data: [DONE]",
		"",
	}, "\n")
	up := &fakeUpstream{responses: []scriptedResponse{{
		status:      200,
		contentType: "text/event-stream",
		body:        stream,
	}}}
	f := newFixture(t, up, types.Preset{ID: "qwen"})

	w := f.post(t, map[string]any{"model": "qwen", "stream": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	if !strings.Contains(w.Body.String(), `"content":"llo"`) {
		t.Fatalf("stream not relayed verbatim: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "[DONE]") {
		t.Fatal("terminator not relayed")
	}

	convs := f.mem.Conversations()
	if len(convs) != 1 {
		t.Fatalf("conversation records = %d, want 1", len(convs))
	}
	c := convs[0]
	if !c.Streamed || c.PromptTokens != 5 || c.CompletionTokens != 2 {
		t.Fatalf("stream record = %+v", c)
	}
}

func TestGatewayConnectionRetryAfterEngineComesUp(t *testing.T) {
	// Engine base URL points at a dead port first; swap to a live server
	// after the first failures to prove the backoff loop recovers.
	up := &fakeUpstream{responses: []scriptedResponse{{status: 200, body: successBody}}}
	srv := httptest.NewServer(up)
	defer srv.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close() // nothing listens here anymore

	f := newFixture(t, up, types.Preset{ID: "qwen"})
	f.eng.setBase(deadURL)

	go func() {
		time.Sleep(300 * time.Millisecond)
		f.eng.setBase(srv.URL)
	}()

	w := f.post(t, map[string]any{"model": "qwen"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}
