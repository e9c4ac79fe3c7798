package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"presetd/internal/manager"
	"presetd/internal/proxy"
	"presetd/internal/registry"
	"presetd/pkg/types"
)

// proxyEndpoints are forwarded to the engine verbatim (after model
// resolution and rewriting in the proxy layer).
var proxyEndpoints = []string{
	"/v1/chat/completions",
	"/v1/completions",
	"/v1/embeddings",
	"/v1/messages",
}

// NewMux assembles the management API and the inference proxy surface.
func NewMux(mgr *manager.Manager, gw *proxy.Gateway) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	for _, ep := range proxyEndpoints {
		r.Post(ep, gw.Handler(ep))
	}
	r.Get("/v1/models", handleOpenAIModels(mgr))

	r.Route("/api", func(api chi.Router) {
		api.Get("/presets", handleListPresets(mgr))
		api.Post("/presets", handleCreatePreset(mgr))
		api.Get("/presets/{id}", handleGetPreset(mgr))
		api.Put("/presets/{id}", handleUpdatePreset(mgr))
		api.Delete("/presets/{id}", handleDeletePreset(mgr))
		api.Post("/presets/{id}/activate", handleActivatePreset(mgr))
		api.Post("/router/start", handleRouterStart(mgr))
		api.Get("/status", handleStatus(mgr))
		api.Get("/models", handleScanModels(mgr))
		api.Post("/models/preset", handleAutoPreset(mgr))
		api.Get("/settings", handleGetSettings(mgr))
		api.Put("/settings", handlePutSettings(mgr))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := contextWithProbeTimeout(r)
		defer cancel()
		if mgr.EngineHealthy(ctx) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("engine not ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func handleOpenAIModels(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := make([]map[string]any, 0)
		for _, p := range mgr.Store().Presets() {
			data = append(data, map[string]any{
				"id":       p.ID,
				"object":   "model",
				"owned_by": "presetd",
			})
		}
		writeJSON(w, map[string]any{"object": "list", "data": data})
	}
}

func handleListPresets(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := contextWithProbeTimeout(r)
		defer cancel()
		// Best effort; an unreachable engine downgrades statuses, it does
		// not fail the listing.
		engineModels, _ := mgr.EngineModels(ctx)
		views := make([]types.PresetStatusView, 0)
		for _, p := range mgr.Store().Presets() {
			views = append(views, types.PresetStatusView{
				Preset: p,
				Status: mgr.PresetStatus(p, engineModels),
			})
		}
		writeJSON(w, map[string]any{"presets": views})
	}
}

func handleCreatePreset(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p types.Preset
		if !decodeBody(w, r, &p) {
			return
		}
		if strings.TrimSpace(p.ID) == "" {
			writeJSONError(w, http.StatusBadRequest, "preset id is required")
			return
		}
		if err := mgr.Store().CreatePreset(p); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, p)
	}
}

func handleGetPreset(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, ok := mgr.Store().GetPreset(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "preset not found: "+id)
			return
		}
		writeJSON(w, p)
	}
}

func handleUpdatePreset(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var p types.Preset
		if !decodeBody(w, r, &p) {
			return
		}
		if p.ID == "" {
			p.ID = id
		}
		if err := mgr.UpdatePreset(id, p); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, p)
	}
}

func handleDeletePreset(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := mgr.DeletePreset(id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleActivatePreset(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := chi.URLParam(r, "id")
		p, ok := mgr.Store().GetPreset(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "preset not found: "+id)
			return
		}
		// Join with the server base context so shutdown cancels a restart
		// in flight.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		err := mgr.RestartForPreset(ctx, p)
		logOperation(r, "activate", start, err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, mgr.Status(r.Context()))
	}
}

func handleRouterStart(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		err := mgr.StartRouter(ctx)
		logOperation(r, "router start", start, err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, mgr.Status(r.Context()))
	}
}

func handleStatus(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := contextWithProbeTimeout(r)
		defer cancel()
		writeJSON(w, mgr.Status(ctx))
	}
}

func handleScanModels(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := registry.ScanRoot(mgr.ModelsDir())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		presets := mgr.Store().Presets()
		for i := range models {
			models[i].HasPreset = presetReferences(presets, models[i].Path)
		}
		writeJSON(w, map[string]any{"models": models})
	}
}

// handleAutoPreset generates a preset from a scanned model file. The request
// carries the root-relative path reported by the scan endpoint.
func handleAutoPreset(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			writeJSONError(w, http.StatusBadRequest, "path is required")
			return
		}
		p, err := registry.DerivePreset(mgr.ModelsDir(), req.Path)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		if err := mgr.Store().CreatePreset(p); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, p)
	}
}

func presetReferences(presets []types.Preset, path string) bool {
	for _, p := range presets {
		if p.ModelPath == path {
			return true
		}
	}
	return false
}

func handleGetSettings(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, mgr.Store().Settings())
	}
}

func handlePutSettings(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s types.Settings
		if !decodeBody(w, r, &s) {
			return
		}
		if err := mgr.Store().SetSettings(s); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, s)
	}
}

// decodeBody enforces the JSON content type and body size limit, writing the
// error response itself when decoding fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
