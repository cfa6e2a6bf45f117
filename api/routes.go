package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"preset-relay/config"
	"preset-relay/logging"
	"preset-relay/preset"
	"preset-relay/relay"
	"preset-relay/watch"
)

// maxBodySize caps inbound request bodies (10MB).
const maxBodySize = 10 << 20

// Options control response rendering.
type Options struct {
	// ResponseMode is config.ResponseEnvelope or config.ResponseRaw.
	ResponseMode string
}

func RegisterRoutes(registry *preset.Registry, engine *relay.Engine, hub *watch.Hub, logger *slog.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.ResponseMode == "" {
		opts.ResponseMode = config.ResponseEnvelope
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)

	h := &handler{
		registry: registry,
		engine:   engine,
		hub:      hub,
		logger:   logger,
		opts:     opts,
	}

	// Preset CRUD, keyed by raw query string.
	r.Post("/api/save_preset", h.savePreset)
	r.Get("/api/load_preset", h.loadPreset)
	r.Get("/api/presets", h.listPresets)
	r.Delete("/api/presets", h.deletePreset)

	// WebSocket
	r.Get("/api/presets/watch", h.handleWatch)

	// Relay, any method.
	r.HandleFunc("/api/fetch", h.fetch)
	r.Get("/api/history", h.history)

	r.Get("/healthz", h.health)

	return r
}

type handler struct {
	registry *preset.Registry
	engine   *relay.Engine
	hub      *watch.Hub
	logger   *slog.Logger
	opts     Options
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"presets":  h.registry.Len(),
		"watchers": h.hub.Len(),
	})
}
