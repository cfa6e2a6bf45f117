package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"preset-relay/preset"
)

// presetRequest is the save_preset body. The key comes from the query string.
type presetRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

func (h *handler) savePreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p := preset.Preset{
		Key:     r.URL.RawQuery,
		URL:     req.URL,
		Method:  req.Method,
		Headers: req.Headers,
		Body:    req.Body,
	}
	if err := p.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.Key == "" {
		h.logger.Warn("saving preset under empty key; it will match every relay call without a query string")
	}

	if err := h.registry.Save(p); err != nil {
		if errors.Is(err, preset.ErrRegistryFull) {
			http.Error(w, "preset registry is full", http.StatusInsufficientStorage)
			return
		}
		http.Error(w, "failed to save preset", http.StatusInternalServerError)
		return
	}

	h.logger.Info("preset saved", "key", p.Key, "url", p.URL)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Preset saved"))
}

func (h *handler) loadPreset(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Load(r.URL.RawQuery)
	if err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			http.Error(w, "Preset not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load preset", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) listPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

func (h *handler) deletePreset(w http.ResponseWriter, r *http.Request) {
	key := r.URL.RawQuery
	if err := h.registry.Delete(key); err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			http.Error(w, "Preset not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete preset", http.StatusInternalServerError)
		return
	}
	h.logger.Info("preset deleted", "key", key)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
