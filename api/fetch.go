package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"preset-relay/config"
	"preset-relay/relay"
)

type fetchResponse struct {
	Data string `json:"data"`
}

func (h *handler) fetch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.engine.Relay(r.Context(), relay.Inbound{
		Method: r.Method,
		Target: r.RequestURI,
		Body:   body,
	})
	if err != nil {
		http.Error(w, "Request failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.WriteHeader(res.StatusCode)
	if h.opts.ResponseMode == config.ResponseRaw {
		_, _ = w.Write(res.Body)
		return
	}
	_ = json.NewEncoder(w).Encode(fetchResponse{Data: string(res.Body)})
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.History().Snapshot())
}
