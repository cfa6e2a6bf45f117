// Package relay composes and executes outbound calls for inbound requests,
// optionally shaped by a preset from the registry.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"preset-relay/preset"
)

// ContentType is declared on every successful relay result regardless of the
// downstream content type.
const ContentType = "application/json"

var errInvalidUTF8 = errors.New("response body is not valid UTF-8")

// Presets is the registry view the engine needs.
type Presets interface {
	LookupForRelay(key string) (preset.Preset, bool)
}

// Options adjust how presets shape the outbound request.
type Options struct {
	// MirrorStatus reports the downstream status instead of 200.
	MirrorStatus bool
	// UsePresetMethod makes a matched preset's method authoritative.
	UsePresetMethod bool
	// UsePresetBody sends the preset body when the inbound body is empty.
	UsePresetBody bool
}

// Inbound is the part of an incoming request the engine consumes. Inbound
// headers are never forwarded and so are not carried.
type Inbound struct {
	Method string
	// Target is the raw request target, e.g. "/api/fetch?k=1" or an
	// absolute-form "http://host/path?k=1".
	Target string
	Body   []byte
}

// Result is a successful relay outcome.
type Result struct {
	StatusCode       int
	DownstreamStatus int
	ContentType      string
	Body             []byte
	Key              string
	Matched          bool
}

// Engine relays inbound requests through a Transport.
type Engine struct {
	presets   Presets
	transport Transport
	history   *History
	logger    *slog.Logger
	opts      Options
}

// NewEngine builds an engine. history may be nil.
func NewEngine(presets Presets, transport Transport, history *History, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		presets:   presets,
		transport: transport,
		history:   history,
		logger:    logger,
		opts:      opts,
	}
}

// History returns the engine's exchange history (possibly nil).
func (e *Engine) History() *History { return e.history }

// KeyFromTarget returns the query-string portion of a raw request target,
// verbatim and without any fragment. It is the registry lookup key.
func KeyFromTarget(target string) string {
	_, query, ok := strings.Cut(target, "?")
	if !ok {
		return ""
	}
	query, _, _ = strings.Cut(query, "#")
	return query
}

// Compose builds the outbound request for in. The inbound method is forwarded
// as received; only a preset's stored method is normalised. The returned bool
// reports whether a preset matched.
func (e *Engine) Compose(in Inbound) (*Request, string, bool) {
	key := KeyFromTarget(in.Target)
	p, found := e.presets.LookupForRelay(key)

	method := in.Method
	if method == "" {
		method = http.MethodGet
	}
	req := &Request{
		Method: method,
		URL:    in.Target,
		Header: make(http.Header),
		Body:   in.Body,
	}
	if !found {
		return req, key, false
	}

	req.URL = p.URL
	req.Header = p.Header()
	if e.opts.UsePresetMethod && p.Method != "" {
		req.Method = preset.NormalizeMethod(p.Method)
	}
	if e.opts.UsePresetBody && len(in.Body) == 0 && p.Body != "" {
		req.Body = []byte(p.Body)
	}
	return req, key, true
}

// Relay forwards in and returns the downstream body. Any failure to obtain a
// complete, UTF-8 body is returned as a *TransportError; downstream error
// statuses are not failures.
func (e *Engine) Relay(ctx context.Context, in Inbound) (*Result, error) {
	req, key, matched := e.Compose(in)
	start := time.Now()

	resp, err := e.transport.Send(ctx, req)
	if err == nil && !utf8.Valid(resp.Body) {
		err = errInvalidUTF8
	}

	ex := Exchange{
		Time:     start,
		Key:      key,
		Matched:  matched,
		Method:   req.Method,
		URL:      req.URL,
		Duration: time.Since(start),
	}

	if err != nil {
		ex.Error = err.Error()
		e.history.Add(ex)
		e.logger.Warn("relay failed",
			"key", key, "matched", matched, "method", req.Method, "url", req.URL, "error", err)
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	ex.StatusCode = resp.StatusCode
	e.history.Add(ex)
	e.logger.Debug("relayed",
		"key", key, "matched", matched, "method", req.Method, "url", req.URL,
		"status", resp.StatusCode, "bytes", len(resp.Body), "duration", ex.Duration)

	status := http.StatusOK
	if e.opts.MirrorStatus && resp.StatusCode > 0 {
		status = resp.StatusCode
	}
	return &Result{
		StatusCode:       status,
		DownstreamStatus: resp.StatusCode,
		ContentType:      ContentType,
		Body:             resp.Body,
		Key:              key,
		Matched:          matched,
	}, nil
}
