package api_test

import (
	"net/http/httptest"
	"testing"

	"preset-relay/api"
	"preset-relay/logging"
	"preset-relay/preset"
	"preset-relay/relay"
	"preset-relay/watch"
)

type testEnv struct {
	srv      *httptest.Server
	registry *preset.Registry
	hub      *watch.Hub
	engine   *relay.Engine
}

type envOption func(*envConfig)

type envConfig struct {
	transport  relay.Transport
	relayOpts  relay.Options
	apiOpts    api.Options
	maxEntries int
}

func withTransport(tr relay.Transport) envOption {
	return func(c *envConfig) { c.transport = tr }
}

func withRelayOptions(o relay.Options) envOption {
	return func(c *envConfig) { c.relayOpts = o }
}

func withAPIOptions(o api.Options) envOption {
	return func(c *envConfig) { c.apiOpts = o }
}

func withMaxEntries(n int) envOption {
	return func(c *envConfig) { c.maxEntries = n }
}

// newTestEnv wires a registry, hub and engine the way main does and serves
// them from an httptest server.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{transport: relay.NewHTTPTransport(0)}
	for _, o := range opts {
		o(&cfg)
	}

	reg := preset.NewRegistry(preset.WithMaxEntries(cfg.maxEntries))
	hub := watch.NewHub()
	reg.OnChange(hub.Publish)
	engine := relay.NewEngine(reg, cfg.transport, relay.NewHistory(relay.DefaultHistorySize), logging.Nop(), cfg.relayOpts)

	srv := httptest.NewServer(api.RegisterRoutes(reg, engine, hub, logging.Nop(), cfg.apiOpts))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, registry: reg, hub: hub, engine: engine}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestEnv(t).srv
}
