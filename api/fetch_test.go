package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"preset-relay/api"
	"preset-relay/config"
	"preset-relay/relay"
)

type upstreamHit struct {
	method string
	uri    string
	header http.Header
	body   string
}

func newUpstream(t *testing.T, status int, reply string) (*httptest.Server, <-chan upstreamHit) {
	t.Helper()
	hits := make(chan upstreamHit, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		hits <- upstreamHit{method: r.Method, uri: r.URL.RequestURI(), header: r.Header.Clone(), body: string(b)}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func decodeData(t *testing.T, resp *http.Response) string {
	t.Helper()
	var out struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode {data}: %v", err)
	}
	return out.Data
}

func TestFetchPresetDirected(t *testing.T) {
	upstream, hits := newUpstream(t, http.StatusOK, `{"answer":42}`)
	env := newTestEnv(t)

	savePreset(t, env.srv.URL, "k=1",
		`{"url":"`+upstream.URL+`/x","method":"GET","headers":{"X-Tag":"v"}}`).Body.Close()

	resp, err := http.Post(env.srv.URL+"/api/fetch?k=1", "text/plain", strings.NewReader("inbound body"))
	if err != nil {
		t.Fatalf("POST /api/fetch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
	if got := decodeData(t, resp); got != `{"answer":42}` {
		t.Fatalf("unexpected data %q", got)
	}

	hit := <-hits
	if hit.uri != "/x" {
		t.Fatalf("expected upstream path /x, got %q", hit.uri)
	}
	if hit.method != http.MethodPost {
		t.Fatalf("expected inbound method POST, got %s", hit.method)
	}
	if hit.header.Get("X-Tag") != "v" {
		t.Fatalf("expected X-Tag header, got %v", hit.header)
	}
	if hit.header.Get("Content-Type") != "" {
		t.Fatalf("inbound headers must not be forwarded, got Content-Type %q", hit.header.Get("Content-Type"))
	}
	if hit.body != "inbound body" {
		t.Fatalf("expected inbound body verbatim, got %q", hit.body)
	}
}

func TestFetchPassThroughAbsoluteTarget(t *testing.T) {
	upstream, hits := newUpstream(t, http.StatusOK, "hello")
	env := newTestEnv(t)
	savePreset(t, env.srv.URL, "other", `{"url":"http://unused.test/","headers":{"X-Tag":"v"}}`).Body.Close()

	// Sending through the relay as an HTTP proxy produces an absolute-form
	// request target, which pass-through mode re-issues verbatim.
	proxyURL, _ := url.Parse(env.srv.URL)
	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}

	resp, err := client.Get(upstream.URL + "/api/fetch?nomatch=1")
	if err != nil {
		t.Fatalf("GET via relay: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := decodeData(t, resp); got != "hello" {
		t.Fatalf("unexpected data %q", got)
	}

	hit := <-hits
	if hit.uri != "/api/fetch?nomatch=1" {
		t.Fatalf("unexpected upstream target %q", hit.uri)
	}
	if hit.header.Get("X-Tag") != "" {
		t.Fatal("pass-through must not add preset headers")
	}
}

func TestFetchPassThroughRelativeTargetFails(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/fetch?nomatch=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(body), "Request failed: ") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestFetchDownstreamErrorRelayedAs200(t *testing.T) {
	upstream, _ := newUpstream(t, http.StatusInternalServerError, "upstream broke")
	env := newTestEnv(t)
	savePreset(t, env.srv.URL, "k", `{"url":"`+upstream.URL+`"}`).Body.Close()

	resp, err := http.Get(env.srv.URL + "/api/fetch?k")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := decodeData(t, resp); got != "upstream broke" {
		t.Fatalf("unexpected data %q", got)
	}
}

func TestFetchMirrorStatusRawMode(t *testing.T) {
	upstream, _ := newUpstream(t, http.StatusNotFound, `{"missing":true}`)
	env := newTestEnv(t,
		withRelayOptions(relay.Options{MirrorStatus: true}),
		withAPIOptions(api.Options{ResponseMode: config.ResponseRaw}))
	savePreset(t, env.srv.URL, "k", `{"url":"`+upstream.URL+`"}`).Body.Close()

	resp, err := http.Get(env.srv.URL + "/api/fetch?k")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected mirrored 404, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"missing":true}` {
		t.Fatalf("expected raw body, got %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
}

func TestFetchTransportFailure(t *testing.T) {
	failing := relay.TransportFunc(func(context.Context, *relay.Request) (*relay.Response, error) {
		return nil, errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
	})
	env := newTestEnv(t, withTransport(failing))
	savePreset(t, env.srv.URL, "k", `{"url":"https://unreachable.test/"}`).Body.Close()

	resp, err := http.Get(env.srv.URL + "/api/fetch?k")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "connection refused") {
		t.Fatalf("expected transport error text, got %q", body)
	}
}

func TestFetchAnyMethod(t *testing.T) {
	upstream, hits := newUpstream(t, http.StatusOK, "")
	env := newTestEnv(t)
	savePreset(t, env.srv.URL, "k", `{"url":"`+upstream.URL+`"}`).Body.Close()

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		req, _ := http.NewRequest(m, env.srv.URL+"/api/fetch?k", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", m, resp.StatusCode)
		}
		if hit := <-hits; hit.method != m {
			t.Fatalf("expected upstream method %s, got %s", m, hit.method)
		}
	}
}

func TestHistoryEndpoint(t *testing.T) {
	upstream, _ := newUpstream(t, http.StatusAccepted, "ok")
	env := newTestEnv(t)
	savePreset(t, env.srv.URL, "k", `{"url":"`+upstream.URL+`"}`).Body.Close()

	resp, _ := http.Get(env.srv.URL + "/api/fetch?k")
	resp.Body.Close()

	hResp, err := http.Get(env.srv.URL + "/api/history")
	if err != nil {
		t.Fatal(err)
	}
	defer hResp.Body.Close()
	var hist []relay.Exchange
	if err := json.NewDecoder(hResp.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist) != 1 || hist[0].Key != "k" || !hist[0].Matched || hist[0].StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected history %+v", hist)
	}
}

func TestFetchBodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	handler := api.RegisterRoutes(env.registry, env.engine, env.hub, nil, api.Options{})

	// Valid JSON up to the cap so the save path fails on size, not syntax.
	big := `{"url":"` + strings.Repeat("x", 10<<20) + `"}`
	for _, target := range []string{"/api/fetch?k", "/api/save_preset?k"} {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(big))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("%s: expected 413, got %d", target, rec.Code)
		}
	}
}
