package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
)

// FastHTTPTransport sends requests with a fasthttp client. It is selected
// with TRANSPORT=fasthttp and trades net/http compatibility for pooled
// request/response objects.
type FastHTTPTransport struct {
	client  *fasthttp.Client
	timeout time.Duration
}

func NewFastHTTPTransport(timeout time.Duration) *FastHTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FastHTTPTransport{
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		timeout: timeout,
	}
}

func (t *FastHTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// fasthttp dials ":80" for host-less URIs instead of failing.
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("unsupported target %q: absolute URL required", req.URL)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// fasthttp has no context support. The call runs on its own goroutine,
	// which owns the pooled request/response, so Send can return as soon as
	// ctx is done; the abandoned call is bounded by the client's read and
	// write timeouts.
	done := make(chan fastResult, 1)
	go func() { done <- t.do(req) }()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fastResult struct {
	resp *Response
	err  error
}

func (t *FastHTTPTransport) do(req *Request) fastResult {
	freq := fasthttp.AcquireRequest()
	fresp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(freq)
	defer fasthttp.ReleaseResponse(fresp)

	freq.SetRequestURI(req.URL)
	freq.Header.SetMethod(req.Method)
	for k, vs := range req.Header {
		for _, v := range vs {
			freq.Header.Add(k, v)
		}
	}
	freq.SetBody(req.Body)

	// Follow redirects like net/http's client does.
	if err := t.client.DoRedirects(freq, fresp, MaxRedirects); err != nil {
		return fastResult{err: err}
	}

	header := make(http.Header)
	fresp.Header.VisitAll(func(k, v []byte) {
		header.Add(string(k), string(v))
	})

	// fresp is released on return; the body must be copied out.
	body := append([]byte(nil), fresp.Body()...)

	return fastResult{resp: &Response{
		StatusCode: fresp.StatusCode(),
		Header:     header,
		Body:       body,
	}}
}
