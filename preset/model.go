package preset

import (
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Preset is a reusable request template addressed by Key.
type Preset struct {
	Key       string            `json:"key" yaml:"key"`
	URL       string            `json:"url" yaml:"url"`
	Method    string            `json:"method" yaml:"method"`
	Headers   map[string]string `json:"headers" yaml:"headers"`
	Body      string            `json:"body" yaml:"body"`
	UpdatedAt time.Time         `json:"updated_at" yaml:"-"`
}

var (
	ErrNotFound      = errors.New("preset not found")
	ErrRegistryFull  = errors.New("preset registry is full")
	ErrInvalidPreset = errors.New("invalid preset")
)

// NormalizeMethod maps m onto the supported method set. Anything outside
// GET, POST, PUT, PATCH and DELETE is treated as GET.
func NormalizeMethod(m string) string {
	switch up := strings.ToUpper(strings.TrimSpace(m)); up {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return up
	default:
		return http.MethodGet
	}
}

// Validate reports whether p can be stored: the URL must be an absolute
// http or https URL and no two header names may differ only in case.
func (p Preset) Validate() error {
	if p.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidPreset)
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url must be absolute http(s), got %q", ErrInvalidPreset, p.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidPreset)
	}
	seen := make(map[string]string, len(p.Headers))
	for k := range p.Headers {
		ck := textproto.CanonicalMIMEHeaderKey(k)
		if prev, ok := seen[ck]; ok {
			return fmt.Errorf("%w: headers %q and %q name the same header", ErrInvalidPreset, prev, k)
		}
		seen[ck] = k
	}
	return nil
}

// Clone returns a deep copy of p with header names canonicalised. When two
// names differ only in case, the one sorting last wins.
func (p Preset) Clone() Preset {
	cp := p
	if p.Headers != nil {
		names := make([]string, 0, len(p.Headers))
		for k := range p.Headers {
			names = append(names, k)
		}
		sort.Strings(names)
		cp.Headers = make(map[string]string, len(p.Headers))
		for _, k := range names {
			cp.Headers[textproto.CanonicalMIMEHeaderKey(k)] = p.Headers[k]
		}
	}
	return cp
}

// Header returns the preset headers as an http.Header.
func (p Preset) Header() http.Header {
	h := make(http.Header, len(p.Headers))
	for k, v := range p.Headers {
		h.Set(k, v)
	}
	return h
}

// ChangeType describes a registry mutation.
type ChangeType string

const (
	ChangeSaved   ChangeType = "saved"
	ChangeDeleted ChangeType = "deleted"
)

// Change is emitted after a successful Save or Delete.
type Change struct {
	Type   ChangeType `json:"type"`
	Key    string     `json:"key"`
	Preset *Preset    `json:"preset,omitempty"`
}
