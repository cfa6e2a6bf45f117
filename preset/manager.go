package preset

import (
	"sort"
	"sync"
	"time"
)

// Registry is the concurrency-safe store of presets keyed by query string.
// A single mutex guards the map; it is never held across I/O or callbacks.
type Registry struct {
	mu         sync.Mutex
	presets    map[string]Preset
	maxEntries int
	listeners  []func(Change)

	now func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxEntries caps the number of distinct keys. Zero means unlimited.
func WithMaxEntries(n int) Option {
	return func(r *Registry) { r.maxEntries = n }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		presets: make(map[string]Preset),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnChange registers fn to be called after every successful Save or Delete.
// Listeners run on the caller's goroutine once the lock has been released.
func (r *Registry) OnChange(fn func(Change)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Save inserts or fully replaces the preset stored under p.Key. An empty key
// is accepted; callers are responsible for choosing meaningful keys.
func (r *Registry) Save(p Preset) error {
	stored := p.Clone()
	stored.UpdatedAt = r.now()

	r.mu.Lock()
	if _, exists := r.presets[stored.Key]; !exists && r.maxEntries > 0 && len(r.presets) >= r.maxEntries {
		r.mu.Unlock()
		return ErrRegistryFull
	}
	r.presets[stored.Key] = stored
	listeners := r.listeners
	r.mu.Unlock()

	out := stored.Clone()
	r.notify(listeners, Change{Type: ChangeSaved, Key: stored.Key, Preset: &out})
	return nil
}

// Load returns a copy of the preset stored under key, or ErrNotFound.
func (r *Registry) Load(key string) (Preset, error) {
	p, ok := r.LookupForRelay(key)
	if !ok {
		return Preset{}, ErrNotFound
	}
	return p, nil
}

// LookupForRelay is Load for callers where absence is expected.
func (r *Registry) LookupForRelay(key string) (Preset, bool) {
	r.mu.Lock()
	p, ok := r.presets[key]
	r.mu.Unlock()
	if !ok {
		return Preset{}, false
	}
	return p.Clone(), true
}

// Delete removes the preset stored under key.
func (r *Registry) Delete(key string) error {
	r.mu.Lock()
	if _, ok := r.presets[key]; !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.presets, key)
	listeners := r.listeners
	r.mu.Unlock()

	r.notify(listeners, Change{Type: ChangeDeleted, Key: key})
	return nil
}

// List returns copies of all presets ordered by key.
func (r *Registry) List() []Preset {
	r.mu.Lock()
	list := make([]Preset, 0, len(r.presets))
	for _, p := range r.presets {
		list = append(list, p.Clone())
	}
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.presets)
}

func (r *Registry) notify(listeners []func(Change), c Change) {
	for _, fn := range listeners {
		fn(c)
	}
}
