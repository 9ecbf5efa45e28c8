package resilience

import "sync"

// Registry owns one Breaker per endpoint plus, when an endpoint declares
// a bulkhead_group, a shared Breaker scoped to that group name. An
// endpoint in a group is guarded by the group breaker in place of its
// own, so its failures and state are shared with the group's other
// endpoints.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
	groups   map[string]*Breaker
}

// NewRegistry creates an empty Registry using cfg as the default
// configuration for any breaker created without an explicit override.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
		groups:   make(map[string]*Breaker),
	}
}

// Endpoint returns (creating if absent) the Breaker for the named
// endpoint, using override in place of the registry default when
// override is non-nil.
func (r *Registry) Endpoint(id string, override *Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[id]; ok {
		return b
	}
	cfg := r.cfg
	if override != nil {
		cfg = *override
	}
	b := New(cfg)
	r.breakers[id] = b
	return b
}

// Group returns (creating if absent) the shared Breaker for a bulkhead
// group name. Group breakers always use the registry's default
// configuration: per-endpoint overrides apply only to that endpoint's
// own breaker, never to the group it shares with siblings.
func (r *Registry) Group(name string) *Breaker {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.groups[name]; ok {
		return b
	}
	b := New(r.cfg)
	r.groups[name] = b
	return b
}

// States returns the current state of every endpoint breaker, keyed by
// endpoint ID, for metrics reporting and diagnostics.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.breakers))
	for id, b := range r.breakers {
		out[id] = b.State()
	}
	return out
}
