// Package auth defines the pluggable credential-injection contract the
// fetcher calls through. Concrete providers (basic, bearer, API key,
// OAuth2, mTLS, Vault) are supplied by the host; this package only
// carries the interface shape and a no-op implementation used when an
// endpoint has no auth_ref configured.
package auth

import "net/http"

// Authenticator injects credentials into an outbound request. A real
// implementation may also perform token acquisition/refresh, caching
// the token itself rather than relying on the engine's response cache.
type Authenticator interface {
	// Authenticate mutates req in place (headers, query params) before
	// it is sent.
	Authenticate(req *http.Request) error
	// Refresh is called when the fetcher observes a 401, giving the
	// authenticator a chance to acquire a new token for later requests;
	// the fetcher does not retry the 401 itself.
	Refresh(req *http.Request) error
}

// None is the zero-configuration Authenticator used for endpoints with
// no auth_ref: it leaves the request untouched.
type None struct{}

func (None) Authenticate(*http.Request) error { return nil }
func (None) Refresh(*http.Request) error      { return nil }

// Registry resolves an auth_ref string to a configured Authenticator.
// The engine owns only the lookup; providers are registered by the
// embedding host.
type Registry struct {
	providers map[string]Authenticator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Authenticator)}
}

// Register binds ref to an Authenticator implementation.
func (r *Registry) Register(ref string, a Authenticator) {
	r.providers[ref] = a
}

// Resolve returns the Authenticator for ref, or None{} if ref is empty
// or unregistered.
func (r *Registry) Resolve(ref string) Authenticator {
	if ref == "" {
		return None{}
	}
	if a, ok := r.providers[ref]; ok {
		return a
	}
	return None{}
}
