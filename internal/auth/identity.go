package auth

import "net/http"

// Identity resolves who is making a request. The token middleware only
// proves possession of the shared secret, so callers identify
// themselves separately.
type Identity interface {
	CurrentUser(r *http.Request) string
}

// HeaderIdentity reads the caller from the X-User header. Requests
// without one are attributed to "anonymous".
type HeaderIdentity struct{}

func (HeaderIdentity) CurrentUser(r *http.Request) string {
	if user := r.Header.Get("X-User"); user != "" {
		return user
	}
	return "anonymous"
}
