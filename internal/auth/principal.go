// Package auth resolves the principal behind a request and decides what that
// principal may do to an entity.
package auth

import (
	"context"
	"net/http"
)

// TokenHeader carries the caller's token. The raw value doubles as the
// credentials handed to remote backend stores.
const TokenHeader = "X-Auth-Token"

// Principal identifies the caller of a request.
type Principal struct {
	Name string
	// Token is the raw X-Auth-Token value, empty when none was sent.
	Token string
	// Anonymous is set when the token was absent or unknown.
	Anonymous bool
}

// contextKey is an unexported type used for context keys to avoid collisions.
type contextKey int

const principalKey contextKey = iota

// FromContext retrieves the principal set by Middleware. Without one the
// zero Principal is returned with ok false.
func FromContext(ctx context.Context) (p Principal, ok bool) {
	p, ok = ctx.Value(principalKey).(Principal)
	return p, ok
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Resolver maps request tokens to principals.
type Resolver struct {
	tokens    map[string]string
	anonymous string
}

// NewResolver creates a Resolver. Requests with a token missing from tokens
// resolve to the anonymous principal; the token itself is still forwarded.
func NewResolver(tokens map[string]string, anonymous string) *Resolver {
	if anonymous == "" {
		anonymous = "anonymous"
	}
	t := make(map[string]string, len(tokens))
	for k, v := range tokens {
		t[k] = v
	}
	return &Resolver{tokens: t, anonymous: anonymous}
}

// Resolve returns the principal for r.
func (res *Resolver) Resolve(r *http.Request) Principal {
	token := r.Header.Get(TokenHeader)
	if name, ok := res.tokens[token]; ok && token != "" {
		return Principal{Name: name, Token: token}
	}
	return Principal{Name: res.anonymous, Token: token, Anonymous: true}
}
