package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// skipPaths is the set of paths that carry no principal.
var skipPaths = map[string]bool{
	"/health":       true,
	"/metrics":      true,
	"/docs":         true,
	"/docs/":        true,
	"/openapi.json": true,
}

// Middleware returns HTTP middleware that resolves the request's principal
// and stores it on the request context. It never rejects a request; unknown
// tokens fall back to the anonymous principal and permission checks happen
// per entity in the handlers.
func Middleware(res *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if skipPaths[path] || strings.HasPrefix(path, "/docs") {
				next.ServeHTTP(w, r)
				return
			}

			p := res.Resolve(r)
			if p.Anonymous && p.Token != "" {
				slog.Debug("Unknown token, continuing as anonymous", "principal", p.Name, "path", path)
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
