// Package uri parses and formats the internal backend URIs that locate a data
// object's content independently of where its hierarchy metadata lives.
//
// The accepted form is
//
//	scheme[+subscheme]://host/path
//
// where scheme selects the backend store, subscheme (optional) names a
// protocol-qualified base the backend resolves on its own, host may be empty
// and path is either empty or starts with "/". The path is opaque to
// everything except the backend implementation.
package uri

import (
	"strings"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
)

// schemeDelimiter separates the scheme part from host and path.
const schemeDelimiter = "://"

// URI is a parsed backend URI.
type URI struct {
	Scheme    string
	Subscheme string
	Host      string
	Path      string
}

// Parse splits raw into its components. It fails with ErrMalformedURI when
// the scheme delimiter is absent or the scheme part is not well formed.
func Parse(raw string) (URI, error) {
	idx := strings.Index(raw, schemeDelimiter)
	if idx < 0 {
		return URI{}, stoxyerr.ErrMalformedURI.WithMessage("malformed backend URI %q: missing %q", raw, schemeDelimiter)
	}

	var u URI
	var compound bool
	u.Scheme, u.Subscheme, compound = strings.Cut(raw[:idx], "+")
	if !validSchemeName(u.Scheme) {
		return URI{}, stoxyerr.ErrMalformedURI.WithMessage("malformed backend URI %q: invalid scheme", raw)
	}
	if compound && !validSchemeName(u.Subscheme) {
		return URI{}, stoxyerr.ErrMalformedURI.WithMessage("malformed backend URI %q: invalid subscheme", raw)
	}

	rest := raw[idx+len(schemeDelimiter):]
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		u.Host, u.Path = rest[:slash], rest[slash:]
	} else {
		u.Host = rest
	}
	return u, nil
}

// Format builds a URI string from its components. Parse(Format(...))
// reproduces the inputs for any scheme/subscheme accepted by Parse, any host
// without "/" and any path that is empty or starts with "/".
func Format(scheme, subscheme, host, path string) string {
	var b strings.Builder
	b.Grow(len(scheme) + len(subscheme) + len(host) + len(path) + 4)
	b.WriteString(scheme)
	if subscheme != "" {
		b.WriteByte('+')
		b.WriteString(subscheme)
	}
	b.WriteString(schemeDelimiter)
	b.WriteString(host)
	if path != "" && path[0] != '/' {
		b.WriteByte('/')
	}
	b.WriteString(path)
	return b.String()
}

// String formats u.
func (u URI) String() string {
	return Format(u.Scheme, u.Subscheme, u.Host, u.Path)
}

// Compound reports whether u uses the scheme+subscheme form.
func (u URI) Compound() bool {
	return u.Subscheme != ""
}

// Valid reports whether raw parses.
func Valid(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}

// validSchemeName accepts RFC 3986 scheme characters except "+", which is
// reserved as the subscheme separator.
func validSchemeName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}
