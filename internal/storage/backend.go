// Package storage defines the backend store contract for Stoxy data objects
// and its implementations. A store is bound to exactly one data object's
// content, located by a backend URI; the hierarchy never stores bytes itself.
package storage

import (
	"context"
	"encoding/base64"
	"io"
	"sort"
	"strings"
	"sync"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/uri"
)

// DefaultChunkSize is the copy buffer size used when streaming content in and
// out of a store.
const DefaultChunkSize = 64 * 1024

// Value transfer encodings accepted by Save.
const (
	EncodingUTF8   = "utf-8"
	EncodingBase64 = "base64"
)

// Store reads and writes the content of a single data object. All methods
// must be safe for concurrent use.
type Store interface {
	// Save replaces the content with everything read from r, decoded
	// according to encoding ("" or "utf-8" for raw bytes, "base64").
	Save(ctx context.Context, r io.Reader, encoding, credentials string) error

	// Load opens the content for reading. The caller must close the result.
	// Missing content yields an error wrapping ErrNotFound.
	Load(ctx context.Context, credentials string) (io.ReadSeekCloser, error)

	// Delete removes the content. Missing content yields an error wrapping
	// ErrNotFound.
	Delete(ctx context.Context, credentials string) error
}

// Target identifies the content a Store is bound to.
type Target struct {
	URI uri.URI
	// ObjectID is the owning data object's stable identifier.
	ObjectID string
	// ObjectName is the data object's name at resolution time.
	ObjectName string
}

// Factory constructs a Store bound to target.
type Factory func(target Target) (Store, error)

// Registry maps URI schemes to store factories. It is populated once at
// startup and read concurrently afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds scheme to f, replacing any previous binding.
func (r *Registry) Register(scheme string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(scheme)] = f
}

// Open returns the store for target. It fails with ErrUnknownBackend when no
// factory is registered for the URI scheme.
func (r *Registry) Open(target Target) (Store, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(target.URI.Scheme)]
	r.mu.RUnlock()
	if !ok {
		return nil, stoxyerr.ErrUnknownBackend.WithMessage("no backend store registered for scheme %q", target.URI.Scheme)
	}
	return f(target)
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// decodeReader wraps r so reads yield decoded bytes.
func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingUTF8:
		return r, nil
	case EncodingBase64:
		return base64.NewDecoder(base64.StdEncoding, r), nil
	default:
		return nil, stoxyerr.ErrBadRequest.WithMessage("unsupported value transfer encoding %q", encoding)
	}
}

// notFound wraps ErrNotFound with the location that was missing.
func notFound(where string) error {
	return stoxyerr.ErrNotFound.WithMessage("no content at %s", where)
}
