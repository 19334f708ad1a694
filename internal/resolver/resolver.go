// Package resolver decides where a data object's content lives and hands out
// a Store bound to that location.
//
// An object whose value already holds a backend URI always resolves to it.
// Otherwise the URI is derived from the nearest ancestor container carrying
// backend metadata and written onto the object exactly once, so later
// changes to ancestor metadata never relocate content that already exists.
package resolver

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/hierarchy"
	"github.com/stoxy/stoxy/internal/metrics"
	"github.com/stoxy/stoxy/internal/storage"
	"github.com/stoxy/stoxy/internal/uri"
)

// Container metadata keys that select a backend.
const (
	KeyBackend             = "backend"
	KeyBackendBase         = "backend_base"
	KeyBackendBaseProtocol = "backend_base_protocol"
)

// DefaultBackend is the scheme used when no ancestor names one.
const DefaultBackend = "file"

// Resolver maps data objects to backend stores.
type Resolver struct {
	tree        *hierarchy.Tree
	registry    *storage.Registry
	defaultRoot string
}

// New creates a Resolver. defaultRoot is the base used when no ancestor sets
// backend_base.
func New(tree *hierarchy.Tree, registry *storage.Registry, defaultRoot string) *Resolver {
	return &Resolver{tree: tree, registry: registry, defaultRoot: defaultRoot}
}

// Resolve returns the store for obj. On first use it derives obj's URI and
// persists it; if another request won that race, the persisted URI is used.
func (r *Resolver) Resolve(ctx context.Context, obj *hierarchy.Entity) (storage.Store, error) {
	if obj.Kind != hierarchy.KindDataObject {
		return nil, stoxyerr.ErrBadRequest.WithMessage("%q is not a data object", obj.Name)
	}
	if obj.Value != "" {
		return r.open(obj, obj.Value)
	}

	raw, err := r.Derive(ctx, obj)
	if err != nil {
		return nil, err
	}
	// Check the scheme before persisting so an unknown backend leaves the
	// object unassigned.
	if _, err := r.open(obj, raw); err != nil {
		return nil, err
	}
	effective, err := r.tree.AssignValue(ctx, obj, raw)
	if err != nil {
		return nil, fmt.Errorf("assigning backend URI: %w", err)
	}
	return r.open(obj, effective)
}

// Existing returns the store for an object that already has a URI, without
// deriving one. Objects that never stored content yield ErrNotFound.
func (r *Resolver) Existing(obj *hierarchy.Entity) (storage.Store, error) {
	if obj.Value == "" {
		return nil, stoxyerr.ErrNotFound.WithMessage("%q has no stored content", obj.Name)
	}
	return r.open(obj, obj.Value)
}

// Derive computes the backend URI for obj from its ancestry without
// persisting it. The nearest ancestor that sets any backend key supplies all
// of them.
func (r *Resolver) Derive(ctx context.Context, obj *hierarchy.Entity) (string, error) {
	ancestors, err := r.tree.Ancestors(ctx, obj)
	if err != nil {
		return "", fmt.Errorf("loading ancestors of %q: %w", obj.Name, err)
	}
	var md map[string]string
	for _, a := range ancestors {
		if hasBackendKeys(a.Metadata) {
			md = a.Metadata
			break
		}
	}

	scheme := strings.ToLower(md[KeyBackend])
	if scheme == "" {
		scheme = DefaultBackend
	}
	if proto := md[KeyBackendBaseProtocol]; proto != "" {
		return uri.Format(scheme, proto, "", ""), nil
	}

	base := md[KeyBackendBase]
	if base == "" {
		base = r.defaultRoot
	}
	if scheme == DefaultBackend && !strings.HasPrefix(base, "/") {
		abs, err := filepath.Abs(base)
		if err != nil {
			return "", fmt.Errorf("resolving backend base %q: %w", base, err)
		}
		base = filepath.ToSlash(abs)
	}
	raw := scheme + "://" + strings.TrimSuffix(base, "/") + "/" + obj.Name
	if _, err := uri.Parse(raw); err != nil {
		return "", err
	}
	return raw, nil
}

func hasBackendKeys(md map[string]string) bool {
	for _, k := range []string{KeyBackend, KeyBackendBase, KeyBackendBaseProtocol} {
		if md[k] != "" {
			return true
		}
	}
	return false
}

func (r *Resolver) open(obj *hierarchy.Entity, raw string) (storage.Store, error) {
	u, err := uri.Parse(raw)
	if err != nil {
		return nil, err
	}
	store, err := r.registry.Open(storage.Target{URI: u, ObjectID: obj.ID, ObjectName: obj.Name})
	if err != nil {
		return nil, err
	}
	return &instrumented{Store: store, scheme: u.Scheme}, nil
}

// instrumented records backend metrics around every store call.
type instrumented struct {
	storage.Store
	scheme string
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	metrics.BackendOperationsTotal.WithLabelValues(s.scheme, op, metrics.Status(err)).Inc()
	metrics.BackendOperationDuration.WithLabelValues(s.scheme, op).Observe(time.Since(start).Seconds())
}

func (s *instrumented) Save(ctx context.Context, rd io.Reader, encoding, credentials string) error {
	start := time.Now()
	err := s.Store.Save(ctx, rd, encoding, credentials)
	s.observe("save", start, err)
	return err
}

func (s *instrumented) Load(ctx context.Context, credentials string) (io.ReadSeekCloser, error) {
	start := time.Now()
	rc, err := s.Store.Load(ctx, credentials)
	s.observe("load", start, err)
	return rc, err
}

func (s *instrumented) Delete(ctx context.Context, credentials string) error {
	start := time.Now()
	err := s.Store.Delete(ctx, credentials)
	s.observe("delete", start, err)
	return err
}

// Unwrap returns the underlying store.
func (s *instrumented) Unwrap() storage.Store {
	return s.Store
}
