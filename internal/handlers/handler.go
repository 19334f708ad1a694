// Package handlers implements the CDMI request handler: GET, PUT and DELETE
// against containers and data objects of the hierarchy, with content
// persisted through the backend resolver.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stoxy/stoxy/internal/audit"
	"github.com/stoxy/stoxy/internal/auth"
	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/hierarchy"
	"github.com/stoxy/stoxy/internal/metrics"
	"github.com/stoxy/stoxy/internal/resolver"
	"github.com/stoxy/stoxy/internal/storage"
)

// CDMI protocol constants.
const (
	VersionHeader = "X-CDMI-Specification-Version"
	Version       = "1.0.2"

	// ObjectIDSegment is the first path segment of the object-ID view.
	ObjectIDSegment = "cdmi_objectid"
)

// Config holds handler tunables.
type Config struct {
	// ChunkSize is the streaming chunk size for non-CDMI GET.
	ChunkSize int
	// MaxObjectSize caps PUT bodies in bytes. Zero means no cap.
	MaxObjectSize int64
}

// Handler serves CDMI requests.
type Handler struct {
	tree     *hierarchy.Tree
	resolver *resolver.Resolver
	perms    auth.PermissionChecker
	audit    audit.Logger
	cfg      Config
}

// New creates a Handler with the given dependencies.
func New(tree *hierarchy.Tree, res *resolver.Resolver, perms auth.PermissionChecker, auditLog audit.Logger, cfg Config) *Handler {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = storage.DefaultChunkSize
	}
	if auditLog == nil {
		auditLog = audit.Multi{}
	}
	return &Handler{
		tree:     tree,
		resolver: res,
		perms:    perms,
		audit:    auditLog,
		cfg:      cfg,
	}
}

// target is what a request path points at.
type target struct {
	path string
	// entity is nil when the path names a child that does not exist yet.
	entity *hierarchy.Entity
	// parent and name locate the missing child.
	parent *hierarchy.Entity
	name   string
	// index is set for the object-ID listing itself.
	index bool
}

// splitPath returns the non-empty segments of p.
func splitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// isObjectIDPath reports whether path falls in the read-only object-ID view.
func isObjectIDPath(path string) bool {
	segs := splitPath(path)
	return len(segs) > 0 && segs[0] == ObjectIDSegment
}

// locate resolves a request path. Only the last segment may be missing; a
// missing intermediate container is ErrNotFound.
func (h *Handler) locate(ctx context.Context, path string) (*target, error) {
	segs := splitPath(path)
	t := &target{path: path}

	if len(segs) > 0 && segs[0] == ObjectIDSegment {
		switch len(segs) {
		case 1:
			t.index = true
			return t, nil
		case 2:
			e, err := h.tree.Lookup(ctx, segs[1])
			if err != nil {
				return nil, err
			}
			t.entity = e
			return t, nil
		default:
			return nil, stoxyerr.ErrNotFound.WithMessage("%s not found", path)
		}
	}

	if len(segs) == 0 {
		root, err := h.tree.Root(ctx)
		if err != nil {
			return nil, err
		}
		t.entity = root
		return t, nil
	}

	parent, err := h.tree.Walk(ctx, segs[:len(segs)-1])
	if err != nil {
		return nil, err
	}
	if !parent.IsContainer() {
		return nil, stoxyerr.ErrNotFound.WithMessage("%s not found", path)
	}
	name := segs[len(segs)-1]
	e, err := h.tree.Get(ctx, parent, name)
	switch {
	case err == nil:
		t.entity = e
	case errors.Is(err, stoxyerr.ErrNotFound):
		t.parent, t.name = parent, name
	default:
		return nil, err
	}
	return t, nil
}

// principal returns the caller set by auth.Middleware, or an anonymous
// principal when the handler runs without it.
func principal(r *http.Request) auth.Principal {
	if p, ok := auth.FromContext(r.Context()); ok {
		return p
	}
	return auth.Principal{Name: "anonymous", Token: r.Header.Get(auth.TokenHeader), Anonymous: true}
}

func (h *Handler) allow(p auth.Principal, action auth.Action, e *hierarchy.Entity) error {
	if h.perms == nil || h.perms.Allow(p, action, e) {
		return nil
	}
	return stoxyerr.ErrForbidden
}

// isCDMI reports whether the request asked for the CDMI envelope.
func isCDMI(r *http.Request) bool {
	return r.Header.Get(VersionHeader) != ""
}

// logAudit records an audit event, even for a client that has gone.
// Failures carry the error code and message.
func (h *Handler) logAudit(ctx context.Context, p auth.Principal, subject, owner, message string, err error) {
	e := audit.Event{
		Principal: p.Name,
		Subject:   subject,
		Owner:     owner,
		Message:   message,
	}
	if err != nil {
		e.Failed = true
		e.Message = fmt.Sprintf("%s failed: %s: %s", message, stoxyerr.CodeOf(err), err.Error())
	}
	h.audit.Log(context.WithoutCancel(ctx), e)
}

func recordOp(op string, kind hierarchy.Kind, err error) {
	metrics.CDMIOperationsTotal.WithLabelValues(op, kind.String(), metrics.Status(err)).Inc()
}

// writeJSON writes body as a JSON response.
func writeJSON(w http.ResponseWriter, status int, contentType string, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("Encoding response failed", "error", err)
		status = http.StatusInternalServerError
		data = []byte(`{"errorMessage":"internal error"}`)
		contentType = "application/json"
	}
	writeRaw(w, status, contentType, data)
}

func writeRaw(w http.ResponseWriter, status int, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(data)
}

// writeError renders err as {"errors": {...}} for validation failures and
// {"errorMessage": "..."} otherwise. Nothing is written once the client has
// gone.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if clientGone(r, err) {
		return
	}
	status := stoxyerr.StatusOf(err)
	var verr *stoxyerr.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, status, "application/json", map[string]map[string]string{"errors": verr.Fields})
		return
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, "application/json", map[string]string{"errorMessage": err.Error()})
}

// writeStatusError renders err with a forced status, used for content
// failures that follow a committed hierarchy change.
func writeStatusError(w http.ResponseWriter, r *http.Request, status int, err error) {
	slog.Error("Request failed after commit", "method", r.Method, "path", r.URL.Path, "error", err)
	if r.Context().Err() != nil {
		return
	}
	writeJSON(w, status, "application/json", map[string]string{"errorMessage": err.Error()})
}

// clientGone reports whether the request context is done, logging the
// suppressed error.
func clientGone(r *http.Request, err error) bool {
	if r.Context().Err() == nil {
		return false
	}
	slog.Debug("Client gone, dropping error response", "method", r.Method, "path", r.URL.Path, "error", err)
	return true
}
