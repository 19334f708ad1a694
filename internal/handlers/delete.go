package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stoxy/stoxy/internal/auth"
	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/hierarchy"
)

// Delete handles DELETE. Data object content is removed from its backend
// before the hierarchy entry; if that fails the entry stays and the error is
// returned.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principal(r)

	if isObjectIDPath(r.URL.Path) {
		writeError(w, r, stoxyerr.ErrMethodNotAllowed.WithMessage("the object ID view is read-only"))
		return
	}
	t, err := h.locate(ctx, r.URL.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e := t.entity
	if e == nil {
		writeError(w, r, stoxyerr.ErrNotFound.WithMessage("%s not found", r.URL.Path))
		return
	}

	message := fmt.Sprintf("Deletion of %s (%s) via CDMI", e.Name, e.ID)
	fail := func(err error) {
		recordOp("delete", e.Kind, err)
		h.logAudit(ctx, p, t.path, e.Owner, message, err)
		writeError(w, r, err)
	}

	if err := h.allow(p, auth.ActionDelete, e); err != nil {
		fail(err)
		return
	}
	if e.IsRoot() {
		fail(stoxyerr.ErrBadRequest.WithMessage("the root container cannot be deleted"))
		return
	}

	if e.Kind == hierarchy.KindDataObject && e.Value != "" {
		if err := h.deleteContent(r, e, p); err != nil {
			fail(err)
			return
		}
	}
	if err := h.tree.Detach(ctx, e); err != nil {
		fail(err)
		return
	}

	recordOp("delete", e.Kind, nil)
	h.logAudit(ctx, p, t.path, e.Owner, fmt.Sprintf("Deleted %s (%s) via CDMI", e.Name, e.ID), nil)
	w.WriteHeader(http.StatusNoContent)
}

// deleteContent removes e's backend content. Content that is already gone
// does not block removing the entry.
func (h *Handler) deleteContent(r *http.Request, e *hierarchy.Entity, p auth.Principal) error {
	store, err := h.resolver.Existing(e)
	if err != nil {
		return err
	}
	err = store.Delete(r.Context(), p.Token)
	if errors.Is(err, stoxyerr.ErrNotFound) {
		slog.Warn("Backend content already absent", "path", r.URL.Path, "oid", e.ID, "uri", e.Value)
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting content of %s: %w", e.Name, err)
	}
	return nil
}
