package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/stoxy/stoxy/internal/auth"
	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/hierarchy"
	"github.com/stoxy/stoxy/internal/metrics"
)

// Get handles GET on any hierarchy path. Containers and CDMI requests get a
// CDMI document; other requests for data objects stream raw content.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principal(r)

	t, err := h.locate(ctx, r.URL.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if t.index {
		h.getIndex(w, r, p)
		return
	}
	e := t.entity
	if e == nil {
		writeError(w, r, stoxyerr.ErrNotFound.WithMessage("%s not found", r.URL.Path))
		return
	}
	if err := h.allow(p, auth.ActionView, e); err != nil {
		writeError(w, r, err)
		return
	}

	if !isCDMI(r) && e.Kind == hierarchy.KindDataObject {
		err := h.stream(w, r, e, p)
		recordOp("stream", e.Kind, err)
		return
	}

	f := parseFilter(r.URL.RawQuery)
	body, err := document(ctx, h.entityFields(e, p, f, true), f)
	recordOp("read", e.Kind, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, e.Kind.MediaType(), body)
}

// getIndex renders the object-ID view as a container listing every entity
// the principal may view.
func (h *Handler) getIndex(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	ctx := r.Context()
	index, err := h.tree.RebuildIndex(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	metrics.IndexEntries.Set(float64(len(index)))

	ids := make([]string, 0, len(index))
	for id, e := range index {
		if h.allow(p, auth.ActionView, e) == nil {
			ids = append(ids, childID(e, id))
		}
	}
	sort.Strings(ids)

	fields := []docField{
		{"objectType", constant(hierarchy.MediaTypeContainer)},
		{"objectName", constant(ObjectIDSegment + "/")},
		{"completionStatus", constant("Complete")},
		{"metadata", constant(map[string]string{})},
		{"childrenrange", constant(childrenRange(len(ids)))},
		{"children", func(context.Context) (any, error) { return ids, nil }},
	}
	body, err := document(ctx, fields, parseFilter(r.URL.RawQuery))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, hierarchy.MediaTypeContainer, body)
}

func childID(e *hierarchy.Entity, id string) string {
	if e.IsContainer() {
		return id + "/"
	}
	return id
}
