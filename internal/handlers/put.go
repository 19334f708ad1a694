package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stoxy/stoxy/internal/auth"
	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/hierarchy"
	"github.com/stoxy/stoxy/internal/metrics"
	"github.com/stoxy/stoxy/internal/storage"
)

// putRequest is a decoded PUT. For raw uploads only mimeType and body are
// set.
type putRequest struct {
	kind hierarchy.Kind
	cdmi bool

	metadata map[string]string
	mimeType *string
	// value is the CDMI value field, still encoded.
	value    *string
	encoding string
	// length is the decoded content length when value is set.
	length int64

	// body is the raw upload for non-CDMI requests.
	body io.Reader
}

// content returns the reader to persist, or nil when the request carries no
// content.
func (req *putRequest) content() io.Reader {
	if req.cdmi {
		if req.value == nil {
			return nil
		}
		return strings.NewReader(*req.value)
	}
	return req.body
}

// Put handles PUT: create when the path does not exist yet, update
// otherwise.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principal(r)

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		writeError(w, r, stoxyerr.ErrBadRequest.WithMessage("No Content-Type specified"))
		return
	}

	if isObjectIDPath(r.URL.Path) {
		writeError(w, r, stoxyerr.ErrMethodNotAllowed.WithMessage("the object ID view is read-only"))
		return
	}
	t, err := h.locate(ctx, r.URL.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := r.Body
	if h.cfg.MaxObjectSize > 0 {
		body = http.MaxBytesReader(w, r.Body, h.cfg.MaxObjectSize)
	}
	req, err := decodePut(contentType, body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if t.entity == nil {
		h.create(w, r, p, t, req)
		return
	}
	h.update(w, r, p, t, req)
}

// decodePut reads the request body. CDMI bodies are read fully and checked
// field by field; raw bodies are left to stream.
func decodePut(contentType string, body io.Reader) (*putRequest, error) {
	kind, cdmi := hierarchy.KindForMediaType(contentType)
	if !cdmi {
		return &putRequest{kind: hierarchy.KindDataObject, mimeType: &contentType, body: body}, nil
	}
	req := &putRequest{kind: kind, cdmi: true, encoding: storage.EncodingUTF8}

	data, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, stoxyerr.ErrBadRequest.WithMessage("request body exceeds %d bytes", maxErr.Limit)
		}
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return req, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, stoxyerr.ErrBadRequest.WithMessage("request body must be a JSON object")
	}

	var v stoxyerr.ValidationError
	if m, ok := raw["metadata"]; ok {
		if err := json.Unmarshal(m, &req.metadata); err != nil {
			v.Add("metadata", "must be an object of strings")
		} else if req.metadata == nil {
			req.metadata = map[string]string{}
		}
	}
	if m, ok := raw["mimetype"]; ok {
		var s string
		if err := json.Unmarshal(m, &s); err != nil {
			v.Add("mimetype", "must be a string")
		}
		req.mimeType = &s
	}
	if m, ok := raw["valuetransferencoding"]; ok {
		if err := json.Unmarshal(m, &req.encoding); err != nil {
			v.Add("valuetransferencoding", "must be a string")
		}
		switch req.encoding {
		case storage.EncodingUTF8, storage.EncodingBase64:
		default:
			v.Add("valuetransferencoding", `must be "utf-8" or "base64"`)
		}
	}
	if m, ok := raw["value"]; ok {
		var s string
		if err := json.Unmarshal(m, &s); err != nil {
			v.Add("value", "must be a string")
		}
		req.value = &s
		req.length = int64(len(s))
		if req.encoding == storage.EncodingBase64 {
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				v.Add("value", "not valid base64")
			}
			req.length = int64(len(decoded))
		}
	}
	if kind == hierarchy.KindContainer {
		if req.value != nil {
			v.Add("value", "not allowed on containers")
		}
		if req.mimeType != nil {
			v.Add("mimetype", "not allowed on containers")
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, p auth.Principal, t *target, req *putRequest) {
	ctx := r.Context()
	parent := t.parent

	var e *hierarchy.Entity
	switch req.kind {
	case hierarchy.KindContainer:
		e = hierarchy.NewContainer(t.name, req.metadata)
	default:
		var mime string
		if req.mimeType != nil {
			mime = *req.mimeType
		}
		e = hierarchy.NewDataObject(t.name, mime, req.metadata)
		if req.cdmi && req.value != nil {
			e.ContentLength = req.length
		}
	}
	e.Owner = p.Name
	message := fmt.Sprintf("Creation of %s (%s) via CDMI", e.Name, e.ID)

	err := h.allow(p, auth.ActionCreate, parent)
	if err == nil {
		err = h.tree.Add(ctx, parent, e)
	}
	if err != nil {
		recordOp("create", e.Kind, err)
		h.logAudit(ctx, p, t.path, parent.Owner, message, err)
		writeError(w, r, err)
		return
	}
	slog.Debug("Entity attached", "path", t.path, "oid", e.ID, "kind", e.Kind)

	if e.Kind == hierarchy.KindDataObject {
		if err := h.persist(ctx, e, req, p); err != nil {
			recordOp("create", e.Kind, err)
			h.logAudit(ctx, p, t.path, e.Owner, message, err)
			writeStatusError(w, r, http.StatusInternalServerError, err)
			return
		}
	}
	recordOp("create", e.Kind, nil)
	h.logAudit(ctx, p, t.path, e.Owner, fmt.Sprintf("Created %s (%s) via CDMI", e.Name, e.ID), nil)

	if ctx.Err() != nil {
		slog.Debug("Client gone before response", "path", t.path, "oid", e.ID)
		return
	}
	h.respond(w, r, p, e, req, http.StatusCreated)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, p auth.Principal, t *target, req *putRequest) {
	ctx := r.Context()
	e := t.entity
	message := fmt.Sprintf("Update of %s (%s) via CDMI", e.Name, e.ID)

	fail := func(err error) {
		recordOp("update", e.Kind, err)
		h.logAudit(ctx, p, t.path, e.Owner, message, err)
		writeError(w, r, err)
	}
	if err := h.allow(p, auth.ActionUpdate, e); err != nil {
		fail(err)
		return
	}
	if req.kind != e.Kind {
		fail(stoxyerr.ErrBadRequest.WithMessage("%s is a %s, not a %s", t.path, e.Kind, req.kind))
		return
	}

	patch := hierarchy.Patch{Metadata: req.metadata, MimeType: req.mimeType}
	if req.cdmi && req.value != nil {
		patch.ContentLength = &req.length
	}
	updated := e.Clone()
	updated.Apply(patch)
	if err := h.tree.Update(ctx, updated); err != nil {
		fail(err)
		return
	}

	if e.Kind == hierarchy.KindDataObject && req.content() != nil {
		if err := h.persist(ctx, updated, req, p); err != nil {
			recordOp("update", e.Kind, err)
			h.logAudit(ctx, p, t.path, e.Owner, message, err)
			writeStatusError(w, r, http.StatusInternalServerError, err)
			return
		}
	}
	recordOp("update", e.Kind, nil)
	h.logAudit(ctx, p, t.path, e.Owner, fmt.Sprintf("Updated %s (%s) via CDMI", e.Name, e.ID), nil)

	if ctx.Err() != nil {
		return
	}
	h.respond(w, r, p, updated, req, http.StatusOK)
}

// persist saves the request content for an attached data object. It runs
// detached from the request context so a client disconnect cannot abandon a
// write that the committed hierarchy entry already points at.
func (h *Handler) persist(ctx context.Context, e *hierarchy.Entity, req *putRequest, p auth.Principal) error {
	content := req.content()
	if content == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	store, err := h.resolver.Resolve(ctx, e)
	if err != nil {
		return err
	}
	counted := &countingReader{r: content}
	if err := store.Save(ctx, counted, req.encoding, p.Token); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return stoxyerr.ErrBadRequest.WithMessage("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("storing content of %s: %w", e.Name, err)
	}
	metrics.BytesReceivedTotal.Add(float64(counted.n))

	if !req.cdmi && e.ContentLength != counted.n {
		updated := e.Clone()
		updated.ContentLength = counted.n
		if err := h.tree.Update(ctx, updated); err != nil {
			return fmt.Errorf("recording content length of %s: %w", e.Name, err)
		}
		e.ContentLength = counted.n
	}
	return nil
}

// respond writes the PUT response: the CDMI document without value for CDMI
// requests, an empty body otherwise.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, p auth.Principal, e *hierarchy.Entity, req *putRequest, status int) {
	if !req.cdmi {
		w.WriteHeader(status)
		return
	}
	f := &fieldFilter{}
	body, err := document(r.Context(), h.entityFields(e, p, f, false), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRaw(w, status, e.Kind.MediaType(), body)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
