package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/stoxy/stoxy/internal/auth"
	"github.com/stoxy/stoxy/internal/hierarchy"
)

// docField is one entry of a CDMI document. eval runs only for fields the
// filter keeps, so loading object content is skipped unless value is asked
// for.
type docField struct {
	name string
	eval func(ctx context.Context) (any, error)
}

// document renders fields in order as a JSON object.
func document(ctx context.Context, fields []docField, f *fieldFilter) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, fd := range fields {
		if !f.wants(fd.name) {
			continue
		}
		v, err := fd.eval(ctx)
		if err != nil {
			return nil, fmt.Errorf("evaluating %s: %w", fd.name, err)
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", fd.name, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(fd.name)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func constant(v any) func(context.Context) (any, error) {
	return func(context.Context) (any, error) { return v, nil }
}

// childrenRange formats the CDMI childrenrange for n children.
func childrenRange(n int) string {
	if n == 0 {
		return "0-0"
	}
	return "0-" + strconv.Itoa(n-1)
}

// entityFields builds the ordered field list for e. withValue is false for
// PUT responses, which never echo content.
func (h *Handler) entityFields(e *hierarchy.Entity, p auth.Principal, f *fieldFilter, withValue bool) []docField {
	fields := []docField{
		{"objectType", constant(e.Kind.MediaType())},
		{"objectID", constant(e.ID)},
		{"objectName", constant(e.Name)},
	}
	if !e.IsRoot() {
		fields = append(fields,
			docField{"parentURI", func(ctx context.Context) (any, error) {
				parent, err := h.tree.Lookup(ctx, e.ParentID)
				if err != nil {
					return nil, err
				}
				return h.tree.Path(ctx, parent)
			}},
			docField{"parentID", constant(e.ParentID)},
		)
	}
	fields = append(fields,
		docField{"completionStatus", constant("Complete")},
		docField{"metadata", constant(filterMetadata(e.Metadata, f.metadataPrefix))},
	)

	switch e.Kind {
	case hierarchy.KindContainer:
		var names []string
		loadChildren := func(ctx context.Context) ([]string, error) {
			if names != nil {
				return names, nil
			}
			kids, err := h.tree.List(ctx, e)
			if err != nil {
				return nil, err
			}
			names = make([]string, 0, len(kids))
			for _, k := range kids {
				names = append(names, childName(k))
			}
			return names, nil
		}
		fields = append(fields,
			docField{"childrenrange", func(ctx context.Context) (any, error) {
				n, err := loadChildren(ctx)
				return childrenRange(len(n)), err
			}},
			docField{"children", func(ctx context.Context) (any, error) {
				return loadChildren(ctx)
			}},
		)
	case hierarchy.KindDataObject:
		fields = append(fields, docField{"mimetype", constant(e.MimeType)})
		if withValue {
			fields = append(fields,
				docField{"valuetransferencoding", constant("base64")},
				docField{"value", func(ctx context.Context) (any, error) {
					return h.encodedValue(ctx, e, p, f.value)
				}},
			)
		}
	}
	return fields
}

func childName(e *hierarchy.Entity) string {
	if e.IsContainer() {
		return e.Name + "/"
	}
	return e.Name
}

func filterMetadata(md map[string]string, prefix string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

// encodedValue loads e's content, restricted to rng when set, and returns it
// base64 encoded. Objects that never stored content have an empty value.
func (h *Handler) encodedValue(ctx context.Context, e *hierarchy.Entity, p auth.Principal, rng *span) (string, error) {
	if e.Value == "" {
		return "", nil
	}
	store, err := h.resolver.Existing(e)
	if err != nil {
		return "", err
	}
	rc, err := store.Load(ctx, p.Token)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var src io.Reader = rc
	if rng != nil {
		size, err := rc.Seek(0, io.SeekEnd)
		if err != nil {
			return "", err
		}
		s := rng.clamp(size)
		if _, err := rc.Seek(s.begin, io.SeekStart); err != nil {
			return "", err
		}
		src = io.LimitReader(rc, s.end-s.begin)
	}

	var buf bytes.Buffer
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	if _, err := io.Copy(enc, src); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
