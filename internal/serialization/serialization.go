// Package serialization exports and imports the Stoxy hierarchy as a
// self-describing document, encoded as JSON or CBOR.
package serialization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/hierarchy"
)

const (
	Version       = "0.1.0"
	ExportVersion = 1
)

// timeFormat is the timestamp layout used in exported documents.
const timeFormat = "2006-01-02T15:04:05.000Z"

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat validates a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json or cbor)", s)
	}
}

// encMode produces deterministic CBOR: sorted map keys and no
// indefinite-length items, so equal hierarchies encode to equal bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("serialization: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("serialization: CBOR decoder initialization failed: " + err.Error())
	}
}

// Header identifies an export document.
type Header struct {
	Version    int    `json:"version"`
	ExportedAt string `json:"exported_at"`
	Source     string `json:"source"`
}

// Record is one exported entity.
type Record struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	Name          string            `json:"name"`
	ParentID      string            `json:"parent_id"`
	Owner         string            `json:"owner"`
	Metadata      map[string]string `json:"metadata"`
	MimeType      string            `json:"mimetype,omitempty"`
	ContentLength int64             `json:"content_length,omitempty"`
	Value         string            `json:"value,omitempty"`
	CreatedAt     string            `json:"created_at"`
}

// Document is a full export. Entities are ordered parents first, children in
// insertion order.
type Document struct {
	Export   Header   `json:"stoxy_export"`
	Entities []Record `json:"entities"`
}

// ExportOptions configures what to export.
type ExportOptions struct {
	// Path limits the export to the subtree at this container path. The
	// ancestors of that container are not exported.
	Path []string
}

// ImportOptions configures how to import.
type ImportOptions struct {
	// Replace removes every existing entity below the root before importing.
	Replace bool
}

// ImportResult holds the result of an import operation.
type ImportResult struct {
	Inserted int
	Skipped  int
	Removed  int
	Warnings []string
}

// Export reads the hierarchy from store in a single transaction.
func Export(ctx context.Context, store hierarchy.Store, opts *ExportOptions) (*Document, error) {
	if opts == nil {
		opts = &ExportOptions{}
	}
	doc := &Document{
		Export: Header{
			Version:    ExportVersion,
			ExportedAt: time.Now().UTC().Format(timeFormat),
			Source:     "go/" + Version,
		},
		Entities: []Record{},
	}
	err := store.Transact(ctx, func(tx hierarchy.Tx) error {
		start, err := tx.Child("", hierarchy.RootName)
		if err != nil {
			return fmt.Errorf("loading root container: %w", err)
		}
		for _, name := range opts.Path {
			if !start.IsContainer() {
				return stoxyerr.ErrNotFound.WithMessage("%q is not a container", start.Name)
			}
			if start, err = tx.Child(start.ID, name); err != nil {
				return fmt.Errorf("resolving %q: %w", name, err)
			}
		}
		return collect(tx, start, &doc.Entities, 0)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func collect(tx hierarchy.Tx, e *hierarchy.Entity, out *[]Record, depth int) error {
	if depth > 1024 {
		return fmt.Errorf("hierarchy deeper than 1024 levels")
	}
	*out = append(*out, toRecord(e))
	if !e.IsContainer() {
		return nil
	}
	children, err := tx.Children(e.ID)
	if err != nil {
		return fmt.Errorf("listing children of %q: %w", e.Name, err)
	}
	for _, c := range children {
		if err := collect(tx, c, out, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func toRecord(e *hierarchy.Entity) Record {
	md := e.Metadata
	if md == nil {
		md = map[string]string{}
	}
	return Record{
		ID:            e.ID,
		Kind:          e.Kind.String(),
		Name:          e.Name,
		ParentID:      e.ParentID,
		Owner:         e.Owner,
		Metadata:      md,
		MimeType:      e.MimeType,
		ContentLength: e.ContentLength,
		Value:         e.Value,
		CreatedAt:     e.CreatedAt.UTC().Format(timeFormat),
	}
}

func fromRecord(r Record) (*hierarchy.Entity, error) {
	kind, err := hierarchy.ParseKind(r.Kind)
	if err != nil {
		return nil, err
	}
	created, err := time.Parse(timeFormat, r.CreatedAt)
	if err != nil {
		created, err = time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at %q", r.CreatedAt)
		}
	}
	md := r.Metadata
	if md == nil {
		md = map[string]string{}
	}
	e := &hierarchy.Entity{
		ID:            r.ID,
		Kind:          kind,
		Name:          r.Name,
		ParentID:      r.ParentID,
		Owner:         r.Owner,
		Metadata:      md,
		MimeType:      r.MimeType,
		ContentLength: r.ContentLength,
		Value:         r.Value,
		CreatedAt:     created.UTC(),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Encode writes doc to w. JSON output is indented.
func Encode(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatCBOR:
		return encMode.NewEncoder(w).Encode(doc)
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// Decode reads a document from r and checks its version.
func Decode(r io.Reader, format Format) (*Document, error) {
	var doc Document
	var err error
	switch format {
	case FormatCBOR:
		err = decMode.NewDecoder(r).Decode(&doc)
	case FormatJSON, "":
		err = json.NewDecoder(r).Decode(&doc)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s document: %w", format, err)
	}
	if doc.Export.Version < 1 || doc.Export.Version > ExportVersion {
		return nil, fmt.Errorf("unsupported export version: %d", doc.Export.Version)
	}
	return &doc, nil
}

// Import writes doc into store in a single transaction. The exported root
// maps onto the store's root, creating it if the store is empty. Entities
// whose ID already exists are skipped, as are entities whose parent is
// missing or whose name is taken; each skip is reported as a warning.
func Import(ctx context.Context, store hierarchy.Store, doc *Document, opts *ImportOptions) (*ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	if doc.Export.Version < 1 || doc.Export.Version > ExportVersion {
		return nil, fmt.Errorf("unsupported export version: %d", doc.Export.Version)
	}

	var result *ImportResult
	err := store.Transact(ctx, func(tx hierarchy.Tx) error {
		result = &ImportResult{}
		root, err := tx.Child("", hierarchy.RootName)
		switch {
		case errors.Is(err, stoxyerr.ErrNotFound):
			root = nil
		case err != nil:
			return fmt.Errorf("loading root container: %w", err)
		}

		if opts.Replace && root != nil {
			n, err := removeDescendants(tx, root, 0)
			if err != nil {
				return err
			}
			result.Removed = n
		}

		// remap carries exported IDs that land on a different local ID.
		remap := make(map[string]string)
		for i, rec := range doc.Entities {
			if p, ok := remap[rec.ParentID]; ok {
				rec.ParentID = p
			}
			e, err := fromRecord(rec)
			if err != nil {
				result.skip("entity %d (%s): %v", i, rec.ID, err)
				continue
			}

			if e.IsRoot() {
				if root == nil {
					if err := tx.Insert(e); err != nil {
						return fmt.Errorf("creating root container: %w", err)
					}
					root = e
					result.Inserted++
					continue
				}
				remap[e.ID] = root.ID
				if opts.Replace {
					root.Owner, root.Metadata = e.Owner, e.Metadata
					if err := tx.Update(root); err != nil {
						return fmt.Errorf("updating root container: %w", err)
					}
				}
				continue
			}

			if _, err := tx.Get(e.ID); err == nil {
				result.skip("entity %s (%s) already exists", e.ID, e.Name)
				continue
			} else if !errors.Is(err, stoxyerr.ErrNotFound) {
				return err
			}
			parent, err := tx.Get(e.ParentID)
			if err != nil {
				if errors.Is(err, stoxyerr.ErrNotFound) {
					result.skip("entity %s (%s): parent %s missing", e.ID, e.Name, e.ParentID)
					continue
				}
				return err
			}
			if !parent.IsContainer() {
				result.skip("entity %s (%s): parent %s is not a container", e.ID, e.Name, e.ParentID)
				continue
			}
			if err := tx.Insert(e); err != nil {
				if errors.Is(err, stoxyerr.ErrNameConflict) {
					result.skip("entity %s (%s): name taken under %s", e.ID, e.Name, e.ParentID)
					continue
				}
				return fmt.Errorf("inserting %s: %w", e.ID, err)
			}
			result.Inserted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ImportResult) skip(format string, args ...any) {
	r.Skipped++
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// removeDescendants deletes every descendant of e, children before parents,
// and returns how many entities it removed.
func removeDescendants(tx hierarchy.Tx, e *hierarchy.Entity, depth int) (int, error) {
	if depth > 1024 {
		return 0, fmt.Errorf("hierarchy deeper than 1024 levels")
	}
	children, err := tx.Children(e.ID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range children {
		if c.IsContainer() {
			m, err := removeDescendants(tx, c, depth+1)
			if err != nil {
				return n, err
			}
			n += m
		}
		if err := tx.Delete(c.ID); err != nil {
			return n, fmt.Errorf("deleting %s: %w", c.ID, err)
		}
		n++
	}
	return n, nil
}
