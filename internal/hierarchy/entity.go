// Package hierarchy implements the Stoxy storage namespace: containers and
// data objects linked by parent/child references under a single root, and the
// invariants that keep that tree consistent. Persistence is delegated to a
// transactional Store.
package hierarchy

import (
	"fmt"
	"maps"
	"strings"
	"time"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/uid"
	"github.com/stoxy/stoxy/internal/uri"
)

// CDMI media types.
const (
	MediaTypeContainer = "application/cdmi-container"
	MediaTypeObject    = "application/cdmi-object"
)

// RootName is the fixed name of the root container.
const RootName = "/"

// maxNameLength bounds entity names.
const maxNameLength = 255

// Kind tags the variant of an Entity.
type Kind int

const (
	KindContainer Kind = iota + 1
	KindDataObject
)

// String returns the kind name used in logs and persisted rows.
func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindDataObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case KindContainer.String():
		return KindContainer, nil
	case KindDataObject.String():
		return KindDataObject, nil
	default:
		return 0, fmt.Errorf("unknown entity kind %q", s)
	}
}

// MediaType returns the CDMI objectType for k.
func (k Kind) MediaType() string {
	switch k {
	case KindContainer:
		return MediaTypeContainer
	case KindDataObject:
		return MediaTypeObject
	default:
		return ""
	}
}

// KindForMediaType maps a Content-Type to an entity kind. Parameters such as
// charset are ignored. ok is false for non-CDMI media types.
func KindForMediaType(contentType string) (k Kind, ok bool) {
	mt, _, _ := strings.Cut(contentType, ";")
	switch strings.ToLower(strings.TrimSpace(mt)) {
	case MediaTypeContainer:
		return KindContainer, true
	case MediaTypeObject:
		return KindDataObject, true
	default:
		return 0, false
	}
}

// State is the lifecycle position of an Entity reference.
type State int

const (
	// StateTransient entities are constructed but not reachable from the root.
	StateTransient State = iota
	// StateAttached entities are reachable from the root.
	StateAttached
	// StateDeleted references were detached; further use is an error.
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateTransient:
		return "transient"
	case StateAttached:
		return "attached"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Entity is a container or a data object.
type Entity struct {
	ID       string
	Kind     Kind
	Name     string
	ParentID string
	Owner    string
	Metadata map[string]string

	// Data object fields.
	MimeType      string
	ContentLength int64
	// Value is the resolved backend URI, empty until content is first saved.
	Value string

	CreatedAt time.Time

	// State is maintained by Tree. Entities loaded from a Store are attached.
	State State
}

// NewContainer constructs a transient container with a fresh ID.
func NewContainer(name string, metadata map[string]string) *Entity {
	return newEntity(KindContainer, name, metadata)
}

// NewDataObject constructs a transient data object with a fresh ID.
func NewDataObject(name, mimeType string, metadata map[string]string) *Entity {
	e := newEntity(KindDataObject, name, metadata)
	e.MimeType = mimeType
	return e
}

func newEntity(kind Kind, name string, metadata map[string]string) *Entity {
	md := make(map[string]string, len(metadata))
	maps.Copy(md, metadata)
	return &Entity{
		ID:        uid.New(),
		Kind:      kind,
		Name:      name,
		Metadata:  md,
		CreatedAt: time.Now().UTC(),
		State:     StateTransient,
	}
}

// IsRoot reports whether e is the root container.
func (e *Entity) IsRoot() bool {
	return e.Kind == KindContainer && e.ParentID == "" && e.Name == RootName
}

// IsContainer reports whether e is a container.
func (e *Entity) IsContainer() bool {
	return e.Kind == KindContainer
}

// Clone returns a deep copy of e. The copy shares no maps with e.
func (e *Entity) Clone() *Entity {
	cp := *e
	cp.Metadata = make(map[string]string, len(e.Metadata))
	maps.Copy(cp.Metadata, e.Metadata)
	return &cp
}

// Patch carries the fields of a partial update. Nil fields are left as they
// are.
type Patch struct {
	Name          *string
	Metadata      map[string]string
	MimeType      *string
	ContentLength *int64
}

// Apply copies the non-nil fields of p onto e. Metadata, when given, replaces
// the whole map. ID, kind and parent never change.
func (e *Entity) Apply(p Patch) {
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Metadata != nil {
		md := make(map[string]string, len(p.Metadata))
		maps.Copy(md, p.Metadata)
		e.Metadata = md
	}
	if p.MimeType != nil {
		e.MimeType = *p.MimeType
	}
	if p.ContentLength != nil {
		e.ContentLength = *p.ContentLength
	}
}

// Validate checks e against the entity schema and returns a
// *errors.ValidationError listing every failing field.
func (e *Entity) Validate() error {
	var v stoxyerr.ValidationError

	if !uid.Valid(e.ID) {
		v.Add("objectID", "must be a 32 character lowercase hex identifier")
	}
	switch e.Kind {
	case KindContainer, KindDataObject:
	default:
		v.Add("objectType", "unknown entity kind")
	}

	if !e.IsRoot() {
		if msg := checkName(e.Name); msg != "" {
			v.Add("objectName", msg)
		}
	}

	for k := range e.Metadata {
		if k == "" {
			v.Add("metadata", "keys must not be empty")
			break
		}
	}

	if e.Kind == KindDataObject {
		if len(e.MimeType) > maxNameLength {
			v.Add("mimetype", "too long")
		}
		if e.ContentLength < 0 {
			v.Add("content_length", "must not be negative")
		}
		if e.Value != "" && !uri.Valid(e.Value) {
			v.Add("value", "must be a backend URI")
		}
	} else {
		if e.MimeType != "" {
			v.Add("mimetype", "not allowed on containers")
		}
		if e.Value != "" {
			v.Add("value", "not allowed on containers")
		}
	}
	return v.Err()
}

func checkName(name string) string {
	switch {
	case name == "":
		return "required"
	case name == "." || name == "..":
		return "reserved name"
	case strings.ContainsRune(name, '/'):
		return "must not contain '/'"
	case len(name) > maxNameLength:
		return fmt.Sprintf("must be at most %d bytes", maxNameLength)
	}
	return ""
}
