package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
)

// maxDepth bounds ancestor walks so a corrupted parent chain cannot loop.
const maxDepth = 1024

// Tree enforces the hierarchy invariants on top of a transactional Store.
// Structural changes run inside Store.Transact; State transitions on the
// caller's Entity references happen only after the transaction commits.
type Tree struct {
	store    Store
	reserved func(name string) bool
}

// TreeOption configures a Tree.
type TreeOption func(*Tree)

// WithReservedRootNames refuses children of the root container whose name
// reserved matches.
func WithReservedRootNames(reserved func(name string) bool) TreeOption {
	return func(t *Tree) { t.reserved = reserved }
}

// NewTree creates a Tree backed by store.
func NewTree(store Store, opts ...TreeOption) *Tree {
	t := &Tree{store: store}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tree) checkRootName(parent *Entity, name string) error {
	if t.reserved == nil || !parent.IsRoot() || !t.reserved(name) {
		return nil
	}
	var v stoxyerr.ValidationError
	v.Add("objectName", fmt.Sprintf("%q is reserved at the root", name))
	return v.Err()
}

// Bootstrap returns the root container, creating it owned by owner if the
// store is empty.
func (t *Tree) Bootstrap(ctx context.Context, owner string) (*Entity, error) {
	var root *Entity
	err := t.store.Transact(ctx, func(tx Tx) error {
		r, err := tx.Child("", RootName)
		if err == nil {
			root = r
			return nil
		}
		if !errors.Is(err, stoxyerr.ErrNotFound) {
			return err
		}
		r = newEntity(KindContainer, RootName, nil)
		r.Owner = owner
		if err := tx.Insert(r); err != nil {
			return fmt.Errorf("creating root container: %w", err)
		}
		root = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	root.State = StateAttached
	return root, nil
}

// Root returns the root container.
func (t *Tree) Root(ctx context.Context) (*Entity, error) {
	var root *Entity
	err := t.store.Transact(ctx, func(tx Tx) error {
		var err error
		root, err = tx.Child("", RootName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading root container: %w", err)
	}
	return root, nil
}

// Lookup returns the entity with id.
func (t *Tree) Lookup(ctx context.Context, id string) (*Entity, error) {
	var e *Entity
	err := t.store.Transact(ctx, func(tx Tx) error {
		var err error
		e, err = tx.Get(id)
		return err
	})
	return e, err
}

// Get returns the child of parent called name.
func (t *Tree) Get(ctx context.Context, parent *Entity, name string) (*Entity, error) {
	if err := checkAttached(parent); err != nil {
		return nil, err
	}
	var e *Entity
	err := t.store.Transact(ctx, func(tx Tx) error {
		var err error
		e, err = tx.Child(parent.ID, name)
		return err
	})
	return e, err
}

// List returns the children of parent in insertion order.
func (t *Tree) List(ctx context.Context, parent *Entity) ([]*Entity, error) {
	if err := checkAttached(parent); err != nil {
		return nil, err
	}
	if !parent.IsContainer() {
		return nil, stoxyerr.ErrBadRequest.WithMessage("%q is not a container", parent.Name)
	}
	var children []*Entity
	err := t.store.Transact(ctx, func(tx Tx) error {
		var err error
		children, err = tx.Children(parent.ID)
		return err
	})
	return children, err
}

// Walk resolves path segments from the root. Walking through a data object
// fails with ErrNotFound.
func (t *Tree) Walk(ctx context.Context, segments []string) (*Entity, error) {
	var cur *Entity
	err := t.store.Transact(ctx, func(tx Tx) error {
		var err error
		cur, err = tx.Child("", RootName)
		if err != nil {
			return err
		}
		for _, seg := range segments {
			if !cur.IsContainer() {
				return stoxyerr.ErrNotFound.WithMessage("%q is not a container", cur.Name)
			}
			cur, err = tx.Child(cur.ID, seg)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cur, nil
}

// Add validates child and attaches it under parent. A sibling with the same
// name fails with ErrNameConflict and leaves child transient.
func (t *Tree) Add(ctx context.Context, parent, child *Entity) error {
	if err := checkAttached(parent); err != nil {
		return err
	}
	if !parent.IsContainer() {
		return stoxyerr.ErrBadRequest.WithMessage("%q is not a container", parent.Name)
	}
	switch child.State {
	case StateDeleted:
		return stoxyerr.ErrStaleReference
	case StateAttached:
		return stoxyerr.ErrBadRequest.WithMessage("%q is already attached", child.Name)
	}

	candidate := child.Clone()
	candidate.ParentID = parent.ID
	if err := candidate.Validate(); err != nil {
		return err
	}
	if err := t.checkRootName(parent, candidate.Name); err != nil {
		return err
	}

	err := t.store.Transact(ctx, func(tx Tx) error {
		if _, err := tx.Get(parent.ID); err != nil {
			if errors.Is(err, stoxyerr.ErrNotFound) {
				return stoxyerr.ErrStaleReference.WithMessage("container %q was removed", parent.Name)
			}
			return err
		}
		if _, err := tx.Child(parent.ID, candidate.Name); err == nil {
			return stoxyerr.ErrNameConflict.WithMessage("%q already exists in %q", candidate.Name, parent.Name)
		} else if !errors.Is(err, stoxyerr.ErrNotFound) {
			return err
		}
		return tx.Insert(candidate)
	})
	if err != nil {
		return err
	}
	child.ParentID = parent.ID
	child.State = StateAttached
	return nil
}

// Remove detaches the child of parent called name and returns it marked
// deleted. A container with children fails with ErrContainerNotEmpty.
func (t *Tree) Remove(ctx context.Context, parent *Entity, name string) (*Entity, error) {
	if err := checkAttached(parent); err != nil {
		return nil, err
	}
	var removed *Entity
	err := t.store.Transact(ctx, func(tx Tx) error {
		e, err := tx.Child(parent.ID, name)
		if err != nil {
			return err
		}
		if err := deleteEntity(tx, e); err != nil {
			return err
		}
		removed = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	removed.State = StateDeleted
	return removed, nil
}

// Detach removes e from its parent and marks the reference deleted.
func (t *Tree) Detach(ctx context.Context, e *Entity) error {
	if err := checkAttached(e); err != nil {
		return err
	}
	if e.IsRoot() {
		return stoxyerr.ErrBadRequest.WithMessage("the root container cannot be removed")
	}
	err := t.store.Transact(ctx, func(tx Tx) error {
		cur, err := tx.Get(e.ID)
		if err != nil {
			if errors.Is(err, stoxyerr.ErrNotFound) {
				return stoxyerr.ErrStaleReference
			}
			return err
		}
		return deleteEntity(tx, cur)
	})
	if err != nil {
		if errors.Is(err, stoxyerr.ErrStaleReference) {
			e.State = StateDeleted
		}
		return err
	}
	e.State = StateDeleted
	return nil
}

func deleteEntity(tx Tx, e *Entity) error {
	if e.IsContainer() {
		n, err := tx.CountChildren(e.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return stoxyerr.ErrContainerNotEmpty.WithMessage("container %q has %d children", e.Name, n)
		}
	}
	return tx.Delete(e.ID)
}

// Update persists the mutable fields of e after validating it. The stored
// kind, parent and value always win over whatever e carries; on success e
// holds the stored value.
func (t *Tree) Update(ctx context.Context, e *Entity) error {
	if err := checkAttached(e); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	var stored string
	err := t.store.Transact(ctx, func(tx Tx) error {
		cur, err := tx.Get(e.ID)
		if err != nil {
			if errors.Is(err, stoxyerr.ErrNotFound) {
				return stoxyerr.ErrStaleReference
			}
			return err
		}
		if cur.Kind != e.Kind || cur.ParentID != e.ParentID {
			return stoxyerr.ErrBadRequest.WithMessage("kind and parent of %q cannot change", cur.Name)
		}
		if cur.Name != e.Name && !cur.IsRoot() {
			parent, err := tx.Get(cur.ParentID)
			if err != nil {
				return err
			}
			if err := t.checkRootName(parent, e.Name); err != nil {
				return err
			}
			if _, err := tx.Child(cur.ParentID, e.Name); err == nil {
				return stoxyerr.ErrNameConflict.WithMessage("%q already exists", e.Name)
			} else if !errors.Is(err, stoxyerr.ErrNotFound) {
				return err
			}
		}
		if err := tx.Update(e); err != nil {
			return err
		}
		stored = cur.Value
		return nil
	})
	if errors.Is(err, stoxyerr.ErrStaleReference) {
		e.State = StateDeleted
	}
	if err == nil {
		e.Value = stored
	}
	return err
}

// AssignValue stores value as e's backend URI unless one is already set, and
// returns the URI now in effect. The first writer wins; later callers get the
// stored value back.
func (t *Tree) AssignValue(ctx context.Context, e *Entity, value string) (string, error) {
	if err := checkAttached(e); err != nil {
		return "", err
	}
	var effective string
	err := t.store.Transact(ctx, func(tx Tx) error {
		written, err := tx.SetValueIfEmpty(e.ID, value)
		if err != nil {
			return err
		}
		if written {
			effective = value
			return nil
		}
		cur, err := tx.Get(e.ID)
		if err != nil {
			return err
		}
		effective = cur.Value
		return nil
	})
	if err != nil {
		if errors.Is(err, stoxyerr.ErrNotFound) {
			e.State = StateDeleted
			return "", stoxyerr.ErrStaleReference
		}
		return "", err
	}
	e.Value = effective
	return effective, nil
}

// Ancestors returns the containers above e, nearest first, ending at the
// root. The root has no ancestors.
func (t *Tree) Ancestors(ctx context.Context, e *Entity) ([]*Entity, error) {
	var out []*Entity
	err := t.store.Transact(ctx, func(tx Tx) error {
		parentID := e.ParentID
		for parentID != "" {
			if len(out) >= maxDepth {
				return fmt.Errorf("ancestor chain of %q exceeds %d levels", e.ID, maxDepth)
			}
			p, err := tx.Get(parentID)
			if err != nil {
				return fmt.Errorf("loading ancestor %q: %w", parentID, err)
			}
			out = append(out, p)
			parentID = p.ParentID
		}
		return nil
	})
	return out, err
}

// Path returns the absolute hierarchy path of e. Container paths end in "/".
func (t *Tree) Path(ctx context.Context, e *Entity) (string, error) {
	if e.IsRoot() {
		return "/", nil
	}
	ancestors, err := t.Ancestors(ctx, e)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := len(ancestors) - 1; i >= 0; i-- {
		if ancestors[i].IsRoot() {
			continue
		}
		b.WriteByte('/')
		b.WriteString(ancestors[i].Name)
	}
	b.WriteByte('/')
	b.WriteString(e.Name)
	if e.IsContainer() {
		b.WriteByte('/')
	}
	return b.String(), nil
}

// RebuildIndex walks the whole tree from the root and returns every entity
// keyed by ID. The walk is O(total nodes).
func (t *Tree) RebuildIndex(ctx context.Context) (map[string]*Entity, error) {
	index := make(map[string]*Entity)
	err := t.store.Transact(ctx, func(tx Tx) error {
		root, err := tx.Child("", RootName)
		if err != nil {
			return err
		}
		return walk(tx, root, index, 0)
	})
	if err != nil {
		return nil, fmt.Errorf("rebuilding object ID index: %w", err)
	}
	return index, nil
}

func walk(tx Tx, e *Entity, index map[string]*Entity, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("hierarchy deeper than %d levels", maxDepth)
	}
	index[e.ID] = e
	if !e.IsContainer() {
		return nil
	}
	children, err := tx.Children(e.ID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := walk(tx, c, index, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func checkAttached(e *Entity) error {
	if e == nil {
		return stoxyerr.ErrNotFound
	}
	switch e.State {
	case StateDeleted:
		return stoxyerr.ErrStaleReference
	case StateTransient:
		return stoxyerr.ErrBadRequest.WithMessage("%q is not attached", e.Name)
	}
	return nil
}
