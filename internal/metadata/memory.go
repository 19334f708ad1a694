package metadata

import (
	"context"
	"sync"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/hierarchy"
)

// MemoryStore implements hierarchy.Store entirely in memory. Transactions
// hold an exclusive lock for their whole duration and undo their changes if
// fn fails. Used by tests and the "memory" metadata engine.
type MemoryStore struct {
	mu       sync.Mutex
	entities map[string]*hierarchy.Entity
	// children holds child IDs per parent in insertion order.
	children map[string][]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[string]*hierarchy.Entity),
		children: make(map[string][]string),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Transact runs fn under the store lock.
func (s *MemoryStore) Transact(ctx context.Context, fn func(tx hierarchy.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

type memoryTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memoryTx) Get(id string) (*hierarchy.Entity, error) {
	e, ok := t.s.entities[id]
	if !ok {
		return nil, stoxyerr.ErrNotFound.WithMessage("no entity with ID %q", id)
	}
	return attached(e), nil
}

func (t *memoryTx) Child(parentID, name string) (*hierarchy.Entity, error) {
	for _, id := range t.s.children[parentID] {
		if e := t.s.entities[id]; e.Name == name {
			return attached(e), nil
		}
	}
	return nil, stoxyerr.ErrNotFound.WithMessage("%q not found", name)
}

func (t *memoryTx) Children(parentID string) ([]*hierarchy.Entity, error) {
	ids := t.s.children[parentID]
	out := make([]*hierarchy.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, attached(t.s.entities[id]))
	}
	return out, nil
}

func (t *memoryTx) CountChildren(parentID string) (int, error) {
	return len(t.s.children[parentID]), nil
}

func (t *memoryTx) Insert(e *hierarchy.Entity) error {
	if _, ok := t.s.entities[e.ID]; ok {
		return stoxyerr.ErrNameConflict.WithMessage("entity %q already exists", e.ID)
	}
	if _, err := t.Child(e.ParentID, e.Name); err == nil {
		return stoxyerr.ErrNameConflict.WithMessage("%q already exists", e.Name)
	}
	t.s.entities[e.ID] = e.Clone()
	prev := t.s.children[e.ParentID]
	t.s.children[e.ParentID] = append(prev[:len(prev):len(prev)], e.ID)
	t.undo = append(t.undo, func() {
		delete(t.s.entities, e.ID)
		t.s.children[e.ParentID] = prev
	})
	return nil
}

func (t *memoryTx) Update(e *hierarchy.Entity) error {
	cur, ok := t.s.entities[e.ID]
	if !ok {
		return stoxyerr.ErrNotFound.WithMessage("no entity with ID %q", e.ID)
	}
	if cur.Name != e.Name {
		if other, err := t.Child(cur.ParentID, e.Name); err == nil && other.ID != e.ID {
			return stoxyerr.ErrNameConflict.WithMessage("%q already exists", e.Name)
		}
	}
	next := cur.Clone()
	next.Name = e.Name
	next.Owner = e.Owner
	next.Metadata = e.Clone().Metadata
	next.MimeType = e.MimeType
	next.ContentLength = e.ContentLength
	t.s.entities[e.ID] = next
	t.undo = append(t.undo, func() { t.s.entities[e.ID] = cur })
	return nil
}

func (t *memoryTx) SetValueIfEmpty(id, value string) (bool, error) {
	cur, ok := t.s.entities[id]
	if !ok {
		return false, stoxyerr.ErrNotFound.WithMessage("no entity with ID %q", id)
	}
	if cur.Value != "" {
		return false, nil
	}
	next := cur.Clone()
	next.Value = value
	t.s.entities[id] = next
	t.undo = append(t.undo, func() { t.s.entities[id] = cur })
	return true, nil
}

func (t *memoryTx) Delete(id string) error {
	cur, ok := t.s.entities[id]
	if !ok {
		return stoxyerr.ErrNotFound.WithMessage("no entity with ID %q", id)
	}
	prev := t.s.children[cur.ParentID]
	next := make([]string, 0, len(prev))
	for _, c := range prev {
		if c != id {
			next = append(next, c)
		}
	}
	delete(t.s.entities, id)
	t.s.children[cur.ParentID] = next
	t.undo = append(t.undo, func() {
		t.s.entities[id] = cur
		t.s.children[cur.ParentID] = prev
	})
	return nil
}

func attached(e *hierarchy.Entity) *hierarchy.Entity {
	cp := e.Clone()
	cp.State = hierarchy.StateAttached
	return cp
}

var _ hierarchy.Store = (*MemoryStore)(nil)
