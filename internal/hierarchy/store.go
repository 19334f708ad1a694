package hierarchy

import "context"

// Store is the transactional persistence collaborator. Transact runs fn
// atomically: either every change made through tx commits or none does.
// Concurrent Transact calls are serializable with respect to each other.
type Store interface {
	Transact(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the view of the hierarchy inside one transaction. Entities returned
// by Tx are fresh copies owned by the caller.
type Tx interface {
	// Get returns the entity with id, or an error wrapping ErrNotFound.
	Get(id string) (*Entity, error)
	// Child returns the named child of parentID, or an error wrapping
	// ErrNotFound.
	Child(parentID, name string) (*Entity, error)
	// Children returns the children of parentID in insertion order.
	Children(parentID string) ([]*Entity, error)
	// CountChildren returns the number of children of parentID.
	CountChildren(parentID string) (int, error)
	// Insert stores a new entity. A duplicate (ParentID, Name) pair fails
	// with an error wrapping ErrNameConflict.
	Insert(e *Entity) error
	// Update rewrites the mutable fields of an existing entity. Value is
	// not among them; only SetValueIfEmpty writes it. Renaming onto an
	// existing sibling fails with ErrNameConflict.
	Update(e *Entity) error
	// SetValueIfEmpty stores value on the entity only if it has none yet.
	// It reports whether the write happened.
	SetValueIfEmpty(id, value string) (bool, error)
	// Delete removes the entity with id.
	Delete(id string) error
}
