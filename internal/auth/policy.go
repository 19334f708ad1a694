package auth

import (
	"github.com/stoxy/stoxy/internal/hierarchy"
)

// Action is an operation a principal attempts on an entity.
type Action int

const (
	ActionView Action = iota + 1
	// ActionCreate is checked against the parent container of the new entity.
	ActionCreate
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionView:
		return "view"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// PermissionChecker decides whether a principal may perform an action.
type PermissionChecker interface {
	Allow(p Principal, action Action, target *hierarchy.Entity) bool
}

// Policy is the owner-based PermissionChecker.
//
// Admins may do anything. Authenticated principals may view everything,
// create under the root or under containers they own, and update or delete
// what they own. The anonymous principal may only view, and only with
// AnonymousRead. With Open set every principal may do anything.
type Policy struct {
	Admins        map[string]bool
	AnonymousRead bool
	Open          bool
}

// NewPolicy builds a Policy. With no tokens configured nobody could
// authenticate, so the policy is open.
func NewPolicy(admins []string, anonymousRead bool, tokensConfigured bool) *Policy {
	p := &Policy{
		Admins:        make(map[string]bool, len(admins)),
		AnonymousRead: anonymousRead,
		Open:          !tokensConfigured,
	}
	for _, a := range admins {
		p.Admins[a] = true
	}
	return p
}

// Allow implements PermissionChecker.
func (pol *Policy) Allow(p Principal, action Action, target *hierarchy.Entity) bool {
	if pol.Open || pol.Admins[p.Name] {
		return true
	}
	if p.Anonymous {
		return action == ActionView && pol.AnonymousRead
	}
	switch action {
	case ActionView:
		return true
	case ActionCreate:
		return target.IsRoot() || target.Owner == p.Name
	case ActionUpdate, ActionDelete:
		return target.Owner == p.Name
	default:
		return false
	}
}
