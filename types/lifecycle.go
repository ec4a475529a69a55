package types

// LifecycleState is the closed set of states a resource record moves through.
//
//	Active -> Flagged -> PendingDeletion -> Deleted
//
// Flagged and PendingDeletion can return to Active (cancellation) or move to
// Exempted when the owner sets the exemption tag. Deleted is terminal for the
// physical resource; the record stays around for audit.
type LifecycleState string

const (
	StateActive          LifecycleState = "active"
	StateFlagged         LifecycleState = "flagged"
	StatePendingDeletion LifecycleState = "pending_deletion"
	StateExempted        LifecycleState = "exempted"
	StateDeleted         LifecycleState = "deleted"
)

// Valid reports whether s is a known lifecycle state.
func (s LifecycleState) Valid() bool {
	switch s {
	case StateActive, StateFlagged, StatePendingDeletion, StateExempted, StateDeleted:
		return true
	}
	return false
}

// Terminal reports whether the record can still change state.
func (s LifecycleState) Terminal() bool {
	return s == StateDeleted
}

// Cancellable reports whether the state can return to Active.
func (s LifecycleState) Cancellable() bool {
	return s == StateFlagged || s == StatePendingDeletion
}
