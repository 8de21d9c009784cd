package models

import "errors"

// Validation failures surfaced to callers. All of these are local and
// non-retryable; infrastructure errors are propagated unchanged.
var (
	// ErrGroupClosed rejects participant mutations outside the open window.
	ErrGroupClosed = errors.New("group is closed")

	// ErrOrderLocked rejects cart mutations on a submitted order. The caller
	// must enter edit mode first. Also returned to the loser of a concurrent
	// submit race.
	ErrOrderLocked = errors.New("order is locked, enter edit mode first")

	// ErrEmptyOrder rejects submitting an order with no line items.
	ErrEmptyOrder = errors.New("order has no items")

	// ErrNoSnapshotToRestore rejects cancel-edit when no snapshot exists.
	// Unreachable through the state machine, handled anyway.
	ErrNoSnapshotToRestore = errors.New("no snapshot to restore")

	// ErrCatalogItemMissing rejects a direct add referencing an item, option
	// or topping that is not in the group's menu snapshot.
	ErrCatalogItemMissing = errors.New("catalog item missing")

	// ErrTreatAlreadyDeclared rejects declaring a treat while another payer
	// is already active on the group.
	ErrTreatAlreadyDeclared = errors.New("treat already declared for this group")

	// ErrUnauthorizedActor rejects owner-only operations from non-owners.
	ErrUnauthorizedActor = errors.New("actor is not allowed to perform this operation")

	// ErrNotFound is returned by storage lookups that match no row.
	ErrNotFound = errors.New("not found")
)
