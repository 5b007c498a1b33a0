package audit

import (
	"context"

	id "healthpass/pkg/domain"
	pkgerrors "healthpass/pkg/domain-errors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across implementations.
	ErrNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "record not found")
)

// Store persists access events. Append-only: implementations must not offer
// mutation or deletion so the trail stays tamper-evident by construction.
type Store interface {
	Append(ctx context.Context, event Event) error
	// ListByOwner returns the owner's events most-recent-first, filtered by scope.
	ListByOwner(ctx context.Context, ownerID id.OwnerID, scope Scope) ([]Event, error)
}
