package store

import (
	pkgerrors "healthpass/pkg/domain-errors"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested credential does not exist
// - Return ErrPINConflict when a put would give two active credentials the same PIN
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

var (
	// ErrNotFound keeps storage-specific 404s consistent across implementations.
	ErrNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "credential not found")

	// ErrPINConflict signals that the PIN digest is already claimed by an
	// active credential. The issuer retries with a fresh PIN; callers never
	// see this error.
	ErrPINConflict = pkgerrors.New(pkgerrors.CodeConflict, "pin already claimed by an active credential")
)
