// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "healthpass/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing OwnerID where CredentialID is expected.
type (
	OwnerID      uuid.UUID
	CredentialID uuid.UUID
	EventID      uuid.UUID
)

// NewCredentialID mints a random credential identifier. uuid v4 carries 122
// bits of entropy from crypto/rand, enough to make guessing infeasible.
func NewCredentialID() CredentialID {
	return CredentialID(uuid.New())
}

// NewEventID mints a random access event identifier.
func NewEventID() EventID {
	return EventID(uuid.New())
}

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseOwnerID(s string) (OwnerID, error) {
	id, err := parseUUID(s, "owner ID")
	return OwnerID(id), err
}

func ParseCredentialID(s string) (CredentialID, error) {
	id, err := parseUUID(s, "credential ID")
	return CredentialID(id), err
}

// String methods - for logging and debugging.

func (id OwnerID) String() string      { return uuid.UUID(id).String() }
func (id CredentialID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string      { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id OwnerID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id CredentialID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// parseUUID is the shared validation logic. Nil UUIDs pass here; use IsNil()
// at the service layer so store lookups can return proper "not found" errors.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
