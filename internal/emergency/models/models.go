package models

import (
	"time"

	id "healthpass/pkg/domain"
	dErrors "healthpass/pkg/domain-errors"
)

// Credential grants time-boxed emergency access to an owner's critical
// medical data.
//
// # Secret Handling
//
// The credential never holds the scan token or PIN in plain form: only
// SHA3-256 digests are stored, and lookups hash the presented value. The
// plaintext pair exists exactly once, in the IssueResult returned to the
// owner at issuance.
//
// # Lifecycle Invariant
//
// At most one credential per owner is Active at any instant. Status only
// moves forward, Active -> {Superseded | Revoked | Expired}; all three are
// terminal. Every field except Status is frozen at creation, including the
// Policy snapshot: later toggle edits never reach an issued credential.
type Credential struct {
	ID          id.CredentialID
	OwnerID     id.OwnerID
	TokenDigest string
	PINDigest   string
	Policy      DisclosurePolicy
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Status      Status
}

// NewCredential creates a Credential with domain invariant checks.
func NewCredential(credentialID id.CredentialID, ownerID id.OwnerID, tokenDigest, pinDigest string, policy DisclosurePolicy, issuedAt time.Time, duration Duration) (*Credential, error) {
	if credentialID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential ID required")
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owner ID required")
	}
	if tokenDigest == "" || pinDigest == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "token and pin digests required")
	}
	if issuedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "issue time required")
	}
	if !duration.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidDuration, "duration must be one of 15m, 30m, 1h, 4h, 24h")
	}
	return &Credential{
		ID:          credentialID,
		OwnerID:     ownerID,
		TokenDigest: tokenDigest,
		PINDigest:   pinDigest,
		Policy:      policy,
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt.Add(duration.Window()),
		Status:      StatusActive,
	}, nil
}

// IsExpired reports whether the validity window has elapsed. Expiry is
// evaluated lazily at validation time; there is no background timer.
func (c Credential) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ComputeStatus reports the lifecycle state at the provided time, folding
// lazy expiry into a stored Active status.
func (c Credential) ComputeStatus(now time.Time) Status {
	if c.Status == StatusActive && c.IsExpired(now) {
		return StatusExpired
	}
	return c.Status
}
