package audit

import (
	"time"

	id "healthpass/pkg/domain"
)

// Method identifies how a credential was presented.
type Method string

const (
	MethodQRScan     Method = "qr_scan"
	MethodPINEntry   Method = "pin_entry"
	MethodSharedLink Method = "shared_link"
)

// IsValid checks if the method is one of the supported enum values.
func (m Method) IsValid() bool {
	return m == MethodQRScan || m == MethodPINEntry || m == MethodSharedLink
}

// Outcome records whether an access attempt was allowed.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// Reason refines a denied outcome for the audit trail. Distinct reasons are
// never collapsed here even when responder-facing text unifies them.
type Reason string

const (
	ReasonNotFound   Reason = "not_found"
	ReasonSuperseded Reason = "superseded"
	ReasonRevoked    Reason = "revoked"
	ReasonExpired    Reason = "expired"
)

// Scope filters access-log queries, mirroring the history views owners see.
type Scope string

const (
	ScopeEmergency Scope = "emergency"
	ScopeShared    Scope = "shared"
	ScopeAll       Scope = "all"
)

// IsValid checks if the scope is one of the supported enum values.
func (s Scope) IsValid() bool {
	return s == ScopeEmergency || s == ScopeShared || s == ScopeAll
}

// Event is one immutable entry in the access log. Emitted from domain logic
// for every presentation of a credential, allowed or denied; never mutated
// or deleted after append.
type Event struct {
	ID           id.EventID
	OwnerID      id.OwnerID
	CredentialID id.CredentialID
	Method       Method
	ActorLabel   string
	Outcome      Outcome
	Reason       Reason
	Timestamp    time.Time
}

// Matches reports whether the event falls inside the given query scope.
// Shared-link presentations belong to the shared view, everything else to
// the emergency view.
func (e Event) Matches(scope Scope) bool {
	switch scope {
	case ScopeShared:
		return e.Method == MethodSharedLink
	case ScopeEmergency:
		return e.Method != MethodSharedLink
	default:
		return true
	}
}
