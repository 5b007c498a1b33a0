package models

import (
	"time"

	dErrors "healthpass/pkg/domain-errors"
)

// Duration is the owner-selected validity window for a credential. Only the
// enumerated values are accepted; anything else is rejected before any
// state changes.
type Duration string

const (
	Duration15m Duration = "15m"
	Duration30m Duration = "30m"
	Duration1h  Duration = "1h"
	Duration4h  Duration = "4h"
	Duration24h Duration = "24h"
)

// durations is the single source of truth for the allowed validity windows.
var durations = map[Duration]time.Duration{
	Duration15m: 15 * time.Minute,
	Duration30m: 30 * time.Minute,
	Duration1h:  time.Hour,
	Duration4h:  4 * time.Hour,
	Duration24h: 24 * time.Hour,
}

// durationLabels mirror the wording shown next to the QR code.
var durationLabels = map[Duration]string{
	Duration15m: "15 minutes",
	Duration30m: "30 minutes",
	Duration1h:  "1 hour",
	Duration4h:  "4 hours",
	Duration24h: "24 hours",
}

// IsValid checks if the duration is one of the supported enum values.
func (d Duration) IsValid() bool {
	_, ok := durations[d]
	return ok
}

// Window returns the validity window as a time.Duration.
func (d Duration) Window() time.Duration {
	return durations[d]
}

// Label returns the human wording for the duration ("30 minutes").
func (d Duration) Label() string {
	return durationLabels[d]
}

// ParseDuration validates and parses a duration string.
//
// Usage: call at trust boundaries for external input.
//
// Errors: returns CodeInvalidDuration for values outside the enumerated set.
func ParseDuration(s string) (Duration, error) {
	d := Duration(s)
	if !d.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidDuration, "duration must be one of 15m, 30m, 1h, 4h, 24h")
	}
	return d, nil
}

// Status represents the lifecycle state of a credential. Transitions only
// move forward: Active is the sole non-terminal state.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
	StatusRevoked    Status = "revoked"
	StatusExpired    Status = "expired"
)

// IsValid checks if the status is one of the supported enum values.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusSuperseded || s == StatusRevoked || s == StatusExpired
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s != StatusActive
}
