package handler

import "time"

// IssueResponse returns the freshly issued credential. Token and PIN appear
// only here; they are not retrievable afterwards.
type IssueResponse struct {
	CredentialID string    `json:"credential_id"`
	Token        string    `json:"token"`
	PIN          string    `json:"pin"`
	QRPayload    string    `json:"qr_payload"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Duration     string    `json:"duration"`
	Disclosed    []string  `json:"disclosed_fields"`
}

// RevokeResponse confirms termination of the owner's active credential.
type RevokeResponse struct {
	CredentialID string `json:"credential_id"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

// AccessResponse is the responder-facing validation decision. Denials share
// one generic message regardless of the underlying reason; the precise
// reason lives only in the owner's access log.
type AccessResponse struct {
	Outcome      string     `json:"outcome"`
	Message      string     `json:"message,omitempty"`
	Disclosed    []string   `json:"disclosed_fields,omitempty"`
	SessionToken string     `json:"session_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// AccessLogEntry is one row of the owner's access history.
type AccessLogEntry struct {
	EventID      string    `json:"event_id"`
	CredentialID string    `json:"credential_id,omitempty"`
	Method       string    `json:"method"`
	ActorLabel   string    `json:"actor_label,omitempty"`
	Outcome      string    `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// AccessLogResponse wraps the owner's access history.
type AccessLogResponse struct {
	Events []AccessLogEntry `json:"events"`
}
