package handler

// IssueRequest is the body of POST /emergency/credential.
type IssueRequest struct {
	Duration string          `json:"duration"`
	Toggles  map[string]bool `json:"toggles"`
}

// AccessRequest is the body of POST /emergency/access. Credential carries
// either a scanned token or a keypad PIN; Method records how it was
// presented. ActorLabel is the responder's optional self-identification
// ("Paramedic ID #27491"); when absent the access log falls back to a
// device summary.
type AccessRequest struct {
	Credential string `json:"credential"`
	Method     string `json:"method"`
	ActorLabel string `json:"actor_label,omitempty"`
}
