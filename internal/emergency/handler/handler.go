package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthpass/internal/audit"
	"healthpass/internal/emergency/models"
	"healthpass/internal/emergency/service"
	"healthpass/internal/platform/middleware"
	"healthpass/internal/transport/http/shared"
	respond "healthpass/internal/transport/http/shared/json"
	id "healthpass/pkg/domain"
	dErrors "healthpass/pkg/domain-errors"
	"healthpass/pkg/requestcontext"
)

// ownerHeader carries the authenticated owner identity, set by the dashboard
// gateway in front of this service.
const ownerHeader = "X-Owner-ID"

// deniedMessage is the unified responder-facing denial text. Superseded,
// revoked, expired and unknown credentials all read the same from the
// outside; only the owner's access log distinguishes them.
const deniedMessage = "This emergency credential is not valid."

// Service defines the interface for emergency credential operations.
type Service interface {
	Issue(ctx context.Context, ownerID id.OwnerID, toggles map[models.DisclosureToggle]bool, duration string) (*service.IssueResult, error)
	Validate(ctx context.Context, presented string, method audit.Method) (*service.ValidationResult, error)
	Revoke(ctx context.Context, ownerID id.OwnerID) (*models.Credential, error)
	History(ctx context.Context, ownerID id.OwnerID, scope audit.Scope) ([]audit.Event, error)
}

// Handler handles emergency access endpoints.
type Handler struct {
	logger    *slog.Logger
	emergency Service
}

// New creates a new emergency Handler.
func New(emergency Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		emergency: emergency,
	}
}

// Register registers the emergency routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/emergency/credential", h.handleIssue)
	r.Delete("/emergency/credential", h.handleRevoke)
	r.Post("/emergency/access", h.handleAccess)
	r.Get("/emergency/access-log", h.handleAccessLog)
}

// ownerID extracts and validates the owner identity header.
func ownerID(r *http.Request) (id.OwnerID, error) {
	raw := r.Header.Get(ownerHeader)
	if raw == "" {
		return id.OwnerID{}, dErrors.New(dErrors.CodeUnauthorized, "missing owner identity")
	}
	return id.ParseOwnerID(raw)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	owner, err := ownerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var issueReq IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&issueReq); err != nil {
		h.logger.WarnContext(ctx, "failed to decode issue request",
			"request_id", requestID,
			"error", err,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	toggles := make(map[models.DisclosureToggle]bool, len(issueReq.Toggles))
	for key, enabled := range issueReq.Toggles {
		toggles[models.DisclosureToggle(key)] = enabled
	}

	result, err := h.emergency.Issue(ctx, owner, toggles, issueReq.Duration)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to issue credential",
			"request_id", requestID,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusCreated, IssueResponse{
		CredentialID: result.CredentialID.String(),
		Token:        result.Token,
		PIN:          result.PIN,
		QRPayload:    result.QRPayload,
		IssuedAt:     result.IssuedAt,
		ExpiresAt:    result.ExpiresAt,
		Duration:     result.DurationLabel,
		Disclosed:    fieldNames(result.Disclosed),
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	owner, err := ownerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	credential, err := h.emergency.Revoke(ctx, owner)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to revoke credential",
			"request_id", requestID,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, RevokeResponse{
		CredentialID: credential.ID.String(),
		Status:       string(credential.Status),
		Message:      "Emergency credential revoked",
	})
}

func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var accessReq AccessRequest
	if err := json.NewDecoder(r.Body).Decode(&accessReq); err != nil {
		h.logger.WarnContext(ctx, "failed to decode access request",
			"request_id", requestID,
			"error", err,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	method := audit.Method(accessReq.Method)
	if accessReq.Method == "" {
		method = audit.MethodQRScan
	}
	if accessReq.ActorLabel != "" {
		ctx = requestcontext.WithActorLabel(ctx, accessReq.ActorLabel)
	}

	result, err := h.emergency.Validate(ctx, accessReq.Credential, method)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to validate credential",
			"request_id", requestID,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	if result.Outcome == audit.OutcomeDenied {
		respond.WriteJSON(w, http.StatusForbidden, AccessResponse{
			Outcome: string(audit.OutcomeDenied),
			Message: deniedMessage,
		})
		return
	}

	respond.WriteJSON(w, http.StatusOK, AccessResponse{
		Outcome:      string(audit.OutcomeAllowed),
		Disclosed:    fieldNames(result.Disclosed),
		SessionToken: result.SessionToken,
		ExpiresAt:    &result.ExpiresAt,
	})
}

func (h *Handler) handleAccessLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	owner, err := ownerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	scope := audit.Scope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = audit.ScopeEmergency
	}

	events, err := h.emergency.History(ctx, owner, scope)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list access log",
			"request_id", requestID,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, AccessLogResponse{
		Events: formatAccessLog(events),
	})
}

func formatAccessLog(events []audit.Event) []AccessLogEntry {
	entries := make([]AccessLogEntry, 0, len(events))
	for _, e := range events {
		entry := AccessLogEntry{
			EventID:    e.ID.String(),
			Method:     string(e.Method),
			ActorLabel: e.ActorLabel,
			Outcome:    string(e.Outcome),
			Reason:     string(e.Reason),
			Timestamp:  e.Timestamp,
		}
		if !e.CredentialID.IsNil() {
			entry.CredentialID = e.CredentialID.String()
		}
		entries = append(entries, entry)
	}
	return entries
}

func fieldNames(fields []models.FieldCategory) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, string(f))
	}
	return names
}
