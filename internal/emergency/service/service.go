package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"healthpass/internal/audit"
	"healthpass/internal/emergency/metrics"
	"healthpass/internal/emergency/models"
	"healthpass/internal/emergency/store"
	"healthpass/internal/emergency/tracer"
	id "healthpass/pkg/domain"
	pkgerrors "healthpass/pkg/domain-errors"
	platformsync "healthpass/pkg/platform/sync"
	"healthpass/pkg/requestcontext"
	"healthpass/pkg/secrets"
)

// Store defines the persistence interface for emergency credentials.
// Error Contract:
// - GetActive, FindByTokenDigest, FindByPINDigest and Revoke return
//   store.ErrNotFound when no matching credential exists
// - Put returns store.ErrPINConflict when the PIN digest is already held by
//   another owner's active credential
// - Other failures are wrapped infrastructure errors
type Store interface {
	Put(ctx context.Context, credential *models.Credential) error
	GetActive(ctx context.Context, ownerID id.OwnerID) (*models.Credential, error)
	FindByTokenDigest(ctx context.Context, digest string) (*models.Credential, error)
	FindByPINDigest(ctx context.Context, digest string) (*models.Credential, error)
	Revoke(ctx context.Context, ownerID id.OwnerID, revokedAt time.Time) (*models.Credential, error)
	MarkExpired(ctx context.Context, credentialID id.CredentialID) (bool, error)
}

// SessionIssuer mints the grant token handed to a responder after a
// successful validation.
type SessionIssuer interface {
	Grant(ctx context.Context, credential *models.Credential, fields []models.FieldCategory) (string, error)
}

// SecretSource produces a fresh secret. Swapped in tests to force PIN
// collisions deterministically.
type SecretSource func() (string, error)

// QRPayloadPrefix is the scheme the mobile client renders into the QR code.
const QRPayloadPrefix = "healthpass:emergency:"

// maxPINAttempts bounds regeneration when an active credential already holds
// the generated PIN. With a million-value PIN space the loop effectively
// never exhausts; the bound guards against a broken entropy source.
const maxPINAttempts = 10

type Option func(*Service)

// Service issues, validates and revokes emergency credentials, and appends
// an access event for every presentation.
type Service struct {
	store      Store
	auditor    *audit.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	sessions   SessionIssuer
	ownerLocks *platformsync.ShardedMutex
	tokenFn    SecretSource
	pinFn      SecretSource
}

func NewService(store Store, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:      store,
		auditor:    auditor,
		logger:     logger,
		tracer:     tracer.NewNoop(),
		ownerLocks: platformsync.NewShardedMutex(),
		tokenFn:    secrets.GenerateToken,
		pinFn:      secrets.GeneratePIN,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer for the service.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithSessionIssuer enables session grant minting on allowed validations.
func WithSessionIssuer(issuer SessionIssuer) Option {
	return func(s *Service) {
		s.sessions = issuer
	}
}

// WithPINSource replaces the PIN generator.
func WithPINSource(fn SecretSource) Option {
	return func(s *Service) {
		if fn != nil {
			s.pinFn = fn
		}
	}
}

// WithTokenSource replaces the scan token generator.
func WithTokenSource(fn SecretSource) Option {
	return func(s *Service) {
		if fn != nil {
			s.tokenFn = fn
		}
	}
}

// IssueResult carries everything the owner's device needs to render the
// credential. Token and PIN appear here in plain form exactly once; only
// digests are persisted.
type IssueResult struct {
	CredentialID  id.CredentialID
	Token         string
	PIN           string
	QRPayload     string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	DurationLabel string
	Disclosed     []models.FieldCategory
}

// ValidationResult is the decision for one credential presentation. Denied
// outcomes carry a reason; allowed outcomes carry the resolved disclosure
// and, when a session issuer is configured, a grant token.
type ValidationResult struct {
	Outcome      audit.Outcome
	Reason       audit.Reason
	Disclosed    []models.FieldCategory
	SessionToken string
	ExpiresAt    time.Time
}

// Issue creates a new active credential for the owner, superseding any prior
// active one atomically. The disclosure policy is snapshotted from the given
// toggles; an invalid duration is rejected before anything is generated or
// stored.
func (s *Service) Issue(ctx context.Context, ownerID id.OwnerID, toggles map[models.DisclosureToggle]bool, durationInput string) (*IssueResult, error) {
	if ownerID.IsNil() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing owner context")
	}
	duration, err := models.ParseDuration(durationInput)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanIssue,
		tracer.String(tracer.AttrDuration, string(duration)))
	var spanErr error
	defer func() { span.End(spanErr) }()

	start := time.Now()
	s.ownerLocks.Lock(ownerID.String())
	defer s.ownerLocks.Unlock(ownerID.String())

	hadActive := true
	if _, err := s.store.GetActive(ctx, ownerID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			spanErr = err
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to read active credential")
		}
		hadActive = false
	}

	token, err := s.tokenFn()
	if err != nil {
		spanErr = err
		return nil, err
	}

	policy := models.ComputePolicy(toggles)
	now := requestcontext.Now(ctx)

	var credential *models.Credential
	var pin string
	for attempt := 0; attempt < maxPINAttempts; attempt++ {
		pin, err = s.pinFn()
		if err != nil {
			spanErr = err
			return nil, err
		}
		credential, err = models.NewCredential(
			id.NewCredentialID(),
			ownerID,
			secrets.Digest(token),
			secrets.Digest(pin),
			policy,
			now,
			duration,
		)
		if err != nil {
			spanErr = err
			return nil, err
		}
		err = s.store.Put(ctx, credential)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrPINConflict) {
			spanErr = err
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to store credential")
		}
		// Another owner's active credential holds this PIN; draw again.
		span.AddEvent(tracer.EventPINRetried)
		s.incrementPINRetries()
		s.logEvent(ctx, slog.LevelDebug, "pin_collision_retry",
			"owner_id", ownerID,
			"attempt", attempt+1,
		)
	}
	if err != nil {
		spanErr = pkgerrors.Wrap(err, pkgerrors.CodeInternal, "could not find a free pin")
		return nil, spanErr
	}

	s.incrementCredentialsIssued(string(duration))
	if !hadActive {
		s.adjustActiveCredentials(1)
	}
	s.observeIssueLatency(time.Since(start).Seconds())
	s.logEvent(ctx, slog.LevelInfo, "credential_issued",
		"owner_id", ownerID,
		"credential_id", credential.ID,
		"duration", duration,
		"expires_at", credential.ExpiresAt,
		"superseded_prior", hadActive,
	)

	return &IssueResult{
		CredentialID:  credential.ID,
		Token:         token,
		PIN:           pin,
		QRPayload:     QRPayloadPrefix + token,
		IssuedAt:      credential.IssuedAt,
		ExpiresAt:     credential.ExpiresAt,
		DurationLabel: duration.Label(),
		Disclosed:     policy.Resolve(),
	}, nil
}

// Validate decides one credential presentation. Every call appends exactly
// one access event, allowed or denied; expiry is evaluated lazily against
// the request clock and persisted when first observed.
func (s *Service) Validate(ctx context.Context, presented string, method audit.Method) (*ValidationResult, error) {
	if presented == "" {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "credential value required")
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid presentation method")
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanValidate,
		tracer.String(tracer.AttrMethod, string(method)))
	var spanErr error
	defer func() { span.End(spanErr) }()

	start := time.Now()
	now := requestcontext.Now(ctx)

	credential, err := s.lookup(ctx, presented)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.deny(ctx, span, nil, method, audit.ReasonNotFound, now, start)
		}
		spanErr = err
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to look up credential")
	}

	status := credential.ComputeStatus(now)
	if status == models.StatusExpired && credential.Status == models.StatusActive {
		// First observation of lazy expiry; persist it so the owner's slot
		// and PIN free up. Only the call that performs the transition moves
		// the gauge, so concurrent observers cannot double-count.
		transitioned, err := s.store.MarkExpired(ctx, credential.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			spanErr = err
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to record expiry")
		}
		if transitioned {
			s.adjustActiveCredentials(-1)
		}
	}

	switch status {
	case models.StatusActive:
		return s.allow(ctx, span, credential, method, now, start)
	case models.StatusSuperseded:
		return s.deny(ctx, span, credential, method, audit.ReasonSuperseded, now, start)
	case models.StatusRevoked:
		return s.deny(ctx, span, credential, method, audit.ReasonRevoked, now, start)
	default:
		return s.deny(ctx, span, credential, method, audit.ReasonExpired, now, start)
	}
}

// actorLabel resolves who to record in the access log: the responder's
// self-identification when they gave one, else the device summary captured
// by middleware.
func actorLabel(ctx context.Context) string {
	if label := requestcontext.ActorLabel(ctx); label != "" {
		return label
	}
	return requestcontext.UserAgent(ctx)
}

// lookup resolves the presented value to a credential. Keypad PINs and scan
// tokens share one entry point; the shape of the value decides the index.
func (s *Service) lookup(ctx context.Context, presented string) (*models.Credential, error) {
	digest := secrets.Digest(presented)
	if secrets.IsPINShaped(presented) {
		return s.store.FindByPINDigest(ctx, digest)
	}
	return s.store.FindByTokenDigest(ctx, digest)
}

func (s *Service) allow(ctx context.Context, span tracer.Span, credential *models.Credential, method audit.Method, now time.Time, start time.Time) (*ValidationResult, error) {
	disclosed := credential.Policy.Resolve()

	result := &ValidationResult{
		Outcome:   audit.OutcomeAllowed,
		Disclosed: disclosed,
		ExpiresAt: credential.ExpiresAt,
	}
	if s.sessions != nil {
		grant, err := s.sessions.Grant(ctx, credential, disclosed)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to mint session grant")
		}
		result.SessionToken = grant
	}

	s.emitAccessEvent(ctx, span, audit.Event{
		OwnerID:      credential.OwnerID,
		CredentialID: credential.ID,
		Method:       method,
		ActorLabel:   actorLabel(ctx),
		Outcome:      audit.OutcomeAllowed,
		Timestamp:    now,
	})
	span.SetAttributes(tracer.String(tracer.AttrOutcome, string(audit.OutcomeAllowed)))
	s.incrementValidations(string(method), string(audit.OutcomeAllowed))
	s.observeValidationLatency(time.Since(start).Seconds())
	s.logEvent(ctx, slog.LevelInfo, "access_allowed",
		"owner_id", credential.OwnerID,
		"credential_id", credential.ID,
		"method", method,
		"fields", len(disclosed),
	)
	return result, nil
}

func (s *Service) deny(ctx context.Context, span tracer.Span, credential *models.Credential, method audit.Method, reason audit.Reason, now time.Time, start time.Time) (*ValidationResult, error) {
	event := audit.Event{
		Method:     method,
		ActorLabel: actorLabel(ctx),
		Outcome:    audit.OutcomeDenied,
		Reason:     reason,
		Timestamp:  now,
	}
	if credential != nil {
		event.OwnerID = credential.OwnerID
		event.CredentialID = credential.ID
	}
	s.emitAccessEvent(ctx, span, event)
	span.SetAttributes(
		tracer.String(tracer.AttrOutcome, string(audit.OutcomeDenied)),
		tracer.String(tracer.AttrReason, string(reason)),
	)
	s.incrementValidations(string(method), string(audit.OutcomeDenied))
	s.observeValidationLatency(time.Since(start).Seconds())
	s.logEvent(ctx, slog.LevelWarn, "access_denied",
		"method", method,
		"reason", reason,
	)
	return &ValidationResult{
		Outcome: audit.OutcomeDenied,
		Reason:  reason,
	}, nil
}

// Revoke immediately terminates the owner's active credential. Returns
// CodeNotFound when the owner has nothing active to revoke.
func (s *Service) Revoke(ctx context.Context, ownerID id.OwnerID) (*models.Credential, error) {
	if ownerID.IsNil() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing owner context")
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanRevoke)
	var spanErr error
	defer func() { span.End(spanErr) }()

	s.ownerLocks.Lock(ownerID.String())
	defer s.ownerLocks.Unlock(ownerID.String())

	now := requestcontext.Now(ctx)
	credential, err := s.store.Revoke(ctx, ownerID, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			spanErr = err
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active credential to revoke")
		}
		spanErr = err
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to revoke credential")
	}

	s.incrementCredentialsRevoked()
	s.adjustActiveCredentials(-1)
	s.logEvent(ctx, slog.LevelInfo, "credential_revoked",
		"owner_id", ownerID,
		"credential_id", credential.ID,
	)
	return credential, nil
}

// History returns the owner's access events, most recent first, filtered by
// scope.
func (s *Service) History(ctx context.Context, ownerID id.OwnerID, scope audit.Scope) ([]audit.Event, error) {
	if ownerID.IsNil() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing owner context")
	}
	if !scope.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid history scope")
	}
	events, err := s.auditor.List(ctx, ownerID, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to list access events")
	}
	return events, nil
}

func (s *Service) emitAccessEvent(ctx context.Context, span tracer.Span, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logEvent(ctx, slog.LevelError, "access_event_emit_failed",
			"error", err,
			"outcome", event.Outcome,
		)
		return
	}
	span.AddEvent(tracer.EventAuditEmitted)
}

func (s *Service) logEvent(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, level, msg, args...)
}

func (s *Service) incrementCredentialsIssued(duration string) {
	if s.metrics != nil {
		s.metrics.IncrementCredentialsIssued(duration)
	}
}

func (s *Service) incrementCredentialsRevoked() {
	if s.metrics != nil {
		s.metrics.IncrementCredentialsRevoked()
	}
}

func (s *Service) adjustActiveCredentials(delta float64) {
	if s.metrics == nil {
		return
	}
	if delta >= 0 {
		s.metrics.IncrementActiveCredentials(delta)
	} else {
		s.metrics.DecrementActiveCredentials(-delta)
	}
}

func (s *Service) incrementValidations(method, outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementValidations(method, outcome)
	}
}

func (s *Service) incrementPINRetries() {
	if s.metrics != nil {
		s.metrics.IncrementPINRetries()
	}
}

func (s *Service) observeIssueLatency(seconds float64) {
	if s.metrics != nil {
		s.metrics.ObserveIssueLatency(seconds)
	}
}

func (s *Service) observeValidationLatency(seconds float64) {
	if s.metrics != nil {
		s.metrics.ObserveValidationLatency(seconds)
	}
}
