package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"healthpass/internal/audit"
	"healthpass/internal/emergency/metrics"
	"healthpass/internal/emergency/models"
	"healthpass/internal/emergency/service/mocks"
	"healthpass/internal/emergency/store"
	"healthpass/internal/session"
	id "healthpass/pkg/domain"
	dErrors "healthpass/pkg/domain-errors"
	"healthpass/pkg/requestcontext"
)

// ServiceSuite exercises the full issue/validate/revoke lifecycle against
// the real in-memory stores, so the single-active and PIN-uniqueness
// invariants are enforced by the same code paths production uses.
type ServiceSuite struct {
	suite.Suite
	credStore  *store.InMemoryStore
	auditStore *audit.InMemoryStore
	service    *Service
	ownerID    id.OwnerID
}

func (s *ServiceSuite) SetupTest() {
	s.credStore = store.New()
	s.auditStore = audit.NewInMemoryStore()
	auditor := audit.NewPublisher(s.auditStore)
	s.service = NewService(
		s.credStore,
		auditor,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithSessionIssuer(session.NewIssuer("test-signing-key", "healthpass")),
	)
	s.ownerID = id.OwnerID(uuid.New())
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) allToggles(enabled bool) map[models.DisclosureToggle]bool {
	toggles := make(map[models.DisclosureToggle]bool, len(models.Toggles))
	for _, t := range models.Toggles {
		toggles[t] = enabled
	}
	return toggles
}

func (s *ServiceSuite) TestIssueRejectsInvalidDurationBeforeAnyEffect() {
	ctx := context.Background()
	_, err := s.service.Issue(ctx, s.ownerID, s.allToggles(true), "45m")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidDuration))

	// Nothing was stored and nothing was logged.
	_, err = s.credStore.GetActive(ctx, s.ownerID)
	s.ErrorIs(err, store.ErrNotFound)
	events, err := s.auditStore.ListAll(ctx)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *ServiceSuite) TestIssueReturnsPlaintextSecretsOnce() {
	result, err := s.service.Issue(context.Background(), s.ownerID, s.allToggles(false), "30m")
	s.Require().NoError(err)

	s.NotEmpty(result.Token)
	s.Len(result.PIN, 6)
	s.Equal(QRPayloadPrefix+result.Token, result.QRPayload)
	s.Equal("30 minutes", result.DurationLabel)
	s.Equal(result.IssuedAt.Add(30*time.Minute), result.ExpiresAt)

	// The store only ever sees digests.
	active, err := s.credStore.GetActive(context.Background(), s.ownerID)
	s.Require().NoError(err)
	s.NotEqual(result.Token, active.TokenDigest)
	s.NotEqual(result.PIN, active.PINDigest)
}

func (s *ServiceSuite) TestIssueSupersedesPriorCredential() {
	ctx := context.Background()
	first, err := s.service.Issue(ctx, s.ownerID, s.allToggles(true), "1h")
	s.Require().NoError(err)
	second, err := s.service.Issue(ctx, s.ownerID, s.allToggles(true), "1h")
	s.Require().NoError(err)

	denied, err := s.service.Validate(ctx, first.Token, audit.MethodQRScan)
	s.Require().NoError(err)
	s.Equal(audit.OutcomeDenied, denied.Outcome)
	s.Equal(audit.ReasonSuperseded, denied.Reason)

	allowed, err := s.service.Validate(ctx, second.Token, audit.MethodQRScan)
	s.Require().NoError(err)
	s.Equal(audit.OutcomeAllowed, allowed.Outcome)
}

func (s *ServiceSuite) TestValidateUnknownValueDeniedNotFound() {
	ctx := context.Background()
	result, err := s.service.Validate(ctx, "no-such-token", audit.MethodQRScan)
	s.Require().NoError(err)
	s.Equal(audit.OutcomeDenied, result.Outcome)
	s.Equal(audit.ReasonNotFound, result.Reason)

	// The denial is still logged, with no owner to attribute it to.
	events, err := s.auditStore.ListAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.True(events[0].OwnerID.IsNil())
	s.Equal(audit.ReasonNotFound, events[0].Reason)
}

func (s *ServiceSuite) TestPINCollisionRetriesUntilUnique() {
	ctx := context.Background()

	// First owner takes PIN 111111.
	pins := []string{"111111", "111111", "222222"}
	scripted := func() (string, error) {
		pin := pins[0]
		pins = pins[1:]
		return pin, nil
	}
	svc := NewService(
		s.credStore,
		audit.NewPublisher(s.auditStore),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithPINSource(scripted),
	)

	first, err := svc.Issue(ctx, s.ownerID, s.allToggles(true), "1h")
	s.Require().NoError(err)
	s.Equal("111111", first.PIN)

	// Second owner draws the same PIN, hits the active-PIN conflict, and
	// gets a fresh one.
	second, err := svc.Issue(ctx, id.OwnerID(uuid.New()), s.allToggles(true), "1h")
	s.Require().NoError(err)
	s.Equal("222222", second.PIN)

	// Both PINs resolve to their own credentials.
	r1, err := svc.Validate(ctx, "111111", audit.MethodPINEntry)
	s.Require().NoError(err)
	s.Equal(audit.OutcomeAllowed, r1.Outcome)
	r2, err := svc.Validate(ctx, "222222", audit.MethodPINEntry)
	s.Require().NoError(err)
	s.Equal(audit.OutcomeAllowed, r2.Outcome)
}

func (s *ServiceSuite) TestPolicyFrozenAtIssuance() {
	ctx := context.Background()
	toggles := map[models.DisclosureToggle]bool{models.ToggleMedications: true}
	result, err := s.service.Issue(ctx, s.ownerID, toggles, "1h")
	s.Require().NoError(err)

	// Editing the toggles after issuance must not reach the credential.
	toggles[models.ToggleMedications] = false
	toggles[models.ToggleConditions] = true

	validated, err := s.service.Validate(ctx, result.Token, audit.MethodQRScan)
	s.Require().NoError(err)
	s.Contains(validated.Disclosed, models.FieldMedications)
	s.NotContains(validated.Disclosed, models.FieldConditions)
}

func (s *ServiceSuite) TestSafetyFieldsDisclosedWithAllTogglesOff() {
	ctx := context.Background()
	result, err := s.service.Issue(ctx, s.ownerID, s.allToggles(false), "15m")
	s.Require().NoError(err)

	validated, err := s.service.Validate(ctx, result.Token, audit.MethodQRScan)
	s.Require().NoError(err)
	s.Equal(audit.OutcomeAllowed, validated.Outcome)
	s.Equal([]models.FieldCategory{models.FieldBloodType, models.FieldSevereAllergies}, validated.Disclosed)
}

func (s *ServiceSuite) TestExpirationBoundaryAndMonotonicity() {
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issueCtx := requestcontext.WithFixedTime(context.Background(), issuedAt)
	result, err := s.service.Issue(issueCtx, s.ownerID, s.allToggles(true), "15m")
	s.Require().NoError(err)
	expiresAt := issuedAt.Add(15 * time.Minute)

	// One second before expiry the credential is still valid.
	before := requestcontext.WithFixedTime(context.Background(), expiresAt.Add(-time.Second))
	r, err := s.service.Validate(before, result.Token, audit.MethodQRScan)
	s.Require().NoError(err)
	s.Equal(audit.OutcomeAllowed, r.Outcome)

	// At the boundary instant it is expired.
	at := requestcontext.WithFixedTime(context.Background(), expiresAt)
	r, err = s.service.Validate(at, result.Token, audit.MethodQRScan)
	s.Require().NoError(err)
	s.Equal(audit.OutcomeDenied, r.Outcome)
	s.Equal(audit.ReasonExpired, r.Reason)

	// Expiry never reverses, no matter how often the credential is retried.
	later := requestcontext.WithFixedTime(context.Background(), expiresAt.Add(time.Hour))
	r, err = s.service.Validate(later, result.Token, audit.MethodQRScan)
	s.Require().NoError(err)
	s.Equal(audit.ReasonExpired, r.Reason)

	// The owner's active slot was freed when expiry was observed.
	_, err = s.credStore.GetActive(context.Background(), s.ownerID)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *ServiceSuite) TestRevokeTerminatesAccess() {
	ctx := context.Background()
	result, err := s.service.Issue(ctx, s.ownerID, s.allToggles(true), "4h")
	s.Require().NoError(err)

	revoked, err := s.service.Revoke(ctx, s.ownerID)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, revoked.Status)

	r, err := s.service.Validate(ctx, result.Token, audit.MethodQRScan)
	s.Require().NoError(err)
	s.Equal(audit.OutcomeDenied, r.Outcome)
	s.Equal(audit.ReasonRevoked, r.Reason)

	// Nothing left to revoke.
	_, err = s.service.Revoke(ctx, s.ownerID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestEveryValidationAppendsExactlyOneEvent() {
	ctx := context.Background()

	// allowed
	active, err := s.service.Issue(ctx, s.ownerID, s.allToggles(true), "1h")
	s.Require().NoError(err)
	_, err = s.service.Validate(ctx, active.Token, audit.MethodQRScan)
	s.Require().NoError(err)

	// superseded
	replacement, err := s.service.Issue(ctx, s.ownerID, s.allToggles(true), "1h")
	s.Require().NoError(err)
	_, err = s.service.Validate(ctx, active.Token, audit.MethodQRScan)
	s.Require().NoError(err)

	// revoked
	_, err = s.service.Revoke(ctx, s.ownerID)
	s.Require().NoError(err)
	_, err = s.service.Validate(ctx, replacement.Token, audit.MethodPINEntry)
	s.Require().NoError(err)

	// not found
	_, err = s.service.Validate(ctx, "000000", audit.MethodPINEntry)
	s.Require().NoError(err)

	// expired
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expired, err := s.service.Issue(requestcontext.WithFixedTime(ctx, issuedAt), s.ownerID, s.allToggles(true), "15m")
	s.Require().NoError(err)
	_, err = s.service.Validate(requestcontext.WithFixedTime(ctx, issuedAt.Add(time.Hour)), expired.Token, audit.MethodQRScan)
	s.Require().NoError(err)

	events, err := s.auditStore.ListAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 5)

	wantReasons := []audit.Reason{"", audit.ReasonSuperseded, audit.ReasonRevoked, audit.ReasonNotFound, audit.ReasonExpired}
	for i, want := range wantReasons {
		s.Equal(want, events[i].Reason, "event %d", i)
		s.False(events[i].ID.IsNil())
		s.False(events[i].Timestamp.IsZero())
	}
	s.Equal(audit.OutcomeAllowed, events[0].Outcome)
}

func (s *ServiceSuite) TestActorLabelPrefersResponderIdentity() {
	ctx := context.Background()
	result, err := s.service.Issue(ctx, s.ownerID, s.allToggles(true), "1h")
	s.Require().NoError(err)

	// A responder who self-identifies is recorded verbatim.
	labeled := requestcontext.WithActorLabel(
		requestcontext.WithUserAgent(ctx, "Safari on iOS (mobile)"),
		"Paramedic ID #27491",
	)
	_, err = s.service.Validate(labeled, result.Token, audit.MethodQRScan)
	s.Require().NoError(err)

	// An anonymous responder falls back to the device summary, even on a
	// denied attempt.
	anonymous := requestcontext.WithUserAgent(ctx, "Chrome on Windows")
	_, err = s.service.Validate(anonymous, "unknown-token", audit.MethodQRScan)
	s.Require().NoError(err)

	events, err := s.auditStore.ListAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal("Paramedic ID #27491", events[0].ActorLabel)
	s.Equal("Chrome on Windows", events[1].ActorLabel)
}

func (s *ServiceSuite) TestHistoryScopeFiltering() {
	ctx := context.Background()
	result, err := s.service.Issue(ctx, s.ownerID, s.allToggles(true), "1h")
	s.Require().NoError(err)

	_, err = s.service.Validate(ctx, result.Token, audit.MethodQRScan)
	s.Require().NoError(err)
	_, err = s.service.Validate(ctx, result.Token, audit.MethodSharedLink)
	s.Require().NoError(err)

	emergency, err := s.service.History(ctx, s.ownerID, audit.ScopeEmergency)
	s.Require().NoError(err)
	s.Require().Len(emergency, 1)
	s.Equal(audit.MethodQRScan, emergency[0].Method)

	shared, err := s.service.History(ctx, s.ownerID, audit.ScopeShared)
	s.Require().NoError(err)
	s.Require().Len(shared, 1)
	s.Equal(audit.MethodSharedLink, shared[0].Method)

	all, err := s.service.History(ctx, s.ownerID, audit.ScopeAll)
	s.Require().NoError(err)
	s.Len(all, 2)

	_, err = s.service.History(ctx, s.ownerID, audit.Scope("bogus"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestHistoryOrderedMostRecentFirst() {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	result, err := s.service.Issue(requestcontext.WithFixedTime(context.Background(), base), s.ownerID, s.allToggles(true), "24h")
	s.Require().NoError(err)

	for i := 1; i <= 3; i++ {
		ctx := requestcontext.WithFixedTime(context.Background(), base.Add(time.Duration(i)*time.Minute))
		_, err = s.service.Validate(ctx, result.Token, audit.MethodQRScan)
		s.Require().NoError(err)
	}

	events, err := s.service.History(context.Background(), s.ownerID, audit.ScopeAll)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	for i := 1; i < len(events); i++ {
		s.False(events[i-1].Timestamp.Before(events[i].Timestamp))
	}
}

func (s *ServiceSuite) TestSessionGrantIssuedOnAllowed() {
	ctx := context.Background()
	result, err := s.service.Issue(ctx, s.ownerID, s.allToggles(false), "1h")
	s.Require().NoError(err)

	validated, err := s.service.Validate(ctx, result.Token, audit.MethodQRScan)
	s.Require().NoError(err)
	s.NotEmpty(validated.SessionToken)

	claims, err := session.NewIssuer("test-signing-key", "healthpass").Verify(validated.SessionToken)
	s.Require().NoError(err)
	s.Equal(result.CredentialID.String(), claims.CredentialID)
	s.ElementsMatch([]string{"blood_type", "severe_allergies"}, claims.DisclosedFields)
}

func TestConcurrentExpiryObserversMoveGaugeOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockStore := mocks.NewMockStore(ctrl)

	m := metrics.New()
	svc := NewService(
		mockStore,
		audit.NewPublisher(audit.NewInMemoryStore()),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithMetrics(m),
	)

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cred, err := models.NewCredential(
		id.NewCredentialID(), id.OwnerID(uuid.New()),
		"token-digest", "pin-digest",
		models.ComputePolicy(nil), issuedAt, models.Duration15m,
	)
	require.NoError(t, err)

	// Two validations race on the same just-expired credential: both read
	// the stored Active row, but only the first MarkExpired transitions.
	mockStore.EXPECT().FindByTokenDigest(gomock.Any(), gomock.Any()).Return(cred, nil).Times(2)
	gomock.InOrder(
		mockStore.EXPECT().MarkExpired(gomock.Any(), cred.ID).Return(true, nil),
		mockStore.EXPECT().MarkExpired(gomock.Any(), cred.ID).Return(false, nil),
	)

	ctx := requestcontext.WithFixedTime(context.Background(), issuedAt.Add(time.Hour))
	for i := 0; i < 2; i++ {
		result, err := svc.Validate(ctx, "some-token", audit.MethodQRScan)
		require.NoError(t, err)
		require.Equal(t, audit.ReasonExpired, result.Reason)
	}

	assert.Equal(t, float64(-1), testutil.ToFloat64(m.ActiveCredentials))
}

// ErrorSuite asserts error propagation across the store boundary with mocks.
type ErrorSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockStore
	service   *Service
}

func (s *ErrorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.service = NewService(
		s.mockStore,
		audit.NewPublisher(audit.NewInMemoryStore()),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func (s *ErrorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorSuite))
}

func (s *ErrorSuite) TestIssueWrapsStoreFailure() {
	ownerID := id.OwnerID(uuid.New())
	s.mockStore.EXPECT().GetActive(gomock.Any(), ownerID).Return(nil, store.ErrNotFound)
	s.mockStore.EXPECT().Put(gomock.Any(), gomock.Any()).Return(dErrors.New(dErrors.CodeTimeout, "connection reset"))

	_, err := s.service.Issue(context.Background(), ownerID, nil, "1h")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *ErrorSuite) TestIssueGivesUpAfterBoundedPINRetries() {
	ownerID := id.OwnerID(uuid.New())
	s.mockStore.EXPECT().GetActive(gomock.Any(), ownerID).Return(nil, store.ErrNotFound)
	s.mockStore.EXPECT().Put(gomock.Any(), gomock.Any()).Return(store.ErrPINConflict).Times(maxPINAttempts)

	_, err := s.service.Issue(context.Background(), ownerID, nil, "1h")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ErrorSuite) TestValidateWrapsLookupFailure() {
	s.mockStore.EXPECT().FindByTokenDigest(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeTimeout, "connection reset"))

	_, err := s.service.Validate(context.Background(), "some-token", audit.MethodQRScan)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *ErrorSuite) TestValidateRejectsInvalidMethod() {
	_, err := s.service.Validate(context.Background(), "some-token", audit.Method("carrier_pigeon"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ErrorSuite) TestValidateSessionGrantFailure() {
	issuedAt := time.Now()
	cred, err := models.NewCredential(
		id.NewCredentialID(), id.OwnerID(uuid.New()),
		"token-digest", "pin-digest",
		models.ComputePolicy(nil), issuedAt, models.Duration1h,
	)
	s.Require().NoError(err)

	sessions := mocks.NewMockSessionIssuer(s.ctrl)
	sessions.EXPECT().Grant(gomock.Any(), gomock.Any(), gomock.Any()).Return("", dErrors.New(dErrors.CodeInternal, "signing failed"))
	svc := NewService(
		s.mockStore,
		audit.NewPublisher(audit.NewInMemoryStore()),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithSessionIssuer(sessions),
	)
	s.mockStore.EXPECT().FindByTokenDigest(gomock.Any(), gomock.Any()).Return(cred, nil)

	_, err = svc.Validate(context.Background(), "some-token", audit.MethodQRScan)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
