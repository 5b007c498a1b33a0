package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthpass/internal/emergency/models"
	id "healthpass/pkg/domain"
	"healthpass/pkg/requestcontext"
)

func testCredential(t *testing.T, issuedAt time.Time, duration models.Duration) *models.Credential {
	t.Helper()
	cred, err := models.NewCredential(
		id.NewCredentialID(),
		id.OwnerID(uuid.New()),
		"token-digest",
		"pin-digest",
		models.ComputePolicy(map[models.DisclosureToggle]bool{models.ToggleMedications: true}),
		issuedAt,
		duration,
	)
	require.NoError(t, err)
	return cred
}

func TestGrantRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-signing-key", "healthpass")
	issuedAt := time.Now()
	cred := testCredential(t, issuedAt, models.Duration1h)

	token, err := issuer.Grant(context.Background(), cred, cred.Policy.Resolve())
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, cred.ID.String(), claims.CredentialID)
	assert.Equal(t, cred.OwnerID.String(), claims.OwnerID)
	assert.Contains(t, claims.DisclosedFields, string(models.FieldBloodType))
	assert.Contains(t, claims.DisclosedFields, string(models.FieldMedications))
}

func TestGrantCappedByCredentialExpiry(t *testing.T) {
	issuer := NewIssuer("test-signing-key", "healthpass", WithTTL(time.Hour))
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cred := testCredential(t, issuedAt, models.Duration15m)

	// Validate ten minutes in; only five minutes of credential life remain,
	// so the hour-long session TTL must be cut down.
	ctx := requestcontext.WithFixedTime(context.Background(), issuedAt.Add(10*time.Minute))
	token, err := issuer.Grant(ctx, cred, cred.Policy.Resolve())
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.Time.Equal(cred.ExpiresAt))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	issuer := NewIssuer("key-one", "healthpass")
	cred := testCredential(t, time.Now(), models.Duration1h)

	token, err := issuer.Grant(context.Background(), cred, cred.Policy.Resolve())
	require.NoError(t, err)

	other := NewIssuer("key-two", "healthpass")
	_, err = other.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredGrant(t *testing.T) {
	issuer := NewIssuer("test-signing-key", "healthpass")
	issuedAt := time.Now().Add(-2 * time.Hour)
	cred := testCredential(t, issuedAt, models.Duration1h)

	ctx := requestcontext.WithFixedTime(context.Background(), issuedAt)
	token, err := issuer.Grant(ctx, cred, cred.Policy.Resolve())
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.Error(t, err)
}
