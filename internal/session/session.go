// Package session mints and verifies the short-lived grant tokens handed to
// responders after a successful credential validation. The grant carries the
// resolved disclosure so downstream record handlers never re-derive policy.
package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"healthpass/internal/emergency/models"
	id "healthpass/pkg/domain"
	dErrors "healthpass/pkg/domain-errors"
	"healthpass/pkg/requestcontext"
)

const defaultTTL = 15 * time.Minute

// GrantClaims are the JWT claims for an emergency access grant.
type GrantClaims struct {
	CredentialID    string   `json:"credential_id"`
	OwnerID         string   `json:"owner_id"`
	DisclosedFields []string `json:"disclosed_fields"`
	jwt.RegisteredClaims
}

// Issuer signs emergency session grants with a symmetric key.
type Issuer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

// IssuerOption configures the Issuer.
type IssuerOption func(*Issuer)

// WithTTL overrides the default session lifetime.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

func NewIssuer(signingKey string, issuer string, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        defaultTTL,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Grant mints a session token for a validated credential. The session never
// outlives the credential: expiry is the earlier of the session TTL and the
// credential's own expiry.
func (i *Issuer) Grant(ctx context.Context, credential *models.Credential, fields []models.FieldCategory) (string, error) {
	now := requestcontext.Now(ctx)
	expiry := now.Add(i.ttl)
	if credential.ExpiresAt.Before(expiry) {
		expiry = credential.ExpiresAt
	}

	disclosed := make([]string, 0, len(fields))
	for _, f := range fields {
		disclosed = append(disclosed, string(f))
	}

	claims := GrantClaims{
		CredentialID:    credential.ID.String(),
		OwnerID:         credential.OwnerID.String(),
		DisclosedFields: disclosed,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.NewEventID().String(),
			Issuer:    i.issuer,
			Subject:   credential.OwnerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign session grant")
	}
	return signed, nil
}

// Verify parses and validates a session grant, returning its claims.
func (i *Issuer) Verify(tokenString string) (*GrantClaims, error) {
	claims := &GrantClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected signing method")
		}
		return i.signingKey, nil
	}, jwt.WithIssuer(i.issuer))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid session grant")
	}
	if !token.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session grant")
	}
	return claims, nil
}
