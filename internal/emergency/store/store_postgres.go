package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"healthpass/internal/emergency/models"
	id "healthpass/pkg/domain"
)

const pgUniqueViolation = "23505"

// PostgresStore persists credentials in the credentials table. Partial
// unique indexes enforce the single-active-per-owner and active-PIN
// uniqueness invariants at the database level, so they hold across
// processes, not just within one store instance.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, credential *models.Credential) error {
	policy, err := json.Marshal(credential.Policy.ToggleMap())
	if err != nil {
		return fmt.Errorf("encode policy snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put credential: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// Supersede the owner's current active credential inside the same
	// transaction, so no reader observes zero or two active credentials.
	if _, err := tx.ExecContext(ctx,
		`UPDATE credentials SET status = $1 WHERE owner_id = $2 AND status = $3`,
		string(models.StatusSuperseded), uuid.UUID(credential.OwnerID), string(models.StatusActive),
	); err != nil {
		return fmt.Errorf("supersede active credential: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credentials (id, owner_id, token_digest, pin_digest, policy, issued_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(credential.ID),
		uuid.UUID(credential.OwnerID),
		credential.TokenDigest,
		credential.PINDigest,
		policy,
		credential.IssuedAt,
		credential.ExpiresAt,
		string(credential.Status),
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrPINConflict
		}
		return fmt.Errorf("insert credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetActive(ctx context.Context, ownerID id.OwnerID) (*models.Credential, error) {
	return s.queryOne(ctx,
		`SELECT id, owner_id, token_digest, pin_digest, policy, issued_at, expires_at, status
		 FROM credentials WHERE owner_id = $1 AND status = $2`,
		uuid.UUID(ownerID), string(models.StatusActive))
}

func (s *PostgresStore) FindByTokenDigest(ctx context.Context, digest string) (*models.Credential, error) {
	return s.queryOne(ctx,
		`SELECT id, owner_id, token_digest, pin_digest, policy, issued_at, expires_at, status
		 FROM credentials WHERE token_digest = $1`,
		digest)
}

func (s *PostgresStore) FindByPINDigest(ctx context.Context, digest string) (*models.Credential, error) {
	return s.queryOne(ctx,
		`SELECT id, owner_id, token_digest, pin_digest, policy, issued_at, expires_at, status
		 FROM credentials WHERE pin_digest = $1 AND status = $2`,
		digest, string(models.StatusActive))
}

func (s *PostgresStore) Revoke(ctx context.Context, ownerID id.OwnerID, _ time.Time) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE credentials SET status = $1
		WHERE owner_id = $2 AND status = $3
		RETURNING id, owner_id, token_digest, pin_digest, policy, issued_at, expires_at, status`,
		string(models.StatusRevoked), uuid.UUID(ownerID), string(models.StatusActive))
	return scanCredential(row)
}

func (s *PostgresStore) MarkExpired(ctx context.Context, credentialID id.CredentialID) (bool, error) {
	// Guarded on Active so terminal statuses never move; the row count tells
	// the caller whether this call won the transition.
	result, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET status = $1 WHERE id = $2 AND status = $3`,
		string(models.StatusExpired), uuid.UUID(credentialID), string(models.StatusActive))
	if err != nil {
		return false, fmt.Errorf("mark credential expired: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark credential expired: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...any) (*models.Credential, error) {
	return scanCredential(s.db.QueryRowContext(ctx, query, args...))
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		credential   models.Credential
		credentialID uuid.UUID
		ownerID      uuid.UUID
		policyRaw    []byte
		status       string
	)
	err := row.Scan(&credentialID, &ownerID, &credential.TokenDigest, &credential.PINDigest,
		&policyRaw, &credential.IssuedAt, &credential.ExpiresAt, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}

	var toggles map[models.DisclosureToggle]bool
	if err := json.Unmarshal(policyRaw, &toggles); err != nil {
		return nil, fmt.Errorf("decode policy snapshot: %w", err)
	}

	credential.ID = id.CredentialID(credentialID)
	credential.OwnerID = id.OwnerID(ownerID)
	credential.Policy = models.ComputePolicy(toggles)
	credential.Status = models.Status(status)
	return &credential, nil
}
