package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "healthpass/pkg/domain"
)

// PostgresStore persists access events in the access_events table.
// The table has no UPDATE or DELETE path; appends are the only write.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	const q = `
		INSERT INTO access_events (id, owner_id, credential_id, method, actor_label, outcome, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, q,
		uuid.UUID(event.ID),
		uuid.UUID(event.OwnerID),
		uuid.UUID(event.CredentialID),
		string(event.Method),
		event.ActorLabel,
		string(event.Outcome),
		string(event.Reason),
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append access event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.OwnerID, scope Scope) ([]Event, error) {
	q := `
		SELECT id, owner_id, credential_id, method, actor_label, outcome, reason, occurred_at
		FROM access_events
		WHERE owner_id = $1`
	args := []any{uuid.UUID(ownerID)}
	switch scope {
	case ScopeShared:
		q += ` AND method = $2`
		args = append(args, string(MethodSharedLink))
	case ScopeEmergency:
		q += ` AND method <> $2`
		args = append(args, string(MethodSharedLink))
	}
	q += ` ORDER BY occurred_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list access events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e            Event
			eventID      uuid.UUID
			owner        uuid.UUID
			credentialID uuid.UUID
			method       string
			outcome      string
			reason       string
		)
		if err := rows.Scan(&eventID, &owner, &credentialID, &method, &e.ActorLabel, &outcome, &reason, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan access event: %w", err)
		}
		e.ID = id.EventID(eventID)
		e.OwnerID = id.OwnerID(owner)
		e.CredentialID = id.CredentialID(credentialID)
		e.Method = Method(method)
		e.Outcome = Outcome(outcome)
		e.Reason = Reason(reason)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access events: %w", err)
	}
	return events, nil
}
