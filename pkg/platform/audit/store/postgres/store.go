package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"

	id "hashplanet/pkg/domain"
	audit "hashplanet/pkg/platform/audit"
	txcontext "hashplanet/pkg/platform/tx"
)

//go:embed schema.sql
var schemaSQL string

// Store implements audit.Store on a Postgres table. Appends join the
// caller's transaction when one is in the context.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts an event. Replays of the same event ID are ignored.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := event.ID
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}

	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO registry_audit_events (
			id, event_type, token_id, source, idx,
			from_owner, to_owner, request_id, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`,
		eventID,
		string(event.Type),
		event.TokenID[:],
		event.Source,
		event.Index,
		event.From,
		event.To,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByToken returns the history of one entry, oldest first.
func (s *Store) ListByToken(ctx context.Context, tokenID id.Identifier) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, token_id, source, idx, from_owner, to_owner, request_id, occurred_at
		FROM registry_audit_events
		WHERE token_id = $1
		ORDER BY seq
	`, tokenID[:])
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e         audit.Event
			eventType string
			raw       []byte
		)
		if err := rows.Scan(&e.ID, &eventType, &raw, &e.Source, &e.Index, &e.From, &e.To, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = audit.EventType(eventType)
		copy(e.TokenID[:], raw)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
