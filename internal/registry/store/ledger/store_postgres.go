package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"hashplanet/internal/registry/models"
	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/sentinel"
	txcontext "hashplanet/pkg/platform/tx"
	"hashplanet/pkg/requestcontext"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// lockEntries serializes index assignment against other writers while still
// admitting plain reads and single-row ownership updates.
const lockEntries = `LOCK TABLE registry_entries IN SHARE ROW EXCLUSIVE MODE`

// PostgresStore persists the ledger in one registry_entries table. Balances
// are derived with COUNT over the owner column, so they can never drift from
// the entries.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the ledger table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Bootstrap(ctx context.Context, seeds []models.Seed) error {
	if err := checkSeeds(seeds); err != nil {
		return err
	}
	return txcontext.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, lockEntries); err != nil {
			return fmt.Errorf("lock ledger: %w", err)
		}

		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM registry_entries`).Scan(&existing); err != nil {
			return fmt.Errorf("count entries: %w", err)
		}
		if existing > 0 {
			return s.verifyPrefix(ctx, tx, seeds)
		}

		now := requestcontext.Now(ctx)
		for i, seed := range seeds {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO registry_entries (token_id, source, idx, owner, created_at)
				VALUES ($1, $2, $3, '', $4)
			`, seed.ID[:], seed.Source, i, now)
			if err != nil {
				return fmt.Errorf("insert genesis entry %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) verifyPrefix(ctx context.Context, tx *sql.Tx, seeds []models.Seed) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT token_id, source FROM registry_entries
		WHERE idx < $1
		ORDER BY idx
	`, len(seeds))
	if err != nil {
		return fmt.Errorf("read genesis prefix: %w", err)
	}
	defer rows.Close()

	type pair struct {
		id     id.Identifier
		source string
	}
	var prefix []pair
	for rows.Next() {
		var (
			raw []byte
			p   pair
		)
		if err := rows.Scan(&raw, &p.source); err != nil {
			return fmt.Errorf("scan genesis prefix: %w", err)
		}
		copy(p.id[:], raw)
		prefix = append(prefix, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read genesis prefix: %w", err)
	}

	return verifySeeds(seeds, func(i int) (id.Identifier, string, bool) {
		if i >= len(prefix) {
			return id.Identifier{}, "", false
		}
		return prefix[i].id, prefix[i].source, true
	})
}

func (s *PostgresStore) Find(ctx context.Context, tokenID id.Identifier) (*models.Entry, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT token_id, source, idx, owner, created_at
		FROM registry_entries
		WHERE token_id = $1
	`, tokenID[:])
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) EntryAt(ctx context.Context, index int) (id.Identifier, error) {
	var out id.Identifier
	if index < 0 {
		return out, sentinel.ErrOutOfRange
	}
	var raw []byte
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT token_id FROM registry_entries WHERE idx = $1`, index).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return out, sentinel.ErrOutOfRange
	}
	if err != nil {
		return out, fmt.Errorf("entry at %d: %w", index, err)
	}
	copy(out[:], raw)
	return out, nil
}

func (s *PostgresStore) List(ctx context.Context, offset, limit int) ([]models.Entry, error) {
	if offset < 0 || limit <= 0 {
		return []models.Entry{}, nil
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT token_id, source, idx, owner, created_at
		FROM registry_entries
		ORDER BY idx
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	out := make([]models.Entry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) BalanceOf(ctx context.Context, holder models.State) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registry_entries WHERE owner = $1`, holder.StorageOwner(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", holder, err)
	}
	return n, nil
}

func (s *PostgresStore) TotalSupply(ctx context.Context) (int, error) {
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM registry_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("total supply: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Register(ctx context.Context, tokenID id.Identifier, source string, state models.State) (*models.Entry, error) {
	entry := &models.Entry{ID: tokenID, Source: source, State: state, CreatedAt: requestcontext.Now(ctx)}
	err := txcontext.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, lockEntries); err != nil {
			return fmt.Errorf("lock ledger: %w", err)
		}
		return tx.QueryRowContext(ctx, `
			INSERT INTO registry_entries (token_id, source, idx, owner, created_at)
			SELECT $1, $2, COALESCE(MAX(idx) + 1, 0), $3, $4 FROM registry_entries
			RETURNING idx
		`, tokenID[:], source, state.StorageOwner(), entry.CreatedAt).Scan(&entry.Index)
	})
	if isUniqueViolation(err) {
		return nil, sentinel.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("register entry: %w", err)
	}
	return entry, nil
}

// TransferOwnership is a single conditional UPDATE; the follow-up existence
// check only classifies a miss.
func (s *PostgresStore) TransferOwnership(ctx context.Context, tokenID id.Identifier, from, to models.State) error {
	exec := s.execer(ctx)
	result, err := exec.ExecContext(ctx, `
		UPDATE registry_entries
		SET owner = $3
		WHERE token_id = $1 AND owner = $2
	`, tokenID[:], from.StorageOwner(), to.StorageOwner())
	if err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transfer ownership rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	err = exec.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM registry_entries WHERE token_id = $1)`, tokenID[:],
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("transfer ownership lookup: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		raw   []byte
		owner string
		entry models.Entry
	)
	if err := row.Scan(&raw, &entry.Source, &entry.Index, &owner, &entry.CreatedAt); err != nil {
		return nil, err
	}
	copy(entry.ID[:], raw)
	entry.State = models.StateFromStorage(owner)
	return &entry, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
