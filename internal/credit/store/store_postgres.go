package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math/big"

	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/sentinel"
	txcontext "hashplanet/pkg/platform/tx"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore keeps balances in a NUMERIC column so amounts keep full
// precision. Amounts cross the driver boundary as decimal strings.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the balance table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure credit schema: %w", err)
	}
	return nil
}

const creditHolder = `
	INSERT INTO credit_balances (holder, amount)
	VALUES ($1, $2::numeric)
	ON CONFLICT (holder) DO UPDATE SET amount = credit_balances.amount + EXCLUDED.amount
`

func (s *PostgresStore) Mint(ctx context.Context, to id.Principal, amount *big.Int) error {
	if _, err := s.db.ExecContext(ctx, creditHolder, string(to), amount.String()); err != nil {
		return fmt.Errorf("mint credit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Transfer(ctx context.Context, from, to id.Principal, amount *big.Int) error {
	return txcontext.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE credit_balances
			SET amount = amount - $2::numeric
			WHERE holder = $1 AND amount >= $2::numeric
		`, string(from), amount.String())
		if err != nil {
			return fmt.Errorf("debit credit: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("debit credit rows affected: %w", err)
		}
		if rows == 0 {
			return sentinel.ErrInvalidState
		}
		if _, err := tx.ExecContext(ctx, creditHolder, string(to), amount.String()); err != nil {
			return fmt.Errorf("credit recipient: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) BalanceOf(ctx context.Context, holder id.Principal) (*big.Int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT amount::text FROM credit_balances WHERE holder = $1`, string(holder),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("credit balance: %w", err)
	}
	return parseNumeric(raw)
}

func (s *PostgresStore) TotalSupply(ctx context.Context) (*big.Int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM credit_balances`,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("credit supply: %w", err)
	}
	return parseNumeric(raw)
}

func parseNumeric(raw string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt credit amount %q", raw)
	}
	return n, nil
}
