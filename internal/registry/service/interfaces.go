package service

import (
	"context"

	"hashplanet/internal/registry/models"
	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/audit"
)

// Store is the ownership ledger. Every mutating method is one atomic step;
// failures are reported with sentinel errors.
type Store interface {
	// Bootstrap writes the seeds into an empty ledger or verifies that a
	// populated one starts with them (sentinel.ErrConflict on mismatch).
	Bootstrap(ctx context.Context, seeds []models.Seed) error

	// Find returns sentinel.ErrNotFound for an unregistered identifier.
	Find(ctx context.Context, tokenID id.Identifier) (*models.Entry, error)

	// EntryAt returns sentinel.ErrOutOfRange outside [0, TotalSupply).
	EntryAt(ctx context.Context, index int) (id.Identifier, error)

	List(ctx context.Context, offset, limit int) ([]models.Entry, error)

	// BalanceOf counts entries in exactly the given state.
	BalanceOf(ctx context.Context, holder models.State) (int, error)

	TotalSupply(ctx context.Context) (int, error)

	// Register appends a new entry at the next index, or returns
	// sentinel.ErrConflict if the identifier already exists.
	Register(ctx context.Context, tokenID id.Identifier, source string, state models.State) (*models.Entry, error)

	// TransferOwnership moves an entry from one state to another only if it
	// is currently in from. It returns sentinel.ErrNotFound or
	// sentinel.ErrInvalidState and changes nothing on failure.
	TransferOwnership(ctx context.Context, tokenID id.Identifier, from, to models.State) error
}

// Rewarder pays out a companion-ledger reward after a successful claim.
type Rewarder interface {
	RewardClaim(ctx context.Context, claimer id.Principal, tokenID id.Identifier) error
}

// AuditPublisher receives one event per committed transition.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
