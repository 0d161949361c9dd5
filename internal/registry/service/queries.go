package service

import (
	"context"
	"errors"

	"hashplanet/internal/registry/codec"
	"hashplanet/internal/registry/models"
	id "hashplanet/pkg/domain"
	dErrors "hashplanet/pkg/domain-errors"
	"hashplanet/pkg/platform/sentinel"
)

// MaxPageSize bounds List.
const MaxPageSize = 256

// Entry returns the full record for tokenID.
func (s *Service) Entry(ctx context.Context, tokenID id.Identifier) (*models.Entry, error) {
	entry, err := s.store.Find(ctx, tokenID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, unknownIdentifier(tokenID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load entry")
	}
	return entry, nil
}

// OwnerOf returns the owner of tokenID, rendering the unclaimed pool as the
// sentinel principal.
func (s *Service) OwnerOf(ctx context.Context, tokenID id.Identifier) (id.Principal, error) {
	entry, err := s.Entry(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return entry.OwnerAs(s.meta.Sentinel), nil
}

// StateOf returns the tagged state of tokenID.
func (s *Service) StateOf(ctx context.Context, tokenID id.Identifier) (models.State, error) {
	entry, err := s.Entry(ctx, tokenID)
	if err != nil {
		return models.State{}, err
	}
	return entry.State, nil
}

// TokenURI returns the source string tokenID was registered under.
func (s *Service) TokenURI(ctx context.Context, tokenID id.Identifier) (string, error) {
	entry, err := s.Entry(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return entry.Source, nil
}

// BalanceOf counts the entries held by principal. The sentinel's balance is
// the size of the unclaimed pool; a principal that never claimed has zero.
func (s *Service) BalanceOf(ctx context.Context, principal id.Principal) (int, error) {
	holder := models.Unclaimed()
	if principal != s.meta.Sentinel {
		if _, err := id.ParsePrincipal(string(principal)); err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeValidation, "invalid principal")
		}
		holder = models.ClaimedBy(principal)
	}
	n, err := s.store.BalanceOf(ctx, holder)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	return n, nil
}

// EntryAtIndex returns the identifier enumerated at index.
func (s *Service) EntryAtIndex(ctx context.Context, index int) (id.Identifier, error) {
	tokenID, err := s.store.EntryAt(ctx, index)
	if errors.Is(err, sentinel.ErrOutOfRange) {
		return id.Identifier{}, dErrors.New(dErrors.CodeIndexOutOfRange, "index out of range")
	}
	if err != nil {
		return id.Identifier{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read index")
	}
	return tokenID, nil
}

func (s *Service) TotalSupply(ctx context.Context) (int, error) {
	n, err := s.store.TotalSupply(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read total supply")
	}
	return n, nil
}

// List pages through entries in index order.
func (s *Service) List(ctx context.Context, offset, limit int) ([]models.Entry, error) {
	if offset < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "offset must not be negative")
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	entries, err := s.store.List(ctx, offset, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list entries")
	}
	return entries, nil
}

// Resolve derives the identifier for a source string and reports whether it
// is registered. Only an invalid source is an error.
func (s *Service) Resolve(ctx context.Context, source string) (id.Identifier, bool, error) {
	tokenID, err := codec.Derive(codec.Normalize(source))
	if err != nil {
		return id.Identifier{}, false, err
	}
	_, err = s.store.Find(ctx, tokenID)
	switch {
	case err == nil:
		return tokenID, true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return tokenID, false, nil
	default:
		return tokenID, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up entry")
	}
}
