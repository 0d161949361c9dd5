// Package service is the companion credit ledger: a mintable fungible token
// whose only minter is fixed at construction. It never reads the registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"hashplanet/internal/credit/models"
	id "hashplanet/pkg/domain"
	dErrors "hashplanet/pkg/domain-errors"
	"hashplanet/pkg/platform/sentinel"
)

type Store interface {
	Mint(ctx context.Context, to id.Principal, amount *big.Int) error
	Transfer(ctx context.Context, from, to id.Principal, amount *big.Int) error
	BalanceOf(ctx context.Context, holder id.Principal) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
}

type Service struct {
	store  Store
	token  models.Token
	minter id.Principal
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDecimals overrides models.DefaultDecimals.
func WithDecimals(decimals int) Option {
	return func(s *Service) {
		s.token.Decimals = decimals
	}
}

func New(store Store, name, symbol string, minter id.Principal, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("credit store is required")
	}
	if name == "" || symbol == "" {
		return nil, fmt.Errorf("credit name and symbol are required")
	}
	if _, err := id.ParsePrincipal(string(minter)); err != nil {
		return nil, fmt.Errorf("invalid minter: %w", err)
	}
	svc := &Service{
		store:  store,
		token:  models.Token{Name: name, Symbol: symbol, Decimals: models.DefaultDecimals},
		minter: minter,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.token.Decimals < 0 {
		return nil, fmt.Errorf("decimals must not be negative")
	}
	return svc, nil
}

func (s *Service) Token() models.Token {
	return s.token
}

func (s *Service) Minter() id.Principal {
	return s.minter
}

// Mint creates amount new credits for to. Only the minter may call it.
func (s *Service) Mint(ctx context.Context, caller, to id.Principal, amount *big.Int) error {
	if caller != s.minter {
		return dErrors.New(dErrors.CodeForbidden, "only the minter can mint")
	}
	if err := validateTransfer(to, amount); err != nil {
		return err
	}
	if err := s.store.Mint(ctx, to, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint credit")
	}
	s.logger.InfoContext(ctx, "credit minted",
		"to", to.String(),
		"amount", models.FormatUnits(amount, s.token.Decimals),
		"symbol", s.token.Symbol,
	)
	return nil
}

// Transfer moves amount from caller to to.
func (s *Service) Transfer(ctx context.Context, caller, to id.Principal, amount *big.Int) error {
	if _, err := id.ParsePrincipal(string(caller)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid caller")
	}
	if err := validateTransfer(to, amount); err != nil {
		return err
	}
	err := s.store.Transfer(ctx, caller, to, amount)
	if errors.Is(err, sentinel.ErrInvalidState) {
		return dErrors.New(dErrors.CodeInsufficientBalance, "insufficient credit balance")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer credit")
	}
	return nil
}

func (s *Service) BalanceOf(ctx context.Context, holder id.Principal) (*big.Int, error) {
	if _, err := id.ParsePrincipal(string(holder)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid principal")
	}
	b, err := s.store.BalanceOf(ctx, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read credit balance")
	}
	return b, nil
}

func (s *Service) TotalSupply(ctx context.Context) (*big.Int, error) {
	n, err := s.store.TotalSupply(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read credit supply")
	}
	return n, nil
}

func validateTransfer(to id.Principal, amount *big.Int) error {
	if _, err := id.ParsePrincipal(string(to)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid recipient")
	}
	if amount == nil || amount.Sign() <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return nil
}
