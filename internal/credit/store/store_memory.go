// Package store persists credit balances. Every method is atomic; a debit
// that would go negative fails with sentinel.ErrInvalidState and changes
// nothing.
package store

import (
	"context"
	"math/big"
	"sync"

	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	balances map[id.Principal]*big.Int
	total    *big.Int
}

func NewInMemory() *InMemory {
	return &InMemory{balances: make(map[id.Principal]*big.Int), total: new(big.Int)}
}

func (s *InMemory) Mint(_ context.Context, to id.Principal, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(to, amount)
	s.total.Add(s.total, amount)
	return nil
}

func (s *InMemory) Transfer(_ context.Context, from, to id.Principal, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	have := s.balances[from]
	if have == nil || have.Cmp(amount) < 0 {
		return sentinel.ErrInvalidState
	}
	s.add(from, new(big.Int).Neg(amount))
	s.add(to, amount)
	return nil
}

func (s *InMemory) BalanceOf(_ context.Context, holder id.Principal) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.balances[holder]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (s *InMemory) TotalSupply(_ context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.total), nil
}

func (s *InMemory) add(holder id.Principal, delta *big.Int) {
	b, ok := s.balances[holder]
	if !ok {
		b = new(big.Int)
		s.balances[holder] = b
	}
	b.Add(b, delta)
	if b.Sign() == 0 {
		delete(s.balances, holder)
	}
}
