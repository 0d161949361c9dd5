package store

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/suite"

	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/sentinel"
)

// ledgerStore is the method set both credit backends provide.
type ledgerStore interface {
	Mint(ctx context.Context, to id.Principal, amount *big.Int) error
	Transfer(ctx context.Context, from, to id.Principal, amount *big.Int) error
	BalanceOf(ctx context.Context, holder id.Principal) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
}

var (
	_ ledgerStore = (*InMemory)(nil)
	_ ledgerStore = (*PostgresStore)(nil)
)

type creditConformanceSuite struct {
	suite.Suite
	ctx      context.Context
	newStore func() ledgerStore
}

func (s *creditConformanceSuite) balance(st ledgerStore, p id.Principal) string {
	b, err := st.BalanceOf(s.ctx, p)
	s.Require().NoError(err)
	return b.String()
}

func (s *creditConformanceSuite) TestMintAndTransfer() {
	st := s.newStore()
	huge, _ := new(big.Int).SetString("1000000000000000000000000000000", 10)

	s.Require().NoError(st.Mint(s.ctx, "alice", huge))
	s.Require().NoError(st.Mint(s.ctx, "bob", big.NewInt(5)))
	s.Require().NoError(st.Transfer(s.ctx, "alice", "bob", big.NewInt(10)))

	s.Equal("999999999999999999999999999990", s.balance(st, "alice"))
	s.Equal("15", s.balance(st, "bob"))
	s.Equal("0", s.balance(st, "nobody"))

	total, err := st.TotalSupply(s.ctx)
	s.Require().NoError(err)
	s.Equal("1000000000000000000000000000005", total.String())
}

func (s *creditConformanceSuite) TestOverdraftChangesNothing() {
	st := s.newStore()
	s.Require().NoError(st.Mint(s.ctx, "alice", big.NewInt(3)))

	err := st.Transfer(s.ctx, "alice", "bob", big.NewInt(4))
	s.ErrorIs(err, sentinel.ErrInvalidState)
	err = st.Transfer(s.ctx, "carol", "bob", big.NewInt(1))
	s.ErrorIs(err, sentinel.ErrInvalidState)

	s.Equal("3", s.balance(st, "alice"))
	s.Equal("0", s.balance(st, "bob"))
}

type InMemorySuite struct {
	creditConformanceSuite
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.newStore = func() ledgerStore { return NewInMemory() }
}

func (s *InMemorySuite) TestBalancesAreCopies() {
	st := NewInMemory()
	s.Require().NoError(st.Mint(s.ctx, "alice", big.NewInt(7)))
	b, err := st.BalanceOf(s.ctx, "alice")
	s.Require().NoError(err)
	b.SetInt64(1000)
	s.Equal("7", s.balance(st, "alice"))
}
