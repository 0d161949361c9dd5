package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"hashplanet/internal/registry/genesis"
)

type InMemorySuite struct {
	conformanceSuite
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.seeds = genesis.Default()
	s.newStore = func() store { return NewInMemory() }
}

func (s *InMemorySuite) TestFindReturnsCopies() {
	st := NewInMemory()
	s.Require().NoError(st.Bootstrap(s.ctx, s.seeds))

	entry, err := st.Find(s.ctx, s.seeds[0].ID)
	s.Require().NoError(err)
	entry.Index = 99

	again, err := st.Find(s.ctx, s.seeds[0].ID)
	s.Require().NoError(err)
	s.Equal(0, again.Index, "callers cannot mutate stored entries")
}
