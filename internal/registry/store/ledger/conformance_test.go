package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"hashplanet/internal/registry/codec"
	"hashplanet/internal/registry/genesis"
	"hashplanet/internal/registry/models"
	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/sentinel"
)

// store is the method set every ledger backend provides.
type store interface {
	Bootstrap(ctx context.Context, seeds []models.Seed) error
	Find(ctx context.Context, tokenID id.Identifier) (*models.Entry, error)
	EntryAt(ctx context.Context, index int) (id.Identifier, error)
	List(ctx context.Context, offset, limit int) ([]models.Entry, error)
	BalanceOf(ctx context.Context, holder models.State) (int, error)
	TotalSupply(ctx context.Context) (int, error)
	Register(ctx context.Context, tokenID id.Identifier, source string, state models.State) (*models.Entry, error)
	TransferOwnership(ctx context.Context, tokenID id.Identifier, from, to models.State) error
}

var (
	_ store = (*InMemory)(nil)
	_ store = (*RedisStore)(nil)
	_ store = (*PostgresStore)(nil)
)

// conformanceSuite runs the same contract against every backend. Backends
// embed it and set newStore in SetupTest.
type conformanceSuite struct {
	suite.Suite
	ctx      context.Context
	newStore func() store
	store    store
	seeds    []models.Seed
}

func (s *conformanceSuite) bootstrapped() store {
	st := s.newStore()
	s.Require().NoError(st.Bootstrap(s.ctx, s.seeds))
	return st
}

func (s *conformanceSuite) assertConserved(st store, principals ...id.Principal) {
	total, err := st.TotalSupply(s.ctx)
	s.Require().NoError(err)
	sum, err := st.BalanceOf(s.ctx, models.Unclaimed())
	s.Require().NoError(err)
	for _, p := range principals {
		b, err := st.BalanceOf(s.ctx, models.ClaimedBy(p))
		s.Require().NoError(err)
		sum += b
	}
	s.Equal(total, sum, "balances must add up to total supply")
}

func (s *conformanceSuite) TestBootstrap() {
	s.Run("writes genesis into an empty ledger", func() {
		st := s.bootstrapped()

		total, err := st.TotalSupply(s.ctx)
		s.Require().NoError(err)
		s.Equal(genesis.Size, total)

		unclaimed, err := st.BalanceOf(s.ctx, models.Unclaimed())
		s.Require().NoError(err)
		s.Equal(genesis.Size, unclaimed)

		for i, seed := range s.seeds {
			got, err := st.EntryAt(s.ctx, i)
			s.Require().NoError(err)
			s.Equal(seed.ID, got)

			entry, err := st.Find(s.ctx, seed.ID)
			s.Require().NoError(err)
			s.Equal(i, entry.Index)
			s.Equal(seed.Source, entry.Source)
			s.Equal(models.Unclaimed(), entry.State)
		}
	})

	s.Run("re-running with the same seeds verifies without duplicating", func() {
		st := s.bootstrapped()
		s.Require().NoError(st.Bootstrap(s.ctx, s.seeds))

		total, err := st.TotalSupply(s.ctx)
		s.Require().NoError(err)
		s.Equal(genesis.Size, total)
	})

	s.Run("different seeds on a populated ledger conflict", func() {
		st := s.bootstrapped()
		other, err := genesis.Build([]string{"s00", "s01"})
		s.Require().NoError(err)

		err = st.Bootstrap(s.ctx, other)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("duplicate seeds write nothing", func() {
		st := s.newStore()
		dup := []models.Seed{s.seeds[0], {Index: 1, Source: s.seeds[0].Source, ID: s.seeds[0].ID}}

		err := st.Bootstrap(s.ctx, dup)
		s.ErrorIs(err, sentinel.ErrConflict)

		total, err := st.TotalSupply(s.ctx)
		s.Require().NoError(err)
		s.Zero(total)
	})
}

func (s *conformanceSuite) TestLookups() {
	st := s.bootstrapped()

	s.Run("unknown identifier is not found", func() {
		_, err := st.Find(s.ctx, codec.MustDerive("s00"))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("index past supply is out of range", func() {
		_, err := st.EntryAt(s.ctx, genesis.Size)
		s.ErrorIs(err, sentinel.ErrOutOfRange)
		_, err = st.EntryAt(s.ctx, -1)
		s.ErrorIs(err, sentinel.ErrOutOfRange)
	})

	s.Run("unknown principal has zero balance", func() {
		b, err := st.BalanceOf(s.ctx, models.ClaimedBy("nobody"))
		s.Require().NoError(err)
		s.Zero(b)
	})

	s.Run("list pages in index order", func() {
		page, err := st.List(s.ctx, 30, 5)
		s.Require().NoError(err)
		s.Require().Len(page, 2)
		s.Equal(30, page[0].Index)
		s.Equal("z", page[1].Source)

		empty, err := st.List(s.ctx, genesis.Size, 5)
		s.Require().NoError(err)
		s.Empty(empty)
	})
}

func (s *conformanceSuite) TestTransferOwnership() {
	s.Run("claim moves balance from unclaimed to owner", func() {
		st := s.bootstrapped()
		tokenID := s.seeds[0].ID

		s.Require().NoError(st.TransferOwnership(s.ctx, tokenID, models.Unclaimed(), models.ClaimedBy("alice")))

		entry, err := st.Find(s.ctx, tokenID)
		s.Require().NoError(err)
		s.Equal(models.ClaimedBy("alice"), entry.State)
		s.Equal(0, entry.Index, "index never moves")

		alice, _ := st.BalanceOf(s.ctx, models.ClaimedBy("alice"))
		unclaimed, _ := st.BalanceOf(s.ctx, models.Unclaimed())
		s.Equal(1, alice)
		s.Equal(genesis.Size-1, unclaimed)
		s.assertConserved(st, "alice")
	})

	s.Run("stale expected state is rejected and nothing changes", func() {
		st := s.bootstrapped()
		tokenID := s.seeds[1].ID
		s.Require().NoError(st.TransferOwnership(s.ctx, tokenID, models.Unclaimed(), models.ClaimedBy("alice")))

		err := st.TransferOwnership(s.ctx, tokenID, models.Unclaimed(), models.ClaimedBy("bob"))
		s.ErrorIs(err, sentinel.ErrInvalidState)

		err = st.TransferOwnership(s.ctx, tokenID, models.ClaimedBy("bob"), models.Unclaimed())
		s.ErrorIs(err, sentinel.ErrInvalidState)

		entry, err := st.Find(s.ctx, tokenID)
		s.Require().NoError(err)
		s.Equal(models.ClaimedBy("alice"), entry.State)
		bob, _ := st.BalanceOf(s.ctx, models.ClaimedBy("bob"))
		s.Zero(bob)
		s.assertConserved(st, "alice", "bob")
	})

	s.Run("unknown identifier is not found", func() {
		st := s.bootstrapped()
		err := st.TransferOwnership(s.ctx, codec.MustDerive("s00"), models.Unclaimed(), models.ClaimedBy("alice"))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("claim, transfer, renounce round trip", func() {
		st := s.bootstrapped()
		tokenID := s.seeds[2].ID

		s.Require().NoError(st.TransferOwnership(s.ctx, tokenID, models.Unclaimed(), models.ClaimedBy("alice")))
		s.Require().NoError(st.TransferOwnership(s.ctx, tokenID, models.ClaimedBy("alice"), models.ClaimedBy("bob")))
		s.assertConserved(st, "alice", "bob")
		s.Require().NoError(st.TransferOwnership(s.ctx, tokenID, models.ClaimedBy("bob"), models.Unclaimed()))

		alice, _ := st.BalanceOf(s.ctx, models.ClaimedBy("alice"))
		bob, _ := st.BalanceOf(s.ctx, models.ClaimedBy("bob"))
		unclaimed, _ := st.BalanceOf(s.ctx, models.Unclaimed())
		s.Zero(alice)
		s.Zero(bob)
		s.Equal(genesis.Size, unclaimed)
	})
}

func (s *conformanceSuite) TestRegister() {
	s.Run("appends at the next index", func() {
		st := s.bootstrapped()
		tokenID := codec.MustDerive("u4pru")

		entry, err := st.Register(s.ctx, tokenID, "u4pru", models.ClaimedBy("carol"))
		s.Require().NoError(err)
		s.Equal(genesis.Size, entry.Index)

		total, _ := st.TotalSupply(s.ctx)
		s.Equal(genesis.Size+1, total)
		at, err := st.EntryAt(s.ctx, genesis.Size)
		s.Require().NoError(err)
		s.Equal(tokenID, at)
		carol, _ := st.BalanceOf(s.ctx, models.ClaimedBy("carol"))
		s.Equal(1, carol)
		s.assertConserved(st, "carol")
	})

	s.Run("existing identifier conflicts", func() {
		st := s.bootstrapped()
		_, err := st.Register(s.ctx, s.seeds[0].ID, s.seeds[0].Source, models.ClaimedBy("carol"))
		s.ErrorIs(err, sentinel.ErrConflict)

		total, _ := st.TotalSupply(s.ctx)
		s.Equal(genesis.Size, total)
	})
}

// TestConcurrentClaims verifies that racing claims on one entry produce
// exactly one winner and that balances still add up.
func (s *conformanceSuite) TestConcurrentClaims() {
	st := s.bootstrapped()
	tokenID := s.seeds[5].ID
	const claimers = 16

	var wins, losses atomic.Int32
	principals := make([]id.Principal, claimers)
	var g errgroup.Group
	for i := range claimers {
		principals[i] = id.Principal(fmt.Sprintf("claimer-%d", i))
		p := principals[i]
		g.Go(func() error {
			err := st.TransferOwnership(s.ctx, tokenID, models.Unclaimed(), models.ClaimedBy(p))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrInvalidState):
				losses.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(claimers-1), losses.Load())
	s.assertConserved(st, principals...)
}

// TestConcurrentRegistration verifies that racing first-use registrations
// of distinct sources keep indices dense.
func (s *conformanceSuite) TestConcurrentRegistration() {
	st := s.bootstrapped()
	sources := []string{"s00", "s01", "s02", "s03", "s04", "s05", "s06", "s07"}

	var g errgroup.Group
	for _, source := range sources {
		g.Go(func() error {
			_, err := st.Register(s.ctx, codec.MustDerive(source), source, models.ClaimedBy("dave"))
			return err
		})
	}
	s.Require().NoError(g.Wait())

	total, err := st.TotalSupply(s.ctx)
	s.Require().NoError(err)
	s.Equal(genesis.Size+len(sources), total)

	seen := make(map[id.Identifier]bool)
	for i := 0; i < total; i++ {
		at, err := st.EntryAt(s.ctx, i)
		s.Require().NoError(err)
		s.False(seen[at], "index %d repeats an identifier", i)
		seen[at] = true
	}
	s.assertConserved(st, "dave")
}
