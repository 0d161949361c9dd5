package ledger

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"hashplanet/internal/registry/genesis"
	"hashplanet/internal/registry/models"
	"hashplanet/pkg/platform/sentinel"
)

// RedisSuite runs the ledger contract against an embedded miniredis, which
// executes the Lua scripts with the same semantics as a real server.
type RedisSuite struct {
	conformanceSuite
	mr     *miniredis.Miniredis
	client *redis.Client
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupTest() {
	s.ctx = context.Background()
	s.seeds = genesis.Default()
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = s.client.Close() })
	s.newStore = func() store {
		s.mr.FlushAll()
		return NewRedis(s.client)
	}
}

func (s *RedisSuite) TestKeysShareOneHashTag() {
	st := NewRedis(s.client, WithRedisPrefix("geo"))
	s.Require().NoError(st.Bootstrap(s.ctx, s.seeds))

	for _, key := range s.mr.Keys() {
		s.Regexp(`^\{geo\}:`, key)
	}
	s.True(s.mr.Exists("{geo}:index"))
	s.True(s.mr.Exists("{geo}:unclaimed"))
}

func (s *RedisSuite) TestPrefixesIsolateRegistries() {
	geo := NewRedis(s.client, WithRedisPrefix("geo"))
	pass := NewRedis(s.client, WithRedisPrefix("pass"))
	s.Require().NoError(geo.Bootstrap(s.ctx, s.seeds))

	other, err := genesis.Build([]string{"s00"})
	s.Require().NoError(err)
	s.Require().NoError(pass.Bootstrap(s.ctx, other))

	total, err := pass.TotalSupply(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, total)

	_, err = pass.Find(s.ctx, s.seeds[0].ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisSuite) TestClaimedEntrySurvivesRestart() {
	first := NewRedis(s.client)
	s.Require().NoError(first.Bootstrap(s.ctx, s.seeds))
	s.Require().NoError(first.TransferOwnership(s.ctx, s.seeds[3].ID, models.Unclaimed(), models.ClaimedBy("alice")))

	second := NewRedis(s.client)
	s.Require().NoError(second.Bootstrap(s.ctx, s.seeds))

	entry, err := second.Find(s.ctx, s.seeds[3].ID)
	s.Require().NoError(err)
	s.Equal(models.ClaimedBy("alice"), entry.State)
	s.False(entry.CreatedAt.IsZero())
}

func (s *RedisSuite) TestServerErrorsAreNotSentinels() {
	st := NewRedis(s.client)
	s.mr.SetError("LOADING")
	defer s.mr.SetError("")

	_, err := st.TotalSupply(s.ctx)
	s.Require().Error(err)
	s.NotErrorIs(err, sentinel.ErrNotFound)
}
