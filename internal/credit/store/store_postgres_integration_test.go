//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"hashplanet/pkg/testutil/containers"
)

type PostgresSuite struct {
	creditConformanceSuite
	postgres *containers.PostgresContainer
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(NewPostgres(s.postgres.DB).EnsureSchema(context.Background()))
}

func (s *PostgresSuite) SetupTest() {
	s.ctx = context.Background()
	s.newStore = func() ledgerStore {
		s.Require().NoError(s.postgres.TruncateTables(s.ctx, "credit_balances"))
		return NewPostgres(s.postgres.DB)
	}
}
