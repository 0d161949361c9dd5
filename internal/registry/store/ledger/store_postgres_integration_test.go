//go:build integration

package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"hashplanet/internal/registry/genesis"
	"hashplanet/internal/registry/models"
	txcontext "hashplanet/pkg/platform/tx"
	"hashplanet/pkg/testutil/containers"
)

type PostgresIntegrationSuite struct {
	conformanceSuite
	postgres *containers.PostgresContainer
}

func TestPostgresIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(NewPostgres(s.postgres.DB).EnsureSchema(context.Background()))
}

func (s *PostgresIntegrationSuite) SetupTest() {
	s.ctx = context.Background()
	s.seeds = genesis.Default()
	s.newStore = func() store {
		s.Require().NoError(s.postgres.TruncateTables(s.ctx, "registry_entries"))
		return NewPostgres(s.postgres.DB)
	}
}

func (s *PostgresIntegrationSuite) TestEnsureSchemaIsIdempotent() {
	st := NewPostgres(s.postgres.DB)
	s.Require().NoError(st.EnsureSchema(s.ctx))
	s.Require().NoError(st.EnsureSchema(s.ctx))
}

// TestTransferJoinsAmbientTransaction verifies that a rolled-back outer
// transaction also discards the ownership change.
func (s *PostgresIntegrationSuite) TestTransferJoinsAmbientTransaction() {
	st := s.bootstrapped().(*PostgresStore)
	tokenID := s.seeds[0].ID

	tx, err := s.postgres.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	txCtx := txcontext.WithTx(s.ctx, tx)

	s.Require().NoError(st.TransferOwnership(txCtx, tokenID, models.Unclaimed(), models.ClaimedBy("alice")))
	inside, err := st.Find(txCtx, tokenID)
	s.Require().NoError(err)
	s.Equal(models.ClaimedBy("alice"), inside.State)
	s.Require().NoError(tx.Rollback())

	after, err := st.Find(s.ctx, tokenID)
	s.Require().NoError(err)
	s.Equal(models.Unclaimed(), after.State)
}
