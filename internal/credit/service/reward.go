package service

import (
	"context"
	"math/big"

	id "hashplanet/pkg/domain"
)

// ClaimReward mints a fixed amount to every successful claimer, acting as
// the ledger's minter.
type ClaimReward struct {
	ledger *Service
	amount *big.Int
}

func NewClaimReward(ledger *Service, amount *big.Int) *ClaimReward {
	return &ClaimReward{ledger: ledger, amount: new(big.Int).Set(amount)}
}

func (r *ClaimReward) RewardClaim(ctx context.Context, claimer id.Principal, _ id.Identifier) error {
	return r.ledger.Mint(ctx, r.ledger.minter, claimer, r.amount)
}
