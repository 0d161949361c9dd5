package handler

import (
	"math/big"

	"hashplanet/internal/credit/models"
)

// Amount renders a base-unit quantity both raw and in whole credits.
type Amount struct {
	Units     string `json:"units"`
	Formatted string `json:"formatted"`
}

type TokenResponse struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    int    `json:"decimals"`
	TotalSupply Amount `json:"total_supply"`
}

type BalanceResponse struct {
	Holder  string `json:"holder"`
	Symbol  string `json:"symbol"`
	Balance Amount `json:"balance"`
}

func FromAmount(n *big.Int, decimals int) Amount {
	return Amount{Units: n.String(), Formatted: models.FormatUnits(n, decimals)}
}
