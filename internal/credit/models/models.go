// Package models holds the companion credit ledger's value types. Amounts
// are arbitrary-precision integers in the token's smallest unit.
package models

import (
	"fmt"
	"math/big"
	"strings"
)

// DefaultDecimals matches the usual fungible-token convention.
const DefaultDecimals = 18

// Token describes a credit ledger.
type Token struct {
	Name     string
	Symbol   string
	Decimals int
}

// ParseUnits converts a decimal string in whole tokens ("1.5") into base
// units for the given number of decimals. Negative values and excess
// precision are rejected.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("amount %q is not a non-negative decimal", s)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	if strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return nil, fmt.Errorf("amount %q is not a non-negative decimal", s)
	}
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a non-negative decimal", s)
	}
	return n, nil
}

// FormatUnits renders base units as a decimal string in whole tokens,
// trimming trailing zeros.
func FormatUnits(n *big.Int, decimals int) string {
	if n == nil {
		return "0"
	}
	s := n.String()
	if decimals == 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
