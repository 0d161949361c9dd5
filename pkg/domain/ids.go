package domain

import (
	"encoding/hex"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "hashplanet/pkg/domain-errors"
)

// IdentifierSize is the width of a registry identifier in bytes.
const IdentifierSize = 32

// maxDecimalDigits is the length of 2^256-1 in base 10.
const maxDecimalDigits = 78

// Identifier is the 256-bit primary key of a registry entry. It is derived
// one-way from a source string and is rendered the way on-chain uint256
// token IDs are: as an unsigned decimal integer.
type Identifier [IdentifierSize]byte

// String renders the identifier as a base-10 integer.
func (id Identifier) String() string {
	return id.Big().String()
}

// Hex renders the identifier as 0x-prefixed, zero-padded lowercase hex.
func (id Identifier) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Big returns the identifier as a big-endian unsigned integer.
func (id Identifier) Big() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

func (id Identifier) IsZero() bool {
	return id == Identifier{}
}

func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identifier) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentifier(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseIdentifier accepts either a base-10 integer below 2^256 or a
// 0x-prefixed hex string of at most 64 digits.
func ParseIdentifier(s string) (Identifier, error) {
	if s == "" {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidInput, "identifier is required")
	}
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		return parseHexIdentifier(rest)
	}
	return parseDecimalIdentifier(s)
}

func parseHexIdentifier(digits string) (Identifier, error) {
	if digits == "" || len(digits) > 2*IdentifierSize {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidInput, "hex identifier must have 1 to 64 digits")
	}
	padded := strings.Repeat("0", 2*IdentifierSize-len(digits)) + digits
	raw, err := hex.DecodeString(padded)
	if err != nil {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidInput, "identifier is not valid hex")
	}
	var id Identifier
	copy(id[:], raw)
	return id, nil
}

func parseDecimalIdentifier(digits string) (Identifier, error) {
	if len(digits) > maxDecimalDigits {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidInput, "identifier exceeds 256 bits")
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Identifier{}, dErrors.New(dErrors.CodeInvalidInput, "identifier must be a decimal or 0x-prefixed hex integer")
		}
	}
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok || n.BitLen() > 8*IdentifierSize {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidInput, "identifier exceeds 256 bits")
	}
	var id Identifier
	n.FillBytes(id[:])
	return id, nil
}

// MaxPrincipalLength bounds principal identifiers accepted from callers.
const MaxPrincipalLength = 128

// Principal is an opaque, already-authenticated caller identity.
type Principal string

func (p Principal) String() string { return string(p) }

// ParsePrincipal validates a principal at a trust boundary. It rejects empty,
// oversized, non-UTF-8 and control-character input, and input with
// surrounding whitespace.
func ParsePrincipal(s string) (Principal, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal is required")
	}
	if len(s) > MaxPrincipalLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal exceeds 128 bytes")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal must be valid UTF-8")
	}
	if strings.TrimSpace(s) != s {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal must not have surrounding whitespace")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "principal must not contain control characters")
		}
	}
	return Principal(s), nil
}
