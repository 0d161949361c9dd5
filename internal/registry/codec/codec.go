// Package codec maps human-typed source strings to registry identifiers.
//
// The mapping is Keccak-256 (the pre-standard Keccak padding used by
// Ethereum, not NIST SHA3-256) over the raw bytes of the source string. It is
// pure and one-way: checking whether an identifier belongs to a string means
// deriving again and comparing.
//
// Sources use the geohash base32 alphabet, which drops the visually
// ambiguous letters a, i, l and o. Derive is case-sensitive and never
// normalizes; callers that accept free-form input run Normalize first.
package codec

import (
	"strings"

	"golang.org/x/crypto/sha3"

	id "hashplanet/pkg/domain"
	dErrors "hashplanet/pkg/domain-errors"
)

// Alphabet lists every permitted source character in genesis order.
const Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// Excluded are the lowercase letters deliberately left out of Alphabet.
const Excluded = "ailo"

var allowed = func() [256]bool {
	var table [256]bool
	for i := 0; i < len(Alphabet); i++ {
		table[Alphabet[i]] = true
	}
	return table
}()

// Validate reports whether source is non-empty and drawn only from Alphabet.
func Validate(source string) bool {
	if source == "" {
		return false
	}
	for i := 0; i < len(source); i++ {
		if !allowed[source[i]] {
			return false
		}
	}
	return true
}

// Derive returns the identifier of a valid source string.
func Derive(source string) (id.Identifier, error) {
	if !Validate(source) {
		return id.Identifier{}, dErrors.New(dErrors.CodeInvalidSource, "source must be non-empty and use only "+Alphabet)
	}
	return hash(source), nil
}

// MustDerive is Derive for compile-time literals; it panics on invalid input.
func MustDerive(source string) id.Identifier {
	out, err := Derive(source)
	if err != nil {
		panic(err)
	}
	return out
}

// Normalize trims surrounding whitespace and lowercases ASCII letters.
// It does not make an invalid string valid: "a" stays excluded.
func Normalize(source string) string {
	return strings.ToLower(strings.TrimSpace(source))
}

func hash(source string) id.Identifier {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(source))
	var out id.Identifier
	h.Sum(out[:0])
	return out
}
