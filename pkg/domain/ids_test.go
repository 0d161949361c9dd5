package domain

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "hashplanet/pkg/domain-errors"
)

// keccak256("0"), the first genesis token.
const (
	genesisZeroDecimal = "1937035142596246788172577232054709726386880441279550832067530347910661804397"
	genesisZeroHex     = "0x044852b2a670ade5407e78fb2863c51de9fcb96542a07186fe3aeda6bb8a116d"
)

func TestParseIdentifier_Formats(t *testing.T) {
	t.Run("decimal and hex forms agree", func(t *testing.T) {
		fromDec, err := ParseIdentifier(genesisZeroDecimal)
		require.NoError(t, err)
		fromHex, err := ParseIdentifier(genesisZeroHex)
		require.NoError(t, err)

		assert.Equal(t, fromDec, fromHex)
		assert.Equal(t, genesisZeroDecimal, fromHex.String())
		assert.Equal(t, genesisZeroHex, fromDec.Hex())
	})

	t.Run("short hex is left padded", func(t *testing.T) {
		id, err := ParseIdentifier("0x1")
		require.NoError(t, err)
		assert.Equal(t, "1", id.String())
		assert.Equal(t, byte(1), id[IdentifierSize-1])
	})

	t.Run("max uint256 is accepted", func(t *testing.T) {
		max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
		id, err := ParseIdentifier(max.String())
		require.NoError(t, err)
		assert.Equal(t, "0x"+strings.Repeat("f", 64), id.Hex())
	})

	t.Run("zero identifier", func(t *testing.T) {
		id, err := ParseIdentifier("0")
		require.NoError(t, err)
		assert.True(t, id.IsZero())
	})
}

func TestParseIdentifier_Rejects(t *testing.T) {
	overflow := new(big.Int).Lsh(big.NewInt(1), 256).String()
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"negative", "-1"},
		{"explicit plus", "+1"},
		{"2^256 overflows", overflow},
		{"too many digits", strings.Repeat("9", 79)},
		{"bare hex prefix", "0x"},
		{"hex too long", "0x" + strings.Repeat("0", 65)},
		{"non hex digit", "0xzz"},
		{"uppercase prefix", "0X01"},
		{"whitespace", " 12"},
		{"underscore grouping", "1_000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIdentifier(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestIdentifier_JSONUsesDecimal(t *testing.T) {
	id, err := ParseIdentifier(genesisZeroHex)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]Identifier{"token_id": id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"token_id":"`+genesisZeroDecimal+`"}`, string(body))

	var decoded map[string]Identifier
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, id, decoded["token_id"])
}

// TestParsePrincipal_SecurityInvariants validates the trust-boundary rules for
// caller identities.
func TestParsePrincipal_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty", "", true},
		{"oversized", strings.Repeat("p", MaxPrincipalLength+1), true},
		{"leading whitespace", " alice", true},
		{"trailing newline", "alice\n", true},
		{"null byte", "ali\x00ce", true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},

		{"max length", strings.Repeat("p", MaxPrincipalLength), false},
		{"address-like", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", false},
		{"inner space", "alice smith", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePrincipal(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, p.String())
		})
	}
}
