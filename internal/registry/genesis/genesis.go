// Package genesis builds the fixed initial inventory of a registry.
package genesis

import (
	"fmt"

	"hashplanet/internal/registry/codec"
	"hashplanet/internal/registry/models"
	dErrors "hashplanet/pkg/domain-errors"
)

// Size is the number of entries in the default genesis set.
const Size = len(codec.Alphabet)

// DefaultSources returns the single-character cells of the alphabet in
// alphabet order, so index 0 is "0" and index 31 is "z".
func DefaultSources() []string {
	out := make([]string, 0, Size)
	for i := 0; i < len(codec.Alphabet); i++ {
		out = append(out, codec.Alphabet[i:i+1])
	}
	return out
}

// Build derives one seed per source, assigning indices in input order. Any
// invalid source or duplicate identifier is a configuration error.
func Build(sources []string) ([]models.Seed, error) {
	if len(sources) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidGenesis, "genesis set is empty")
	}
	seeds := make([]models.Seed, 0, len(sources))
	seen := make(map[string]int, len(sources))
	for i, source := range sources {
		derived, err := codec.Derive(source)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidGenesis, fmt.Sprintf("genesis source %d (%q) is invalid", i, source))
		}
		key := derived.Hex()
		if prev, dup := seen[key]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidGenesis, fmt.Sprintf("genesis sources %d and %d derive the same identifier", prev, i))
		}
		seen[key] = i
		seeds = append(seeds, models.Seed{Index: i, Source: source, ID: derived})
	}
	return seeds, nil
}

// Default is Build(DefaultSources()). The default set is valid by
// construction, so an error here means the alphabet itself changed.
func Default() []models.Seed {
	seeds, err := Build(DefaultSources())
	if err != nil {
		panic(err)
	}
	return seeds
}
