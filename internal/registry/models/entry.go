package models

import (
	"fmt"
	"strings"
	"time"

	id "hashplanet/pkg/domain"
)

// Entry is one registry record.
//
// Invariants:
//   - ID is derived from Source and never changes
//   - Index is assigned once, at genesis or first-use registration
//   - State moves only through ValidateTransition
//   - entries are never deleted
type Entry struct {
	ID        id.Identifier
	Source    string
	Index     int
	State     State
	CreatedAt time.Time
}

// OwnerAs renders the entry's owner, substituting sentinel for Unclaimed.
func (e *Entry) OwnerAs(sentinel id.Principal) id.Principal {
	if owner, ok := e.State.Owner(); ok {
		return owner
	}
	return sentinel
}

// Seed is a genesis entry before it is written to a store.
type Seed struct {
	Index  int
	Source string
	ID     id.Identifier
}

// Policy decides what ClaimByURI does with a source that has no entry yet.
// It is fixed for the lifetime of a registry.
type Policy string

const (
	// PolicyGenesisOnly keeps the universe at the genesis set; unknown
	// sources fail with unknown_identifier.
	PolicyGenesisOnly Policy = "genesis-only"
	// PolicyExtensible registers an unknown source on first claim, owned by
	// the claimer, at the next enumeration index.
	PolicyExtensible Policy = "extensible"
)

// ParsePolicy accepts the config spelling of a policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyGenesisOnly, PolicyExtensible:
		return p, nil
	default:
		return "", fmt.Errorf("unknown registry policy %q", s)
	}
}

// Metadata describes a registry deployment.
type Metadata struct {
	Name     string
	Symbol   string
	Policy   Policy
	Sentinel id.Principal
}
