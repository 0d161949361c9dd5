// Package ledger holds the ownership ledger implementations: entry records,
// per-holder balances, and the index -> identifier enumeration.
//
// Every mutating method is a single atomic step with respect to every other
// method of the same store, so the service never needs an outer lock.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"hashplanet/internal/registry/models"
	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/sentinel"
	"hashplanet/pkg/requestcontext"
)

// InMemory is a process-local ledger guarded by one RWMutex. Reads share the
// lock; writes hold it exclusively for the whole read-check-write.
type InMemory struct {
	mu        sync.RWMutex
	entries   map[id.Identifier]*models.Entry
	order     []id.Identifier
	balances  map[id.Principal]int
	unclaimed int
}

// NewInMemory returns an empty ledger. It holds nothing until Bootstrap runs.
func NewInMemory() *InMemory {
	return &InMemory{
		entries:  make(map[id.Identifier]*models.Entry),
		balances: make(map[id.Principal]int),
	}
}

// Bootstrap writes the genesis seeds into an empty ledger, or verifies that a
// non-empty ledger starts with exactly these seeds.
func (s *InMemory) Bootstrap(ctx context.Context, seeds []models.Seed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) > 0 {
		return verifySeeds(seeds, func(i int) (id.Identifier, string, bool) {
			if i >= len(s.order) {
				return id.Identifier{}, "", false
			}
			e := s.entries[s.order[i]]
			return e.ID, e.Source, true
		})
	}

	if err := checkSeeds(seeds); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	for i, seed := range seeds {
		s.entries[seed.ID] = &models.Entry{
			ID:        seed.ID,
			Source:    seed.Source,
			Index:     i,
			State:     models.Unclaimed(),
			CreatedAt: now,
		}
		s.order = append(s.order, seed.ID)
	}
	s.unclaimed = len(seeds)
	return nil
}

func (s *InMemory) Find(_ context.Context, tokenID id.Identifier) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[tokenID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (s *InMemory) EntryAt(_ context.Context, index int) (id.Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.order) {
		return id.Identifier{}, sentinel.ErrOutOfRange
	}
	return s.order[index], nil
}

// List returns up to limit entries in index order starting at offset.
func (s *InMemory) List(_ context.Context, offset, limit int) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 || limit <= 0 || offset >= len(s.order) {
		return []models.Entry{}, nil
	}
	end := min(offset+limit, len(s.order))
	out := make([]models.Entry, 0, end-offset)
	for _, tokenID := range s.order[offset:end] {
		out = append(out, *s.entries[tokenID])
	}
	return out, nil
}

// BalanceOf counts the entries currently in holder's state. Unknown
// principals hold zero.
func (s *InMemory) BalanceOf(_ context.Context, holder models.State) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, claimed := holder.Owner()
	if !claimed {
		return s.unclaimed, nil
	}
	return s.balances[owner], nil
}

func (s *InMemory) TotalSupply(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

// Register appends a new entry at the next index.
func (s *InMemory) Register(ctx context.Context, tokenID id.Identifier, source string, state models.State) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[tokenID]; exists {
		return nil, sentinel.ErrConflict
	}
	e := &models.Entry{
		ID:        tokenID,
		Source:    source,
		Index:     len(s.order),
		State:     state,
		CreatedAt: requestcontext.Now(ctx),
	}
	s.entries[tokenID] = e
	s.order = append(s.order, tokenID)
	s.credit(state)
	clone := *e
	return &clone, nil
}

// TransferOwnership moves an entry from one state to another if and only if
// it is currently in from. The index never changes.
func (s *InMemory) TransferOwnership(_ context.Context, tokenID id.Identifier, from, to models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tokenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.State != from {
		return sentinel.ErrInvalidState
	}
	s.debit(from)
	s.credit(to)
	e.State = to
	return nil
}

// credit and debit must be called while holding s.mu.
func (s *InMemory) credit(holder models.State) {
	if owner, ok := holder.Owner(); ok {
		s.balances[owner]++
		return
	}
	s.unclaimed++
}

func (s *InMemory) debit(holder models.State) {
	if owner, ok := holder.Owner(); ok {
		if s.balances[owner] <= 1 {
			delete(s.balances, owner)
			return
		}
		s.balances[owner]--
		return
	}
	s.unclaimed--
}

// checkSeeds rejects seeds whose indices are not dense or whose identifiers
// repeat, before anything is written.
func checkSeeds(seeds []models.Seed) error {
	seen := make(map[id.Identifier]struct{}, len(seeds))
	for i, seed := range seeds {
		if seed.Index != i {
			return fmt.Errorf("seed %d carries index %d: %w", i, seed.Index, sentinel.ErrConflict)
		}
		if _, dup := seen[seed.ID]; dup {
			return fmt.Errorf("seed %d duplicates %s: %w", i, seed.ID.Hex(), sentinel.ErrConflict)
		}
		seen[seed.ID] = struct{}{}
	}
	return nil
}

// verifySeeds compares an existing enumeration prefix against the genesis
// seeds. at returns the identifier and source stored at index i.
func verifySeeds(seeds []models.Seed, at func(i int) (id.Identifier, string, bool)) error {
	for i, seed := range seeds {
		got, source, ok := at(i)
		if !ok {
			return fmt.Errorf("ledger holds fewer than %d genesis entries: %w", len(seeds), sentinel.ErrConflict)
		}
		if got != seed.ID || source != seed.Source {
			return fmt.Errorf("ledger index %d holds %q, genesis expects %q: %w", i, source, seed.Source, sentinel.ErrConflict)
		}
	}
	return nil
}
