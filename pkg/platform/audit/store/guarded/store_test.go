package guarded

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hashplanet/pkg/platform/audit"
	"hashplanet/pkg/platform/audit/store/memory"
	"hashplanet/pkg/platform/circuit"
)

type flakySink struct {
	err   error
	calls int
	*memory.InMemoryStore
}

func (f *flakySink) Append(ctx context.Context, event audit.Event) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return f.InMemoryStore.Append(ctx, event)
}

func TestGuardedStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	primary := &flakySink{InMemoryStore: memory.NewInMemoryStore()}
	fallback := memory.NewInMemoryStore()
	breaker := circuit.New("audit",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	store := New(primary, fallback, breaker, slog.New(slog.NewTextHandler(io.Discard, nil)))

	event := audit.Event{Type: audit.EventClaimed}

	require.NoError(t, store.Append(ctx, event))
	all, _ := primary.ListAll(ctx)
	assert.Len(t, all, 1)

	primary.err = errors.New("broker unreachable")
	require.NoError(t, store.Append(ctx, event))
	require.NoError(t, store.Append(ctx, event))
	assert.True(t, breaker.IsOpen())
	assert.Equal(t, 3, primary.calls)

	// Open breaker skips the primary entirely.
	require.NoError(t, store.Append(ctx, event))
	assert.Equal(t, 3, primary.calls)
	fb, _ := fallback.ListAll(ctx)
	assert.Len(t, fb, 3)

	// After the cooldown a successful trial call closes the breaker.
	primary.err = nil
	now = now.Add(time.Minute)
	require.NoError(t, store.Append(ctx, event))
	assert.False(t, breaker.IsOpen())
	all, _ = primary.ListAll(ctx)
	assert.Len(t, all, 2)
}

func TestGuardedStoreSurfacesDoubleFailure(t *testing.T) {
	ctx := context.Background()
	broken := &flakySink{err: errors.New("down"), InMemoryStore: memory.NewInMemoryStore()}
	alsoBroken := &flakySink{err: errors.New("disk full"), InMemoryStore: memory.NewInMemoryStore()}
	store := New(broken, alsoBroken, circuit.New("audit"), nil)

	err := store.Append(ctx, audit.Event{Type: audit.EventRenounced})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
