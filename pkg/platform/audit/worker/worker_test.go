package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hashplanet/pkg/platform/audit"
	"hashplanet/pkg/platform/audit/store/memory"
)

type failingStore struct{ calls int }

func (s *failingStore) Append(context.Context, audit.Event) error {
	s.calls++
	return errors.New("sink down")
}

func TestWorkerDrainsUntilInboxCloses(t *testing.T) {
	store := memory.NewInMemoryStore()
	inbox := make(chan audit.Event, 3)
	inbox <- audit.Event{Type: audit.EventClaimed}
	inbox <- audit.Event{Type: audit.EventRenounced}
	close(inbox)

	require.NoError(t, NewWorker(store, inbox, nil).Run(context.Background()))

	events, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestWorkerSurvivesStoreErrors(t *testing.T) {
	store := &failingStore{}
	inbox := make(chan audit.Event, 2)
	inbox <- audit.Event{Type: audit.EventClaimed}
	inbox <- audit.Event{Type: audit.EventClaimed}
	close(inbox)

	require.NoError(t, NewWorker(store, inbox, nil).Run(context.Background()))
	assert.Equal(t, 2, store.calls)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWorker(memory.NewInMemoryStore(), make(chan audit.Event), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
