// Package audit records every committed registry transition as an
// append-only event stream that stores and sinks can fan out.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "hashplanet/pkg/domain"
)

// EventType names the transition an event records.
type EventType string

const (
	EventGenesis     EventType = "genesis"
	EventRegistered  EventType = "registered"
	EventClaimed     EventType = "claimed"
	EventRenounced   EventType = "renounced"
	EventTransferred EventType = "transferred"
)

// Event is emitted after a ledger write commits. From and To hold the
// rendered holder on each side, so an unclaimed side carries the registry's
// sentinel principal.
type Event struct {
	ID        uuid.UUID
	Type      EventType
	TokenID   id.Identifier
	Source    string
	Index     int
	From      string
	To        string
	RequestID string
	Timestamp time.Time
}

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}
