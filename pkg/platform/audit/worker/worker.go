package worker

import (
	"context"
	"log/slog"

	"hashplanet/pkg/platform/audit"
)

// Worker drains an event channel into a store. A failed append is logged
// and the worker moves on; audit delivery never blocks the ledger.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run appends events until ctx is cancelled or the inbox is closed. On a
// closed inbox it returns nil after everything buffered has been written.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.append(ctx, event)
		}
	}
}

func (w *Worker) append(ctx context.Context, event audit.Event) {
	if err := w.store.Append(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "failed to append audit event",
			"error", err,
			"event_id", event.ID,
			"event_type", event.Type,
			"token_id", event.TokenID.String(),
		)
	}
}
