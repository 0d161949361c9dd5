// Package publisher stamps audit events and hands them to a store, either
// inline or through a bounded buffer drained by a background worker.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/audit"
	"hashplanet/pkg/platform/audit/worker"
	"hashplanet/pkg/requestcontext"
)

var (
	// ErrBufferFull is returned by Emit when the async buffer has no room.
	ErrBufferFull = errors.New("audit buffer full")
	// ErrClosed is returned by Emit after Close.
	ErrClosed = errors.New("audit publisher closed")
	// ErrListUnsupported is returned by List when the store cannot be queried.
	ErrListUnsupported = errors.New("audit store does not support listing")
)

// Lister is implemented by stores that can return an entry's history.
type Lister interface {
	ListByToken(ctx context.Context, tokenID id.Identifier) ([]audit.Event, error)
}

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	bufferSize int
	mu         sync.RWMutex
	closed     bool
	inbox      chan audit.Event
	done       chan struct{}
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to asynchronous delivery through a
// buffer of the given size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit fills in ID, timestamp, and request ID when unset and delivers the
// event. In async mode it never blocks: a full buffer returns ErrBufferFull.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// List returns an entry's history when the store supports it.
func (p *Publisher) List(ctx context.Context, tokenID id.Identifier) ([]audit.Event, error) {
	lister, ok := p.store.(Lister)
	if !ok {
		return nil, ErrListUnsupported
	}
	return lister.ListByToken(ctx, tokenID)
}

// Close stops accepting events and, in async mode, waits until everything
// already buffered has reached the store.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.inbox != nil {
		close(p.inbox)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
}
