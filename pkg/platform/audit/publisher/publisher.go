// Package publisher emits audit events to a Store, either synchronously or
// through a buffered channel drained by a background goroutine.
package publisher

import (
	"context"
	"log/slog"
	"sync"

	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	audit "github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit"
	"github.com/pagopa/io-functions-admin-sub002/pkg/requestcontext"
)

// Publisher writes audit events to a store. In sync mode Emit blocks on the
// store write; in async mode Emit enqueues and a background goroutine
// drains. Async mode drops events when the buffer is full rather than
// blocking domain logic.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	inbox chan audit.Event
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer enables async emission with the given channel capacity.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an audit event. Never fails the caller in async mode.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.Actor(ctx)
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
	}
	return nil
}

// List exposes the underlying store's per-citizen listing.
func (p *Publisher) List(ctx context.Context, fiscalCode id.FiscalCode) ([]audit.Event, error) {
	return p.store.ListByFiscalCode(ctx, fiscalCode)
}

// Close stops the drain goroutine after flushing buffered events.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox == nil {
			return
		}
		close(p.inbox)
		p.wg.Wait()
		close(p.done)
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("audit append failed", "action", event.Action, "error", err)
		}
	}
}
