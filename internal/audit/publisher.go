package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Sink persists audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher decouples request handling from event delivery. Emit enqueues
// without blocking; a background loop drains the inbox into the sink. When
// the inbox is full the event is dropped and counted rather than stalling
// the caller.
type Publisher struct {
	sink    Sink
	inbox   chan Event
	logger  *slog.Logger
	dropped atomic.Int64
}

func NewPublisher(sink Sink, buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		sink:   sink,
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Emit enqueues an event. Missing IDs and timestamps are filled in here so
// callers only set the fields they care about.
func (p *Publisher) Emit(event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case p.inbox <- event:
	default:
		p.dropped.Add(1)
		p.logger.Warn("audit inbox full, event dropped",
			"action", event.Action, "org_id", event.OrgID)
	}
}

// Run drains the inbox until ctx is cancelled, then flushes whatever is
// still buffered before returning.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return ctx.Err()
		case event := <-p.inbox:
			p.append(ctx, event)
		}
	}
}

func (p *Publisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-p.inbox:
			p.append(ctx, event)
		default:
			return
		}
	}
}

func (p *Publisher) append(ctx context.Context, event Event) {
	if err := p.sink.Append(ctx, event); err != nil {
		p.logger.Error("audit append failed",
			"action", event.Action, "org_id", event.OrgID, "error", err)
	}
}

// Dropped reports how many events were discarded due to a full inbox.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}
