// Package events delivers account change events to in-process subscribers.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asad/accountd/internal/logging"
	"github.com/asad/accountd/internal/services/accounts"
)

// Handler consumes a single event.
type Handler func(ctx context.Context, event accounts.Event)

// Bus fans events out to subscribers. Each subscriber runs in its own
// goroutine so Notify never waits for delivery.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
	inflight sync.WaitGroup

	logger logging.Logger
	now    func() time.Time
}

// NewBus creates an empty bus.
func NewBus(logger logging.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
		now:      time.Now,
	}
}

// Subscribe registers h for events named name. An empty name subscribes to all events.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Notify stamps the event and dispatches it. Events published after Close are dropped.
func (b *Bus) Notify(ctx context.Context, event accounts.Event) {
	event.ID = uuid.NewString()
	event.OccurredAt = b.now().UTC()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Warn("event dropped, bus closed",
			logging.String("event", event.Name),
			logging.String("event_id", event.ID),
		)
		return
	}

	// Delivery outlives the publishing request.
	deliveryCtx := context.WithoutCancel(ctx)
	targets := append(append([]Handler(nil), b.handlers[event.Name]...), b.handlers[""]...)
	for _, h := range targets {
		b.inflight.Add(1)
		go b.deliver(deliveryCtx, h, event)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, event accounts.Event) {
	defer b.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				logging.String("event", event.Name),
				logging.String("event_id", event.ID),
				logging.ErrorField(fmt.Errorf("%v", r)),
			)
		}
	}()
	h(ctx, event)
}

// Close stops accepting events and waits for in-flight deliveries.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.inflight.Wait()
}

// LogHandler records every event it receives.
func LogHandler(logger logging.Logger) Handler {
	return func(_ context.Context, event accounts.Event) {
		logger.Info("account event",
			logging.String("event", event.Name),
			logging.String("event_id", event.ID),
			logging.String("user_id", event.UserID),
			logging.Int("fields", len(event.Fields)),
		)
	}
}

var _ accounts.Notifier = (*Bus)(nil)
