package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Subscriber receives events on a dispatcher worker. Implementations
// must tolerate concurrent calls.
type Subscriber interface {
	Name() string
	Notify(ctx context.Context, ev Event)
}

// Bus decouples publishing from delivery. Publish is synchronous only up
// to enqueueing; delivery runs on a fixed dispatcher pool and does not
// guarantee ordering across subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber

	queue   chan Event
	workers int
	logger  zerolog.Logger

	pubMu  sync.RWMutex
	closed bool

	wg       sync.WaitGroup
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBus creates a bus with the given dispatcher pool size.
func NewBus(workers int, logger zerolog.Logger) *Bus {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		queue:   make(chan Event, 256),
		workers: workers,
		logger:  logger.With().Str("component", "event-bus").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Subscribe registers a subscriber for all events; subscribers filter by
// event name themselves.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Start launches the dispatcher pool.
func (b *Bus) Start() {
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.dispatchLoop()
	}
}

// Publish validates the event against the catalog and enqueues it.
// Returns once the event is queued; delivery happens asynchronously.
func (b *Bus) Publish(name string, payload Payload) error {
	if _, ok := Catalog[name]; !ok {
		return fmt.Errorf("unknown event %q", name)
	}
	ev := Event{Name: name, Payload: payload, Timestamp: time.Now().UTC()}

	// The read lock excludes Stop, which closes the queue under the
	// write lock: no publisher can be mid-send when the close happens.
	b.pubMu.RLock()
	defer b.pubMu.RUnlock()
	if b.closed {
		return fmt.Errorf("event bus stopped")
	}
	select {
	case b.queue <- ev:
		return nil
	default:
		// A full queue drops the oldest pressure onto the caller's log
		// rather than blocking pipeline workers.
		b.logger.Warn().Str("event", name).Msg("event queue full, dropping event")
		return fmt.Errorf("event queue full")
	}
}

// SubscriberCount reports how many subscribers are registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// QueueDepth reports how many events are waiting for dispatch.
func (b *Bus) QueueDepth() int { return len(b.queue) }

// Stop drains in-flight deliveries and shuts the pool down.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		b.pubMu.Lock()
		b.closed = true
		close(b.queue)
		b.pubMu.Unlock()
		b.wg.Wait()
	})
}

func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	for ev := range b.queue {
		b.mu.RLock()
		subs := append([]Subscriber(nil), b.subscribers...)
		b.mu.RUnlock()

		for _, s := range subs {
			func() {
				defer func() {
					if r := recover(); r != nil {
						b.logger.Error().
							Str("subscriber", s.Name()).
							Str("event", ev.Name).
							Any("panic", r).
							Msg("subscriber panicked")
					}
				}()
				s.Notify(b.ctx, ev)
			}()
		}
	}
}
