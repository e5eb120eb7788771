package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Errors returned by bus operations.
var (
	// ErrNoHandler indicates a request topic has no subscribed handler.
	ErrNoHandler = errors.New("bus: no handler for topic")

	// ErrClosed indicates the bus has been shut down.
	ErrClosed = errors.New("bus: closed")
)

// Message is an envelope carried on the bus. The correlation ID ties a
// reply to its request; fire-and-forget messages carry one too so log
// lines can be joined across components.
type Message struct {
	// ID is the unique correlation identifier.
	ID string

	// Topic is the routing key the message was published under.
	Topic string

	// Payload is the message body. Handlers type-assert it.
	Payload any

	// reply receives the handler's response for Request round trips.
	// Nil for Publish.
	reply chan any
}

// Reply sends a response for a request message. It is a no-op for
// messages that were published fire-and-forget.
func (m *Message) Reply(payload any) {
	if m.reply == nil {
		return
	}
	// The requester may have given up; never block on a dead reply
	// channel.
	select {
	case m.reply <- payload:
	default:
	}
}

// Handler consumes messages for a topic. A handler that services
// requests must call msg.Reply.
type Handler func(msg *Message)

// Bus routes messages by topic to subscribed handlers.
//
// Design decision: Handlers run synchronously on the caller's goroutine
// rather than on a worker pool because:
// 1. The detectors are fast and lock at per-session granularity
// 2. Backpressure falls on the producer that caused the load
// 3. It keeps message ordering per producer without extra machinery
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger for dispatch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		logger:   slog.Default(),
		handlers: make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a topic. Multiple handlers may share
// a topic; all of them see every published message, and the first to
// reply wins a request round trip.
func (b *Bus) Subscribe(topic string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers a fire-and-forget message to every handler for the
// topic. Unknown topics are dropped silently; the boundary must not fail
// because a detector is not wired.
func (b *Bus) Publish(topic string, payload any) {
	msg := &Message{
		ID:      uuid.NewString(),
		Topic:   topic,
		Payload: payload,
	}
	for _, h := range b.handlersFor(topic) {
		b.dispatch(h, msg)
	}
}

// Request delivers a message and waits for the first reply, the context
// deadline, or bus shutdown, whichever comes first.
func (b *Bus) Request(ctx context.Context, topic string, payload any) (any, error) {
	handlers := b.handlersFor(topic)
	if len(handlers) == 0 {
		b.mu.RLock()
		closed := b.closed
		b.mu.RUnlock()
		if closed {
			return nil, ErrClosed
		}
		return nil, ErrNoHandler
	}

	msg := &Message{
		ID:      uuid.NewString(),
		Topic:   topic,
		Payload: payload,
		reply:   make(chan any, 1),
	}
	for _, h := range handlers {
		b.dispatch(h, msg)
	}

	select {
	case reply := <-msg.reply:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the bus. Subsequent Subscribe calls are ignored and
// Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string][]Handler)
}

// handlersFor snapshots the handler list for a topic.
func (b *Bus) handlersFor(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := b.handlers[topic]
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

// dispatch runs one handler, containing panics so a broken detector
// cannot take the forwarding path down with it.
func (b *Bus) dispatch(h Handler, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus handler panicked",
				"topic", msg.Topic,
				"id", msg.ID,
				"panic", r,
			)
		}
	}()
	h(msg)
}
