package agentmesh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AgentMesh/agentmesh-go/internal/topics"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// Handler processes a delivered message. Panics are recovered and logged;
// a failing handler never prevents delivery to other handlers.
type Handler func(ctx context.Context, m *Message)

// replyRouteTTL bounds how long the bus remembers where to send a response
// for a request it delivered to local handlers.
const replyRouteTTL = 10 * time.Minute

type replyRoute struct {
	topic string
	seen  int64
}

type patternSub struct {
	handlers map[int]Handler
	nextID   int
	unsub    func()
}

// Bus is a topic-based publish/subscribe hub with correlation-id
// request/response, built over a Transport. Construct one per component and
// inject it explicitly; there is no package-level instance.
type Bus struct {
	tr     Transport
	enc    Encoder
	log    Logger
	source string
	cb     *gobreaker.CircuitBreaker

	mu      sync.Mutex
	closed  bool
	subs    map[string]*patternSub
	pending map[string]chan *Message
	replies map[string]replyRoute

	replyTopic string
	replyOnce  sync.Once
	replyErr   error
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusLogger sets the logger used for delivery warnings and handler panics.
func WithBusLogger(l Logger) BusOption {
	return func(b *Bus) { b.log = l }
}

// WithBusEncoder overrides the envelope encoder.
func WithBusEncoder(e Encoder) BusOption {
	return func(b *Bus) { b.enc = e }
}

// WithSource sets the identity stamped as Source on published messages.
func WithSource(source string) BusOption {
	return func(b *Bus) { b.source = source }
}

// NewBus creates a bus over the given transport.
func NewBus(tr Transport, opts ...BusOption) *Bus {
	b := &Bus{
		tr:         tr,
		enc:        &JSONEncoder{},
		log:        noopLogger{},
		subs:       make(map[string]*patternSub),
		pending:    make(map[string]chan *Message),
		replies:    make(map[string]replyRoute),
		replyTopic: "agentmesh.replies." + uuid.NewString(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bus-publish",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return b
}

// Publish delivers the message to all current subscribers whose pattern
// matches the topic. Fire-and-forget; delivery failures are reported as
// ErrDeliveryFailure and the bus does not retry.
func (b *Bus) Publish(ctx context.Context, m *Message) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBusClosed
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Type == "" {
		m.Type = TypeEvent
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	if m.Source == "" {
		m.Source = b.source
	}
	data, err := b.enc.Encode(m)
	if err != nil {
		return err
	}
	_, err = b.cb.Execute(func() (any, error) {
		return nil, b.tr.Publish(ctx, m.Topic, data)
	})
	if err != nil {
		return fmt.Errorf("%w: topic=%s: %v", ErrDeliveryFailure, m.Topic, err)
	}
	return nil
}

// Subscribe registers a handler for every message whose topic matches the
// pattern (exact name or suffix wildcard such as "events.*"). Handlers
// sharing a pattern share one underlying transport subscription; the returned
// function removes only this handler and tears the subscription down once the
// pattern has no handlers left.
func (b *Bus) Subscribe(pattern string, h Handler) (func(), error) {
	if !topics.Valid(pattern) {
		return nil, fmt.Errorf("agentmesh: invalid topic pattern %q", pattern)
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	ps, ok := b.subs[pattern]
	if !ok {
		// The transport subscription is established before the pattern becomes
		// visible, so no caller can ever observe a patternSub without its unsub.
		// Transports do not call back into the bus while subscribing, so the
		// lock may be held across the call.
		unsub, err := b.tr.Subscribe(pattern, func(topic string, data []byte) {
			b.dispatch(pattern, topic, data)
		})
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		ps = &patternSub{handlers: make(map[int]Handler), unsub: unsub}
		b.subs[pattern] = ps
	}
	id := ps.nextID
	ps.nextID++
	ps.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		cur, ok := b.subs[pattern]
		if !ok {
			b.mu.Unlock()
			return
		}
		delete(cur.handlers, id)
		var unsub func()
		if len(cur.handlers) == 0 {
			unsub = cur.unsub
			delete(b.subs, pattern)
		}
		b.mu.Unlock()
		if unsub != nil {
			unsub()
		}
	}, nil
}

// dispatch decodes an inbound envelope and fans it out to the pattern's handlers.
func (b *Bus) dispatch(pattern, topic string, data []byte) {
	var m Message
	if err := b.enc.Decode(data, &m); err != nil {
		b.log.Warnf("bus: dropping undecodable message on %s: %v", topic, err)
		return
	}
	if m.Topic == "" {
		m.Topic = topic
	}

	if m.Type == TypeResponse && m.CorrelationID != "" {
		if b.resolve(&m) {
			return
		}
		// Late or foreign response; fall through to handlers if any.
	}
	if m.Type == TypeRequest && m.CorrelationID != "" && m.ReplyTo != "" {
		b.recordReplyRoute(m.CorrelationID, m.ReplyTo)
	}

	b.mu.Lock()
	ps, ok := b.subs[pattern]
	if !ok {
		b.mu.Unlock()
		return
	}
	handlers := make([]Handler, 0, len(ps.handlers))
	for _, h := range ps.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	ctx := context.Background()
	for _, h := range handlers {
		b.invoke(ctx, h, &m)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, m *Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("bus: handler panic on %s: %v", m.Topic, r)
		}
	}()
	h(ctx, m)
}

func (b *Bus) recordReplyRoute(corrID, replyTo string) {
	now := time.Now().UnixMilli()
	cutoff := now - replyRouteTTL.Milliseconds()
	b.mu.Lock()
	for id, r := range b.replies {
		if r.seen < cutoff {
			delete(b.replies, id)
		}
	}
	b.replies[corrID] = replyRoute{topic: replyTo, seen: now}
	b.mu.Unlock()
}

// resolve completes the pending request matching the response's correlation
// id. Returns false when no entry exists (already timed out, cancelled or
// resolved); the caller treats that as a no-op.
func (b *Bus) resolve(m *Message) bool {
	b.mu.Lock()
	ch, ok := b.pending[m.CorrelationID]
	if ok {
		delete(b.pending, m.CorrelationID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	ch <- m // buffered; exactly one send per entry
	return true
}

// ensureReplySubscription lazily subscribes this bus instance to its private
// reply topic the first time Request is called.
func (b *Bus) ensureReplySubscription() error {
	b.replyOnce.Do(func() {
		// Responses are resolved in dispatch; the handler body is a no-op for
		// anything that is not a pending response.
		_, b.replyErr = b.Subscribe(b.replyTopic, func(context.Context, *Message) {})
	})
	return b.replyErr
}

// Request publishes a request-typed message and blocks until a matching
// Respond arrives, the timeout elapses (ErrRequestTimeout), or ctx is
// cancelled. The pending entry resolves exactly once; a response racing a
// cancel or timeout becomes a no-op.
func (b *Bus) Request(ctx context.Context, topic string, payload []byte, destination string, timeout time.Duration) (*Message, error) {
	if err := b.ensureReplySubscription(); err != nil {
		return nil, err
	}
	corrID := uuid.NewString()
	ch := make(chan *Message, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	b.pending[corrID] = ch
	b.mu.Unlock()

	drop := func() {
		b.mu.Lock()
		delete(b.pending, corrID)
		b.mu.Unlock()
	}

	msg := &Message{
		ID:            uuid.NewString(),
		CorrelationID: corrID,
		Topic:         topic,
		Source:        b.source,
		Destination:   destination,
		Type:          TypeRequest,
		Payload:       payload,
		Timestamp:     time.Now().UnixMilli(),
		ReplyTo:       b.replyTopic,
	}
	if err := b.Publish(ctx, msg); err != nil {
		drop()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		drop()
		return nil, fmt.Errorf("%w: topic=%s correlation=%s after %s", ErrRequestTimeout, topic, corrID, timeout)
	case <-ctx.Done():
		drop()
		return nil, ctx.Err()
	}
}

// Respond resolves the request identified by correlation id with the given
// payload. Responding to an unknown or already-settled correlation id is a
// logged no-op, never an error: late responses must not crash the responder.
func (b *Bus) Respond(ctx context.Context, correlationID string, payload []byte) error {
	b.mu.Lock()
	route, ok := b.replies[correlationID]
	if ok {
		delete(b.replies, correlationID)
	}
	b.mu.Unlock()
	if !ok {
		b.log.Warnf("bus: no pending request for correlation=%s; dropping response", correlationID)
		return nil
	}
	resp := &Message{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		Topic:         route.topic,
		Source:        b.source,
		Type:          TypeResponse,
		Payload:       payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	return b.Publish(ctx, resp)
}

// Healthy reports whether the transport is reachable and the publish breaker
// is not open. Dependents use it to fail fast rather than queue indefinitely.
func (b *Bus) Healthy(ctx context.Context) bool {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return false
	}
	return b.cb.State() != gobreaker.StateOpen && b.tr.Healthy(ctx)
}

// Close tears down all subscriptions. Outstanding requests fall through to
// their timeouts.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var unsubs []func()
	for _, ps := range b.subs {
		if ps.unsub != nil {
			unsubs = append(unsubs, ps.unsub)
		}
	}
	b.subs = map[string]*patternSub{}
	b.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
	return nil
}
