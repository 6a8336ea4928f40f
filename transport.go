package agentmesh

import (
	"context"
	"sync"

	"github.com/AgentMesh/agentmesh-go/internal/topics"
)

// Transport moves raw message bytes between publishers and pattern subscribers.
// The in-process ChannelTransport and the networked RedisTransport are
// interchangeable behind this interface; callers only observe the difference
// between exactly-once-per-process and at-least-once delivery.
type Transport interface {
	// Publish delivers data to every current subscription whose pattern matches topic.
	Publish(ctx context.Context, topic string, data []byte) error
	// Subscribe registers fn for every message matching pattern and returns an
	// unsubscribe function. fn is invoked sequentially per subscription, in
	// publish order per publisher.
	Subscribe(pattern string, fn func(topic string, data []byte)) (func(), error)
	// Healthy probes transport liveness.
	Healthy(ctx context.Context) bool
	// Close tears down all subscriptions.
	Close() error
}

// ChannelTransport is the single-process Transport. Delivery is
// exactly-once-per-process and ordered per publisher; each subscription drains
// its own unbounded mailbox so slow handlers never block publishers.
type ChannelTransport struct {
	mu     sync.Mutex
	subs   map[int]*mailbox
	nextID int
	closed bool
}

// NewChannelTransport creates an in-process transport.
func NewChannelTransport() *ChannelTransport {
	return &ChannelTransport{subs: make(map[int]*mailbox)}
}

type delivery struct {
	topic string
	data  []byte
}

// mailbox is an unbounded FIFO drained by a dedicated goroutine. Accepted
// messages are never dropped; Close drains what was already accepted.
type mailbox struct {
	pattern string
	fn      func(topic string, data []byte)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []delivery
	closed bool
	done   chan struct{}
}

func newMailbox(pattern string, fn func(string, []byte)) *mailbox {
	m := &mailbox{pattern: pattern, fn: fn, done: make(chan struct{})}
	m.cond = sync.NewCond(&m.mu)
	go m.drain()
	return m
}

func (m *mailbox) push(d delivery) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, d)
	m.cond.Signal()
	m.mu.Unlock()
}

func (m *mailbox) drain() {
	defer close(m.done)
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 && m.closed {
			m.mu.Unlock()
			return
		}
		d := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.fn(d.topic, d.data)
	}
}

func (m *mailbox) stop() {
	m.mu.Lock()
	m.closed = true
	m.cond.Signal()
	m.mu.Unlock()
	<-m.done
}

// Publish enqueues data for every matching subscription.
func (t *ChannelTransport) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrDeliveryFailure
	}
	var targets []*mailbox
	for _, mb := range t.subs {
		if topics.Match(mb.pattern, topic) {
			targets = append(targets, mb)
		}
	}
	t.mu.Unlock()
	for _, mb := range targets {
		mb.push(delivery{topic: topic, data: data})
	}
	return nil
}

// Subscribe registers fn for the pattern and returns an unsubscribe function.
func (t *ChannelTransport) Subscribe(pattern string, fn func(topic string, data []byte)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrDeliveryFailure
	}
	id := t.nextID
	t.nextID++
	mb := newMailbox(pattern, fn)
	t.subs[id] = mb
	return func() {
		t.mu.Lock()
		cur, ok := t.subs[id]
		if ok {
			delete(t.subs, id)
		}
		t.mu.Unlock()
		if ok {
			cur.stop()
		}
	}, nil
}

// Healthy always reports true while the transport is open.
func (t *ChannelTransport) Healthy(context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Close stops all subscriptions after draining accepted messages.
func (t *ChannelTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := make([]*mailbox, 0, len(t.subs))
	for _, mb := range t.subs {
		subs = append(subs, mb)
	}
	t.subs = map[int]*mailbox{}
	t.mu.Unlock()
	for _, mb := range subs {
		mb.stop()
	}
	return nil
}
