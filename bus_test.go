package agentmesh

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mrd "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMini(t *testing.T) (*mrd.Miniredis, *redis.Client) {
	t.Helper()
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return s, rdb
}

func TestBus_PublishSubscribe(t *testing.T) {
	tr := NewChannelTransport()
	defer tr.Close()
	bus := NewBus(tr, WithSource("test"))
	defer bus.Close()

	got := make(chan *Message, 1)
	unsub, err := bus.Subscribe("events.user.created", func(_ context.Context, m *Message) {
		got <- m
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, bus.Publish(context.Background(), NewMessage("events.user.created", []byte(`{"id":1}`))))
	select {
	case m := <-got:
		require.Equal(t, "events.user.created", m.Topic)
		require.Equal(t, TypeEvent, m.Type)
		require.Equal(t, "test", m.Source)
		require.NotEmpty(t, m.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestBus_WildcardAndMultipleHandlers(t *testing.T) {
	tr := NewChannelTransport()
	defer tr.Close()
	bus := NewBus(tr)
	defer bus.Close()

	var a, b atomic.Int64
	unsubA, err := bus.Subscribe("events.*", func(_ context.Context, m *Message) { a.Add(1) })
	require.NoError(t, err)
	unsubB, err := bus.Subscribe("events.*", func(_ context.Context, m *Message) { b.Add(1) })
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, NewMessage("events.user.created", nil)))
	require.NoError(t, bus.Publish(ctx, NewMessage("metrics.cpu", nil)))

	require.Eventually(t, func() bool { return a.Load() == 1 && b.Load() == 1 },
		2*time.Second, 10*time.Millisecond)

	// Removing one handler keeps the other delivering.
	unsubA()
	require.NoError(t, bus.Publish(ctx, NewMessage("events.user.deleted", nil)))
	require.Eventually(t, func() bool { return b.Load() == 2 },
		2*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(1), a.Load())
	unsubB()
}

func TestBus_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	tr := NewChannelTransport()
	defer tr.Close()
	bus := NewBus(tr)
	defer bus.Close()

	delivered := make(chan struct{}, 1)
	_, err := bus.Subscribe("jobs.run", func(_ context.Context, m *Message) {
		panic("boom")
	})
	require.NoError(t, err)
	_, err = bus.Subscribe("jobs.run", func(_ context.Context, m *Message) {
		delivered <- struct{}{}
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), NewMessage("jobs.run", nil)))
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler not invoked after panic in first")
	}
}

func TestBus_RequestResponseRoundTrip(t *testing.T) {
	tr := NewChannelTransport()
	defer tr.Close()
	requester := NewBus(tr, WithSource("requester"))
	defer requester.Close()
	responder := NewBus(tr, WithSource("responder"))
	defer responder.Close()

	_, err := responder.Subscribe("svc.echo", func(ctx context.Context, m *Message) {
		require.Equal(t, TypeRequest, m.Type)
		require.NoError(t, responder.Respond(ctx, m.CorrelationID, append([]byte("re:"), m.Payload...)))
	})
	require.NoError(t, err)

	resp, err := requester.Request(context.Background(), "svc.echo", []byte("ping"), "responder", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, TypeResponse, resp.Type)
	require.Equal(t, []byte("re:ping"), resp.Payload)
}

func TestBus_RequestTimeoutAndLateRespond(t *testing.T) {
	tr := NewChannelTransport()
	defer tr.Close()
	bus := NewBus(tr)
	defer bus.Close()

	var corrID string
	var mu sync.Mutex
	_, err := bus.Subscribe("svc.slow", func(_ context.Context, m *Message) {
		mu.Lock()
		corrID = m.CorrelationID
		mu.Unlock()
	})
	require.NoError(t, err)

	_, err = bus.Request(context.Background(), "svc.slow", nil, "", 50*time.Millisecond)
	require.ErrorIs(t, err, ErrRequestTimeout)

	// A late respond must be a no-op, never an error.
	mu.Lock()
	id := corrID
	mu.Unlock()
	require.NotEmpty(t, id)
	require.NoError(t, bus.Respond(context.Background(), id, []byte("too late")))
}

func TestBus_RequestCancellation(t *testing.T) {
	tr := NewChannelTransport()
	defer tr.Close()
	bus := NewBus(tr)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := bus.Request(ctx, "svc.never", nil, "", 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBus_RespondUnknownCorrelationIsNoop(t *testing.T) {
	tr := NewChannelTransport()
	defer tr.Close()
	bus := NewBus(tr)
	defer bus.Close()
	require.NoError(t, bus.Respond(context.Background(), "no-such-correlation", nil))
}

func TestBus_Healthy(t *testing.T) {
	tr := NewChannelTransport()
	bus := NewBus(tr)
	require.True(t, bus.Healthy(context.Background()))
	require.NoError(t, tr.Close())
	require.False(t, bus.Healthy(context.Background()))
}

func TestBus_SubscribeInvalidPattern(t *testing.T) {
	tr := NewChannelTransport()
	defer tr.Close()
	bus := NewBus(tr)
	defer bus.Close()
	_, err := bus.Subscribe("ev*nts", func(context.Context, *Message) {})
	require.Error(t, err)
}

// countingTransport tracks live transport subscriptions so tests can assert
// none leak across subscribe/unsubscribe churn.
type countingTransport struct {
	mu        sync.Mutex
	active    int
	subscribe error
}

func (c *countingTransport) Publish(context.Context, string, []byte) error { return nil }

func (c *countingTransport) Subscribe(string, func(string, []byte)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribe != nil {
		return nil, c.subscribe
	}
	c.active++
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.active--
			c.mu.Unlock()
		})
	}, nil
}

func (c *countingTransport) Healthy(context.Context) bool { return true }
func (c *countingTransport) Close() error                 { return nil }

func (c *countingTransport) activeSubs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func TestBus_SubscribeChurnDoesNotLeakTransportSubs(t *testing.T) {
	tr := &countingTransport{}
	bus := NewBus(tr)
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				unsub, err := bus.Subscribe("events.*", func(context.Context, *Message) {})
				require.NoError(t, err)
				unsub()
			}
		}()
	}
	wg.Wait()
	require.Zero(t, tr.activeSubs())
}

func TestBus_SubscribeTransportFailurePropagates(t *testing.T) {
	tr := &countingTransport{subscribe: ErrDeliveryFailure}
	bus := NewBus(tr)
	defer bus.Close()

	_, err := bus.Subscribe("events.*", func(context.Context, *Message) {})
	require.ErrorIs(t, err, ErrDeliveryFailure)

	// The failed pattern left no state behind; a later subscribe succeeds.
	tr.mu.Lock()
	tr.subscribe = nil
	tr.mu.Unlock()
	unsub, err := bus.Subscribe("events.*", func(context.Context, *Message) {})
	require.NoError(t, err)
	unsub()
	require.Zero(t, tr.activeSubs())
}

func TestRedisTransport_PublishSubscribeAndAudit(t *testing.T) {
	_, rdb := newMini(t)
	tr := NewRedisTransport(rdb)
	defer tr.Close()
	bus := NewBus(tr, WithSource("nodeA"))
	defer bus.Close()

	got := make(chan *Message, 1)
	unsub, err := bus.Subscribe("events.*", func(_ context.Context, m *Message) {
		got <- m
	})
	require.NoError(t, err)
	defer unsub()

	// Subscription registration races the publish; retry until delivered.
	require.Eventually(t, func() bool {
		require.NoError(t, bus.Publish(context.Background(), NewMessage("events.ping", []byte("x"))))
		select {
		case m := <-got:
			require.Equal(t, "events.ping", m.Topic)
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	entries, err := tr.AuditRange(context.Background(),
		time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}
