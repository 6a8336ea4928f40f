package agentmesh

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	ikeys "github.com/AgentMesh/agentmesh-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// DefaultAuditRetention bounds how far back the publish audit log is kept.
const DefaultAuditRetention = 24 * time.Hour

// RedisTransport is the networked Transport over Redis pub/sub. Delivery is
// at-least-once per subscriber. Every accepted publish is also appended to a
// time-bounded audit log keyed by publish time.
type RedisTransport struct {
	rdb       redis.UniversalClient
	retention time.Duration

	mu     sync.Mutex
	subs   map[int]*redis.PubSub
	nextID int
	wg     sync.WaitGroup
	closed bool
}

// RedisTransportOption configures a RedisTransport.
type RedisTransportOption func(*RedisTransport)

// WithAuditRetention overrides how long published messages stay in the audit log.
func WithAuditRetention(d time.Duration) RedisTransportOption {
	return func(t *RedisTransport) { t.retention = d }
}

// NewRedisTransport creates a networked transport over the given Redis client.
func NewRedisTransport(rdb redis.UniversalClient, opts ...RedisTransportOption) *RedisTransport {
	t := &RedisTransport{
		rdb:       rdb,
		retention: DefaultAuditRetention,
		subs:      make(map[int]*redis.PubSub),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Publish sends data on the topic channel and appends it to the audit log.
func (t *RedisTransport) Publish(ctx context.Context, topic string, data []byte) error {
	now := time.Now().UnixMilli()
	cutoff := now - t.retention.Milliseconds()
	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, topic, data)
		p.ZAdd(ctx, ikeys.AuditLog(), redis.Z{Score: float64(now), Member: string(data)})
		p.ZRemRangeByScore(ctx, ikeys.AuditLog(), "-inf", strconv.FormatInt(cutoff, 10))
		return nil
	})
	return err
}

// Subscribe registers fn for the pattern. Suffix wildcards map directly onto
// Redis glob patterns; exact topics use a plain channel subscription.
func (t *RedisTransport) Subscribe(pattern string, fn func(topic string, data []byte)) (func(), error) {
	ctx := context.Background()
	var ps *redis.PubSub
	if strings.HasSuffix(pattern, "*") {
		ps = t.rdb.PSubscribe(ctx, pattern)
	} else {
		ps = t.rdb.Subscribe(ctx, pattern)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = ps.Close()
		return nil, ErrDeliveryFailure
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ps
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		for msg := range ps.Channel() {
			fn(msg.Channel, []byte(msg.Payload))
		}
	}()

	return func() {
		t.mu.Lock()
		cur, ok := t.subs[id]
		if ok {
			delete(t.subs, id)
		}
		t.mu.Unlock()
		if ok {
			_ = cur.Close()
		}
	}, nil
}

// Healthy pings the Redis server with a short deadline.
func (t *RedisTransport) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return t.rdb.Ping(ctx).Err() == nil
}

// AuditRange returns encoded messages published within [from, to], oldest first.
func (t *RedisTransport) AuditRange(ctx context.Context, from, to time.Time) ([][]byte, error) {
	vals, err := t.rdb.ZRangeByScore(ctx, ikeys.AuditLog(), &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: strconv.FormatInt(to.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// Close tears down every subscription and waits for readers to exit.
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := make([]*redis.PubSub, 0, len(t.subs))
	for _, ps := range t.subs {
		subs = append(subs, ps)
	}
	t.subs = map[int]*redis.PubSub{}
	t.mu.Unlock()
	for _, ps := range subs {
		_ = ps.Close()
	}
	t.wg.Wait()
	return nil
}
