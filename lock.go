package agentmesh

import (
	"context"
	"fmt"
	"strconv"
	"time"

	ikeys "github.com/AgentMesh/agentmesh-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a lock only when the caller still owns it, so a
// straggler cannot release a lock that expired and was re-acquired.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  redis.call('DEL', KEYS[2])
  return 1
end
return 0
`)

// extendScript renews the lease only for the current owner.
var extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  redis.call('HSET', KEYS[2], 'expires_at', ARGV[3])
  redis.call('PEXPIRE', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// LockInfo describes a currently held lock.
type LockInfo struct {
	Key        string `json:"key"`
	OwnerID    string `json:"owner_id"`
	AcquiredAt int64  `json:"acquired_at"`
	ExpiresAt  int64  `json:"expires_at"`
	Metadata   string `json:"metadata,omitempty"`
}

// LockManager provides lease-based mutual exclusion keyed by string
// identifiers. Leases expire on their own, bounding the blast radius of a
// crashed holder. Correctness assumes clock skew between processes is small
// relative to the TTL; pick TTLs accordingly.
type LockManager struct {
	rdb        redis.UniversalClient
	log        Logger
	defaultTTL time.Duration
}

// LockOption configures a LockManager.
type LockOption func(*LockManager)

// WithLockLogger sets the logger.
func WithLockLogger(l Logger) LockOption {
	return func(m *LockManager) { m.log = l }
}

// WithDefaultTTL sets the TTL applied when a caller passes a non-positive one.
func WithDefaultTTL(d time.Duration) LockOption {
	return func(m *LockManager) { m.defaultTTL = d }
}

// NewLockManager creates a lock manager over the given Redis client.
func NewLockManager(rdb redis.UniversalClient, opts ...LockOption) *LockManager {
	m := &LockManager{rdb: rdb, log: noopLogger{}, defaultTTL: 30 * time.Second}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire attempts an atomic insert-if-absent of the lock. It returns true on
// success and false when a live lock for the key exists. Expired locks count
// as absent: Redis drops the key at TTL, so a fresh acquire succeeds.
func (m *LockManager) Acquire(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	ok, err := m.rdb.SetNX(ctx, ikeys.Lock(key), ownerID, ttl).Result()
	if err != nil {
		return false, storeErr(err)
	}
	if !ok {
		return false, nil
	}
	now := time.Now().UnixMilli()
	// Informational record; the owner string on the lock key is authoritative.
	if err := m.rdb.HSet(ctx, ikeys.LockMeta(key),
		"owner_id", ownerID,
		"acquired_at", now,
		"expires_at", now+ttl.Milliseconds(),
	).Err(); err != nil {
		m.log.Warnf("lock: cannot record metadata for %s: %v", key, err)
	} else {
		_ = m.rdb.PExpire(ctx, ikeys.LockMeta(key), ttl).Err()
	}
	return true, nil
}

// Release deletes the lock only if the caller is the current owner. It
// returns false as a no-op when the caller no longer holds the lock.
func (m *LockManager) Release(ctx context.Context, key, ownerID string) (bool, error) {
	n, err := releaseScript.Run(ctx, m.rdb,
		[]string{ikeys.Lock(key), ikeys.LockMeta(key)}, ownerID).Int()
	if err != nil {
		return false, storeErr(err)
	}
	return n == 1, nil
}

// Extend renews the lease only if the caller is the current owner. Long
// holders call it before expiry to keep exclusion.
func (m *LockManager) Extend(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	expiresAt := time.Now().UnixMilli() + ttl.Milliseconds()
	n, err := extendScript.Run(ctx, m.rdb,
		[]string{ikeys.Lock(key), ikeys.LockMeta(key)},
		ownerID, ttl.Milliseconds(), expiresAt).Int()
	if err != nil {
		return false, storeErr(err)
	}
	return n == 1, nil
}

// Info returns the current lock holder, or nil when the lock is free.
func (m *LockManager) Info(ctx context.Context, key string) (*LockInfo, error) {
	owner, err := m.rdb.Get(ctx, ikeys.Lock(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	info := &LockInfo{Key: key, OwnerID: owner}
	meta, err := m.rdb.HGetAll(ctx, ikeys.LockMeta(key)).Result()
	if err == nil && len(meta) > 0 {
		info.AcquiredAt = parseMs(meta["acquired_at"])
		info.ExpiresAt = parseMs(meta["expires_at"])
		info.Metadata = meta["metadata"]
	}
	return info, nil
}

// WithLock acquires the lock, runs fn and releases in all exit paths
// including panics. Failure to acquire fails fast with ErrLockContention.
func (m *LockManager) WithLock(ctx context.Context, key, ownerID string, ttl time.Duration, fn func(ctx context.Context) error) error {
	ok, err := m.Acquire(ctx, key, ownerID, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: key=%s owner=%s", ErrLockContention, key, ownerID)
	}
	defer func() {
		released, rerr := m.Release(ctx, key, ownerID)
		if rerr != nil {
			m.log.Errorf("lock: release %s failed: %v", key, rerr)
		} else if !released {
			m.log.Warnf("lock: %s expired before release by %s", key, ownerID)
		}
	}()
	return fn(ctx)
}

func parseMs(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
