package agentmesh

import (
	"context"
	"strconv"
	"time"

	ikeys "github.com/AgentMesh/agentmesh-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// FeedbackRecord captures the outcome of one routing decision.
type FeedbackRecord struct {
	RequestID string  `json:"request_id"`
	Domain    string  `json:"domain"`
	Target    string  `json:"target"`
	Success   bool    `json:"success"`
	LatencyMs int64   `json:"latency_ms"`
	Cost      float64 `json:"cost"`
	Timestamp int64   `json:"timestamp"`
}

// TargetMetrics aggregates feedback for one target over a sliding window.
// With no records in the window the neutral defaults apply: success rate 1,
// zero counts. Absence of data is not failure.
type TargetMetrics struct {
	Target        string  `json:"target"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	AvgCost       float64 `json:"avg_cost"`
	SampleCount   int     `json:"sample_count"`
	FailureCount  int     `json:"failure_count"`
	LastFailureAt int64   `json:"last_failure_at,omitempty"`
}

// FeedbackCollector records per-target routing outcomes and surfaces the
// best-performing target per domain. Records are append-only; metrics exclude
// records older than the window but never delete them inside the retention
// period.
type FeedbackCollector struct {
	rdb        redis.UniversalClient
	enc        Encoder
	log        Logger
	window     time.Duration
	minSamples int
	retention  time.Duration
}

// FeedbackOption configures a FeedbackCollector.
type FeedbackOption func(*FeedbackCollector)

// WithFeedbackLogger sets the logger.
func WithFeedbackLogger(l Logger) FeedbackOption {
	return func(c *FeedbackCollector) { c.log = l }
}

// WithWindow sets the default sliding aggregation window.
func WithWindow(d time.Duration) FeedbackOption {
	return func(c *FeedbackCollector) { c.window = d }
}

// WithMinSamples sets the minimum sample count a target needs inside the
// window before it can be recommended.
func WithMinSamples(n int) FeedbackOption {
	return func(c *FeedbackCollector) { c.minSamples = n }
}

// WithFeedbackRetention bounds how long records are kept for audit. Zero
// keeps them forever.
func WithFeedbackRetention(d time.Duration) FeedbackOption {
	return func(c *FeedbackCollector) { c.retention = d }
}

// NewFeedbackCollector creates a collector over the given Redis client.
func NewFeedbackCollector(rdb redis.UniversalClient, opts ...FeedbackOption) *FeedbackCollector {
	c := &FeedbackCollector{
		rdb:        rdb,
		enc:        &JSONEncoder{},
		log:        noopLogger{},
		window:     time.Hour,
		minSamples: 5,
		retention:  7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record appends a feedback record. Prior records are never mutated.
func (c *FeedbackCollector) Record(ctx context.Context, rec *FeedbackRecord) error {
	if rec.Target == "" {
		return nil
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	data, err := c.enc.Encode(rec)
	if err != nil {
		return err
	}
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, ikeys.FeedbackRecords(rec.Target), redis.Z{
			Score:  float64(rec.Timestamp),
			Member: string(data),
		})
		if rec.Domain != "" {
			p.SAdd(ctx, ikeys.FeedbackTargets(rec.Domain), rec.Target)
		}
		return nil
	})
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// TargetMetrics computes aggregates over records within [now-window, now].
// A non-positive window uses the collector default.
func (c *FeedbackCollector) TargetMetrics(ctx context.Context, target string, window time.Duration) (*TargetMetrics, error) {
	if window <= 0 {
		window = c.window
	}
	now := time.Now().UnixMilli()
	vals, err := c.rdb.ZRangeByScore(ctx, ikeys.FeedbackRecords(target), &redis.ZRangeBy{
		Min: strconv.FormatInt(now-window.Milliseconds(), 10),
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return nil, storeErr(err)
	}

	m := &TargetMetrics{Target: target, SuccessRate: 1}
	if len(vals) == 0 {
		return m, nil
	}
	var successes int
	var latencySum, costSum float64
	for _, v := range vals {
		var rec FeedbackRecord
		if derr := c.enc.Decode([]byte(v), &rec); derr != nil {
			c.log.Warnf("feedback: dropping undecodable record for %s: %v", target, derr)
			continue
		}
		m.SampleCount++
		latencySum += float64(rec.LatencyMs)
		costSum += rec.Cost
		if rec.Success {
			successes++
		} else {
			m.FailureCount++
			if rec.Timestamp > m.LastFailureAt {
				m.LastFailureAt = rec.Timestamp
			}
		}
	}
	if m.SampleCount == 0 {
		return m, nil
	}
	m.SuccessRate = float64(successes) / float64(m.SampleCount)
	m.AvgLatencyMs = latencySum / float64(m.SampleCount)
	m.AvgCost = costSum / float64(m.SampleCount)
	return m, nil
}

// RecommendTarget returns the target with the highest success rate among the
// domain's targets that have at least the minimum sample count within the
// window. It returns empty when no target qualifies; low-volume targets are
// never recommended on noise.
func (c *FeedbackCollector) RecommendTarget(ctx context.Context, domain string) (string, error) {
	targets, err := c.rdb.SMembers(ctx, ikeys.FeedbackTargets(domain)).Result()
	if err != nil {
		return "", storeErr(err)
	}
	var best *TargetMetrics
	for _, target := range targets {
		m, merr := c.TargetMetrics(ctx, target, c.window)
		if merr != nil {
			return "", merr
		}
		if m.SampleCount < c.minSamples {
			continue
		}
		if best == nil ||
			m.SuccessRate > best.SuccessRate ||
			(m.SuccessRate == best.SuccessRate && m.AvgLatencyMs < best.AvgLatencyMs) {
			best = m
		}
	}
	if best == nil {
		return "", nil
	}
	return best.Target, nil
}

// PurgeExpired drops records older than the retention period. Records inside
// the retention period are kept for audit even when outside the metrics window.
func (c *FeedbackCollector) PurgeExpired(ctx context.Context, target string) error {
	if c.retention <= 0 {
		return nil
	}
	cutoff := time.Now().UnixMilli() - c.retention.Milliseconds()
	err := c.rdb.ZRemRangeByScore(ctx, ikeys.FeedbackRecords(target),
		"-inf", strconv.FormatInt(cutoff, 10)).Err()
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// AttachBus subscribes the collector to task lifecycle events so completions
// and terminal failures feed routing metrics automatically. The task type is
// the routing domain and the lease owner is the target.
func (c *FeedbackCollector) AttachBus(bus *Bus) (func(), error) {
	unsub, err := bus.Subscribe("task.*", func(ctx context.Context, m *Message) {
		if m.Topic != TopicTaskCompleted && m.Topic != TopicTaskFailed {
			return
		}
		var ev TaskEvent
		if err := c.enc.Decode(m.Payload, &ev); err != nil {
			c.log.Warnf("feedback: cannot decode %s event: %v", m.Topic, err)
			return
		}
		rec := &FeedbackRecord{
			RequestID: ev.TaskID,
			Domain:    ev.Type,
			Target:    ev.LeaseOwner,
			Success:   ev.Status == StatusCompleted,
			LatencyMs: ev.LatencyMs,
			Timestamp: m.Timestamp,
		}
		if err := c.Record(ctx, rec); err != nil {
			c.log.Warnf("feedback: cannot record outcome for task %s: %v", ev.TaskID, err)
		}
	})
	return unsub, err
}
