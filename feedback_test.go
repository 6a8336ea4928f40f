package agentmesh

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func feedAt(t *testing.T, c *FeedbackCollector, domain, target string, success bool, latency int64, at time.Time) {
	t.Helper()
	err := c.Record(context.Background(), &FeedbackRecord{
		RequestID: fmt.Sprintf("req-%d", at.UnixNano()),
		Domain:    domain,
		Target:    target,
		Success:   success,
		LatencyMs: latency,
		Timestamp: at.UnixMilli(),
	})
	require.NoError(t, err)
}

func TestFeedback_NeutralDefaultsWithoutData(t *testing.T) {
	_, rdb := newMini(t)
	c := NewFeedbackCollector(rdb)

	m, err := c.TargetMetrics(context.Background(), "agent-unknown", time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1.0, m.SuccessRate)
	require.Zero(t, m.SampleCount)
	require.Zero(t, m.FailureCount)
	require.Zero(t, m.AvgLatencyMs)
}

func TestFeedback_MetricsAggregation(t *testing.T) {
	_, rdb := newMini(t)
	c := NewFeedbackCollector(rdb)
	now := time.Now()

	feedAt(t, c, "translate", "agent-a", true, 100, now.Add(-3*time.Minute))
	feedAt(t, c, "translate", "agent-a", true, 200, now.Add(-2*time.Minute))
	feedAt(t, c, "translate", "agent-a", false, 300, now.Add(-1*time.Minute))

	m, err := c.TargetMetrics(context.Background(), "agent-a", time.Hour)
	require.NoError(t, err)
	require.Equal(t, 3, m.SampleCount)
	require.Equal(t, 1, m.FailureCount)
	require.InDelta(t, 2.0/3.0, m.SuccessRate, 1e-9)
	require.InDelta(t, 200, m.AvgLatencyMs, 1e-9)
	require.Equal(t, now.Add(-1*time.Minute).UnixMilli(), m.LastFailureAt)
}

func TestFeedback_WindowExcludesOldRecords(t *testing.T) {
	_, rdb := newMini(t)
	c := NewFeedbackCollector(rdb)
	now := time.Now()

	// Old failures fall outside the window and must not poison the rate.
	feedAt(t, c, "d", "agent-a", false, 900, now.Add(-2*time.Hour))
	feedAt(t, c, "d", "agent-a", false, 900, now.Add(-90*time.Minute))
	feedAt(t, c, "d", "agent-a", true, 100, now.Add(-time.Minute))

	m, err := c.TargetMetrics(context.Background(), "agent-a", time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, m.SampleCount)
	require.Equal(t, 1.0, m.SuccessRate)
	require.Zero(t, m.FailureCount)
}

func TestFeedback_RecommendTarget(t *testing.T) {
	_, rdb := newMini(t)
	c := NewFeedbackCollector(rdb, WithMinSamples(5))
	now := time.Now()

	// agent-fast: 19/20 success. agent-flaky: 14/20 success.
	for i := 0; i < 20; i++ {
		feedAt(t, c, "summarize", "agent-fast", i != 0, 120, now.Add(-time.Duration(i)*time.Second))
		feedAt(t, c, "summarize", "agent-flaky", i >= 6, 80, now.Add(-time.Duration(i)*time.Second))
	}

	best, err := c.RecommendTarget(context.Background(), "summarize")
	require.NoError(t, err)
	require.Equal(t, "agent-fast", best)
}

func TestFeedback_RecommendRequiresMinSamples(t *testing.T) {
	_, rdb := newMini(t)
	c := NewFeedbackCollector(rdb, WithMinSamples(5))
	now := time.Now()

	// Perfect record but too few samples to trust.
	feedAt(t, c, "d", "agent-new", true, 50, now.Add(-time.Minute))
	feedAt(t, c, "d", "agent-new", true, 50, now.Add(-2*time.Minute))

	best, err := c.RecommendTarget(context.Background(), "d")
	require.NoError(t, err)
	require.Empty(t, best)
}

func TestFeedback_RecommendTieBreaksOnLatency(t *testing.T) {
	_, rdb := newMini(t)
	c := NewFeedbackCollector(rdb, WithMinSamples(3))
	now := time.Now()

	for i := 0; i < 5; i++ {
		at := now.Add(-time.Duration(i+1) * time.Second)
		feedAt(t, c, "d", "agent-slow", true, 500, at)
		feedAt(t, c, "d", "agent-quick", true, 50, at)
	}

	best, err := c.RecommendTarget(context.Background(), "d")
	require.NoError(t, err)
	require.Equal(t, "agent-quick", best)
}

func TestFeedback_PurgeExpiredKeepsRecentRecords(t *testing.T) {
	_, rdb := newMini(t)
	c := NewFeedbackCollector(rdb, WithFeedbackRetention(time.Hour))
	now := time.Now()

	feedAt(t, c, "d", "agent-a", true, 10, now.Add(-2*time.Hour))
	feedAt(t, c, "d", "agent-a", true, 10, now.Add(-time.Minute))
	require.NoError(t, c.PurgeExpired(context.Background(), "agent-a"))

	m, err := c.TargetMetrics(context.Background(), "agent-a", 3*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, m.SampleCount)
}

func TestFeedback_AttachBusIngestsTaskOutcomes(t *testing.T) {
	_, rdb := newMini(t)
	tr := NewChannelTransport()
	defer tr.Close()
	bus := NewBus(tr)
	defer bus.Close()

	c := NewFeedbackCollector(rdb, WithMinSamples(1))
	unsub, err := c.AttachBus(bus)
	require.NoError(t, err)
	defer unsub()

	q := NewQueue(rdb, WithBus(bus))
	ctx := context.Background()
	queue := "q-feedback"

	_, err = q.Enqueue(ctx, queue, "summarize", nil, TaskID("f-1"))
	require.NoError(t, err)
	_, err = q.Lease(ctx, queue, 1, "agent-a")
	require.NoError(t, err)
	require.NoError(t, q.ReportSuccess(ctx, queue, "f-1", nil))

	require.Eventually(t, func() bool {
		m, merr := c.TargetMetrics(ctx, "agent-a", time.Hour)
		require.NoError(t, merr)
		return m.SampleCount == 1 && m.SuccessRate == 1.0
	}, 2*time.Second, 10*time.Millisecond)

	best, err := c.RecommendTarget(ctx, "summarize")
	require.NoError(t, err)
	require.Equal(t, "agent-a", best)
}
