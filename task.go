package agentmesh

import (
	"math"
	"strconv"
	"time"
)

// Priority orders tasks within a queue. Higher tiers are leased first;
// within a tier tasks are leased oldest first.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Value maps the priority to its ordering integer: urgent=4, high=3, normal=2, low=1.
func (p Priority) Value() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// ParsePriority converts a string into a Priority, returning false for unknown values.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s), true
	default:
		return "", false
	}
}

// RetryPolicy bounds retries of failed tasks with exponential backoff.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `json:"max_retries"`
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `json:"base_delay"`
	// BackoffFactor multiplies the delay for each subsequent retry.
	BackoffFactor float64 `json:"backoff_factor"`
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration `json:"max_delay"`
}

// DefaultRetryPolicy is used when a task does not carry its own policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:    3,
	BaseDelay:     500 * time.Millisecond,
	BackoffFactor: 2,
	MaxDelay:      time.Minute,
}

// backoffDelay computes the delay before the retry following the given failed
// attempt count: min(base * factor^attempts, max).
func backoffDelay(p RetryPolicy, attempts int) time.Duration {
	base := float64(p.BaseDelay)
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	d := base * math.Pow(factor, float64(attempts))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Task represents a durable unit of work owned by the queue. Workers observe
// tasks and report outcomes through queue operations; they never mutate the
// stored record directly.
type Task struct {
	// ID is the unique identifier for the task.
	ID string `json:"id"`
	// Type defines the task category, used by Mux to route to the correct handler.
	Type string `json:"type"`
	// Queue is the name of the queue this task belongs to.
	Queue string `json:"queue"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// Priority is the scheduling tier.
	Priority Priority `json:"priority"`
	// PriorityValue is the integer ordering derived from Priority.
	PriorityValue int `json:"priority_value"`
	// Payload is the raw task data.
	Payload []byte `json:"payload"`
	// Timeout bounds how long a lease may be held without an outcome report.
	Timeout time.Duration `json:"timeout"`
	// Retry carries the task's retry policy.
	Retry RetryPolicy `json:"retry"`
	// Affinity optionally hints at a preferred worker or resource class.
	Affinity string `json:"affinity,omitempty"`
	// AttemptCount is the number of failed attempts consumed so far.
	AttemptCount int `json:"attempt_count"`
	// AvailableAt gates leasing: the task is not leased before this time (ms).
	AvailableAt int64 `json:"available_at,omitempty"`
	// LeaseOwner is the worker identity holding the lease, empty when pending.
	LeaseOwner string `json:"lease_owner,omitempty"`
	// CreatedAt is the timestamp (ms) when the task was enqueued.
	CreatedAt int64 `json:"created_at"`
	// LeasedAt is the timestamp (ms) of the current lease.
	LeasedAt int64 `json:"leased_at,omitempty"`
	// StartedAt is the timestamp (ms) when the worker started the task.
	StartedAt int64 `json:"started_at,omitempty"`
	// CompletedAt is the timestamp (ms) when the task reached a terminal state.
	CompletedAt int64 `json:"completed_at,omitempty"`
	// LastError is the error message from the last failed attempt.
	LastError string `json:"last_error,omitempty"`
	// LastErrorAt is the timestamp (ms) of the last failed attempt.
	LastErrorAt int64 `json:"last_error_at,omitempty"`
	// Progress is the current task progress (0..100).
	Progress int `json:"progress,omitempty"`
	// Result is the execution result stored as raw bytes.
	Result []byte `json:"result,omitempty"`
}

// priorityBand separates priority tiers in the pending ZSET score. It must
// exceed any realistic ms timestamp while keeping the combined score exact in
// a float64 mantissa.
const priorityBand = int64(1) << 42

// pendingScore orders the pending ZSET: ascending rank yields priority
// descending, then createdAt ascending.
func pendingScore(priorityValue int, createdAtMs int64) float64 {
	return float64(int64(4-priorityValue)*priorityBand + createdAtMs)
}

// taskFields flattens a task into alternating field/value pairs for HSET.
func taskFields(t *Task) []any {
	return []any{
		"id", t.ID,
		"type", t.Type,
		"queue", t.Queue,
		"status", string(t.Status),
		"priority", string(t.Priority),
		"priority_value", t.PriorityValue,
		"payload", string(t.Payload),
		"timeout_ms", t.Timeout.Milliseconds(),
		"max_retries", t.Retry.MaxRetries,
		"base_delay_ms", t.Retry.BaseDelay.Milliseconds(),
		"backoff_factor", strconv.FormatFloat(t.Retry.BackoffFactor, 'f', -1, 64),
		"max_delay_ms", t.Retry.MaxDelay.Milliseconds(),
		"affinity", t.Affinity,
		"attempt_count", t.AttemptCount,
		"available_at", t.AvailableAt,
		"lease_owner", t.LeaseOwner,
		"created_at", t.CreatedAt,
		"leased_at", t.LeasedAt,
		"started_at", t.StartedAt,
		"completed_at", t.CompletedAt,
		"last_error", t.LastError,
		"last_error_at", t.LastErrorAt,
		"progress", t.Progress,
		"result", string(t.Result),
	}
}

// taskFromHash rebuilds a task from an HGETALL result.
func taskFromHash(m map[string]string) *Task {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(m[k])
		return n
	}
	atoi64 := func(k string) int64 {
		n, _ := strconv.ParseInt(m[k], 10, 64)
		return n
	}
	factor, _ := strconv.ParseFloat(m["backoff_factor"], 64)
	t := &Task{
		ID:            m["id"],
		Type:          m["type"],
		Queue:         m["queue"],
		Status:        Status(m["status"]),
		Priority:      Priority(m["priority"]),
		PriorityValue: atoi("priority_value"),
		Payload:       []byte(m["payload"]),
		Timeout:       time.Duration(atoi64("timeout_ms")) * time.Millisecond,
		Retry: RetryPolicy{
			MaxRetries:    atoi("max_retries"),
			BaseDelay:     time.Duration(atoi64("base_delay_ms")) * time.Millisecond,
			BackoffFactor: factor,
			MaxDelay:      time.Duration(atoi64("max_delay_ms")) * time.Millisecond,
		},
		Affinity:     m["affinity"],
		AttemptCount: atoi("attempt_count"),
		AvailableAt:  atoi64("available_at"),
		LeaseOwner:   m["lease_owner"],
		CreatedAt:    atoi64("created_at"),
		LeasedAt:     atoi64("leased_at"),
		StartedAt:    atoi64("started_at"),
		CompletedAt:  atoi64("completed_at"),
		LastError:    m["last_error"],
		LastErrorAt:  atoi64("last_error_at"),
		Progress:     atoi("progress"),
		Result:       []byte(m["result"]),
	}
	if m["result"] == "" {
		t.Result = nil
	}
	if m["payload"] == "" {
		t.Payload = nil
	}
	return t
}
