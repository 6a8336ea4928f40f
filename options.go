package agentmesh

import "time"

type taskOptions struct {
	id       string
	priority Priority
	delay    time.Duration
	timeout  time.Duration
	retry    *RetryPolicy
	affinity string
}

// Option is a function that configures task behavior during Enqueue.
type Option func(*taskOptions)

// TaskID sets a custom ID for the task. If not provided, a random UUID will be
// generated. Enqueue is idempotent on the ID: enqueuing an existing ID is a no-op.
func TaskID(id string) Option {
	return func(o *taskOptions) { o.id = id }
}

// WithPriority sets the scheduling tier for the task. Default is normal.
func WithPriority(p Priority) Option {
	return func(o *taskOptions) { o.priority = p }
}

// Delay gates the task so it is not leased before the given duration elapses.
func Delay(d time.Duration) Option {
	return func(o *taskOptions) { o.delay = d }
}

// WithTimeout bounds how long a lease may be held without a success/failure
// report before the sweep reclaims it.
func WithTimeout(d time.Duration) Option {
	return func(o *taskOptions) { o.timeout = d }
}

// WithRetryPolicy overrides the queue's default retry policy for this task.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *taskOptions) { o.retry = &p }
}

// MaxRetry sets only the maximum number of retry attempts, keeping the other
// backoff parameters at the queue default.
func MaxRetry(n int) Option {
	return func(o *taskOptions) {
		if o.retry == nil {
			p := DefaultRetryPolicy
			o.retry = &p
		}
		o.retry.MaxRetries = n
	}
}

// Affinity attaches a worker-selection hint to the task.
func Affinity(hint string) Option {
	return func(o *taskOptions) { o.affinity = hint }
}
