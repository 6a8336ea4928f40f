package agentmesh

// Status represents a task lifecycle state.
// Use the exported constants (StatusPending, StatusLeased, etc.) instead of
// raw strings to avoid typos.
type Status string

const (
	// StatusPending contains tasks ready (or gated by availableAt) for leasing.
	StatusPending Status = "pending"
	// StatusLeased marks tasks claimed by a worker but not yet started.
	StatusLeased Status = "leased"
	// StatusRunning marks tasks a worker has started executing.
	StatusRunning Status = "running"
	// StatusCompleted is terminal success.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal failure after the retry budget is spent.
	StatusFailed Status = "failed"
	// StatusTimedOut marks tasks whose lease exceeded the task timeout;
	// the sweep converts them to a retry or a terminal failure.
	StatusTimedOut Status = "timed_out"
	// StatusCancelled is terminal producer-side cancellation.
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists every valid task status in a stable order.
var AllStatuses = []Status{
	StatusPending, StatusLeased, StatusRunning,
	StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled,
}

// String returns the raw string value of the status.
func (s Status) String() string { return string(s) }

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseStatus converts a string into a Status, returning an error for unknown values.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if s == string(st) {
			return st, nil
		}
	}
	return "", ErrUnknownStatus
}
