package agentmesh

import "errors"

// ErrDeliveryFailure is returned when the transport rejects or cannot accept a publish.
// Callers decide whether to retry with backoff; the bus itself does not retry.
var ErrDeliveryFailure = errors.New("agentmesh: delivery failure")

// ErrRequestTimeout is returned when no response arrives within the request timeout.
var ErrRequestTimeout = errors.New("agentmesh: request timed out")

// ErrLockContention is returned by WithLock when the lock is held by another owner.
var ErrLockContention = errors.New("agentmesh: lock contention")

// ErrTaskNotFound is returned when a task with the specified ID is not found.
var ErrTaskNotFound = errors.New("agentmesh: task not found")

// ErrRetriesExhausted indicates a task failed terminally after consuming its retry budget.
var ErrRetriesExhausted = errors.New("agentmesh: retries exhausted")

// ErrStoreUnavailable wraps store errors that make the issuing component unable to proceed.
var ErrStoreUnavailable = errors.New("agentmesh: store unavailable")

// ErrTaskActive is returned when an operation is not allowed on a leased or running task.
var ErrTaskActive = errors.New("agentmesh: operation not allowed on active task")

// ErrUnknownStatus is returned when an invalid task status is used.
var ErrUnknownStatus = errors.New("agentmesh: unknown status")

// ErrBusClosed is returned when an operation is attempted on a closed bus.
var ErrBusClosed = errors.New("agentmesh: bus closed")

// ErrNoHandler indicates there is no handler registered for the task type; the
// worker runtime dead-letters the task without consuming retries.
var ErrNoHandler = errors.New("agentmesh: no handler")
