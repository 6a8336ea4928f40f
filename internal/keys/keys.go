// Package keys centralizes Redis key construction.
// It is kept in internal to avoid leaking key formats to public API.
// All keys for one scope share a hash tag so multi-key scripts stay
// cluster-safe.
package keys

// Queue holds all precomputed keys for a queue name to avoid repeated concatenations.
type Queue struct {
	Pending   string // ZSET: member=task id, score=priority band + createdAt ms
	Delayed   string // ZSET: member=task id, score=availableAt ms
	Leased    string // ZSET: member=task id, score=lease deadline ms
	Completed string // ZSET: member=task id, score=retention expiry ms
	Failed    string // ZSET: member=task id, score=retention expiry ms
	IDs       string // SET: task ids seen, for idempotent enqueue
	TaskPfx   string // prefix for per-task HASH keys
}

// ForQueue returns a set of precomputed keys for the provided queue.
func ForQueue(q string) Queue {
	prefix := "agentmesh:{" + q + "}:"
	return Queue{
		Pending:   prefix + "pending",
		Delayed:   prefix + "delayed",
		Leased:    prefix + "leased",
		Completed: prefix + "completed",
		Failed:    prefix + "failed",
		IDs:       prefix + "ids",
		TaskPfx:   prefix + "task:",
	}
}

// Task returns the HASH key holding the task body for the given queue and id.
func Task(q, id string) string { return "agentmesh:{" + q + "}:task:" + id }

// Lock returns the string key holding a lock owner.
func Lock(name string) string { return "agentmesh:{locks}:" + name }

// LockMeta returns the HASH key holding informational lock metadata.
func LockMeta(name string) string { return "agentmesh:{locks}:meta:" + name }

// Checkpoints returns the ZSET key holding checkpoint snapshots for a workflow.
func Checkpoints(workflowID string) string {
	return "agentmesh:{workflows}:checkpoints:" + workflowID
}

// CheckpointSeq returns the counter key allocating append order for a workflow.
func CheckpointSeq(workflowID string) string {
	return "agentmesh:{workflows}:checkpoints:" + workflowID + ":seq"
}

// FeedbackRecords returns the ZSET key holding feedback records for a target.
func FeedbackRecords(target string) string {
	return "agentmesh:{feedback}:records:" + target
}

// FeedbackTargets returns the SET key listing known targets for a domain.
func FeedbackTargets(domain string) string {
	return "agentmesh:{feedback}:targets:" + domain
}

// AuditLog returns the ZSET key holding the time-bounded publish audit log.
func AuditLog() string { return "agentmesh:{bus}:audit" }
