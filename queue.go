package agentmesh

import (
	"context"
	"errors"
	"fmt"
	"time"

	ikeys "github.com/AgentMesh/agentmesh-go/internal/keys"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lifecycle event topics emitted by the queue.
const (
	TopicTaskCreated   = "task.created"
	TopicTaskCompleted = "task.completed"
	TopicTaskFailed    = "task.failed"
)

// TaskEvent is the payload of task lifecycle messages on the bus.
type TaskEvent struct {
	TaskID       string `json:"task_id"`
	Queue        string `json:"queue"`
	Type         string `json:"type"`
	Status       Status `json:"status"`
	LeaseOwner   string `json:"lease_owner,omitempty"`
	AttemptCount int    `json:"attempt_count"`
	LatencyMs    int64  `json:"latency_ms,omitempty"`
	Error        string `json:"error,omitempty"`
}

// farFuture is the retention score used for entries kept forever.
const farFuture = int64(1) << 62

// leaseScript atomically claims up to limit ready tasks in priority-then-FIFO
// order: it removes each id from the pending ZSET, marks the task hash leased
// and indexes the lease deadline. No two concurrent callers can claim the same
// id because the ZREM is the single point of ownership.
var leaseScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, tonumber(ARGV[1]) - 1)
if #ids == 0 then return {} end
local out = {}
for i, id in ipairs(ids) do
  if redis.call('ZREM', KEYS[1], id) == 1 then
    local tkey = ARGV[3] .. id
    local tmo = tonumber(redis.call('HGET', tkey, 'timeout_ms') or '0')
    if tmo <= 0 then tmo = tonumber(ARGV[4]) end
    redis.call('HSET', tkey, 'status', 'leased', 'lease_owner', ARGV[5], 'leased_at', ARGV[2])
    redis.call('ZADD', KEYS[2], tonumber(ARGV[2]) + tmo, id)
    out[#out + 1] = id
  end
end
return out
`)

// startScript transitions a leased task to running for the owning worker.
var startScript = redis.NewScript(`
local tkey = ARGV[1] .. ARGV[2]
local st = redis.call('HGET', tkey, 'status')
if not st then return 'missing' end
if st ~= 'leased' then return st end
if redis.call('HGET', tkey, 'lease_owner') ~= ARGV[3] then return 'notowner' end
redis.call('HSET', tkey, 'status', 'running', 'started_at', ARGV[4])
return 'ok'
`)

// successScript completes a leased or running task and indexes it for
// retention. The de-dup id stays reserved until the purge removes the
// completed row, so a duplicate enqueue of a finished id remains a no-op.
var successScript = redis.NewScript(`
local tkey = ARGV[1] .. ARGV[2]
local st = redis.call('HGET', tkey, 'status')
if not st then return 'missing' end
if st ~= 'leased' and st ~= 'running' then return st end
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('HSET', tkey, 'status', 'completed', 'completed_at', ARGV[3], 'result', ARGV[4])
redis.call('ZADD', KEYS[2], tonumber(ARGV[5]), ARGV[2])
return 'ok'
`)

// failScript applies a failure outcome. In retry mode it re-gates the task in
// the delayed ZSET at its availableAt; in dead mode it indexes the terminal
// failure for retention. The expected attempt count guards against a racing
// sweep applying the same failure twice.
var failScript = redis.NewScript(`
local tkey = ARGV[1] .. ARGV[2]
local st = redis.call('HGET', tkey, 'status')
if not st then return 'missing' end
if st ~= 'leased' and st ~= 'running' and st ~= 'timed_out' then return st end
local att = tonumber(redis.call('HGET', tkey, 'attempt_count') or '0')
if att ~= tonumber(ARGV[5]) then return 'conflict' end
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('HSET', tkey, 'last_error', ARGV[4], 'last_error_at', ARGV[3], 'attempt_count', att + 1)
if ARGV[6] == 'retry' then
  redis.call('HSET', tkey, 'status', 'pending', 'available_at', ARGV[7], 'lease_owner', '')
  redis.call('ZADD', KEYS[2], tonumber(ARGV[7]), ARGV[2])
  return 'retry'
end
redis.call('HSET', tkey, 'status', 'failed', 'completed_at', ARGV[3])
redis.call('ZADD', KEYS[3], tonumber(ARGV[7]), ARGV[2])
return 'dead'
`)

// cancelScript cancels a task that has not been leased yet.
var cancelScript = redis.NewScript(`
local tkey = ARGV[1] .. ARGV[2]
local st = redis.call('HGET', tkey, 'status')
if not st then return 'missing' end
if st ~= 'pending' then return st end
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[2])
redis.call('HSET', tkey, 'status', 'cancelled', 'completed_at', ARGV[3])
redis.call('SREM', KEYS[3], ARGV[2])
if tonumber(ARGV[4]) > 0 then
  redis.call('PEXPIRE', tkey, ARGV[4])
end
return 'ok'
`)

// promoteScript moves due tasks from the delayed ZSET into the pending ZSET,
// recomputing the priority-then-FIFO score from the task hash.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local n = 0
for i, id in ipairs(ids) do
  if redis.call('ZREM', KEYS[1], id) == 1 then
    local tkey = ARGV[3] .. id
    local pv = tonumber(redis.call('HGET', tkey, 'priority_value') or '2')
    local ca = tonumber(redis.call('HGET', tkey, 'created_at') or '0')
    redis.call('ZADD', KEYS[2], (4 - pv) * 4398046511104 + ca, id)
    n = n + 1
  end
end
return n
`)

// reclaimScript claims one expired lease and marks the task timed_out. The
// sweep then runs the normal failure transition on it.
var reclaimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then return false end
local id = ids[1]
if redis.call('ZREM', KEYS[1], id) == 1 then
  redis.call('HSET', ARGV[2] .. id, 'status', 'timed_out')
  return id
end
return false
`)

// purgeScript removes expired entries from a retention ZSET along with their
// task hashes and de-dup ids. The hash is deleted only while its status is
// still the terminal state being purged; a stale index entry must never take
// a live task with it.
var purgeScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for i, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  local tkey = ARGV[2] .. id
  if redis.call('HGET', tkey, 'status') == ARGV[4] then
    redis.call('DEL', tkey)
    redis.call('SREM', KEYS[2], id)
  end
end
return #ids
`)

// Queue is the persistent, priority-ordered, lease-based task queue. Redis is
// the single source of truth for task state; every transition is an atomic
// server-side script so concurrent workers and sweepers cannot corrupt it.
type Queue struct {
	rdb redis.UniversalClient
	bus *Bus
	enc Encoder
	log Logger

	defTimeout      time.Duration
	defRetry        RetryPolicy
	retention       time.Duration
	failedRetention time.Duration
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithBus attaches a bus for task lifecycle events. Without it the queue is
// silent but fully functional.
func WithBus(b *Bus) QueueOption {
	return func(q *Queue) { q.bus = b }
}

// WithQueueLogger sets the logger.
func WithQueueLogger(l Logger) QueueOption {
	return func(q *Queue) { q.log = l }
}

// WithQueueEncoder overrides the payload encoder.
func WithQueueEncoder(e Encoder) QueueOption {
	return func(q *Queue) { q.enc = e }
}

// WithDefaultTimeout sets the lease timeout applied to tasks that do not
// carry their own.
func WithDefaultTimeout(d time.Duration) QueueOption {
	return func(q *Queue) { q.defTimeout = d }
}

// WithDefaultRetryPolicy sets the retry policy applied to tasks that do not
// carry their own.
func WithDefaultRetryPolicy(p RetryPolicy) QueueOption {
	return func(q *Queue) { q.defRetry = p }
}

// WithRetention sets how long completed and terminally failed tasks are kept
// before the janitor purges them. Zero keeps them forever.
func WithRetention(completed, failed time.Duration) QueueOption {
	return func(q *Queue) {
		q.retention = completed
		q.failedRetention = failed
	}
}

// NewQueue creates a task queue over the given Redis client.
func NewQueue(rdb redis.UniversalClient, opts ...QueueOption) *Queue {
	q := &Queue{
		rdb:             rdb,
		enc:             &JSONEncoder{},
		log:             noopLogger{},
		defTimeout:      5 * time.Minute,
		defRetry:        DefaultRetryPolicy,
		retention:       time.Hour,
		failedRetention: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Enqueue adds a new task to the queue. It is idempotent on the task ID:
// enqueuing an ID that already exists is a no-op returning the stored task,
// which tolerates at-least-once producers.
func (q *Queue) Enqueue(ctx context.Context, queue, taskType string, payload any, opts ...Option) (*Task, error) {
	data, err := q.enc.Encode(payload)
	if err != nil {
		return nil, err
	}

	cfg := &taskOptions{priority: PriorityNormal}
	for _, opt := range opts {
		opt(cfg)
	}
	id := cfg.id
	if id == "" {
		id = uuid.NewString()
	}

	k := ikeys.ForQueue(queue)
	added, err := q.rdb.SAdd(ctx, k.IDs, id).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	if added == 0 {
		existing, gerr := q.GetTask(ctx, queue, id)
		if gerr != nil && !errors.Is(gerr, ErrTaskNotFound) {
			return nil, gerr
		}
		return existing, nil
	}

	retry := q.defRetry
	if cfg.retry != nil {
		retry = *cfg.retry
	}
	timeout := cfg.timeout
	if timeout <= 0 {
		timeout = q.defTimeout
	}
	now := time.Now().UnixMilli()
	t := &Task{
		ID:            id,
		Type:          taskType,
		Queue:         queue,
		Status:        StatusPending,
		Priority:      cfg.priority,
		PriorityValue: cfg.priority.Value(),
		Payload:       data,
		Timeout:       timeout,
		Retry:         retry,
		Affinity:      cfg.affinity,
		CreatedAt:     now,
	}
	if cfg.delay > 0 {
		t.AvailableAt = now + cfg.delay.Milliseconds()
	}

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, ikeys.Task(queue, id), taskFields(t)...)
		// A cancelled predecessor leaves a TTL on the reused hash key.
		p.Persist(ctx, ikeys.Task(queue, id))
		if t.AvailableAt > 0 {
			p.ZAdd(ctx, k.Delayed, redis.Z{Score: float64(t.AvailableAt), Member: id})
		} else {
			p.ZAdd(ctx, k.Pending, redis.Z{Score: pendingScore(t.PriorityValue, now), Member: id})
		}
		return nil
	})
	if err != nil {
		// Roll back the id reservation so a later enqueue can succeed.
		_ = q.rdb.SRem(ctx, k.IDs, id).Err()
		return nil, storeErr(err)
	}

	q.publishEvent(ctx, TopicTaskCreated, &TaskEvent{
		TaskID: id, Queue: queue, Type: taskType, Status: StatusPending,
	})
	return t, nil
}

// Lease atomically claims up to limit ready tasks for the worker, ordered by
// priority descending then createdAt ascending. Claimed tasks must be
// resolved by ReportSuccess/ReportFailure before their timeout or the sweep
// reclaims them.
func (q *Queue) Lease(ctx context.Context, queue string, limit int, workerID string) ([]*Task, error) {
	if limit <= 0 {
		return nil, nil
	}
	k := ikeys.ForQueue(queue)
	now := time.Now().UnixMilli()
	res, err := leaseScript.Run(ctx, q.rdb, []string{k.Pending, k.Leased},
		limit, now, k.TaskPfx, q.defTimeout.Milliseconds(), workerID).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	rawIDs, ok := res.([]any)
	if !ok || len(rawIDs) == 0 {
		return nil, nil
	}
	out := make([]*Task, 0, len(rawIDs))
	for _, v := range rawIDs {
		id, _ := v.(string)
		t, gerr := q.GetTask(ctx, queue, id)
		if gerr != nil {
			q.log.Warnf("lease: cannot load claimed task id=%s queue=%s err=%v", id, queue, gerr)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Start transitions a leased task to running. Only the lease owner may start it.
func (q *Queue) Start(ctx context.Context, queue, taskID, workerID string) error {
	k := ikeys.ForQueue(queue)
	res, err := startScript.Run(ctx, q.rdb, []string{k.Leased},
		k.TaskPfx, taskID, workerID, time.Now().UnixMilli()).Text()
	if err != nil {
		return storeErr(err)
	}
	switch res {
	case "ok":
		return nil
	case "missing":
		return ErrTaskNotFound
	case "notowner":
		return fmt.Errorf("agentmesh: worker %s does not own lease on task %s", workerID, taskID)
	default:
		return fmt.Errorf("agentmesh: cannot start task %s in status %s", taskID, res)
	}
}

// ReportSuccess transitions a leased or running task to completed, records
// the result and emits task.completed.
func (q *Queue) ReportSuccess(ctx context.Context, queue, taskID string, result []byte) error {
	k := ikeys.ForQueue(queue)
	now := time.Now().UnixMilli()
	expiry := farFuture
	if q.retention > 0 {
		expiry = now + q.retention.Milliseconds()
	}
	res, err := successScript.Run(ctx, q.rdb, []string{k.Leased, k.Completed},
		k.TaskPfx, taskID, now, string(result), expiry).Text()
	if err != nil {
		return storeErr(err)
	}
	switch res {
	case "ok":
	case "missing":
		return ErrTaskNotFound
	default:
		return fmt.Errorf("agentmesh: cannot complete task %s in status %s", taskID, res)
	}

	t, gerr := q.GetTask(ctx, queue, taskID)
	ev := &TaskEvent{TaskID: taskID, Queue: queue, Status: StatusCompleted}
	if gerr == nil {
		ev.Type = t.Type
		ev.LeaseOwner = t.LeaseOwner
		ev.AttemptCount = t.AttemptCount
		ev.LatencyMs = latencyMs(t, now)
	}
	q.publishEvent(ctx, TopicTaskCompleted, ev)
	return nil
}

// ReportFailure applies a failure outcome: while retries remain the task
// returns to pending gated by an exponential-backoff availableAt; once the
// budget is spent it fails terminally, task.failed is emitted and
// ErrRetriesExhausted is returned so the reporter can tell the task died.
// The report itself was applied in either case.
func (q *Queue) ReportFailure(ctx context.Context, queue, taskID string, taskErr error) error {
	reason := ""
	if taskErr != nil {
		reason = taskErr.Error()
	}
	return q.failTask(ctx, queue, taskID, reason, false)
}

// DeadLetter fails a leased or running task terminally without consuming the
// remaining retry budget. Used for permanent faults such as a missing handler.
func (q *Queue) DeadLetter(ctx context.Context, queue, taskID, reason string) error {
	return q.failTask(ctx, queue, taskID, reason, true)
}

func (q *Queue) failTask(ctx context.Context, queue, taskID, reason string, terminal bool) error {
	k := ikeys.ForQueue(queue)
	for attempt := 0; attempt < 3; attempt++ {
		t, err := q.GetTask(ctx, queue, taskID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return nil // already settled; reports are at-least-once
		}

		now := time.Now().UnixMilli()
		mode := "dead"
		gate := farFuture
		if q.failedRetention > 0 {
			gate = now + q.failedRetention.Milliseconds()
		}
		if !terminal && t.AttemptCount < t.Retry.MaxRetries {
			mode = "retry"
			gate = now + backoffDelay(t.Retry, t.AttemptCount).Milliseconds()
		}

		res, err := failScript.Run(ctx, q.rdb, []string{k.Leased, k.Delayed, k.Failed},
			k.TaskPfx, taskID, now, reason, t.AttemptCount, mode, gate).Text()
		if err != nil {
			return storeErr(err)
		}
		switch res {
		case "retry":
			return nil
		case "dead":
			q.publishEvent(ctx, TopicTaskFailed, &TaskEvent{
				TaskID: taskID, Queue: queue, Type: t.Type, Status: StatusFailed,
				LeaseOwner: t.LeaseOwner, AttemptCount: t.AttemptCount + 1,
				LatencyMs: latencyMs(t, now), Error: reason,
			})
			if !terminal {
				return fmt.Errorf("%w: task %s after %d attempts: %s",
					ErrRetriesExhausted, taskID, t.AttemptCount+1, reason)
			}
			return nil
		case "missing":
			return ErrTaskNotFound
		case "conflict":
			continue // attempt count moved under us; reload and retry
		default:
			// Terminal or back in pending already; nothing left to do.
			return nil
		}
	}
	return fmt.Errorf("agentmesh: failure report for task %s kept conflicting", taskID)
}

// Cancel cancels a task that has not been leased yet. Leases are not
// cancellable; only the timeout sweep recovers them.
func (q *Queue) Cancel(ctx context.Context, queue, taskID string) error {
	k := ikeys.ForQueue(queue)
	res, err := cancelScript.Run(ctx, q.rdb, []string{k.Pending, k.Delayed, k.IDs},
		k.TaskPfx, taskID, time.Now().UnixMilli(), q.failedRetention.Milliseconds()).Text()
	if err != nil {
		return storeErr(err)
	}
	switch res {
	case "ok":
		return nil
	case "missing":
		return ErrTaskNotFound
	case string(StatusLeased), string(StatusRunning), string(StatusTimedOut):
		return ErrTaskActive
	default:
		return nil // already terminal
	}
}

// GetTask returns the latest committed state of a task, or ErrTaskNotFound.
func (q *Queue) GetTask(ctx context.Context, queue, taskID string) (*Task, error) {
	m, err := q.rdb.HGetAll(ctx, ikeys.Task(queue, taskID)).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	if len(m) == 0 {
		return nil, ErrTaskNotFound
	}
	return taskFromHash(m), nil
}

// GetPendingTasks returns all tasks with pending status: ready tasks in lease
// order followed by delayed tasks gated by availableAt.
func (q *Queue) GetPendingTasks(ctx context.Context, queue string) ([]*Task, error) {
	k := ikeys.ForQueue(queue)
	ready, err := q.rdb.ZRange(ctx, k.Pending, 0, -1).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	gated, err := q.rdb.ZRange(ctx, k.Delayed, 0, -1).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]*Task, 0, len(ready)+len(gated))
	for _, id := range append(ready, gated...) {
		t, gerr := q.GetTask(ctx, queue, id)
		if gerr != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// TaskFilter is a function used to filter tasks during ListTasks.
type TaskFilter func(*Task) bool

// ListTasks returns tasks in a given state for operational inspection.
// Pending includes delayed tasks; running is served from the lease index.
// Cancelled tasks are unindexed and cannot be listed.
func (q *Queue) ListTasks(ctx context.Context, queue string, status Status, filter TaskFilter) ([]*Task, error) {
	k := ikeys.ForQueue(queue)
	var key string
	switch status {
	case StatusPending:
		tasks, err := q.GetPendingTasks(ctx, queue)
		if err != nil {
			return nil, err
		}
		return filterTasks(tasks, filter), nil
	case StatusLeased, StatusRunning, StatusTimedOut:
		key = k.Leased
	case StatusCompleted:
		key = k.Completed
	case StatusFailed:
		key = k.Failed
	default:
		return nil, ErrUnknownStatus
	}
	ids, err := q.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]*Task, 0, len(ids))
	for _, id := range ids {
		t, gerr := q.GetTask(ctx, queue, id)
		if gerr != nil || t.Status != status {
			continue
		}
		out = append(out, t)
	}
	return filterTasks(out, filter), nil
}

func filterTasks(ts []*Task, filter TaskFilter) []*Task {
	if filter == nil {
		return ts
	}
	out := ts[:0]
	for _, t := range ts {
		if filter(t) {
			out = append(out, t)
		}
	}
	return out
}

// PromoteDue moves tasks whose availableAt has passed from the delayed gate
// into the ready pending set. Returns the number promoted.
func (q *Queue) PromoteDue(ctx context.Context, queue string, batch int) (int, error) {
	if batch <= 0 {
		batch = 256
	}
	k := ikeys.ForQueue(queue)
	n, err := promoteScript.Run(ctx, q.rdb, []string{k.Delayed, k.Pending},
		time.Now().UnixMilli(), batch, k.TaskPfx).Int()
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// SweepExpiredLeases reclaims leases held past their timeout. Each reclaimed
// task consumes one attempt as a retryable failure; tasks out of budget fail
// terminally. Returns the number of leases reclaimed.
func (q *Queue) SweepExpiredLeases(ctx context.Context, queue string) (int, error) {
	k := ikeys.ForQueue(queue)
	swept := 0
	for {
		res, err := reclaimScript.Run(ctx, q.rdb, []string{k.Leased},
			time.Now().UnixMilli(), k.TaskPfx).Result()
		if err == redis.Nil || res == nil || res == false {
			return swept, nil
		}
		if err != nil {
			return swept, storeErr(err)
		}
		id, _ := res.(string)
		if id == "" {
			return swept, nil
		}
		switch ferr := q.failTask(ctx, queue, id, "lease timeout", false); {
		case ferr == nil:
		case errors.Is(ferr, ErrRetriesExhausted):
			q.log.Warnf("sweep: task %s failed terminally on queue %s", id, queue)
		default:
			q.log.Errorf("sweep: transition failed id=%s queue=%s err=%v", id, queue, ferr)
		}
		swept++
	}
}

// PurgeExpired removes completed and failed tasks whose retention has lapsed,
// releasing their de-dup ids for reuse.
func (q *Queue) PurgeExpired(ctx context.Context, queue string) error {
	k := ikeys.ForQueue(queue)
	now := time.Now().UnixMilli()
	for key, status := range map[string]Status{
		k.Completed: StatusCompleted,
		k.Failed:    StatusFailed,
	} {
		if err := purgeScript.Run(ctx, q.rdb, []string{key, k.IDs},
			now, k.TaskPfx, 256, string(status)).Err(); err != nil && err != redis.Nil {
			return storeErr(err)
		}
	}
	return nil
}

// setProgress persists handler-reported progress on the task hash.
func (q *Queue) setProgress(ctx context.Context, queue, taskID string, progress int) {
	if progress <= 0 {
		return
	}
	if progress > 100 {
		progress = 100
	}
	if err := q.rdb.HSet(ctx, ikeys.Task(queue, taskID), "progress", progress).Err(); err != nil {
		q.log.Warnf("queue: cannot persist progress for task %s: %v", taskID, err)
	}
}

func (q *Queue) publishEvent(ctx context.Context, topic string, ev *TaskEvent) {
	if q.bus == nil {
		return
	}
	data, err := q.enc.Encode(ev)
	if err != nil {
		q.log.Warnf("queue: cannot encode %s event for task %s: %v", topic, ev.TaskID, err)
		return
	}
	if err := q.bus.Publish(ctx, NewMessage(topic, data)); err != nil {
		q.log.Warnf("queue: cannot publish %s for task %s: %v", topic, ev.TaskID, err)
	}
}

func latencyMs(t *Task, nowMs int64) int64 {
	start := t.StartedAt
	if start == 0 {
		start = t.LeasedAt
	}
	if start == 0 {
		return 0
	}
	return nowMs - start
}
