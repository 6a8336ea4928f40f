package agentmesh

import (
	"context"
	"encoding/json"
	"time"

	ikeys "github.com/AgentMesh/agentmesh-go/internal/keys"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Checkpoint is an append-only snapshot of a workflow's progress. Snapshots
// are never updated in place; the current one is the latest appended.
type Checkpoint struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Phase      string          `json:"phase"`
	State      json.RawMessage `json:"state"`
	Seq        int64           `json:"seq"`
	CreatedAt  int64           `json:"created_at"`
}

// WorkflowExecution is the in-memory context reconstructed from the last
// checkpoint when a workflow resumes after a restart.
type WorkflowExecution struct {
	WorkflowID  string
	Phase       string
	State       json.RawMessage
	ResumedFrom *Checkpoint
}

// CheckpointManager persists workflow snapshots. Writes are committed to the
// store before the call returns, so a crash immediately after a successful
// Checkpoint never loses it.
type CheckpointManager struct {
	rdb  redis.UniversalClient
	enc  Encoder
	log  Logger
	keep int64
}

// CheckpointOption configures a CheckpointManager.
type CheckpointOption func(*CheckpointManager)

// WithCheckpointLogger sets the logger.
func WithCheckpointLogger(l Logger) CheckpointOption {
	return func(m *CheckpointManager) { m.log = l }
}

// KeepLast bounds how many snapshots are retained per workflow. Zero keeps
// all of them.
func KeepLast(n int) CheckpointOption {
	return func(m *CheckpointManager) { m.keep = int64(n) }
}

// NewCheckpointManager creates a checkpoint manager over the given Redis client.
func NewCheckpointManager(rdb redis.UniversalClient, opts ...CheckpointOption) *CheckpointManager {
	m := &CheckpointManager{rdb: rdb, enc: &JSONEncoder{}, log: noopLogger{}, keep: 50}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Checkpoint appends a new immutable snapshot for the workflow. A per-workflow
// counter allocates append order, so Last always observes the newest write
// even when wall clocks collide.
func (m *CheckpointManager) Checkpoint(ctx context.Context, workflowID, phase string, state any) (*Checkpoint, error) {
	raw, err := m.enc.Encode(state)
	if err != nil {
		return nil, err
	}
	seq, err := m.rdb.Incr(ctx, ikeys.CheckpointSeq(workflowID)).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	cp := &Checkpoint{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Phase:      phase,
		State:      raw,
		Seq:        seq,
		CreatedAt:  time.Now().UnixMilli(),
	}
	member, err := m.enc.Encode(cp)
	if err != nil {
		return nil, err
	}
	key := ikeys.Checkpoints(workflowID)
	_, err = m.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(seq), Member: string(member)})
		if m.keep > 0 {
			p.ZRemRangeByRank(ctx, key, 0, -(m.keep + 1))
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return cp, nil
}

// Last returns the most recent checkpoint for the workflow, or nil when none
// exists. Absence is not an error; callers must distinguish the two.
func (m *CheckpointManager) Last(ctx context.Context, workflowID string) (*Checkpoint, error) {
	vals, err := m.rdb.ZRange(ctx, ikeys.Checkpoints(workflowID), -1, -1).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	var cp Checkpoint
	if err := m.enc.Decode([]byte(vals[0]), &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// History returns up to limit checkpoints for the workflow, newest first,
// for forensic replay. Zero limit returns all retained snapshots.
func (m *CheckpointManager) History(ctx context.Context, workflowID string, limit int) ([]*Checkpoint, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	vals, err := m.rdb.ZRevRange(ctx, ikeys.Checkpoints(workflowID), 0, stop).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]*Checkpoint, 0, len(vals))
	for _, v := range vals {
		var cp Checkpoint
		if derr := m.enc.Decode([]byte(v), &cp); derr != nil {
			m.log.Warnf("checkpoint: dropping undecodable snapshot for %s: %v", workflowID, derr)
			continue
		}
		out = append(out, &cp)
	}
	return out, nil
}

// Restore reconstructs an execution context from the last checkpoint, or
// returns nil when the workflow has never checkpointed.
func (m *CheckpointManager) Restore(ctx context.Context, workflowID string) (*WorkflowExecution, error) {
	cp, err := m.Last(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}
	return &WorkflowExecution{
		WorkflowID:  workflowID,
		Phase:       cp.Phase,
		State:       cp.State,
		ResumedFrom: cp,
	}, nil
}
