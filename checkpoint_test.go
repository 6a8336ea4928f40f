package agentmesh

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckpoint_LastReturnsNewest(t *testing.T) {
	_, rdb := newMini(t)
	m := NewCheckpointManager(rdb)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		cp, err := m.Checkpoint(ctx, "wf-1", fmt.Sprintf("phase-%d", i), map[string]int{"step": i})
		require.NoError(t, err)
		require.Equal(t, int64(i), cp.Seq)
		require.NotEmpty(t, cp.ID)
	}

	last, err := m.Last(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, "phase-5", last.Phase)
	require.Equal(t, int64(5), last.Seq)
	require.JSONEq(t, `{"step":5}`, string(last.State))
}

func TestCheckpoint_AbsenceIsNotError(t *testing.T) {
	_, rdb := newMini(t)
	m := NewCheckpointManager(rdb)
	ctx := context.Background()

	last, err := m.Last(ctx, "never-checkpointed")
	require.NoError(t, err)
	require.Nil(t, last)

	exec, err := m.Restore(ctx, "never-checkpointed")
	require.NoError(t, err)
	require.Nil(t, exec)
}

func TestCheckpoint_KeepLastRetention(t *testing.T) {
	_, rdb := newMini(t)
	m := NewCheckpointManager(rdb, KeepLast(3))
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		_, err := m.Checkpoint(ctx, "wf-ret", fmt.Sprintf("phase-%d", i), nil)
		require.NoError(t, err)
	}

	hist, err := m.History(ctx, "wf-ret", 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	// Newest first, oldest snapshots trimmed.
	require.Equal(t, int64(10), hist[0].Seq)
	require.Equal(t, int64(8), hist[2].Seq)

	last, err := m.Last(ctx, "wf-ret")
	require.NoError(t, err)
	require.Equal(t, int64(10), last.Seq)
}

func TestCheckpoint_HistoryLimit(t *testing.T) {
	_, rdb := newMini(t)
	m := NewCheckpointManager(rdb)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := m.Checkpoint(ctx, "wf-h", "run", i)
		require.NoError(t, err)
	}
	hist, err := m.History(ctx, "wf-h", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, int64(5), hist[0].Seq)
	require.Equal(t, int64(4), hist[1].Seq)
}

func TestCheckpoint_WorkflowsAreIsolated(t *testing.T) {
	_, rdb := newMini(t)
	m := NewCheckpointManager(rdb)
	ctx := context.Background()

	_, err := m.Checkpoint(ctx, "wf-a", "a1", nil)
	require.NoError(t, err)
	_, err = m.Checkpoint(ctx, "wf-b", "b1", nil)
	require.NoError(t, err)

	last, err := m.Last(ctx, "wf-a")
	require.NoError(t, err)
	require.Equal(t, "a1", last.Phase)
	require.Equal(t, "wf-a", last.WorkflowID)
}

func TestCheckpoint_Restore(t *testing.T) {
	_, rdb := newMini(t)
	m := NewCheckpointManager(rdb)
	ctx := context.Background()

	_, err := m.Checkpoint(ctx, "wf-r", "collect", map[string]any{"cursor": "p2"})
	require.NoError(t, err)
	_, err = m.Checkpoint(ctx, "wf-r", "aggregate", map[string]any{"cursor": "p7"})
	require.NoError(t, err)

	exec, err := m.Restore(ctx, "wf-r")
	require.NoError(t, err)
	require.NotNil(t, exec)
	require.Equal(t, "wf-r", exec.WorkflowID)
	require.Equal(t, "aggregate", exec.Phase)
	require.JSONEq(t, `{"cursor":"p7"}`, string(exec.State))
	require.NotNil(t, exec.ResumedFrom)
	require.Equal(t, int64(2), exec.ResumedFrom.Seq)
}
