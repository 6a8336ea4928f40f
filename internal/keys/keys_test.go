package keys

import "testing"

func TestForQueue_HashTagged(t *testing.T) {
	k := ForQueue("default")
	want := map[string]string{
		"pending":   k.Pending,
		"delayed":   k.Delayed,
		"leased":    k.Leased,
		"completed": k.Completed,
		"failed":    k.Failed,
		"ids":       k.IDs,
	}
	for suffix, key := range want {
		if key != "agentmesh:{default}:"+suffix {
			t.Fatalf("key for %s = %q", suffix, key)
		}
	}
	if k.TaskPfx != "agentmesh:{default}:task:" {
		t.Fatalf("task prefix = %q", k.TaskPfx)
	}
	if Task("default", "abc") != k.TaskPfx+"abc" {
		t.Fatalf("Task key mismatch")
	}
}

func TestSingletonScopes(t *testing.T) {
	if Lock("res-x") != "agentmesh:{locks}:res-x" {
		t.Fatalf("lock key = %q", Lock("res-x"))
	}
	if LockMeta("res-x") != "agentmesh:{locks}:meta:res-x" {
		t.Fatalf("lock meta key = %q", LockMeta("res-x"))
	}
	if Checkpoints("wf1") != "agentmesh:{workflows}:checkpoints:wf1" {
		t.Fatalf("checkpoint key = %q", Checkpoints("wf1"))
	}
	if CheckpointSeq("wf1") != Checkpoints("wf1")+":seq" {
		t.Fatalf("checkpoint seq key = %q", CheckpointSeq("wf1"))
	}
	if FeedbackRecords("claude") != "agentmesh:{feedback}:records:claude" {
		t.Fatalf("feedback records key = %q", FeedbackRecords("claude"))
	}
	if FeedbackTargets("build") != "agentmesh:{feedback}:targets:build" {
		t.Fatalf("feedback targets key = %q", FeedbackTargets("build"))
	}
	if AuditLog() != "agentmesh:{bus}:audit" {
		t.Fatalf("audit key = %q", AuditLog())
	}
}
