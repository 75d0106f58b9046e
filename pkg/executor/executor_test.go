package executor

import (
	"errors"
	"testing"

	"github.com/parexec/core/pkg/config"
	"github.com/parexec/core/pkg/task"
)

// These tests exercise the fallback (library-pool) path, which runs
// entirely in-process via goroutines. The process-spawning path
// (Execute without Options.Fallback) launches the test binary itself
// re-exec'd as a worker and is covered by pkg/task, pkg/store and
// pkg/resource's own unit tests instead — see DESIGN.md.

func init() {
	task.Register("executor-test-identity", task.Plain(func(args ...any) (any, error) {
		return args[0], nil
	}))
	task.Register("executor-test-fail-on-two", task.Plain(func(args ...any) (any, error) {
		x := args[0].(int)
		if x == 2 {
			return nil, errors.New("boom")
		}
		return x, nil
	}))
}

func TestExecuteFallbackTrivialMap(t *testing.T) {
	argsList := [][]any{{0, 1, 2, 3, 4}}
	opts := config.Options{NumJobs: 2, Fallback: true}

	batch, err := Execute("executor-test-identity", argsList, opts)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(batch.Exceptions) != 0 {
		t.Fatalf("unexpected exceptions: %v", batch.Exceptions)
	}
	want := map[string]any{
		"task_0": 0, "task_1": 1, "task_2": 2, "task_3": 3, "task_4": 4,
	}
	for name, v := range want {
		if batch.Results[name] != v {
			t.Errorf("Results[%s] = %v, want %v", name, batch.Results[name], v)
		}
	}
	if batch.Meta.Terminated {
		t.Errorf("Meta.Terminated = true, want false")
	}
}

func TestExecuteFallbackSingleFailure(t *testing.T) {
	argsList := [][]any{{0, 1, 2, 3}}
	opts := config.Options{NumJobs: 2, Fallback: true}

	batch, err := Execute("executor-test-fail-on-two", argsList, opts)
	if err == nil {
		t.Fatalf("expected a BatchFailed error")
	}
	var bf *BatchFailed
	if !errors.As(err, &bf) {
		t.Fatalf("error is %T, want *BatchFailed", err)
	}
	if _, ok := batch.Exceptions["task_2"]; !ok {
		t.Fatalf("exceptions missing task_2: %v", batch.Exceptions)
	}
	for _, name := range []string{"task_0", "task_1", "task_3"} {
		if _, ok := batch.Results[name]; !ok {
			t.Errorf("Results missing %s", name)
		}
	}
}

func TestExecuteFallbackEmptyArgs(t *testing.T) {
	batch, err := Execute("executor-test-identity", nil, config.Options{Fallback: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(batch.Results) != 0 || len(batch.Exceptions) != 0 {
		t.Fatalf("expected empty batch, got %+v", batch)
	}
}

func TestSlotLifecycle(t *testing.T) {
	slots := newSlots(3)
	for i := range slots {
		if !slots[i].empty() {
			t.Fatalf("slot %d should start empty", i)
		}
	}
	slots[0].taskID = 5
	if slots[0].empty() {
		t.Fatalf("slot with taskID set should not be empty")
	}
	slots[0].clear()
	if !slots[0].empty() {
		t.Fatalf("clear() should reset to empty")
	}
}
