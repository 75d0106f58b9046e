package task

import (
	"errors"
	"testing"
)

func TestRunPlainIdentity(t *testing.T) {
	v := Plain(func(args ...any) (any, error) { return args[0], nil })
	out := Run(v, []any{42}, nil, nil)
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Value != 42 {
		t.Fatalf("Value = %v, want 42", out.Value)
	}
	if out.Terminate {
		t.Fatalf("Terminate should be false")
	}
}

func TestRunWithCudaInjectsAssignedDevice(t *testing.T) {
	var seen int
	v := WithCuda(func(cuda int, args ...any) (any, error) {
		seen = cuda
		return nil, nil
	})
	cuda := 3
	Run(v, nil, &cuda, nil)
	if seen != 3 {
		t.Fatalf("cuda capability = %d, want 3", seen)
	}
}

func TestRunWithCudaDefaultsToMinusOneWhenUnassigned(t *testing.T) {
	var seen int
	v := WithCuda(func(cuda int, args ...any) (any, error) {
		seen = cuda
		return nil, nil
	})
	Run(v, nil, nil, nil)
	if seen != -1 {
		t.Fatalf("cuda capability = %d, want -1 for unassigned device", seen)
	}
}

func TestRunDetectsTerminateSentinel(t *testing.T) {
	v := Plain(func(args ...any) (any, error) {
		return map[string]any{"terminate": true, "value": args[0]}, nil
	})
	out := Run(v, []any{1}, nil, nil)
	if !out.Terminate {
		t.Fatalf("expected Terminate=true for a truthy terminate key")
	}
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
}

func TestRunIgnoresFalsyTerminateKey(t *testing.T) {
	v := Plain(func(args ...any) (any, error) {
		return map[string]any{"terminate": false, "value": 1}, nil
	})
	out := Run(v, nil, nil, nil)
	if out.Terminate {
		t.Fatalf("a falsy terminate key must not trigger termination")
	}
}

func TestRunCapturesUncaughtError(t *testing.T) {
	v := Plain(func(args ...any) (any, error) {
		return nil, errors.New("boom")
	})
	out := Run(v, nil, nil, nil)
	if out.Err == nil || out.Err.Error() != "boom" {
		t.Fatalf("Err = %v, want boom", out.Err)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	v := Plain(func(args ...any) (any, error) {
		panic("unexpected crash")
	})
	out := Run(v, nil, nil, nil)
	if out.Err == nil {
		t.Fatalf("expected a recovered panic to surface as an error")
	}
}

func TestRunLogsWarningWhenCudaUnwanted(t *testing.T) {
	var lines []string
	logFn := func(msg string, level Level) { lines = append(lines, msg) }
	v := Plain(func(args ...any) (any, error) { return nil, nil })
	cuda := 0
	Run(v, nil, &cuda, logFn)

	found := false
	for _, l := range lines {
		if l == "task function doesn't want cuda but cuda is used" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a warning line when cuda is assigned but unwanted, got %v", lines)
	}
}

func TestRunInProcessCollectsInArgOrder(t *testing.T) {
	v := Plain(func(args ...any) (any, error) { return args[0], nil })
	argsList := [][]any{{0}, {1}, {2}, {3}}
	out := RunInProcess(v, argsList, 2)
	for i, o := range out {
		if o.Err != nil {
			t.Fatalf("index %d: unexpected error %v", i, o.Err)
		}
		if o.Value != i {
			t.Fatalf("index %d: Value = %v, want %d", i, o.Value, i)
		}
	}
}
