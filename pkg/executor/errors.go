package executor

import "fmt"

// ResourceUnavailable means setup could not register a required kind —
// e.g. UseCUDA without a usable GPU enumeration (spec §7).
type ResourceUnavailable struct {
	Reason string
}

func (e *ResourceUnavailable) Error() string {
	return fmt.Sprintf("resource unavailable: %s", e.Reason)
}

// AdmissionExhausted means refresh_patience was exceeded for every pending
// task with no headroom progress (spec §4.B step 4, §7).
type AdmissionExhausted struct {
	Pending int
}

func (e *AdmissionExhausted) Error() string {
	return fmt.Sprintf("admission exhausted: %d task(s) could not be satisfied", e.Pending)
}

// WorkerFailure is recorded once per failing task, one entry in
// Batch.Exceptions (spec §7).
type WorkerFailure struct {
	TaskName string
	Cause    string
}

func (e *WorkerFailure) Error() string {
	return fmt.Sprintf("worker %s failed: %s", e.TaskName, e.Cause)
}

// WorkerTerminate records that a child returned the terminate sentinel
// (spec §4.C step 4, §7).
type WorkerTerminate struct {
	TaskName string
}

func (e *WorkerTerminate) Error() string {
	return fmt.Sprintf("worker %s requested termination", e.TaskName)
}

// Interrupted marks an operator interrupt of the parent (spec §4.D
// terminating, §7).
type Interrupted struct{}

func (e *Interrupted) Error() string { return "interrupted" }

// BatchFailed is the umbrella error surfaced at the end of drain when
// Batch.Exceptions is non-empty or termination was set (spec §7). Cause,
// when set, is the specific reason termination was forced — an
// *Interrupted or *WorkerTerminate — so callers can errors.As through the
// umbrella to the precise kind spec §7 names.
type BatchFailed struct {
	Batch *Batch
	Cause error
}

func (e *BatchFailed) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("batch failed: %v (%d exception(s), terminated=%v)",
			e.Cause, len(e.Batch.Exceptions), e.Batch.Meta.Terminated)
	}
	return fmt.Sprintf("batch failed: %d exception(s), terminated=%v",
		len(e.Batch.Exceptions), e.Batch.Meta.Terminated)
}

func (e *BatchFailed) Unwrap() error { return e.Cause }
