package task

import "fmt"

// Outcome is what running a Variant produced (spec §4.C steps 3-5).
type Outcome struct {
	Value     any
	Terminate bool
	Err       error
}

// Run executes v against args, injecting cuda/log per its declared
// capabilities, and classifies the result per spec §4.C:
//   - a returned map containing a truthy "terminate" key is worker-initiated
//     termination (step 4);
//   - a returned error is an uncaught failure (step 5);
//   - anything else is a plain result.
//
// Run never panics outward: a panicking task function is recovered and
// reported as an error, since an unrecovered panic in the child process
// would otherwise look like an ordinary crash with no exception record.
func Run(v Variant, args []any, cuda *int, log LogMethod) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Errorf("task panicked: %v", r)}
		}
	}()

	if log != nil {
		log("task started", LevelInfo)
	}
	if cuda == nil && v.WantsCUDA() {
		// Function wants a device but none was assigned — still runs with -1.
	}
	if !v.WantsCUDA() && cuda != nil && log != nil {
		log("task function doesn't want cuda but cuda is used", LevelWarn)
	}

	value, err := v.Invoke(args, cuda, log)
	if err != nil {
		return Outcome{Err: err}
	}

	if m, ok := value.(map[string]any); ok {
		if t, ok := m["terminate"]; ok && truthy(t) {
			if log != nil {
				log("task terminated", LevelError)
			}
			return Outcome{Value: value, Terminate: true}
		}
	}
	if log != nil {
		log("task finished", LevelInfo)
	}
	return Outcome{Value: value}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	default:
		return true
	}
}
