package executor

import "os/exec"

// slot is one of the J = min(num_jobs, n_tasks) concurrent worker
// positions spec §4.D names. An empty slot has taskID -1.
type slot struct {
	taskID int
	cmd    *exec.Cmd
	pid    int
	done   chan struct{} // closed once a background goroutine has Wait()'d the child
}

func newSlots(j int) []slot {
	s := make([]slot, j)
	for i := range s {
		s[i].taskID = -1
	}
	return s
}

func (s *slot) empty() bool { return s.taskID < 0 }

// finished reports whether the slot's child has exited. An already-empty
// slot counts as finished (spec §4.D running step 1: "a slot is finished
// if its worker is not alive, or if the slot is empty").
func (s *slot) finished() bool {
	if s.empty() {
		return true
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *slot) clear() {
	s.taskID = -1
	s.cmd = nil
	s.pid = 0
	s.done = nil
}
