// Package store implements the Shared Result Store (spec §4.E): a
// concurrency-safe mapping keyed by task name, plus the batch metadata
// record and the exceptions submap, exposed to worker processes over a
// gRPC service (rpc.go) bound to a Unix domain socket (service.go).
package store

import (
	"sync"
	"sync/atomic"
)

// ErrorRecord is what a failing task writes instead of a result (spec §3
// "Shared Result Store").
type ErrorRecord struct {
	Message string
	Kind    string // "error" | "terminate" | "interrupted"
}

// Meta is the batch metadata record (the data model's "__meta__" entry),
// held as a typed field of Store rather than under a string key.
type Meta struct {
	NJobs      int
	NTasks     int
	Terminated bool
}

// Store is the in-memory backing map for one batch. One Store is created
// per Execute call and discarded at drain.
type Store struct {
	mu         sync.RWMutex
	results    map[string]any
	exceptions map[string]ErrorRecord
	meta       Meta
	terminated atomic.Bool // mirrors meta.Terminated for lock-free reads

	// onResult, if set, is called after every Put/PutError — the
	// executor wires pkg/metrics counters through it so task
	// completion/failure counts stay accurate without the parent
	// polling the map on every tick.
	onResult func(taskName string, failed bool)
}

// New creates a Store for a batch of njobs workers running ntasks tasks.
func New(njobs, ntasks int) *Store {
	return &Store{
		results:    make(map[string]any, ntasks),
		exceptions: make(map[string]ErrorRecord),
		meta:       Meta{NJobs: njobs, NTasks: ntasks},
	}
}

// OnResult registers a callback invoked after every Put/PutError.
func (s *Store) OnResult(fn func(taskName string, failed bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// Put records a successful result for taskName.
func (s *Store) Put(taskName string, value any) {
	s.mu.Lock()
	s.results[taskName] = value
	cb := s.onResult
	s.mu.Unlock()
	if cb != nil {
		cb(taskName, false)
	}
}

// PutError records a failing task's error and updates the exceptions
// submap, per spec §3's "__exceptions__ is additionally updated" rule.
func (s *Store) PutError(taskName string, rec ErrorRecord) {
	s.mu.Lock()
	s.exceptions[taskName] = rec
	cb := s.onResult
	s.mu.Unlock()
	if cb != nil {
		cb(taskName, true)
	}
}

// Get returns the recorded result for taskName, if any.
func (s *Store) Get(taskName string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.results[taskName]
	return v, ok
}

// MarkTerminated sets the monotonic termination flag (spec §3 "Termination
// Flag"). Once true, it is never reset within the batch's lifetime.
func (s *Store) MarkTerminated() {
	s.terminated.Store(true)
	s.mu.Lock()
	s.meta.Terminated = true
	s.mu.Unlock()
}

// Terminated reports the termination flag without taking the map lock —
// the hot path workers poll before doing work (spec §3 "cooperative
// cancellation").
func (s *Store) Terminated() bool {
	return s.terminated.Load()
}

// Meta returns a copy of the current metadata record.
func (s *Store) Meta() Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// Snapshot copies the store into the plain in-memory mapping the
// *drained* state hands back to the caller (spec §4.D).
type Snapshot struct {
	Results    map[string]any
	Exceptions map[string]ErrorRecord
	Meta       Meta
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		Results:    make(map[string]any, len(s.results)),
		Exceptions: make(map[string]ErrorRecord, len(s.exceptions)),
		Meta:       s.meta,
	}
	for k, v := range s.results {
		out.Results[k] = v
	}
	for k, v := range s.exceptions {
		out.Exceptions[k] = v
	}
	return out
}
