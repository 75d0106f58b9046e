package resource

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Decision is the Resource Manager's answer to an admission request (spec
// §4.B).
type Decision struct {
	Create            bool
	Skip              bool // refresh_patience exceeded: requeue to tail
	Defer             bool // not enough headroom yet: retry later
	DeviceAssignments map[string]string
	TaskName          string
}

type kindState struct {
	kind                Kind
	headroom            Headroom
	estimate            float64
	estimateInitialized bool
}

// Config is the resource-manager configuration table of spec §4.B.
type Config struct {
	RefreshPatience int
}

// Manager implements spec §4.B end to end.
type Manager struct {
	cfg       Config
	formatter func(taskID int) string

	mu       sync.Mutex
	kinds    map[string]*kindState
	order    []string // registration order, for deterministic admission
	workers  map[int]*Record
	patience map[int]int
	pending  map[int]map[string]float64 // reservation snapshot: Admit -> RecordStart

	terminated *atomic.Bool
}

// New creates a Manager. terminated is the shared termination flag (spec §3)
// the Supervisor Loop and Worker Adapter also observe.
func New(cfg Config, formatter func(int) string, terminated *atomic.Bool) *Manager {
	if cfg.RefreshPatience <= 0 {
		cfg.RefreshPatience = 10
	}
	return &Manager{
		cfg:        cfg,
		formatter:  formatter,
		kinds:      make(map[string]*kindState),
		workers:    make(map[int]*Record),
		patience:   make(map[int]int),
		pending:    make(map[int]map[string]float64),
		terminated: terminated,
	}
}

// Register adds a resource kind. Call before the first Refresh/Admit.
func (m *Manager) Register(k Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds[k.Name] = &kindState{
		kind:     k,
		headroom: Headroom{Available: map[string]float64{}, Reserved: map[string]float64{}},
	}
	m.order = append(m.order, k.Name)
}

// RunningPIDs returns the pids of every worker currently tracked.
func (m *Manager) RunningPIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pids := make([]int, 0, len(m.workers))
	for pid := range m.workers {
		pids = append(pids, pid)
	}
	return pids
}

// Refresh re-reads probes and recomputes each kind's estimate from the
// readings of currently running workers, per spec §4.B "Refresh".
func (m *Manager) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()

	pids := make([]int, 0, len(m.workers))
	for pid := range m.workers {
		pids = append(pids, pid)
	}

	for _, name := range m.order {
		ks := m.kinds[name]

		if avail, err := ks.kind.Available(); err == nil {
			ks.headroom.Available = avail
		} // probe failure: keep the prior reading (spec §4.B failure modes)

		var readings map[int]float64
		switch {
		case ks.kind.UsagePerPIDs != nil:
			if r, err := ks.kind.UsagePerPIDs(pids); err == nil {
				readings = r
			}
		case ks.kind.UsagePerPID != nil:
			readings = make(map[int]float64, len(pids))
			for _, pid := range pids {
				if u, err := ks.kind.UsagePerPID(pid); err == nil {
					readings[pid] = u
				}
			}
		}

		if len(readings) > 0 {
			max := 0.0
			for _, v := range readings {
				if v > max {
					max = v
				}
			}
			ks.estimate = max
			ks.estimateInitialized = true
		}
		if !ks.estimateInitialized {
			ks.estimate = ks.kind.Bootstrap
		}

		log.Printf("resource: refreshed kind=%s estimate=%.0f inferred_free=%v",
			name, ks.estimate, inferredFree(ks.headroom))
	}
}

func inferredFree(h Headroom) map[string]float64 {
	out := make(map[string]float64, len(h.Available))
	for unit, avail := range h.Available {
		out[unit] = avail - h.Reserved[unit]
	}
	return out
}

// Admit implements spec §4.B's admission algorithm for a single task id.
func (m *Manager) Admit(taskID int) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.terminated.Load() {
		return Decision{Create: false}
	}

	assignments := make(map[string]string, len(m.order))
	for _, name := range m.order {
		ks := m.kinds[name]
		estimate := ks.estimate

		if ks.kind.MultiUnit {
			unit, ok := pickUnit(ks.headroom.Available, ks.headroom.Reserved, ks.kind.Allowlist)
			if !ok || ks.headroom.Available[unit]-ks.headroom.Reserved[unit] < estimate {
				return m.deferOrSkipLocked(taskID)
			}
			assignments[name] = unit
		} else {
			free := ks.headroom.Available["total"] - ks.headroom.Reserved["total"]
			if free < estimate {
				return m.deferOrSkipLocked(taskID)
			}
			assignments[name] = "total"
		}
	}

	usage := make(map[string]float64, len(assignments))
	for name, unit := range assignments {
		ks := m.kinds[name]
		ks.headroom.Reserved[unit] += ks.estimate
		usage[name] = ks.estimate
	}
	delete(m.patience, taskID)

	taskName := m.formatter(taskID)
	m.pending[taskID] = usage // stashed until RecordStart learns the child's pid
	return Decision{Create: true, DeviceAssignments: assignments, TaskName: taskName}
}

func (m *Manager) deferOrSkipLocked(taskID int) Decision {
	m.patience[taskID]++
	if m.patience[taskID] > m.cfg.RefreshPatience {
		delete(m.patience, taskID)
		return Decision{Skip: true}
	}
	return Decision{Defer: true}
}

// RecordStart associates a spawned child's pid with the task it's running,
// storing the reservation snapshot so Reap can release exactly what was
// reserved.
func (m *Manager) RecordStart(pid, taskID int, taskName string, assignments map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	usage := m.pending[taskID]
	delete(m.pending, taskID)
	m.workers[pid] = &Record{
		PID:               pid,
		TaskID:            taskID,
		TaskName:          taskName,
		DeviceAssignments: assignments,
		InferredUsage:     usage,
		StartedAt:         time.Now(),
	}
}

// Lookup returns the Worker Record for a live pid, for callers (the
// dashboard snapshot) that want its device assignments without modifying
// reservations the way Reap does.
func (m *Manager) Lookup(pid int) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.workers[pid]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// ReservedSnapshot returns the current RAM reservation total and the
// per-device GPU reservation map, for pkg/metrics and pkg/dashboard.
func (m *Manager) ReservedSnapshot() (ram float64, gpu map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gpu = make(map[string]float64)
	for name, ks := range m.kinds {
		if name == "RAM" {
			ram = ks.headroom.Reserved["total"]
			continue
		}
		for unit, reserved := range ks.headroom.Reserved {
			gpu[unit] = reserved
		}
	}
	return ram, gpu
}

// Reap releases the reservations held by pid's worker and forgets it,
// returning the task name so the caller can close its per-task logger.
func (m *Manager) Reap(pid int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.workers[pid]
	if !ok {
		return "", false
	}
	for name, unit := range rec.DeviceAssignments {
		ks, ok := m.kinds[name]
		if !ok {
			continue
		}
		ks.headroom.Reserved[unit] -= rec.InferredUsage[name]
		if ks.headroom.Reserved[unit] < 0 {
			ks.headroom.Reserved[unit] = 0
		}
	}
	delete(m.workers, pid)
	return rec.TaskName, true
}
