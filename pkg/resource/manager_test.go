package resource

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func formatter(id int) string { return fmt.Sprintf("task_%d", id) }

// fakeRAM simulates spec §8 scenario 4: a RAM probe reporting a fixed
// total free, with each running worker using a fixed amount. It models
// usage per-pid as "whatever was reserved for that task", the same way a
// real probe would settle once the process's RSS caught up.
type fakeRAM struct {
	mu      sync.Mutex
	total   float64
	usedBy  map[int]float64 // pid -> usage
}

func (f *fakeRAM) Available() (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	used := 0.0
	for _, v := range f.usedBy {
		used += v
	}
	return map[string]float64{"total": f.total - used}, nil
}

func (f *fakeRAM) usagePerPID(pid int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usedBy[pid], nil
}

func (f *fakeRAM) setUsage(pid int, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usedBy[pid] = v
}

func TestAdmitDefersWhenRAMInsufficient(t *testing.T) {
	// 100MB total free, each task wants 60MB — at most one can run.
	ram := &fakeRAM{total: 100, usedBy: map[int]float64{}}
	terminated := &atomic.Bool{}
	m := New(Config{RefreshPatience: 50}, formatter, terminated)
	m.Register(Kind{
		Name:        "RAM",
		UsagePerPID: ram.usagePerPID,
		Available:   ram.Available,
		Bootstrap:   60,
	})
	m.Refresh()

	d0 := m.Admit(0)
	if !d0.Create {
		t.Fatalf("first admission should succeed on an empty pool: %+v", d0)
	}
	m.RecordStart(100, 0, "task_0", d0.DeviceAssignments)
	ram.setUsage(100, 60)
	m.Refresh()

	d1 := m.Admit(1)
	if d1.Create {
		t.Fatalf("second admission should defer: 100MB free - 60MB reserved < 60MB estimate")
	}
	if !d1.Defer {
		t.Fatalf("expected Defer, got %+v", d1)
	}

	name, ok := m.Reap(100)
	if !ok || name != "task_0" {
		t.Fatalf("Reap(100) = %q, %v", name, ok)
	}
	ram.setUsage(100, 0)
	m.Refresh()

	d2 := m.Admit(1)
	if !d2.Create {
		t.Fatalf("admission should succeed once the first worker's reservation is released: %+v", d2)
	}
}

// fakeGPU simulates spec §8 scenario 5: two devices, each task wanting a
// fixed amount of VRAM, no per-PID usage callback (UsagePerPIDs only,
// since GPU is the multi-tenant-accounting kind per spec §3).
type fakeGPU struct {
	free map[string]float64
}

func (g *fakeGPU) Available() (map[string]float64, error) {
	out := make(map[string]float64, len(g.free))
	for k, v := range g.free {
		out[k] = v
	}
	return out, nil
}

func (g *fakeGPU) UsagePerPIDs(pids []int) (map[int]float64, error) {
	return map[int]float64{}, nil
}

func TestAdmitPicksBestGPUUnitAndRespectsAllowlist(t *testing.T) {
	gpu := &fakeGPU{free: map[string]float64{"0": 1000, "1": 4000, "2": 9000}}
	terminated := &atomic.Bool{}
	m := New(Config{RefreshPatience: 50}, formatter, terminated)
	m.Register(Kind{
		Name:         "GPU",
		UsagePerPIDs: gpu.UsagePerPIDs,
		Available:    gpu.Available,
		Bootstrap:    500,
		MultiUnit:    true,
		Allowlist:    []string{"0", "1"}, // device 2 excluded despite most free memory
	})
	m.Refresh()

	d := m.Admit(0)
	if !d.Create {
		t.Fatalf("admission should succeed: %+v", d)
	}
	if got := d.DeviceAssignments["GPU"]; got != "1" {
		t.Fatalf("expected device 1 (most free among allowlist), got %q", got)
	}
}

func TestAdmitReturnsSkipAfterRefreshPatienceExceeded(t *testing.T) {
	ram := &fakeRAM{total: 10, usedBy: map[int]float64{}}
	terminated := &atomic.Bool{}
	m := New(Config{RefreshPatience: 3}, formatter, terminated)
	m.Register(Kind{
		Name:        "RAM",
		UsagePerPID: ram.usagePerPID,
		Available:   ram.Available,
		Bootstrap:   1000, // always exceeds the 10-unit pool
	})
	m.Refresh()

	var last Decision
	for i := 0; i < 3; i++ {
		last = m.Admit(0)
		if last.Skip {
			t.Fatalf("Skip fired too early on attempt %d", i)
		}
		if !last.Defer {
			t.Fatalf("expected Defer on attempt %d, got %+v", i, last)
		}
	}
	last = m.Admit(0)
	if !last.Skip {
		t.Fatalf("expected Skip once refresh_patience is exceeded, got %+v", last)
	}
}

func TestAdmitReturnsNoCreateOnceTerminated(t *testing.T) {
	terminated := &atomic.Bool{}
	m := New(Config{}, formatter, terminated)
	m.Register(Kind{Name: "RAM", Available: func() (map[string]float64, error) {
		return map[string]float64{"total": 1e9}, nil
	}, Bootstrap: 1})
	m.Refresh()

	terminated.Store(true)
	d := m.Admit(0)
	if d.Create || d.Defer || d.Skip {
		t.Fatalf("admission after termination should be all-false, got %+v", d)
	}
}
