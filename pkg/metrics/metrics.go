// Package metrics exposes executor-level gauges and counters in
// Prometheus text exposition format, adapted from the teacher's
// pkg/worker/metrics.go ServePrometheus — hand-rolled fmt.Fprintf lines
// against a fixed set of names rather than a client-library registry,
// kept that way since the teacher never imports prometheus/client_golang
// either.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
)

// Collector tracks one batch's resource and task counters. One Collector
// is created per Execute call.
type Collector struct {
	slotsInUse     atomic.Int64
	slotsTotal     atomic.Int64
	tasksAdmitted  atomic.Int64
	tasksDeferred  atomic.Int64
	tasksCompleted atomic.Int64
	tasksFailed    atomic.Int64

	mu          sync.RWMutex
	reservedRAM float64
	reservedGPU map[string]float64 // device id -> reserved bytes
}

func New(slotsTotal int) *Collector {
	c := &Collector{reservedGPU: make(map[string]float64)}
	c.slotsTotal.Store(int64(slotsTotal))
	return c
}

func (c *Collector) SetSlotsInUse(n int) { c.slotsInUse.Store(int64(n)) }
func (c *Collector) IncAdmitted()        { c.tasksAdmitted.Add(1) }
func (c *Collector) IncDeferred()        { c.tasksDeferred.Add(1) }
func (c *Collector) IncCompleted()       { c.tasksCompleted.Add(1) }
func (c *Collector) IncFailed()          { c.tasksFailed.Add(1) }

// SetReservedRAM records the resource manager's current RAM reservation,
// in bytes.
func (c *Collector) SetReservedRAM(bytes float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reservedRAM = bytes
}

// SetReservedGPU records per-device GPU reservation, in bytes.
func (c *Collector) SetReservedGPU(device string, bytes float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reservedGPU[device] = bytes
}

// ServeHTTP writes the current counters in Prometheus text exposition
// format, mirroring the teacher's ServePrometheus line-by-line style.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	reservedRAM := c.reservedRAM
	gpu := make(map[string]float64, len(c.reservedGPU))
	for k, v := range c.reservedGPU {
		gpu[k] = v
	}
	c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP parexec_slots_in_use Slots currently holding a live worker\n")
	fmt.Fprintf(w, "# TYPE parexec_slots_in_use gauge\n")
	fmt.Fprintf(w, "parexec_slots_in_use %d\n", c.slotsInUse.Load())
	fmt.Fprintf(w, "# HELP parexec_slots_total Configured slot count (J)\n")
	fmt.Fprintf(w, "# TYPE parexec_slots_total gauge\n")
	fmt.Fprintf(w, "parexec_slots_total %d\n", c.slotsTotal.Load())
	fmt.Fprintf(w, "# HELP parexec_tasks_admitted_total Tasks admitted so far\n")
	fmt.Fprintf(w, "# TYPE parexec_tasks_admitted_total counter\n")
	fmt.Fprintf(w, "parexec_tasks_admitted_total %d\n", c.tasksAdmitted.Load())
	fmt.Fprintf(w, "# HELP parexec_tasks_deferred_total Admission defer decisions so far\n")
	fmt.Fprintf(w, "# TYPE parexec_tasks_deferred_total counter\n")
	fmt.Fprintf(w, "parexec_tasks_deferred_total %d\n", c.tasksDeferred.Load())
	fmt.Fprintf(w, "# HELP parexec_tasks_completed_total Tasks that returned a result\n")
	fmt.Fprintf(w, "# TYPE parexec_tasks_completed_total counter\n")
	fmt.Fprintf(w, "parexec_tasks_completed_total %d\n", c.tasksCompleted.Load())
	fmt.Fprintf(w, "# HELP parexec_tasks_failed_total Tasks that raised or were recorded as exceptions\n")
	fmt.Fprintf(w, "# TYPE parexec_tasks_failed_total counter\n")
	fmt.Fprintf(w, "parexec_tasks_failed_total %d\n", c.tasksFailed.Load())
	fmt.Fprintf(w, "# HELP parexec_reserved_ram_bytes RAM reserved against running/pending workers\n")
	fmt.Fprintf(w, "# TYPE parexec_reserved_ram_bytes gauge\n")
	fmt.Fprintf(w, "parexec_reserved_ram_bytes %.0f\n", reservedRAM)
	fmt.Fprintf(w, "# HELP parexec_reserved_gpu_bytes GPU memory reserved per device\n")
	fmt.Fprintf(w, "# TYPE parexec_reserved_gpu_bytes gauge\n")
	for device, bytes := range gpu {
		fmt.Fprintf(w, "parexec_reserved_gpu_bytes{device=\"%s\"} %.0f\n", device, bytes)
	}
}
