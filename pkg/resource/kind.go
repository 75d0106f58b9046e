// Package resource implements the Resource Manager (spec §4.B): it
// estimates each task's expected usage, admits or defers launches against
// RAM and GPU headroom, assigns GPU units, and tracks per-worker residency.
package resource

import (
	"strconv"
	"time"

	"github.com/parexec/core/pkg/probe"
)

// Kind is a registered resource kind (spec §3 "Resource Kind"): exactly one
// of UsagePerPID / UsagePerPIDs is non-nil.
type Kind struct {
	Name         string
	UsagePerPID  func(pid int) (float64, error)
	UsagePerPIDs func(pids []int) (map[int]float64, error)
	Available    func() (map[string]float64, error)
	Bootstrap    float64
	MultiUnit    bool
	Allowlist    []string // nil = all units the probe reports
}

// RAMKind wraps a probe.RAM as a single-synthetic-unit ("total") Kind.
func RAMKind(p probe.RAM) Kind {
	return Kind{
		Name:        "RAM",
		UsagePerPID: p.UsagePerPID,
		Available:   p.Available,
		Bootstrap:   64 * 1024 * 1024, // 64MiB — small nonzero bootstrap
		MultiUnit:   false,
	}
}

// GPUKind wraps a probe.GPU as a multi-unit Kind, restricted to allowlist
// (nil means every device the probe reports).
func GPUKind(p probe.GPU, allowlist []int) Kind {
	var units []string
	if allowlist != nil {
		units = make([]string, len(allowlist))
		for i, d := range allowlist {
			units[i] = strconv.Itoa(d)
		}
	}
	return Kind{
		Name:         "GPU",
		UsagePerPIDs: p.UsagePerPIDs,
		Available:    p.Available,
		Bootstrap:    256 * 1024 * 1024, // 256MiB — small nonzero bootstrap
		MultiUnit:    true,
		Allowlist:    units,
	}
}

// Headroom is the per-unit bookkeeping spec §3 describes.
type Headroom struct {
	Available map[string]float64
	Reserved  map[string]float64
}

// Record is the Worker Record of spec §3.
type Record struct {
	PID               int
	TaskID            int
	TaskName          string
	DeviceAssignments map[string]string // kind -> unit id
	InferredUsage     map[string]float64
	StartedAt         time.Time
}
