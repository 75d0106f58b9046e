// Package probe implements the host queries spec §4.A describes: advisory,
// stateless snapshots of RAM and GPU headroom. Results drift between calls
// and may briefly disagree with reality right after a spawn or exit — the
// Resource Manager (pkg/resource), not the Probe, is responsible for
// smoothing that out.
package probe

// RAM is the single resource-kind probe for host memory: one synthetic
// unit, "total".
type RAM interface {
	// Available reports {"total": bytes_free}.
	Available() (map[string]float64, error)
	// UsagePerPID reports one process's resident set size in bytes.
	UsagePerPID(pid int) (float64, error)
}

// GPU is the multi-unit probe for visible CUDA devices.
type GPU interface {
	// Available reports free bytes per device id, keyed by stringified index.
	Available() (map[string]float64, error)
	// UsagePerPIDs reports, for each given pid, its VRAM usage summed across
	// all devices it touches — the "mapping for devices with multi-tenant
	// accounting" variant spec §4.A calls out for GPU.
	UsagePerPIDs(pids []int) (map[int]float64, error)
	// DeviceCount is the number of visible devices, 0 if unavailable.
	DeviceCount() int
}

// ErrUnavailable is returned by a GPU probe that found no device driver.
type ErrUnavailable struct{ Reason string }

func (e *ErrUnavailable) Error() string { return "probe: GPU unavailable: " + e.Reason }
