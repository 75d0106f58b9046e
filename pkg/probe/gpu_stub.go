//go:build !nvml

package probe

// NewGPU returns the default, no-cgo GPU probe: it reports no devices.
// Build with `-tags nvml` to link the real dlopen-based NVML probe in
// gpu_nvml.go, mirroring the teacher's executor_default.go /
// executor_onnx.go split.
func NewGPU() (GPU, error) {
	return nil, &ErrUnavailable{Reason: "built without -tags nvml"}
}
