//go:build !linux

package probe

import "fmt"

// procRAM is unimplemented off Linux: the module targets Linux hosts (see
// SPEC_FULL.md Non-goals — no Windows/macOS /proc equivalent is wired in).
type procRAM struct{}

func NewRAM() RAM { return procRAM{} }

func (procRAM) Available() (map[string]float64, error) {
	return nil, fmt.Errorf("probe: RAM accounting requires /proc (linux only)")
}

func (procRAM) UsagePerPID(pid int) (float64, error) {
	return 0, fmt.Errorf("probe: RAM accounting requires /proc (linux only)")
}
