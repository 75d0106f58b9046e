// Package config holds the tunables for a parallel batch: per-call Options
// plus the handful of environment-derived defaults the demo binary and the
// re-exec'd worker process use.
package config

import (
	"os"
	"strconv"
	"time"
)

// GPUConfig controls which CUDA devices the resource manager is allowed to
// assign. A nil AvailableCUDAList means "all visible devices"; an empty,
// non-nil list means "no GPU use".
type GPUConfig struct {
	AvailableCUDAList []int
}

// ResourceConfig is the resource-manager configuration table from spec §4.B.
type ResourceConfig struct {
	RefreshPatience int
	GPU             GPUConfig
}

// Options mirrors the `options` record from spec §6 passed to Execute.
type Options struct {
	NumJobs        int
	Sleep          float64
	UseCUDA        bool
	Name           string
	MetaName       string
	LoggingFolder  string
	TaskNames      []string
	ResourceConfig ResourceConfig
	Fallback       bool // library-pool degraded mode, spec §4.C / §9(b)

	// MetricsAddr, if non-empty, serves Prometheus text exposition
	// (pkg/metrics) at "/metrics" on this address for the batch's
	// lifetime.
	MetricsAddr string
	// DashboardAddr, if non-empty, serves a WebSocket batch-state feed
	// (pkg/dashboard) at "/ws" on this address for the batch's lifetime.
	DashboardAddr string
}

// WithDefaults fills in zero-valued fields the same way the original
// Parallel.__init__ applies defaults.
func (o Options) WithDefaults() Options {
	if o.NumJobs <= 0 {
		o.NumJobs = 4
	}
	if o.Sleep <= 0 {
		o.Sleep = 1.0
	}
	if o.LoggingFolder == "" {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		o.LoggingFolder = cwd + "/_parallel_/logs"
	}
	if o.ResourceConfig.RefreshPatience <= 0 {
		o.ResourceConfig.RefreshPatience = 10
	}
	return o
}

// EnvStr / EnvInt / EnvDuration — small env-var loader helpers in the
// teacher's style, used by the demo binary and by the worker re-exec
// bootstrap (pkg/executor/workermain.go) to read the plumbing the parent
// passes through the child's environment.
func EnvStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func EnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func EnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}
