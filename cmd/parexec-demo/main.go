// Command parexec-demo registers a handful of sample tasks and runs them
// through pkg/executor.Execute, printing the resulting Batch. The same
// binary doubles as the re-exec'd worker process — WorkerMain takes over
// before main ever reaches the demo logic when PAREXEC_WORKER=1 is set.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/parexec/core/pkg/config"
	"github.com/parexec/core/pkg/executor"
	"github.com/parexec/core/pkg/task"
)

func registerTasks() {
	task.Register("identity", task.Plain(func(args ...any) (any, error) {
		return args[0], nil
	}))

	task.Register("fail-on-two", task.Plain(func(args ...any) (any, error) {
		x, _ := args[0].(float64)
		if int(x) == 2 {
			return nil, errors.New("boom")
		}
		return x, nil
	}))

	task.Register("terminate-on-one", task.Plain(func(args ...any) (any, error) {
		x, _ := args[0].(float64)
		if int(x) == 1 {
			return map[string]any{"terminate": true, "value": x}, nil
		}
		return map[string]any{"value": x}, nil
	}))

	task.Register("gpu-echo", task.WithCuda(func(cuda int, args ...any) (any, error) {
		return map[string]any{"cuda": cuda, "value": args[0]}, nil
	}))
}

func main() {
	if executor.IsWorker() {
		registerTasks()
		executor.WorkerMain()
		return
	}

	scenario := flag.String("scenario", "trivial-map", "trivial-map | single-failure | terminate | gpu-pinning")
	numJobs := flag.Int("num-jobs", 2, "concurrent worker slots")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus text exposition at this address (e.g. :9090)")
	dashboardAddr := flag.String("dashboard-addr", "", "if set, serve a WebSocket batch-state feed at this address (e.g. :9091)")
	flag.Parse()

	registerTasks()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	taskName, argsList, opts := buildScenario(*scenario, *numJobs)
	opts.MetricsAddr = *metricsAddr
	opts.DashboardAddr = *dashboardAddr

	batch, err := executor.Execute(taskName, argsList, opts)
	if err != nil {
		var bf *executor.BatchFailed
		if errors.As(err, &bf) {
			log.Printf("⚠️  batch ended with failures: %v", err)
		} else {
			log.Fatalf("❌ execute: %v", err)
		}
	}

	fmt.Printf("results:    %v\n", batch.Results)
	fmt.Printf("exceptions: %v\n", batch.Exceptions)
	fmt.Printf("meta:       %+v\n", batch.Meta)
}

func buildScenario(name string, numJobs int) (string, [][]any, config.Options) {
	opts := config.Options{NumJobs: numJobs}

	switch name {
	case "single-failure":
		return "fail-on-two", [][]any{{0.0, 1.0, 2.0, 3.0}}, opts
	case "terminate":
		opts.NumJobs = 1
		return "terminate-on-one", [][]any{{0.0, 1.0, 2.0, 3.0}}, opts
	case "gpu-pinning":
		opts.UseCUDA = true
		opts.NumJobs = 4
		opts.ResourceConfig.GPU.AvailableCUDAList = []int{0, 1}
		return "gpu-echo", [][]any{{0.0, 1.0, 2.0, 3.0}}, opts
	default:
		return "identity", [][]any{{0.0, 1.0, 2.0, 3.0, 4.0}}, opts
	}
}
