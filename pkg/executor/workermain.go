package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/parexec/core/pkg/config"
	"github.com/parexec/core/pkg/store"
	"github.com/parexec/core/pkg/task"
	"github.com/parexec/core/pkg/tasklog"
)

// IsWorker reports whether the current process was re-exec'd as a
// worker — callers check this at the very top of main() before doing
// anything else, the same self-re-exec bootstrap pattern the teacher's
// cmd/worker and cmd/router binaries split by role, here collapsed into
// one binary selected by an environment flag instead of a second
// executable (spec §4.C: "the adapter must never hold a reference to
// unpicklable objects across the spawn boundary" — a Go process can't
// carry a closure across fork/exec at all, so the child re-derives
// everything it needs from its environment and the shared task registry).
func IsWorker() bool {
	v := os.Getenv("PAREXEC_WORKER")
	return v == "1" || v == "true"
}

// WorkerMain is the Worker Adapter (spec §4.C) run inside a re-exec'd
// child process. It returns once the task's outcome has been reported
// (it exits via log.Fatalf only if the store cannot be dialed); the
// caller's main returns right after it.
func WorkerMain() {
	taskKey := config.EnvStr("PAREXEC_TASK_NAME", "")
	displayName := config.EnvStr("PAREXEC_DISPLAY_NAME", "")
	sock := config.EnvStr("PAREXEC_SOCKET", "")
	logPath := config.EnvStr("PAREXEC_LOG_PATH", "")
	argsRaw := config.EnvStr("PAREXEC_ARGS", "")
	taskID := config.EnvInt("PAREXEC_TASK_ID", -1)

	dialTimeout := config.EnvDuration("PAREXEC_DIAL_TIMEOUT_MS", 30*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	client, conn, err := store.Dial(ctx, sock)
	if err != nil {
		log.Fatalf("parexec: worker %s (id %d) dial store: %v", displayName, taskID, err)
	}
	defer conn.Close()

	// Step 1 (spec §4.C): check termination flag; if set, return without
	// writing a result.
	if meta, err := client.GetMeta(ctx, &store.GetMetaRequest{}); err == nil && meta.Terminated {
		return
	}

	logMethod, closeLog, err := tasklog.OpenFileLogMethod(logPath)
	if err != nil {
		log.Printf("parexec: worker %s: opening log %s: %v", displayName, logPath, err)
		logMethod = func(string, task.Level) {}
		closeLog = func() {}
	}
	defer closeLog()

	variant, ok := task.Lookup(taskKey)
	if !ok {
		reportError(ctx, client, displayName, fmt.Sprintf("no function registered under %q", taskKey))
		return
	}

	var args []any
	if argsRaw != "" {
		if err := json.Unmarshal([]byte(argsRaw), &args); err != nil {
			reportError(ctx, client, displayName, fmt.Sprintf("decoding args: %v", err))
			return
		}
	}

	var cuda *int
	if v := config.EnvStr("PAREXEC_CUDA", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cuda = &n
		}
	}

	out := task.Run(variant, args, cuda, logMethod)

	switch {
	case out.Err != nil:
		reportError(ctx, client, displayName, out.Err.Error())
	case out.Terminate:
		if _, err := client.Put(ctx, &store.PutRequest{TaskName: displayName, Value: out.Value}); err != nil {
			log.Printf("parexec: worker %s: reporting terminate result: %v", displayName, err)
		}
		if _, err := client.PutError(ctx, &store.PutErrorRequest{TaskName: displayName, Message: "worker requested termination", Kind: "terminate"}); err != nil {
			log.Printf("parexec: worker %s: reporting terminate cause: %v", displayName, err)
		}
		if _, err := client.MarkTerminated(ctx, &store.MarkTerminatedRequest{}); err != nil {
			log.Printf("parexec: worker %s: marking terminated: %v", displayName, err)
		}
	default:
		if _, err := client.Put(ctx, &store.PutRequest{TaskName: displayName, Value: out.Value}); err != nil {
			log.Printf("parexec: worker %s: reporting result: %v", displayName, err)
		}
	}
}

func reportError(ctx context.Context, client store.ResultStoreClient, displayName, msg string) {
	if _, err := client.PutError(ctx, &store.PutErrorRequest{TaskName: displayName, Message: msg, Kind: "error"}); err != nil {
		log.Printf("parexec: worker %s: reporting error: %v", displayName, err)
	}
	if _, err := client.MarkTerminated(ctx, &store.MarkTerminatedRequest{}); err != nil {
		log.Printf("parexec: worker %s: marking terminated: %v", displayName, err)
	}
}
