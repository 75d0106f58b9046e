// Package executor implements the Supervisor Loop (spec §4.D): the state
// machine `initializing -> running -> (terminating)? -> drained` that
// drives a batch of OS-process workers to completion, adapted from the
// teacher's Poller/Router structure (ticker-driven fan-out over a
// registry of live workers) but made synchronous and single-threaded as
// spec §5 requires ("the supervisor is synchronous: it blocks on the
// poll-then-refill loop").
package executor

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/parexec/core/pkg/config"
	"github.com/parexec/core/pkg/dashboard"
	"github.com/parexec/core/pkg/probe"
	"github.com/parexec/core/pkg/resource"
	"github.com/parexec/core/pkg/store"
	"github.com/parexec/core/pkg/task"
	"github.com/parexec/core/pkg/tasklog"
)

// Batch is the caller-facing result of Execute (spec §6).
type Batch struct {
	Results    map[string]any
	Exceptions map[string]error
	Meta       BatchMeta
}

type BatchMeta struct {
	NJobs      int
	NTasks     int
	Terminated bool
}

// Execute runs taskName (a key previously registered with pkg/task)
// against argsList — a column-major argument table, argsList[k][i]
// supplying the k-th positional argument to task i — per spec §6.
func Execute(taskName string, argsList [][]any, opts config.Options) (*Batch, error) {
	opts = opts.WithDefaults()

	n := 0
	if len(argsList) > 0 {
		n = len(argsList[0])
	}

	if opts.Fallback {
		return executeFallback(taskName, argsList, n, opts)
	}

	if _, ok := task.Lookup(taskName); !ok {
		return nil, fmt.Errorf("executor: no task registered under %q", taskName)
	}

	if opts.UseCUDA && opts.ResourceConfig.GPU.AvailableCUDAList != nil && len(opts.ResourceConfig.GPU.AvailableCUDAList) == 0 {
		return nil, &ResourceUnavailable{Reason: "use_cuda is true but available_cuda_list is empty"}
	}

	r, err := newRun(taskName, argsList, n, opts)
	if err != nil {
		return nil, err
	}
	defer r.close()

	return r.execute()
}

// run holds all the state one Execute call threads through the
// initializing/running/terminating/drained state machine.
type run struct {
	taskKey  string
	argsList [][]any
	n        int
	opts     config.Options

	batchID string

	store      *store.Store
	storeSrv   *store.Server
	logs       *tasklog.Manager
	resMgr     *resource.Manager
	terminated *atomic.Bool

	selfPath   string
	pending    []int // queue of task ids awaiting admission
	slots      []slot
	skipStreak int // consecutive Skip requeues with no intervening Create

	sigCh chan os.Signal

	telemetry *telemetry
}

func newRun(taskKey string, argsList [][]any, n int, opts config.Options) (*run, error) {
	batchID := uuid.NewString()

	st := store.New(opts.NumJobs, n)
	srv := store.NewServer(st, opts.LoggingFolder, batchID)
	if err := srv.Serve(); err != nil {
		return nil, fmt.Errorf("executor: starting result store: %w", err)
	}

	ram := probe.NewRAM()
	terminated := &atomic.Bool{}

	r := &run{
		taskKey:    taskKey,
		argsList:   argsList,
		n:          n,
		opts:       opts,
		batchID:    batchID,
		store:      st,
		storeSrv:   srv,
		logs:       tasklog.NewManager(opts.LoggingFolder),
		terminated: terminated,
		pending:    make([]int, n),
		sigCh:      make(chan os.Signal, 1),
	}
	for i := 0; i < n; i++ {
		r.pending[i] = i
	}

	selfPath, err := os.Executable()
	if err != nil {
		srv.Stop()
		return nil, fmt.Errorf("executor: resolving self path: %w", err)
	}
	r.selfPath = selfPath

	mgr := resource.New(resource.Config{RefreshPatience: opts.ResourceConfig.RefreshPatience}, r.taskDisplayName, terminated)
	mgr.Register(resource.RAMKind(ram))

	if opts.UseCUDA {
		gpu, err := probe.NewGPU()
		if err != nil {
			srv.Stop()
			return nil, &ResourceUnavailable{Reason: err.Error()}
		}
		mgr.Register(resource.GPUKind(gpu, opts.ResourceConfig.GPU.AvailableCUDAList))
	}
	r.resMgr = mgr

	j := opts.NumJobs
	if j > n {
		j = n
	}
	r.slots = newSlots(j)

	r.telemetry = newTelemetry(j)
	st.OnResult(r.telemetry.onResult)
	if err := r.telemetry.start(opts, r.snapshotBatchState); err != nil {
		srv.Stop()
		return nil, err
	}

	signal.Notify(r.sigCh, os.Interrupt)

	return r, nil
}

func (r *run) close() {
	signal.Stop(r.sigCh)
	r.telemetry.stop()
	r.storeSrv.Stop()
}

// snapshotBatchState renders the supervisor's current view for
// pkg/dashboard's poller (called only while clients are connected).
func (r *run) snapshotBatchState() dashboard.BatchState {
	slots := make([]dashboard.SlotState, len(r.slots))
	live := 0
	for i := range r.slots {
		s := &r.slots[i]
		slots[i] = dashboard.SlotState{Index: i, TaskID: s.taskID, Running: !s.empty()}
		if !s.empty() {
			live++
			if rec, ok := r.resMgr.Lookup(s.pid); ok {
				slots[i].Device = rec.DeviceAssignments["GPU"]
			}
		}
	}
	r.telemetry.metrics.SetSlotsInUse(live)
	ram, gpu := r.resMgr.ReservedSnapshot()
	r.telemetry.metrics.SetReservedRAM(ram)
	for device, bytes := range gpu {
		r.telemetry.metrics.SetReservedGPU(device, bytes)
	}
	meta := r.store.Meta()
	return dashboard.BatchState{
		NJobs:       meta.NJobs,
		NTasks:      meta.NTasks,
		Pending:     len(r.pending),
		Terminated:  meta.Terminated,
		Slots:       slots,
		ReservedRAM: ram,
		ReservedGPU: gpu,
	}
}

func (r *run) taskDisplayName(taskID int) string {
	if taskID >= 0 && taskID < len(r.opts.TaskNames) {
		return r.opts.TaskNames[taskID]
	}
	return fmt.Sprintf("task_%d", taskID)
}

func (r *run) sleepInterval() time.Duration {
	secs := r.opts.Sleep + rand.Float64()
	return time.Duration(secs * float64(time.Second))
}

// execute drives the state machine. Phase transitions follow spec §4.D
// literally: initializing, running, an optional terminating, drained.
func (r *run) execute() (*Batch, error) {
	r.resMgr.Refresh()

	if err := r.initializing(); err != nil {
		r.terminated.Store(true)
		r.store.MarkTerminated()
		r.joinAll()
		return r.finish(err)
	}
	if r.terminated.Load() {
		return r.terminating()
	}

	for {
		select {
		case <-r.sigCh:
			r.store.PutError("base", store.ErrorRecord{Message: "operator interrupt", Kind: "interrupted"})
			r.terminated.Store(true)
			r.store.MarkTerminated()
		default:
		}
		r.syncTerminated()

		if r.terminated.Load() {
			return r.terminating()
		}

		progressed := r.pollAndReap()
		r.syncTerminated()
		if r.terminated.Load() {
			return r.terminating()
		}

		r.refill()

		r.telemetry.metrics.SetSlotsInUse(r.liveSlots())
		ram, gpu := r.resMgr.ReservedSnapshot()
		r.telemetry.metrics.SetReservedRAM(ram)
		for device, bytes := range gpu {
			r.telemetry.metrics.SetReservedGPU(device, bytes)
		}

		if len(r.pending) == 0 && r.liveSlots() == 0 {
			return r.finish(nil)
		}

		if !progressed {
			time.Sleep(r.sleepInterval())
			r.resMgr.Refresh()
		}
	}
}

// initializing admits and launches the first J tasks (spec §4.D
// "initializing"): exactly J ids are pulled off the front of the pending
// queue and tried once each; any that fail admission are requeued to the
// head, in order, so the running loop's refill retries them first.
func (r *run) initializing() error {
	j := len(r.slots)
	take := j
	if take > len(r.pending) {
		take = len(r.pending)
	}
	ids := r.pending[:take]
	r.pending = r.pending[take:]

	var requeue []int
	for i, taskID := range ids {
		if r.terminated.Load() {
			requeue = append(requeue, ids[i:]...)
			break
		}
		decision := r.resMgr.Admit(taskID)
		switch {
		case decision.Create:
			r.skipStreak = 0
			r.telemetry.metrics.IncAdmitted()
			if err := r.launch(i, taskID, decision); err != nil {
				r.pending = append(requeue, r.pending...)
				return err
			}
		case decision.Skip:
			r.skipStreak++
			requeue = append(requeue, taskID)
			if r.skipStreak > r.n {
				r.pending = append(requeue, r.pending...)
				return &AdmissionExhausted{Pending: len(r.pending)}
			}
		default: // Defer
			r.telemetry.metrics.IncDeferred()
			requeue = append(requeue, taskID)
		}
	}
	r.pending = append(requeue, r.pending...)
	return nil
}

// pollAndReap implements running steps 1-2: find finished slots (highest
// index first) and reap them. Returns whether anything changed this pass.
func (r *run) pollAndReap() bool {
	progressed := false
	for i := len(r.slots) - 1; i >= 0; i-- {
		s := &r.slots[i]
		if s.empty() {
			continue
		}
		if !s.finished() {
			continue
		}
		name, ok := r.resMgr.Reap(s.pid)
		if ok {
			r.logs.DelLogger(name)
		}
		s.clear()
		progressed = true
	}
	return progressed
}

// refill implements running step 4: for each empty slot, pop pending
// task ids until one is admitted or the queue runs dry. A Skip'd id is
// requeued to the tail and the next pending id is tried immediately for
// the same slot; a Defer'd id is put back at the head and the slot is
// left empty for this cycle, per spec.
func (r *run) refill() {
	for i := range r.slots {
		if r.terminated.Load() {
			return
		}
		if !r.slots[i].empty() {
			continue
		}
		for len(r.pending) > 0 {
			taskID := r.pending[0]
			r.pending = r.pending[1:]

			decision := r.resMgr.Admit(taskID)
			switch {
			case decision.Create:
				r.skipStreak = 0
				r.telemetry.metrics.IncAdmitted()
				if err := r.launch(i, taskID, decision); err != nil {
					r.fail(taskID, err.Error())
				}
			case decision.Skip:
				r.skipStreak++
				r.pending = append(r.pending, taskID)
				if r.skipStreak > r.n {
					r.fail(taskID, "admission exhausted: refresh_patience exceeded with no progress")
					return
				}
				continue
			default: // Defer
				r.telemetry.metrics.IncDeferred()
				r.pending = append([]int{taskID}, r.pending...)
			}
			break
		}
	}
}

// fail records a setup-time failure against the store and forces the
// batch into termination (spec §4.B step 4's "unable to satisfy
// resources" escalation).
func (r *run) fail(taskID int, msg string) {
	r.store.PutError(r.taskDisplayName(taskID), store.ErrorRecord{Message: msg, Kind: "error"})
	r.terminated.Store(true)
	r.store.MarkTerminated()
}

// syncTerminated mirrors the Shared Result Store's termination flag
// (set by a child via MarkTerminated, spec §4.C step 4/5) onto the
// supervisor's own flag, which also gates the Resource Manager's
// admission loop (spec §4.B step 1).
func (r *run) syncTerminated() {
	if r.store.Terminated() {
		r.terminated.Store(true)
	}
}

func (r *run) liveSlots() int {
	n := 0
	for i := range r.slots {
		if !r.slots[i].empty() {
			n++
		}
	}
	return n
}

// joinAll blocks on every live slot's child with no timeout, honoring the
// child's cooperative exit path (spec §4.D "terminating").
func (r *run) joinAll() {
	for i := range r.slots {
		s := &r.slots[i]
		if s.empty() {
			continue
		}
		<-s.done
		name, ok := r.resMgr.Reap(s.pid)
		if ok {
			r.logs.DelLogger(name)
		}
		s.clear()
	}
}

// terminating joins every live child with no timeout, per spec §4.D, then
// determines which of the three termination causes §7 names actually
// drove the shutdown.
func (r *run) terminating() (*Batch, error) {
	r.joinAll()

	snap := r.store.Snapshot()
	return r.finish(&BatchFailed{Cause: terminationCause(snap.Exceptions)})
}

// terminationCause inspects the recorded exceptions for the Kind that
// triggered termination. An unrecovered worker error outranks the other
// two: it is already represented per-task in Batch.Exceptions, so no
// further Cause is needed. A worker terminate-sentinel outranks a bare
// operator interrupt since it is the more specific diagnosis. Map
// iteration order does not affect which kind is returned — encountering
// an "error" entry returns immediately regardless of what was seen before
// it; when several tasks sent the terminate sentinel, the task name the
// WorkerTerminate carries is whichever of them iteration reaches first.
func terminationCause(exceptions map[string]store.ErrorRecord) error {
	var terminate *WorkerTerminate
	interrupted := false
	for name, rec := range exceptions {
		switch rec.Kind {
		case "error":
			return nil
		case "terminate":
			if terminate == nil {
				terminate = &WorkerTerminate{TaskName: name}
			}
		case "interrupted":
			interrupted = true
		}
	}
	if terminate != nil {
		return terminate
	}
	if interrupted {
		return &Interrupted{}
	}
	return nil
}

// finish implements *drained*: snapshot the store and return to the
// caller. The store/manager themselves are shut down by run.close via
// Execute's defer.
func (r *run) finish(cause error) (*Batch, error) {
	snap := r.store.Snapshot()
	b := &Batch{
		Results:    snap.Results,
		Exceptions: make(map[string]error, len(snap.Exceptions)),
		Meta: BatchMeta{
			NJobs:      snap.Meta.NJobs,
			NTasks:     snap.Meta.NTasks,
			Terminated: snap.Meta.Terminated,
		},
	}
	for name, rec := range snap.Exceptions {
		switch rec.Kind {
		case "interrupted":
			b.Exceptions[name] = &Interrupted{}
		case "terminate":
			b.Exceptions[name] = &WorkerTerminate{TaskName: name}
		default:
			b.Exceptions[name] = &WorkerFailure{TaskName: name, Cause: rec.Message}
		}
	}

	if cause != nil {
		if bf, ok := cause.(*BatchFailed); ok {
			bf.Batch = b
			return b, bf
		}
		return b, cause
	}
	if len(b.Exceptions) > 0 || b.Meta.Terminated {
		return b, &BatchFailed{Batch: b}
	}
	return b, nil
}

// launch spawns slot i's child process for taskID via self re-exec, per
// the worker-mode bootstrap pkg/executor/workermain.go implements.
func (r *run) launch(slotIdx, taskID int, decision resource.Decision) error {
	displayName := r.taskDisplayName(taskID)

	logPath, err := r.logs.InitLogger(displayName)
	if err != nil {
		return fmt.Errorf("executor: init logger for %s: %w", displayName, err)
	}

	args := make([]any, 0, len(r.argsList))
	for _, col := range r.argsList {
		args = append(args, col[taskID])
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("executor: marshaling args for %s: %w", displayName, err)
	}

	env := append(os.Environ(),
		"PAREXEC_WORKER=1",
		"PAREXEC_TASK_NAME="+r.taskKey,
		fmt.Sprintf("PAREXEC_TASK_ID=%d", taskID),
		"PAREXEC_DISPLAY_NAME="+displayName,
		"PAREXEC_SOCKET="+r.storeSrv.SocketPath,
		"PAREXEC_LOG_PATH="+logPath,
		"PAREXEC_ARGS="+string(argsJSON),
	)
	if unit, ok := decision.DeviceAssignments["GPU"]; ok {
		env = append(env, "PAREXEC_CUDA="+unit)
	}

	cmd := exec.Command(r.selfPath)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("executor: starting worker for %s: %w", displayName, err)
	}

	pid := cmd.Process.Pid
	r.resMgr.RecordStart(pid, taskID, displayName, decision.DeviceAssignments)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	r.slots[slotIdx] = slot{taskID: taskID, cmd: cmd, pid: pid, done: done}
	return nil
}

// executeFallback implements the degraded library-pool mode of spec
// §4.C / §9(b): no IPC, no terminate sentinel, no refinement, results
// collected in arg order.
func executeFallback(taskName string, argsList [][]any, n int, opts config.Options) (*Batch, error) {
	variant, ok := task.Lookup(taskName)
	if !ok {
		return nil, fmt.Errorf("executor: no task registered under %q", taskName)
	}

	rows := make([][]any, n)
	for i := 0; i < n; i++ {
		row := make([]any, 0, len(argsList))
		for _, col := range argsList {
			row = append(row, col[i])
		}
		rows[i] = row
	}

	outcomes := task.RunInProcess(variant, rows, opts.NumJobs)

	b := &Batch{
		Results:    make(map[string]any, n),
		Exceptions: make(map[string]error, n),
		Meta:       BatchMeta{NJobs: opts.NumJobs, NTasks: n},
	}
	for i, out := range outcomes {
		name := fmt.Sprintf("task_%d", i)
		if i < len(opts.TaskNames) {
			name = opts.TaskNames[i]
		}
		if out.Err != nil {
			b.Exceptions[name] = &WorkerFailure{TaskName: name, Cause: out.Err.Error()}
			b.Meta.Terminated = true
			continue
		}
		b.Results[name] = out.Value
	}
	if len(b.Exceptions) > 0 {
		return b, &BatchFailed{Batch: b}
	}
	return b, nil
}
