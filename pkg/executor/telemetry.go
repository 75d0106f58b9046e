package executor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/parexec/core/pkg/config"
	"github.com/parexec/core/pkg/dashboard"
	"github.com/parexec/core/pkg/metrics"
)

// telemetry bundles the batch's optional metrics/dashboard surfaces
// (SPEC_FULL.md's ambient-stack expansion). Both are no-ops unless the
// caller set the corresponding Options address; a batch that sets
// neither pays only the cost of the in-memory counters.
type telemetry struct {
	metrics     *metrics.Collector
	broadcaster *dashboard.Broadcaster
	poller      *dashboard.Poller
	servers     []*http.Server
}

func newTelemetry(slotsTotal int) *telemetry {
	return &telemetry{
		metrics:     metrics.New(slotsTotal),
		broadcaster: dashboard.NewBroadcaster(),
	}
}

// onResult is wired as the store's completion hook (store.Store.OnResult).
func (t *telemetry) onResult(taskName string, failed bool) {
	if failed {
		t.metrics.IncFailed()
		return
	}
	t.metrics.IncCompleted()
}

// start binds whichever of MetricsAddr/DashboardAddr was requested and
// begins the dashboard poller. snapshot is only invoked while at least
// one dashboard client is connected (pkg/dashboard.Poller's own check).
func (t *telemetry) start(opts config.Options, snapshot func() dashboard.BatchState) error {
	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", t.metrics)
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: mux}
		if err := t.listenAndServe(srv); err != nil {
			return fmt.Errorf("executor: serving metrics on %s: %w", opts.MetricsAddr, err)
		}
	}
	if opts.DashboardAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", t.broadcaster.HandleWS)
		srv := &http.Server{Addr: opts.DashboardAddr, Handler: mux}
		if err := t.listenAndServe(srv); err != nil {
			return fmt.Errorf("executor: serving dashboard on %s: %w", opts.DashboardAddr, err)
		}
		t.poller = dashboard.NewPoller(t.broadcaster, 500*time.Millisecond, snapshot)
		t.poller.Start()
	}
	return nil
}

func (t *telemetry) listenAndServe(srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	t.servers = append(t.servers, srv)
	go func() {
		_ = srv.Serve(ln)
	}()
	return nil
}

func (t *telemetry) stop() {
	if t.poller != nil {
		t.poller.Stop()
	}
	for _, srv := range t.servers {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(ctx)
		cancel()
	}
}
