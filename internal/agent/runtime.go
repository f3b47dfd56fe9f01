package agent

import (
	"context"

	"golang.org/x/sync/errgroup"

	"webbot/internal/logging"
	"webbot/internal/replication"
)

// Heartbeat is the concurrent liveness check run beside the loop.
type Heartbeat interface {
	Run(ctx context.Context)
}

// Reconciler settles replication left pending by a previous run.
type Reconciler interface {
	Reconcile(ctx context.Context, parent string) (replication.ReconcileReport, error)
}

// Service is a background helper with an explicit lifetime.
type Service interface {
	Start(ctx context.Context) error
	Stop()
}

// Runtime supervises one agent process. Shutdown is ordered: the loop
// finishes its in-flight turn, then the heartbeat stops, then services.
type Runtime struct {
	name       string
	loop       *Loop
	heartbeat  Heartbeat
	reconciler Reconciler
	services   []Service
}

// NewRuntime creates a supervisor. heartbeat may be nil.
func NewRuntime(name string, loop *Loop, heartbeat Heartbeat) *Runtime {
	return &Runtime{name: name, loop: loop, heartbeat: heartbeat}
}

// WithReconciler runs r once at startup.
func (rt *Runtime) WithReconciler(r Reconciler) *Runtime {
	rt.reconciler = r
	return rt
}

// WithService adds a helper started before the loop and stopped after it.
func (rt *Runtime) WithService(s Service) *Runtime {
	rt.services = append(rt.services, s)
	return rt
}

// Run blocks until the loop stops and returns its outcome.
func (rt *Runtime) Run(ctx context.Context) (Outcome, error) {
	if rt.reconciler != nil {
		report, err := rt.reconciler.Reconcile(ctx, rt.name)
		if err != nil {
			logging.Get(logging.CategoryReplication).Warn("Startup reconciliation failed: %v", err)
		} else if n := len(report.Activated) + len(report.Failed) + len(report.Skipped); n > 0 {
			logging.Replication("Reconciled %d pending children: %d activated, %d failed, %d skipped",
				n, len(report.Activated), len(report.Failed), len(report.Skipped))
		}
	}

	for i, svc := range rt.services {
		if err := svc.Start(ctx); err != nil {
			for _, started := range rt.services[:i] {
				started.Stop()
			}
			return Outcome{Reason: StopCancelled}, err
		}
	}
	defer func() {
		for i := len(rt.services) - 1; i >= 0; i-- {
			rt.services[i].Stop()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	hbCtx, stopHeartbeat := context.WithCancel(gctx)
	defer stopHeartbeat()

	if rt.heartbeat != nil {
		g.Go(func() error {
			rt.heartbeat.Run(hbCtx)
			return nil
		})
	}

	var outcome Outcome
	g.Go(func() error {
		defer stopHeartbeat()
		var err error
		outcome, err = rt.loop.Run(gctx)
		return err
	})

	err := g.Wait()
	logging.Boot("Runtime for %s stopped: %s after turn %d", rt.name, outcome.Reason, outcome.LastTurn)
	return outcome, err
}
