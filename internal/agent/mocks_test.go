package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"webbot/internal/config"
	"webbot/internal/inference"
	"webbot/internal/replication"
	"webbot/internal/store"
	"webbot/internal/survival"
	"webbot/internal/tools"
)

var errRPC = errors.New("rpc unavailable")

type balanceStep struct {
	sol float64
	err error
}

// scriptedBalances replays steps in order and repeats the last one.
type scriptedBalances struct {
	mu    sync.Mutex
	steps []balanceStep
	calls int
}

func balances(steps ...balanceStep) *scriptedBalances {
	return &scriptedBalances{steps: steps}
}

func (b *scriptedBalances) Balance(ctx context.Context, address string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.calls
	if i >= len(b.steps) {
		i = len(b.steps) - 1
	}
	b.calls++
	return b.steps[i].sol, b.steps[i].err
}

func (b *scriptedBalances) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type inferStep struct {
	resp *inference.Response
	err  error
}

// scriptedInference replays responses and records every request. Once the
// script is exhausted it answers with empty text.
type scriptedInference struct {
	mu       sync.Mutex
	steps    []inferStep
	requests []inference.Request
}

func (s *scriptedInference) Infer(ctx context.Context, req inference.Request) (*inference.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return &inference.Response{}, nil
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.resp, step.err
}

func (s *scriptedInference) Provider() string { return "fake" }

func (s *scriptedInference) Requests() []inference.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inference.Request(nil), s.requests...)
}

type usageCall struct {
	provider, model string
	tier            survival.Tier
	in, out         int
}

type recordingUsage struct {
	mu    sync.Mutex
	calls []usageCall
}

func (u *recordingUsage) Track(provider, model string, tier survival.Tier, in, out int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, usageCall{provider, model, tier, in, out})
}

type staticDocs struct{ constitution, soul string }

func (d staticDocs) Constitution() string { return d.constitution }
func (d staticDocs) Soul() string         { return d.soul }

type fixedCounter int

func (c fixedCounter) Pending(ctx context.Context, identity string) (int, error) { return int(c), nil }

// failingSaves wraps a TurnStore and fails SaveTurn while err is set.
type failingSaves struct {
	TurnStore
	err error
}

func (f *failingSaves) SaveTurn(ctx context.Context, turn store.Turn, calls []store.ToolCallRecord) error {
	if f.err != nil {
		return f.err
	}
	return f.TurnStore.SaveTurn(ctx, turn, calls)
}

type recordedCall struct {
	tool string
	tier survival.Tier
	turn int
	args map[string]any
}

// toolRecorder registers test tools that log their invocations.
type toolRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *toolRecorder) record(name string) tools.ExecuteFunc {
	return func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, recordedCall{tool: name, tier: env.Tier, turn: env.Turn, args: args})
		return tools.Result{"ok": name}, nil
	}
}

func (r *toolRecorder) Calls() []recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedCall(nil), r.calls...)
}

func testRegistry(rec *toolRecorder) *tools.Registry {
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:        "first",
		Description: "first test tool",
		Category:    tools.CategorySystem,
		Execute:     rec.record("first"),
		Schema: tools.ToolSchema{
			Required:   []string{"n"},
			Properties: map[string]tools.Property{"n": {Type: "number"}},
		},
	})
	reg.MustRegister(&tools.Tool{
		Name:        "second",
		Description: "second test tool",
		Category:    tools.CategorySystem,
		Execute:     rec.record("second"),
	})
	reg.MustRegister(&tools.Tool{
		Name:        "expensive",
		Description: "normal tier only",
		Category:    tools.CategorySelf,
		Execute:     rec.record("expensive"),
		MinTier:     survival.TierNormal,
	})
	return reg
}

func testIdentity() *config.Identity {
	return &config.Identity{
		Name:            "alice",
		GenesisPrompt:   "earn",
		CreatorAddress:  "creator",
		WalletPublicKey: "alice-wallet",
		WalletSecretKey: "alice-secret",
		RPCURL:          "http://localhost:8899",
	}
}

type fakeReconciler struct {
	mu      sync.Mutex
	parents []string
	err     error
}

func (f *fakeReconciler) Reconcile(ctx context.Context, parent string) (replication.ReconcileReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parents = append(f.parents, parent)
	return replication.ReconcileReport{Activated: []string{"kid"}}, f.err
}

// orderedService logs start/stop into a shared journal.
type orderedService struct {
	name     string
	journal  *[]string
	mu       *sync.Mutex
	startErr error
}

func (s orderedService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.journal = append(*s.journal, "start "+s.name)
	return s.startErr
}

func (s orderedService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.journal = append(*s.journal, "stop "+s.name)
}

// noSleep records requested delays and returns immediately.
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	n.mu.Lock()
	n.delays = append(n.delays, d)
	n.mu.Unlock()
	return ctx.Err() == nil
}

func (n *noSleep) Delays() []time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]time.Duration(nil), n.delays...)
}
