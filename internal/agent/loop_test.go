package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webbot/internal/inference"
	"webbot/internal/store"
	"webbot/internal/survival"
	"webbot/internal/tools"
)

type loopFixture struct {
	loop      *Loop
	store     *store.LocalStore
	balances  *scriptedBalances
	inference *scriptedInference
	recorder  *toolRecorder
	usage     *recordingUsage
	sleeper   *noSleep
}

func newLoopFixture(t *testing.T, bal *scriptedBalances, steps ...inferStep) *loopFixture {
	t.Helper()
	st, err := store.NewLocalStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &loopFixture{
		store:     st,
		balances:  bal,
		inference: &scriptedInference{steps: steps},
		recorder:  &toolRecorder{},
		usage:     &recordingUsage{},
		sleeper:   &noSleep{},
	}
	f.loop = NewLoop(Deps{
		Identity:   testIdentity(),
		Store:      st,
		Balances:   bal,
		Inference:  f.inference,
		Dispatcher: tools.NewDispatcher(testRegistry(f.recorder)),
		Messages:   fixedCounter(3),
		Documents:  staticDocs{constitution: "Law I: test.", soul: "I test things."},
		Usage:      f.usage,
	}, Settings{
		TurnDelay: time.Second,
		ModelFor:  func(tier survival.Tier) string { return "model-" + string(tier) },
	})
	f.loop.sleep = f.sleeper.sleep
	return f
}

func (f *loopFixture) turns(t *testing.T) []store.Turn {
	t.Helper()
	turns, err := f.store.RecentTurns(context.Background(), "alice", 100)
	require.NoError(t, err)
	return turns
}

func respond(text string, calls ...inference.ToolCall) inferStep {
	return inferStep{resp: &inference.Response{Text: text, ToolCalls: calls, Usage: inference.Usage{InputTokens: 10, OutputTokens: 5}}}
}

func call(name, input string) inference.ToolCall {
	return inference.ToolCall{ID: "call-" + name, Name: name, Input: json.RawMessage(input)}
}

func TestRunTurn_TierDrivesTurnsAndNumbering(t *testing.T) {
	f := newLoopFixture(t, balances(balanceStep{sol: 0.6}, balanceStep{sol: 0.08}))
	ctx := context.Background()

	res, err := f.loop.RunTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, TurnResult{Number: 1, Tier: survival.TierNormal}, res)

	turns := f.turns(t)
	require.Len(t, turns, 1)
	assert.Equal(t, 1, turns[0].Number)
	assert.Equal(t, survival.TierNormal, turns[0].Tier)
	assert.Equal(t, "", turns[0].Content)
	assert.Empty(t, turns[0].ToolCalls)

	// 0.08 is below the low_compute floor of 0.1.
	res, err = f.loop.RunTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Number)
	assert.Equal(t, survival.TierCritical, res.Tier)

	reqs := f.inference.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "model-normal", reqs[0].Model)
	assert.Equal(t, "model-critical", reqs[1].Model)
}

func TestRunTurn_BuildsContext(t *testing.T) {
	f := newLoopFixture(t, balances(balanceStep{sol: 0.3}), respond("thinking"))

	_, err := f.loop.RunTurn(context.Background())
	require.NoError(t, err)

	req := f.inference.Requests()[0]
	assert.Contains(t, req.System, "You are alice")
	assert.Contains(t, req.System, "Law I: test.")
	assert.Contains(t, req.System, "- Survival Tier: low_compute")
	assert.Equal(t, 4096, req.MaxTokens)

	require.Len(t, req.Messages, 1)
	last := req.Messages[0]
	assert.Equal(t, inference.RoleUser, last.Role)
	assert.Contains(t, last.Text, "Turn: 1\nBalance: 0.3000 SOL\nTier: low_compute")
	assert.Contains(t, last.Text, "Unread messages: 3")
	assert.Contains(t, last.Text, "I test things.")

	var offered []string
	for _, d := range req.Tools {
		offered = append(offered, d.Name)
	}
	assert.Equal(t, []string{"first", "second"}, offered, "normal-only tools are hidden below normal")

	require.Len(t, f.usage.calls, 1)
	assert.Equal(t, usageCall{"fake", "model-low_compute", survival.TierLowCompute, 10, 5}, f.usage.calls[0])
}

func TestRunTurn_DispatchesSequentiallyWithFixedTier(t *testing.T) {
	// Every balance read after the first reports zero; only the turn's own
	// observation may decide its tier.
	f := newLoopFixture(t,
		balances(balanceStep{sol: 0.6}, balanceStep{sol: 0}),
		respond("doing things",
			call("second", `{}`),
			call("expensive", `{}`),
			call("first", `{"n": 1}`),
		),
	)

	res, err := f.loop.RunTurn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.ToolCalls)

	calls := f.recorder.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"second", "expensive", "first"}, []string{calls[0].tool, calls[1].tool, calls[2].tool})
	for _, c := range calls {
		assert.Equal(t, survival.TierNormal, c.tier)
		assert.Equal(t, 1, c.turn)
	}
	assert.Equal(t, 1, f.balances.Calls())

	turns := f.turns(t)
	require.Len(t, turns, 1)
	assert.Equal(t, "doing things", turns[0].Content)
	require.Len(t, turns[0].ToolCalls, 3)
	assert.Equal(t, "second", turns[0].ToolCalls[0].Tool)
	assert.Equal(t, "expensive", turns[0].ToolCalls[1].Tool)
	assert.Equal(t, "first", turns[0].ToolCalls[2].Tool)
	assert.JSONEq(t, `{"n": 1}`, string(turns[0].ToolCalls[2].Input))
	assert.JSONEq(t, `{"ok": "first"}`, string(turns[0].ToolCalls[2].Output))
}

func TestRunTurn_ToolFailuresAreRecordedAndReplayed(t *testing.T) {
	f := newLoopFixture(t,
		balances(balanceStep{sol: 0.6}),
		respond("",
			call("nope", `{}`),
			call("first", `not json`),
			call("first", `{}`),
		),
		respond("second turn"),
	)
	ctx := context.Background()

	_, err := f.loop.RunTurn(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.recorder.Calls())

	turns := f.turns(t)
	require.Len(t, turns[0].ToolCalls, 3)
	codes := make([]string, 0, 3)
	for _, c := range turns[0].ToolCalls {
		var out map[string]any
		require.NoError(t, json.Unmarshal(c.Output, &out))
		codes = append(codes, out["code"].(string))
		assert.NotEmpty(t, out["error"])
	}
	assert.Equal(t, []string{"unknown_tool", "invalid_input", "invalid_input"}, codes)
	assert.JSONEq(t, `{}`, string(turns[0].ToolCalls[1].Input), "unparseable input is stored as an empty object")

	_, err = f.loop.RunTurn(ctx)
	require.NoError(t, err)
	req := f.inference.Requests()[1]
	var joined strings.Builder
	for _, m := range req.Messages {
		joined.WriteString(m.Text)
	}
	assert.Contains(t, joined.String(), "Tool results for turn 1")
	assert.Contains(t, joined.String(), "unknown_tool")
}

func TestRunTurn_TransientErrorsLeaveNoGaps(t *testing.T) {
	f := newLoopFixture(t,
		balances(balanceStep{err: errRPC}, balanceStep{sol: 1}),
		inferStep{err: errors.New("overloaded")},
		respond("recovered"),
	)
	ctx := context.Background()

	_, err := f.loop.RunTurn(ctx)
	assert.ErrorIs(t, err, errRPC)

	_, err = f.loop.RunTurn(ctx)
	assert.ErrorContains(t, err, "overloaded")
	assert.Empty(t, f.turns(t))

	res, err := f.loop.RunTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Number)
}

func TestRunTurn_PersistFailureReusesNumber(t *testing.T) {
	f := newLoopFixture(t, balances(balanceStep{sol: 1}))
	saves := &failingSaves{TurnStore: f.store, err: errors.New("disk full")}
	f.loop.deps.Store = saves

	_, err := f.loop.RunTurn(context.Background())
	assert.ErrorContains(t, err, "disk full")

	saves.err = nil
	res, err := f.loop.RunTurn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Number)
}

func TestRunTurn_DeadPersistsNothing(t *testing.T) {
	f := newLoopFixture(t, balances(balanceStep{sol: 0.005}))

	res, err := f.loop.RunTurn(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Dead)
	assert.Equal(t, survival.TierDead, res.Tier)
	assert.Empty(t, f.inference.Requests())
	assert.Empty(t, f.turns(t))
}

func TestRun_StopsOnDeadTier(t *testing.T) {
	f := newLoopFixture(t, balances(balanceStep{sol: 0.6}, balanceStep{sol: 0.6}, balanceStep{sol: 0}))

	out, err := f.loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Outcome{Reason: StopDead, LastTurn: 2, Tier: survival.TierDead}, out)
	assert.Len(t, f.turns(t), 2)
}

func TestRun_ErrorDoublesDelayForOneIteration(t *testing.T) {
	f := newLoopFixture(t, balances(
		balanceStep{err: errRPC},
		balanceStep{sol: 1},
		balanceStep{sol: 0},
	))

	out, err := f.loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopDead, out.Reason)
	assert.Equal(t, 1, out.LastTurn)
	assert.Equal(t, []time.Duration{2 * time.Second, time.Second}, f.sleeper.Delays())
}

func TestRun_StopSignalLetsInFlightTurnFinish(t *testing.T) {
	stop := make(chan struct{})
	f := newLoopFixture(t, balances(balanceStep{sol: 1}), respond("last words", call("second", `{}`)))
	f.loop.deps.Stop = stop

	// The heartbeat declares death while the turn is dispatching.
	reg := f.loop.deps.Dispatcher.Registry()
	original := reg.Get("second").Execute
	reg.Get("second").Execute = func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
		close(stop)
		return original(ctx, env, args)
	}

	out, err := f.loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopDead, out.Reason)
	assert.Equal(t, 1, out.LastTurn)

	turns := f.turns(t)
	require.Len(t, turns, 1)
	assert.Equal(t, "last words", turns[0].Content)
	assert.Len(t, turns[0].ToolCalls, 1)
	assert.Equal(t, 1, f.balances.Calls())
}

func TestRun_Cancelled(t *testing.T) {
	f := newLoopFixture(t, balances(balanceStep{sol: 1}))
	ctx, cancel := context.WithCancel(context.Background())
	f.loop.sleep = func(context.Context, <-chan struct{}, time.Duration) bool {
		cancel()
		return false
	}

	out, err := f.loop.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopCancelled, out.Reason)
	assert.Equal(t, 1, out.LastTurn)
	assert.Equal(t, survival.TierNormal, out.Tier)
}

func TestRun_ResumesNumberingAcrossRestarts(t *testing.T) {
	f := newLoopFixture(t, balances(balanceStep{sol: 1}, balanceStep{sol: 0}))
	_, err := f.loop.Run(context.Background())
	require.NoError(t, err)

	deps := f.loop.deps
	deps.Balances = balances(balanceStep{sol: 1}, balanceStep{sol: 0})
	restarted := NewLoop(deps, f.loop.settings)
	restarted.sleep = f.sleeper.sleep

	out, err := restarted.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, out.LastTurn)

	turns := f.turns(t)
	require.Len(t, turns, 2)
	assert.Equal(t, []int{1, 2}, []int{turns[0].Number, turns[1].Number})
}

func TestSleepOrStop(t *testing.T) {
	assert.True(t, sleepOrStop(context.Background(), nil, time.Millisecond))

	stop := make(chan struct{})
	close(stop)
	assert.False(t, sleepOrStop(context.Background(), stop, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepOrStop(ctx, nil, time.Hour))
}
