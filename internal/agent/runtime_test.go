package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"webbot/internal/heartbeat"
	"webbot/internal/survival"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastHeartbeat(bal *scriptedBalances) *heartbeat.Scheduler {
	return heartbeat.NewScheduler("alice", "alice-wallet", bal, map[survival.Tier]time.Duration{
		survival.TierNormal:     time.Millisecond,
		survival.TierLowCompute: time.Millisecond,
		survival.TierCritical:   time.Millisecond,
	})
}

func TestRuntime_HeartbeatDeathStopsLoop(t *testing.T) {
	// The loop always sees money; only the heartbeat sees the wallet drained.
	f := newLoopFixture(t, balances(balanceStep{sol: 1}))
	hb := fastHeartbeat(balances(balanceStep{sol: 1}, balanceStep{sol: 0}))
	f.loop.deps.Stop = hb.Dead()
	f.loop.sleep = sleepOrStop
	f.loop.settings.TurnDelay = time.Millisecond

	rec := &fakeReconciler{}
	var mu sync.Mutex
	var journal []string
	rt := NewRuntime("alice", f.loop, hb).
		WithReconciler(rec).
		WithService(orderedService{name: "a", journal: &journal, mu: &mu}).
		WithService(orderedService{name: "b", journal: &journal, mu: &mu})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := rt.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StopDead, out.Reason)
	assert.Equal(t, survival.TierDead, hb.Tier())
	assert.Equal(t, []string{"alice"}, rec.parents)
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, journal)

	// Every turn that started was persisted.
	assert.Len(t, f.turns(t), out.LastTurn)
}

func TestRuntime_LoopDeathStopsHeartbeat(t *testing.T) {
	f := newLoopFixture(t, balances(balanceStep{sol: 1}, balanceStep{sol: 0}))
	hb := heartbeat.NewScheduler("alice", "alice-wallet", balances(balanceStep{sol: 1}), nil)
	f.loop.deps.Stop = hb.Dead()

	out, err := NewRuntime("alice", f.loop, hb).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Outcome{Reason: StopDead, LastTurn: 1, Tier: survival.TierDead}, out)
}

func TestRuntime_ServiceStartFailure(t *testing.T) {
	f := newLoopFixture(t, balances(balanceStep{sol: 1}))
	var mu sync.Mutex
	var journal []string
	boom := errors.New("watch failed")

	_, err := NewRuntime("alice", f.loop, nil).
		WithService(orderedService{name: "a", journal: &journal, mu: &mu}).
		WithService(orderedService{name: "b", journal: &journal, mu: &mu, startErr: boom}).
		Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start a", "start b", "stop a"}, journal)
	assert.Empty(t, f.inference.Requests())
}

func TestRuntime_ReconcileErrorIsNotFatal(t *testing.T) {
	f := newLoopFixture(t, balances(balanceStep{sol: 0}))
	rec := &fakeReconciler{err: errors.New("db locked")}

	out, err := NewRuntime("alice", f.loop, nil).WithReconciler(rec).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopDead, out.Reason)
	assert.Len(t, rec.parents, 1)
}
