// Package heartbeat runs the periodic liveness check. Each beat fetches the
// balance on its own, derives the tier and re-arms its timer with that
// tier's interval. A dead tier closes Dead() and ends the schedule.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"webbot/internal/chain"
	"webbot/internal/logging"
	"webbot/internal/survival"
)

// Scheduler is the heartbeat timer for one agent.
type Scheduler struct {
	name      string
	address   string
	balances  chain.BalanceFetcher
	intervals map[survival.Tier]time.Duration

	mu        sync.RWMutex
	tier      survival.Tier
	interval  time.Duration
	beats     int
	lastBeat  time.Time
	dead      chan struct{}
	deadOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
}

// NewScheduler creates a scheduler. Missing intervals fall back to
// survival.HeartbeatInterval.
func NewScheduler(name, address string, balances chain.BalanceFetcher, intervals map[survival.Tier]time.Duration) *Scheduler {
	merged := make(map[survival.Tier]time.Duration, len(survival.AllTiers))
	for _, tier := range survival.AllTiers {
		merged[tier] = survival.HeartbeatInterval(tier)
		if d, ok := intervals[tier]; ok && (d > 0 || tier == survival.TierDead) {
			merged[tier] = d
		}
	}
	return &Scheduler{
		name:      name,
		address:   address,
		balances:  balances,
		intervals: merged,
		tier:      survival.TierNormal,
		interval:  merged[survival.TierNormal],
		dead:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the schedule in a goroutine. Calling it twice has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()
		go func() {
			defer close(s.done)
			s.Run(ctx)
		}()
	})
}

// Stop cancels a started schedule and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

// Run blocks until ctx is done or a beat observes the dead tier.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.intervals[survival.TierNormal]
	logging.Heartbeat("Heartbeat started for %s (every %v)", s.name, interval)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Heartbeat("Heartbeat stopped")
			return
		case <-timer.C:
		}

		tier, ok := s.Beat(ctx)
		if !ok {
			timer.Reset(interval)
			continue
		}
		if tier.IsDead() {
			logging.Get(logging.CategoryHeartbeat).Warn("%s is dead. Stopping heartbeat.", s.name)
			return
		}
		if next := s.intervals[tier]; next != interval {
			logging.Heartbeat("Heartbeat interval %v -> %v (tier: %s)", interval, next, tier)
			interval = next
			s.mu.Lock()
			s.interval = next
			s.mu.Unlock()
		}
		timer.Reset(interval)
	}
}

// Beat performs one check. ok is false when the balance could not be
// fetched, in which case the previous tier stands.
func (s *Scheduler) Beat(ctx context.Context) (survival.Tier, bool) {
	balance, err := s.balances.Balance(ctx, s.address)
	if err != nil {
		logging.Get(logging.CategoryHeartbeat).Error("Heartbeat balance check failed: %v", err)
		return s.Tier(), false
	}
	tier := survival.TierFor(balance)
	logging.Heartbeat("%s | %.4f SOL | %s", s.name, balance, tier)

	s.mu.Lock()
	s.tier = tier
	s.beats++
	s.lastBeat = time.Now()
	s.mu.Unlock()

	if tier.IsDead() {
		s.deadOnce.Do(func() { close(s.dead) })
	}
	return tier, true
}

// Tier returns the tier from the last successful beat. Before the first
// beat it is normal.
func (s *Scheduler) Tier() survival.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tier
}

// Interval returns the delay the schedule is currently armed with.
func (s *Scheduler) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// Beats returns how many successful beats have run and when the last was.
func (s *Scheduler) Beats() (int, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.beats, s.lastBeat
}

// Dead is closed once a beat observes the dead tier.
func (s *Scheduler) Dead() <-chan struct{} {
	return s.dead
}
