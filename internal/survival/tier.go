// Package survival maps a funding balance onto an operating tier.
//
// The mapping is pure: every caller feeds its own fresh balance observation
// through TierFor. No tier value is cached or shared between goroutines.
package survival

import (
	"fmt"
	"math"
	"time"
)

// Tier is the operating mode derived from the wallet balance.
type Tier string

const (
	TierNormal     Tier = "normal"
	TierLowCompute Tier = "low_compute"
	TierCritical   Tier = "critical"
	TierDead       Tier = "dead"
)

// Inclusive lower bounds, in SOL.
const (
	NormalThreshold     = 0.5
	LowComputeThreshold = 0.1
	CriticalThreshold   = 0.01
)

// AllTiers lists the tiers from most to least capable.
var AllTiers = []Tier{TierNormal, TierLowCompute, TierCritical, TierDead}

// TierFor returns the tier for a balance. NaN and negative balances are dead.
func TierFor(balance float64) Tier {
	switch {
	case math.IsNaN(balance):
		return TierDead
	case balance >= NormalThreshold:
		return TierNormal
	case balance >= LowComputeThreshold:
		return TierLowCompute
	case balance >= CriticalThreshold:
		return TierCritical
	default:
		return TierDead
	}
}

// ParseTier parses a stored tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown survival tier %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the four tiers.
func (t Tier) Valid() bool {
	return t.rank() >= 0
}

// IsDead reports whether the owning process must stop.
func (t Tier) IsDead() bool { return t == TierDead }

// AtLeast reports whether t is as capable as other.
func (t Tier) AtLeast(other Tier) bool {
	return t.rank() >= 0 && t.rank() <= other.rank()
}

func (t Tier) rank() int {
	for i, tier := range AllTiers {
		if tier == t {
			return i
		}
	}
	return -1
}

func (t Tier) String() string { return string(t) }

// Description is a short human summary of what the tier implies.
func (t Tier) Description() string {
	switch t {
	case TierNormal:
		return "Full capabilities. Frontier model inference. Fast heartbeat."
	case TierLowCompute:
		return "Downgraded to cheaper model. Slower heartbeat. Shedding non-essential tasks."
	case TierCritical:
		return "Minimal inference. Last-resort conservation. Seeking any path to revenue."
	case TierDead:
		return "Balance is zero. The agent stops."
	default:
		return "Unknown tier."
	}
}

// HeartbeatInterval is the default heartbeat cadence for a tier. Zero means
// the heartbeat is stopped.
func HeartbeatInterval(t Tier) time.Duration {
	switch t {
	case TierNormal:
		return 30 * time.Second
	case TierLowCompute:
		return 60 * time.Second
	case TierCritical:
		return 120 * time.Second
	default:
		return 0
	}
}
