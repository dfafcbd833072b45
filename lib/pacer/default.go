package pacer

import "time"

// Default is the standard decay-then-attack Calculator: sleep time decays
// geometrically towards minSleep while calls succeed, and is scaled up
// geometrically towards maxSleep on each retry.
type Default struct {
	minSleep       time.Duration
	maxSleep       time.Duration
	decayConstant  uint
	attackConstant uint
}

// DefaultOption configures a Default calculator.
type DefaultOption func(*Default)

// MinSleep sets the floor sleep time decay will not go below.
func MinSleep(d time.Duration) DefaultOption { return func(c *Default) { c.minSleep = d } }

// MaxSleep sets the ceiling sleep time attack will not exceed.
func MaxSleep(d time.Duration) DefaultOption { return func(c *Default) { c.maxSleep = d } }

// DecayConstant controls how fast sleep time decays on success: higher
// decays faster.
func DecayConstant(n uint) DefaultOption { return func(c *Default) { c.decayConstant = n } }

// AttackConstant controls how fast sleep time grows on retry: 0 jumps
// straight to maxSleep, higher grows more gently.
func AttackConstant(n uint) DefaultOption { return func(c *Default) { c.attackConstant = n } }

// NewDefault builds a Default calculator with spec.md §6's
// network-friendly starting point (10ms..2s, decay 2, attack 1), then
// applies opts.
func NewDefault(opts ...DefaultOption) *Default {
	c := &Default{
		minSleep:       10 * time.Millisecond,
		maxSleep:       2 * time.Second,
		decayConstant:  2,
		attackConstant: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// Calculate decays SleepTime towards minSleep when the last call
// succeeded (ConsecutiveRetries == 0), or attacks it towards maxSleep
// when it didn't.
func (c *Default) Calculate(state State) time.Duration {
	if state.ConsecutiveRetries == 0 {
		sleepTime := state.SleepTime - state.SleepTime/time.Duration(uint64(1)<<c.decayConstant)
		return clampDuration(sleepTime, c.minSleep, c.maxSleep)
	}
	denom := int64(1)<<c.attackConstant - 1
	if denom <= 0 {
		return c.maxSleep
	}
	sleepTime := state.SleepTime * time.Duration(int64(1)<<c.attackConstant) / time.Duration(denom)
	return clampDuration(sleepTime, c.minSleep, c.maxSleep)
}
