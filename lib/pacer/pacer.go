// Package pacer implements the request-pacing/retry policy spec.md §6
// asks for via the retries/sleep_time/maxkbs options: a minimum-sleep
// backoff that decays while calls succeed and attacks (backs off) toward
// a maximum sleep on failure, plus an optional cap on concurrent calls.
// Ported from rclone's lib/pacer.
package pacer

import (
	"sync"
	"time"
)

// State is the pacer's view of how a sequence of calls has been going.
type State struct {
	SleepTime          time.Duration
	ConsecutiveRetries int
	LastError          error
}

// Calculator works out the next SleepTime given the current State.
type Calculator interface {
	Calculate(state State) time.Duration
}

// Paced is the signature of a function the Pacer can call: it returns
// whether the call should be retried and the error (if any) to surface
// if it is not.
type Paced func() (bool, error)

// Pacer paces calls, retrying and backing off as its Calculator dictates.
type Pacer struct {
	mu             sync.Mutex
	pacer          chan struct{}
	connTokens     chan struct{}
	retries        int
	maxConnections int
	calculator     Calculator
	state          State
}

// Option configures a Pacer at construction time.
type Option func(*Pacer)

// RetriesOption sets the number of times Call will retry a Paced call.
func RetriesOption(retries int) Option {
	return func(p *Pacer) { p.SetRetries(retries) }
}

// MaxConnectionsOption caps the number of calls allowed to run at once.
// 0 (the default) means unlimited.
func MaxConnectionsOption(n int) Option {
	return func(p *Pacer) { p.SetMaxConnections(n) }
}

// CalculatorOption overrides the default backoff Calculator.
func CalculatorOption(c Calculator) Option {
	return func(p *Pacer) { p.SetCalculator(c) }
}

// New creates a Pacer with sane defaults (retries=3, matching
// xfer.StandardOptions' "retries" default; a Default calculator; no
// connection limit), then applies opts.
func New(opts ...Option) *Pacer {
	p := &Pacer{
		retries: 3,
		pacer:   make(chan struct{}, 1),
	}
	p.SetCalculator(NewDefault())
	for _, opt := range opts {
		opt(p)
	}
	p.pacer <- struct{}{}
	return p
}

// SetRetries changes the retry count used by Call.
func (p *Pacer) SetRetries(retries int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retries = retries
}

// SetCalculator swaps the backoff Calculator, resetting SleepTime to its
// minimum if the new calculator is a *Default.
func (p *Pacer) SetCalculator(c Calculator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calculator = c
	if d, ok := c.(*Default); ok {
		p.state.SleepTime = d.minSleep
	}
}

// SetMaxConnections changes the concurrent-call cap. n<=0 removes it.
func (p *Pacer) SetMaxConnections(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxConnections = n
	if n <= 0 {
		p.connTokens = nil
		return
	}
	p.connTokens = make(chan struct{}, n)
	for i := 0; i < n; i++ {
		p.connTokens <- struct{}{}
	}
}

// beginCall blocks until both a pace token and (if capped) a connection
// token are available, then schedules the pace token's return after the
// current SleepTime has elapsed.
func (p *Pacer) beginCall() {
	if p.maxConnections > 0 {
		<-p.connTokens
	}
	<-p.pacer

	p.mu.Lock()
	sleepTime := p.state.SleepTime
	p.mu.Unlock()

	go func() {
		time.Sleep(sleepTime)
		p.pacer <- struct{}{}
	}()
}

// endCall returns the connection token (if capped), updates retry state
// from the call's outcome, and recalculates SleepTime for the next call.
func (p *Pacer) endCall(retry bool, err error) {
	if p.maxConnections > 0 {
		p.connTokens <- struct{}{}
	}
	p.mu.Lock()
	if retry {
		p.state.ConsecutiveRetries++
	} else {
		p.state.ConsecutiveRetries = 0
	}
	p.state.LastError = err
	p.state.SleepTime = p.calculator.Calculate(p.state)
	p.mu.Unlock()
}

func (p *Pacer) call(fn Paced, retries int) (err error) {
	var retry bool
	for i := 0; i < retries; i++ {
		p.beginCall()
		retry, err = fn()
		p.endCall(retry, err)
		if !retry {
			break
		}
	}
	return err
}

// Call runs fn, retrying up to the configured retry count while fn asks
// for a retry.
func (p *Pacer) Call(fn Paced) error {
	p.mu.Lock()
	retries := p.retries
	p.mu.Unlock()
	return p.call(fn, retries)
}

// CallNoRetry runs fn exactly once regardless of the retry count.
func (p *Pacer) CallNoRetry(fn Paced) error {
	return p.call(fn, 1)
}
