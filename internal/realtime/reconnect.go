package realtime

import (
	"sync"
	"time"
)

// reconnectPolicy tracks the retry budget after an unexpected close. The
// default is a fixed interval between attempts; a multiplier above 1 grows
// the delay per attempt, capped at maxInterval.
type reconnectPolicy struct {
	mu          sync.Mutex
	attempts    int
	maxAttempts int
	interval    time.Duration
	maxInterval time.Duration
	multiplier  float64
	timer       *time.Timer
}

func newReconnectPolicy(maxAttempts int, interval, maxInterval time.Duration, multiplier float64) *reconnectPolicy {
	if multiplier < 1 {
		multiplier = 1
	}
	if maxInterval <= 0 {
		maxInterval = interval
	}
	return &reconnectPolicy{
		maxAttempts: maxAttempts,
		interval:    interval,
		maxInterval: maxInterval,
		multiplier:  multiplier,
	}
}

// shouldRetry reports whether the attempt budget allows another reconnect.
func (p *reconnectPolicy) shouldRetry() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts < p.maxAttempts
}

// attemptsMade returns the number of reconnect attempts fired since the last
// reset.
func (p *reconnectPolicy) attemptsMade() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// scheduleNext arms a one-shot timer for the next retry. When it fires, the
// attempt counter is incremented and cb is invoked. Any previously pending
// timer is replaced.
func (p *reconnectPolicy) scheduleNext(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	delay := p.nextIntervalLocked()
	p.timer = time.AfterFunc(delay, func() {
		p.mu.Lock()
		p.attempts++
		p.mu.Unlock()
		cb()
	})
}

// cancel stops a pending retry timer before it fires. A timer that already
// fired runs its callback, which must re-check client state.
func (p *reconnectPolicy) cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// reset zeroes the attempt counter. Called on every successful connected
// transition so a connection that stays up has a fresh budget for its next
// failure.
func (p *reconnectPolicy) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = 0
}

func (p *reconnectPolicy) nextIntervalLocked() time.Duration {
	delay := p.interval
	for i := 0; i < p.attempts; i++ {
		delay = time.Duration(float64(delay) * p.multiplier)
		if delay >= p.maxInterval {
			return p.maxInterval
		}
	}
	if delay > p.maxInterval {
		delay = p.maxInterval
	}
	return delay
}
