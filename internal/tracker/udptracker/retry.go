package udptracker

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryScheduler drives the timeouts of one outstanding request.
//
// Every Arm waits for the next attempt of the BEP 15 schedule: 15s, 30s, 60s ... 3840s.
// The callback learns whether the timed out attempt was the last one, in which case
// the request must be given up instead of retransmitted.
type RetryScheduler struct {
	clock  Clock
	policy *udpBackOff

	mu      sync.Mutex
	timer   Timer
	attempt int
	// bumped on every Arm and Cancel so a timer that already fired cannot report
	gen uint64
}

func NewRetryScheduler(clock Clock, base time.Duration, maxRetries int) *RetryScheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &RetryScheduler{
		clock:   clock,
		policy:  newUDPBackOff(base, maxRetries),
		attempt: -1,
	}
}

// Arm starts a single shot timer for the next attempt, replacing a pending one.
// It returns false when the retry budget is already spent.
func (r *RetryScheduler) Arm(onTimeout func(exhausted bool)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()

	d := r.policy.NextBackOff()
	if d == backoff.Stop {
		return false
	}

	r.attempt++
	exhausted := r.attempt >= r.policy.maxRetries
	gen := r.gen

	r.timer = r.clock.AfterFunc(d, func() {
		r.mu.Lock()
		if gen != r.gen {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		r.mu.Unlock()

		onTimeout(exhausted)
	})

	return true
}

// Cancel stops the pending timer. The attempt counter is kept.
func (r *RetryScheduler) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

// Reset cancels the pending timer and starts the schedule over for a new request.
func (r *RetryScheduler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.policy.Reset()
	r.attempt = -1
}

// Attempt is the zero based index of the last armed attempt, -1 if none.
func (r *RetryScheduler) Attempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

func (r *RetryScheduler) stopLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
