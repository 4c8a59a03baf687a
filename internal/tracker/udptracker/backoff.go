package udptracker

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultBaseTimeout = 15 * time.Second
	// BEP 15: n is increased up to 8 (3840 seconds)
	defaultMaxRetries = 8
)

// udpBackOff yields base * 2^n for n in [0, maxRetries], then backoff.Stop.
type udpBackOff struct {
	base       time.Duration
	maxRetries int
	n          int
}

var _ backoff.BackOff = (*udpBackOff)(nil)

func newUDPBackOff(base time.Duration, maxRetries int) *udpBackOff {
	if base <= 0 {
		base = defaultBaseTimeout
	}
	if maxRetries < 0 || maxRetries > defaultMaxRetries {
		maxRetries = defaultMaxRetries
	}
	return &udpBackOff{base: base, maxRetries: maxRetries}
}

func (b *udpBackOff) NextBackOff() time.Duration {
	if b.n > b.maxRetries {
		return backoff.Stop
	}
	d := b.base << b.n
	b.n++
	return d
}

func (b *udpBackOff) Reset() {
	b.n = 0
}
