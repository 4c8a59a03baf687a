package udptracker

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// transactionContext is owned by a single session and never shared.
type transactionContext struct {
	transactionID      uint32
	connectionID       uint64
	connectionIssuedAt time.Time
	retryCount         int
	// last message the tracker sent with an error action
	lastTrackerError string
}

func (c *transactionContext) connected() bool {
	return !c.connectionIssuedAt.IsZero()
}

func (c *transactionContext) connectionExpired(now time.Time, ttl time.Duration) bool {
	return !c.connected() || now.Sub(c.connectionIssuedAt) >= ttl
}

// Random values must be unpredictable to keep off-path attackers from forging responses.
func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func randomTransactionID() uint32 {
	return randomUint32()
}

func randomKey() uint32 {
	return randomUint32()
}
