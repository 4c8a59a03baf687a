package udptracker

import (
	"fmt"
	"sync"
)

// transactionRegistry routes responses to the session waiting on their transaction id.
type transactionRegistry struct {
	mu           sync.RWMutex
	transactions map[uint32]chan<- []byte
}

// register returns false if the id is already taken by another request.
func (r *transactionRegistry) register(id uint32, c chan<- []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.transactions == nil {
		r.transactions = make(map[uint32]chan<- []byte)
	}
	if _, ok := r.transactions[id]; ok {
		return false
	}
	r.transactions[id] = c
	return true
}

func (r *transactionRegistry) forget(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transactions, id)
}

func (r *transactionRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transactions)
}

// dispatch hands b to the owner of its transaction id without blocking the reader.
func (r *transactionRegistry) dispatch(b []byte) (uint32, error) {
	_, id, err := peekHeader(b)
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.transactions[id]
	if !ok {
		return id, fmt.Errorf("unknown transaction id %d", id)
	}

	select {
	case c <- b:
		return id, nil
	default:
		return id, fmt.Errorf("inbound queue of transaction id %d is full", id)
	}
}
