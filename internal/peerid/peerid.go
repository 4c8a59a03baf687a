package peerid

import (
	"crypto/rand"
	"errors"
)

const Size = 20

var ErrPrefixTooLong = errors.New("peer id prefix longer than 20 bytes")

// New returns prefix followed by random bytes, see BEP 20 for prefix conventions.
func New(prefix string) ([Size]byte, error) {
	var id [Size]byte
	if len(prefix) > Size {
		return id, ErrPrefixTooLong
	}

	n := copy(id[:], prefix)
	if _, err := rand.Read(id[n:]); err != nil {
		return id, err
	}
	return id, nil
}
