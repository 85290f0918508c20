package random

import (
	"crypto/rand"
	"encoding/binary"
)

// Random provides random number generation that can be mocked for testing
type Random interface {
	// Seed returns a non-negative 63-bit value used as a room's simulation seed
	Seed() int64
}

// CryptoRandom implements Random using crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Seed returns a cryptographically random non-negative int64
func (r *CryptoRandom) Seed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		return 0
	}
	return int64(binary.BigEndian.Uint64(buf[:]) >> 1)
}
