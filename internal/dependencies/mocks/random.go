package mocks

import (
	"sync"

	"github.com/mcoot/arcaderooms/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing
type MockRandom struct {
	mu sync.Mutex

	// SeedResults is a queue of results to return from Seed
	SeedResults []int64
	seedIndex   int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Seed returns the next queued seed, or 0 if none remaining
func (r *MockRandom) Seed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seedIndex >= len(r.SeedResults) {
		return 0
	}
	result := r.SeedResults[r.seedIndex]
	r.seedIndex++
	return result
}

// QueueSeed adds values to the Seed result queue
func (r *MockRandom) QueueSeed(values ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SeedResults = append(r.SeedResults, values...)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SeedResults = nil
	r.seedIndex = 0
}
