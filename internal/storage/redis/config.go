package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// RoomTTL bounds how long an untouched room is retained; zero keeps rooms forever
	RoomTTL time.Duration

	// MatchTTL bounds match retention; zero keeps matches forever
	MatchTTL time.Duration

	// DedupIndexTTL is how long a match stays discoverable by its de-dup key.
	// It must exceed the recorder's de-dup window.
	DedupIndexTTL time.Duration

	// MaxTxRetries caps optimistic transaction retries on write conflicts
	MaxTxRetries int
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:           "redis://localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		RoomTTL:       24 * time.Hour,
		MatchTTL:      0,
		DedupIndexTTL: time.Hour,
		MaxTxRetries:  50,
	}
}
