package redis

import (
	"fmt"

	"github.com/mcoot/arcaderooms/internal/model"
)

// Key prefix for all arcade data
const keyPrefix = "arcade"

// roomKey returns the Redis key for a Room. Rooms are keyed by the
// case-folded code so SETNX enforces case-insensitive uniqueness.
func roomKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, code.Key())
}

// matchKey returns the Redis key for a Match
func matchKey(id model.MatchID) string {
	return fmt.Sprintf("%s:match:%s", keyPrefix, id)
}

// matchDedupIndexKey returns the Redis key for the ZSET of match ids sharing
// a de-dup key, scored by creation time in unix millis
func matchDedupIndexKey(key model.MatchKey) string {
	return fmt.Sprintf("%s:idx:match_dedup:%s", keyPrefix, key.String())
}

// matchesByAddressIndexKey returns the Redis key for the ZSET of an address's
// match ids, scored by creation time in unix millis
func matchesByAddressIndexKey(address string) string {
	return fmt.Sprintf("%s:idx:matches_by_address:%s", keyPrefix, address)
}
