package model

import (
	"strconv"
	"time"
)

// MatchID uniquely identifies a recorded match
type MatchID string

// Match is the durable record of a finished session's result
type Match struct {
	ID        MatchID   `json:"id"`
	RoomCode  *RoomCode `json:"room_code,omitempty"` // nil for matches played outside a room
	Address   string    `json:"address"`
	Score     int64     `json:"score"`
	Coins     int64     `json:"coins"`
	Mode      Mode      `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

// DedupKey returns the identity used to detect repeated submissions
func (m *Match) DedupKey() MatchKey {
	return MatchKey{RoomCode: m.RoomCode, Address: m.Address, Score: m.Score}
}

// MatchKey identifies submissions that count as duplicates of each other
type MatchKey struct {
	RoomCode *RoomCode
	Address  string
	Score    int64
}

// String renders the key for index and lock names. The room code is length
// prefixed so codes and addresses containing ':' cannot collide.
func (k MatchKey) String() string {
	room := "none"
	if k.RoomCode != nil {
		code := k.RoomCode.Key()
		room = "room=" + strconv.Itoa(len(code)) + ":" + code
	}
	return room + ":" + strconv.FormatInt(k.Score, 10) + ":" + k.Address
}

// Matches reports whether m carries this key
func (k MatchKey) Matches(m *Match) bool {
	if m.Address != k.Address || m.Score != k.Score {
		return false
	}
	if k.RoomCode == nil || m.RoomCode == nil {
		return k.RoomCode == nil && m.RoomCode == nil
	}
	return k.RoomCode.Key() == m.RoomCode.Key()
}
