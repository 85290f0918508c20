package model

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// MaxRoomCodeLength bounds caller-chosen room codes
const MaxRoomCodeLength = 64

// RoomCode is the caller-chosen identifier of a room.
// Lookups are case-insensitive, storage keeps the original casing.
type RoomCode string

// Key returns the case-folded form used for lookups and cache keys
func (c RoomCode) Key() string {
	return strings.ToLower(string(c))
}

// Validate rejects empty, oversized or whitespace-bearing codes
func (c RoomCode) Validate() error {
	switch {
	case c == "":
		return fmt.Errorf("%w: room code is required", ErrValidation)
	case len(c) > MaxRoomCodeLength:
		return fmt.Errorf("%w: room code exceeds %d characters", ErrValidation, MaxRoomCodeLength)
	case strings.IndexFunc(string(c), unicode.IsSpace) >= 0:
		return fmt.Errorf("%w: room code must not contain whitespace", ErrValidation)
	}
	return nil
}

// Mode is the kind of session a room hosts
type Mode string

const (
	ModeSolo        Mode = "solo"
	ModeVersus      Mode = "versus"
	ModeMultiplayer Mode = "multiplayer"
)

// ValidModes returns the closed set of accepted modes
func ValidModes() []Mode {
	return []Mode{ModeSolo, ModeVersus, ModeMultiplayer}
}

// IsValid reports whether m is one of the accepted modes
func (m Mode) IsValid() bool {
	switch m {
	case ModeSolo, ModeVersus, ModeMultiplayer:
		return true
	default:
		return false
	}
}

// RoomStatus is the lifecycle phase of a room
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusPlaying  RoomStatus = "playing"
	RoomStatusFinished RoomStatus = "finished"
)

// rank orders statuses; status never moves to a lower rank
func (s RoomStatus) rank() int {
	switch s {
	case RoomStatusWaiting:
		return 0
	case RoomStatusPlaying:
		return 1
	case RoomStatusFinished:
		return 2
	default:
		return -1
	}
}

// Before reports whether s comes strictly earlier than other in the lifecycle
func (s RoomStatus) Before(other RoomStatus) bool {
	return s.rank() < other.rank()
}

// Role identifies a participant slot in a room
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Room is the durable record of a session
type Room struct {
	Code         RoomCode   `json:"code"`
	Mode         Mode       `json:"mode"`
	HostAddress  string     `json:"host_address"`
	GuestAddress string     `json:"guest_address,omitempty"` // empty when no guest has joined
	HostReady    bool       `json:"host_ready"`
	GuestReady   bool       `json:"guest_ready"`
	Status       RoomStatus `json:"status"`
	Seed         int64      `json:"seed"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasGuest returns true once a guest holds the second slot
func (r *Room) HasGuest() bool {
	return r.GuestAddress != ""
}

// RoleOf resolves an address to its slot in the room
func (r *Room) RoleOf(address string) (Role, bool) {
	switch {
	case address == "":
		return "", false
	case address == r.HostAddress:
		return RoleHost, true
	case address == r.GuestAddress:
		return RoleGuest, true
	default:
		return "", false
	}
}

// Advance moves the room forward to status. It returns false when the room
// is already at or past that status.
func (r *Room) Advance(status RoomStatus, now time.Time) bool {
	if !r.Status.Before(status) {
		return false
	}
	r.Status = status
	r.UpdatedAt = now
	return true
}

// Clone returns a copy safe to hand out of a store
func (r *Room) Clone() *Room {
	c := *r
	return &c
}

// RoomView is a room together with both participants' loadouts
type RoomView struct {
	Room      Room
	HostShip  ShipLoadout
	GuestShip *ShipLoadout // nil while there is no guest
}
