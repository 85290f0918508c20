package storage

import (
	"context"
	"time"

	"github.com/mcoot/arcaderooms/internal/model"
)

// InsertResult reports the outcome of an insert-or-fetch
type InsertResult struct {
	// Room is the stored room: the inserted one when Created, otherwise the
	// row that already held the code
	Room    *model.Room
	Created bool
}

// RoomStore persists rooms. Codes are unique case-insensitively.
type RoomStore interface {
	// InsertRoom stores room unless a room with the same case-folded code
	// exists, in which case the existing room is returned with Created=false.
	InsertRoom(ctx context.Context, room *model.Room) (InsertResult, error)

	// GetRoom returns the room whose code matches exactly
	GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error)

	// FindRoomFold returns the room whose code matches case-insensitively
	FindRoomFold(ctx context.Context, code model.RoomCode) (*model.Room, error)

	// UpdateRoom atomically loads the room matching code case-insensitively,
	// applies mutate and writes the result. An error from mutate aborts the
	// write and is returned unchanged.
	UpdateRoom(ctx context.Context, code model.RoomCode, mutate func(*model.Room) error) (*model.Room, error)
}

// MatchStore persists match results
type MatchStore interface {
	// FindRecentMatch returns the newest match carrying key created at or
	// after since, or ErrMatchNotFound
	FindRecentMatch(ctx context.Context, key model.MatchKey, since time.Time) (*model.Match, error)

	InsertMatch(ctx context.Context, match *model.Match) error

	// ListMatches returns an address's matches, newest first
	ListMatches(ctx context.Context, address string, limit int) ([]*model.Match, error)
}

// Storage defines the interface for data persistence
type Storage interface {
	RoomStore
	MatchStore

	// Ping checks the backing store is reachable
	Ping(ctx context.Context) error
	Close() error
}
