package model

import "errors"

// Common errors used across the application
var (
	// Request errors
	ErrValidation = errors.New("invalid request")

	// Room errors
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room already has a guest")
	ErrNotMultiplayer   = errors.New("room is not a multiplayer room")
	ErrHostCannotJoin   = errors.New("host cannot join own room as guest")
	ErrRoomNotJoinable  = errors.New("room is no longer accepting guests")
	ErrModeLocked       = errors.New("mode cannot change while a guest is present")
	ErrNotParticipant   = errors.New("address is neither host nor guest of this room")
	ErrRoomNotPersisted = errors.New("room was created but could not be read back")

	// Match errors
	ErrMatchNotFound = errors.New("match not found")

	// Storage errors
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ErrorKind is the machine-readable class of a failure
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindNotFound         ErrorKind = "not_found"
	KindForbidden        ErrorKind = "forbidden"
	KindConflict         ErrorKind = "conflict"
	KindStoreUnavailable ErrorKind = "store_unavailable"
	KindInternal         ErrorKind = "internal"
)

// KindOf classifies err into one of the error kinds
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrMatchNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotParticipant):
		return KindForbidden
	case errors.Is(err, ErrRoomFull),
		errors.Is(err, ErrNotMultiplayer),
		errors.Is(err, ErrHostCannotJoin),
		errors.Is(err, ErrRoomNotJoinable),
		errors.Is(err, ErrModeLocked):
		return KindConflict
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}
