package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/arcaderooms/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeValidation       = "VALIDATION_ERROR"
	CodeRoomNotFound     = "ROOM_NOT_FOUND"
	CodeMatchNotFound    = "MATCH_NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeRoomFull         = "ROOM_FULL"
	CodeInvalidState     = "INVALID_STATE"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeRoomNotPersisted = "ROOM_NOT_PERSISTED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// StatusOf returns the HTTP status WriteError would use for err
func StatusOf(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch model.KindOf(err) {
	case model.KindValidation:
		// The wrapped detail names the offending field
		return &httpError{http.StatusBadRequest, APIError{CodeValidation, err.Error()}}

	case model.KindNotFound:
		if errors.Is(err, model.ErrMatchNotFound) {
			return &httpError{http.StatusNotFound, APIError{CodeMatchNotFound, "Match not found"}}
		}
		return &httpError{http.StatusNotFound, APIError{CodeRoomNotFound, "Room not found"}}

	case model.KindForbidden:
		return &httpError{http.StatusForbidden, APIError{CodeForbidden, "Address is not a participant of this room"}}

	case model.KindConflict:
		if errors.Is(err, model.ErrRoomFull) {
			return &httpError{http.StatusConflict, APIError{CodeRoomFull, "Room already has a guest"}}
		}
		return &httpError{http.StatusConflict, APIError{CodeInvalidState, unwrapSentinel(err)}}

	case model.KindStoreUnavailable:
		return &httpError{http.StatusServiceUnavailable, APIError{CodeStoreUnavailable, "Store unavailable, retry later"}}
	}

	if errors.Is(err, model.ErrRoomNotPersisted) {
		return &httpError{http.StatusInternalServerError, APIError{CodeRoomNotPersisted, "Room was created but could not be confirmed"}}
	}
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}

// unwrapSentinel returns the message of the conflict sentinel inside err so
// internal wrapping context is not leaked to clients
func unwrapSentinel(err error) string {
	for _, sentinel := range []error{
		model.ErrNotMultiplayer,
		model.ErrHostCannotJoin,
		model.ErrRoomNotJoinable,
		model.ErrModeLocked,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "Invalid room state"
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
