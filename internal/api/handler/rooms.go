package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/arcaderooms/internal/api/request"
	"github.com/mcoot/arcaderooms/internal/api/response"
	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/services/rooms"
)

// RoomNotifier pushes room changes to live push-channel sessions
type RoomNotifier interface {
	NotifyRoom(code model.RoomCode, payload any) int
}

// Notifiers fans a room update out to several push channels
type Notifiers []RoomNotifier

// NotifyRoom notifies every channel and returns the total recipient count
func (n Notifiers) NotifyRoom(code model.RoomCode, payload any) int {
	total := 0
	for _, notifier := range n {
		total += notifier.NotifyRoom(code, payload)
	}
	return total
}

// RoomHandler handles room lifecycle endpoints
type RoomHandler struct {
	coordinator *rooms.Coordinator
	notifier    RoomNotifier
	logger      *slog.Logger
}

// NewRoomHandler creates a new room handler. notifier may be nil.
func NewRoomHandler(coordinator *rooms.Coordinator, notifier RoomNotifier, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{
		coordinator: coordinator,
		notifier:    notifier,
		logger:      logger,
	}
}

func (h *RoomHandler) notify(view *model.RoomView) {
	if h.notifier == nil || view == nil {
		return
	}
	h.notifier.NotifyRoom(view.Room.Code, response.RoomFromView(view))
}

// notifyRoom re-reads the room so the pushed view carries ship loadouts
func (h *RoomHandler) notifyRoom(ctx context.Context, room *model.Room) {
	if h.notifier == nil || room == nil {
		return
	}
	view, err := h.coordinator.Get(ctx, room.Code)
	if err != nil {
		h.logger.Warn("failed to load room for push",
			slog.String("room_code", string(room.Code)),
			slog.String("error", err.Error()))
		return
	}
	h.notify(view)
}

// decodeOptional decodes a JSON body that may be absent
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Create handles POST /api/v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	res, err := h.coordinator.Create(r.Context(), rooms.CreateParams{
		Code:    model.RoomCode(req.RoomCode),
		Mode:    model.Mode(req.Mode),
		Address: req.Address,
		Ship:    req.Loadout(),
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	} else {
		h.notify(res.View)
	}
	response.JSON(w, status, response.RoomFromView(res.View))
}

// Get handles GET /api/v1/rooms/{code}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := model.RoomCode(mux.Vars(r)["code"])

	view, err := h.coordinator.Get(r.Context(), code)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RoomFromView(view))
}

// Join handles POST /api/v1/rooms/{code}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	code := model.RoomCode(mux.Vars(r)["code"])

	var req request.JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	res, err := h.coordinator.Join(r.Context(), rooms.JoinParams{
		Code:    code,
		Address: req.Address,
		Ship:    req.Loadout(),
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	if !res.AlreadyJoined {
		h.notify(res.View)
	}

	out := response.RoomFromView(res.View)
	out.AlreadyJoined = res.AlreadyJoined
	response.JSON(w, http.StatusOK, out)
}

// Ready handles POST /api/v1/rooms/{code}/ready
func (h *RoomHandler) Ready(w http.ResponseWriter, r *http.Request) {
	code := model.RoomCode(mux.Vars(r)["code"])

	var req request.ReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	if req.Ready == nil {
		WriteError(w, NewInvalidRequestError("ready is required"))
		return
	}

	view, err := h.coordinator.SetReady(r.Context(), code, req.Address, *req.Ready)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.notify(view)
	response.JSON(w, http.StatusOK, response.RoomFromView(view))
}

// Start handles POST /api/v1/rooms/{code}/start
func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.coordinator.Start)
}

// Finish handles POST /api/v1/rooms/{code}/finish
func (h *RoomHandler) Finish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.coordinator.Finish)
}

func (h *RoomHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	apply func(context.Context, rooms.TransitionParams) (*rooms.TransitionResult, error),
) {
	code := model.RoomCode(mux.Vars(r)["code"])

	var req request.TransitionRequest
	if err := decodeOptional(r, &req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	res, err := apply(r.Context(), rooms.TransitionParams{
		Code:    code,
		Address: req.Address,
		Mode:    model.Mode(req.Mode),
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	if !res.Skipped {
		h.notifyRoom(r.Context(), res.Room)
	}
	response.JSON(w, http.StatusOK, response.TransitionFromModel(res.Room))
}
