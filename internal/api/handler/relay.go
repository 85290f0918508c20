package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/arcaderooms/internal/api/request"
	"github.com/mcoot/arcaderooms/internal/api/response"
	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/services/relay"
)

// RelayHandler handles the pull transport endpoints
type RelayHandler struct {
	service *relay.Service
}

// NewRelayHandler creates a new relay handler
func NewRelayHandler(service *relay.Service) *RelayHandler {
	return &RelayHandler{service: service}
}

// UpdatePlayer handles POST /api/v1/relay/update-player
func (h *RelayHandler) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	var req request.UpdatePlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	state, err := h.service.UpdatePlayer(model.RoomCode(req.RoomCode), req.Address, req.Update())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UpdatePlayerResponse{
		Success: true,
		Player:  response.ParticipantFromModel(state),
	})
}

// Players handles GET /api/v1/relay/players/{code}/{address}
func (h *RelayHandler) Players(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	others, err := h.service.OtherPlayers(model.RoomCode(vars["code"]), vars["address"])
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayersResponse{
		Players: response.ParticipantsFromModel(others),
	})
}

// Cleanup handles POST /api/v1/relay/cleanup
func (h *RelayHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.CleanupFromResult(h.service.Cleanup()))
}

// Stats handles GET /api/v1/relay/stats
func (h *RelayHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.service.Stats())
}
