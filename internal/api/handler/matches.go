package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/arcaderooms/internal/api/request"
	"github.com/mcoot/arcaderooms/internal/api/response"
	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/services/matches"
)

// MatchHandler handles match result endpoints
type MatchHandler struct {
	recorder *matches.Recorder
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(recorder *matches.Recorder) *MatchHandler {
	return &MatchHandler{recorder: recorder}
}

// Save handles POST /api/v1/matches/save
func (h *MatchHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req request.SaveMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	res, err := h.recorder.Submit(r.Context(), matches.SubmitParams{
		RoomCode: req.Code(),
		Address:  req.Address,
		Score:    req.Score,
		Coins:    req.Coins,
		Mode:     model.Mode(req.Mode),
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	response.JSON(w, status, response.SaveMatchResponse{
		Match:     response.MatchFromModel(res.Match),
		Duplicate: res.Duplicate,
	})
}

// List handles GET /api/v1/matches/{address}
func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, NewInvalidRequestError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	list, err := h.recorder.List(r.Context(), address, limit)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MatchListResponse{
		Matches: response.MatchesFromModel(list),
	})
}
