package gateway

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/rs/zerolog/log"
)

// StateHandler serves the REST side of the auction.
type StateHandler struct {
	coordinator Coordinator
	manager     *ConnectionManager
}

// NewStateHandler creates a new state handler
func NewStateHandler(coordinator Coordinator, manager *ConnectionManager) *StateHandler {
	return &StateHandler{coordinator: coordinator, manager: manager}
}

// HandleConnection upgrades GET /ws. Groups are joined with join-room messages.
func (h *StateHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if _, err := h.manager.UpgradeConnection(w, r); err != nil {
		// the upgrader has already replied
		log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats handles GET /ws/stats
func (h *StateHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.GetConnectionStats())
}

// HandleGetGroupState handles GET /api/groups/{groupID}/state
func (h *StateHandler) HandleGetGroupState(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")

	snap, err := h.coordinator.Snapshot(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type placeBidRequest struct {
	ParticipantID string `json:"participantId"`
	TeamID        string `json:"teamId"`
	Amount        int64  `json:"amount"`
}

// HandlePlaceBid handles POST /api/groups/{groupID}/bids
func (h *StateHandler) HandlePlaceBid(w http.ResponseWriter, r *http.Request) {
	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	bid, err := h.coordinator.PlaceBid(r.Context(), auction.BidRequest{
		GroupID:       r.PathValue("groupID"),
		TeamID:        req.TeamID,
		ParticipantID: req.ParticipantID,
		Amount:        req.Amount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

// HandlePause handles POST /api/auction/pause with {"duration": minutes}
func (h *StateHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequestData
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	if err := h.coordinator.Pause(r.Context(), minutes(req.Duration)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleReset handles POST /api/groups/{groupID}/reset
func (h *StateHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Reset(r.Context(), r.PathValue("groupID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterRoutes registers websocket and state routes
func (h *StateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("GET /api/groups/{groupID}/state", h.HandleGetGroupState)
	mux.HandleFunc("POST /api/groups/{groupID}/bids", h.HandlePlaceBid)
	mux.HandleFunc("POST /api/groups/{groupID}/reset", h.HandleReset)
	mux.HandleFunc("POST /api/auction/pause", h.HandlePause)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auction.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auction.ErrInvalidBid):
		status = http.StatusBadRequest
	case errors.Is(err, auction.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, auction.ErrNotRunning), errors.Is(err, auction.ErrGroupActive):
		status = http.StatusConflict
	case errors.Is(err, auction.ErrClosed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, ErrorData{Message: err.Error()})
}
