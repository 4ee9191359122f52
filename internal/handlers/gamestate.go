package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/questline/pkg/progression"
)

// ResetRequest is the body of POST /v1/gamestate/reset.
type ResetRequest struct {
	Full bool `json:"full"` // also forget visited locations, examined items and met characters
}

// AdvanceResponse reports what confirming a completed level did.
type AdvanceResponse struct {
	Transition progression.Transition `json:"transition"`
	Status     any                    `json:"status"`
}

type GameStateHandler struct {
	game   Game
	logger *slog.Logger
}

func NewGameStateHandler(g Game, logger *slog.Logger) *GameStateHandler {
	return &GameStateHandler{game: g, logger: logger}
}

// ServeHTTP handles HTTP requests for game state operations
// Routes:
// GET  /v1/gamestate         - Current scene and progress
// POST /v1/gamestate/reset   - Start over on level 1
// POST /v1/gamestate/advance - Confirm a completed level
func (h *GameStateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/gamestate"), "/")

	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, h.logger, http.MethodGet)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, h.game.Status())

	case "reset":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, h.logger, http.MethodPost)
			return
		}
		var req ResetRequest
		if err := decodeBody(r, &req); err != nil {
			h.logger.Warn("Invalid reset request body", "error", err)
			writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with optional 'full' field.")
			return
		}
		if err := h.game.Reset(r.Context(), req.Full); err != nil {
			writeGameError(w, h.logger, err)
			return
		}
		h.logger.Info("Game reset requested", "full", req.Full)
		writeJSON(w, h.logger, http.StatusOK, h.game.Status())

	case "advance":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, h.logger, http.MethodPost)
			return
		}
		tr, err := h.game.Advance(r.Context())
		if err != nil {
			writeGameError(w, h.logger, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, AdvanceResponse{Transition: tr, Status: h.game.Status()})

	default:
		writeError(w, h.logger, http.StatusNotFound, "Unknown game state action: "+action)
	}
}
