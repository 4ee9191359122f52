package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/questline/pkg/chat"
)

// StartConversationRequest is the body of POST /v1/conversation.
type StartConversationRequest struct {
	CharacterID string `json:"character_id"`
}

// ConversationState is the body of GET /v1/conversation.
type ConversationState struct {
	CharacterID string `json:"character_id,omitempty"`
	Active      bool   `json:"active"`
}

type ConversationHandler struct {
	game   Game
	logger *slog.Logger
}

func NewConversationHandler(g Game, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{game: g, logger: logger}
}

// ServeHTTP routes:
// GET    /v1/conversation          - Who the player is talking to
// POST   /v1/conversation          - Start talking to a character
// DELETE /v1/conversation          - Walk away
// POST   /v1/conversation/messages - Say something
func (h *ConversationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/conversation"), "/")

	switch rest {
	case "":
		switch r.Method {
		case http.MethodGet:
			id := h.game.ActiveConversation()
			writeJSON(w, h.logger, http.StatusOK, ConversationState{CharacterID: id, Active: id != ""})
		case http.MethodPost:
			h.handleStart(w, r)
		case http.MethodDelete:
			if err := h.game.EndConversation(r.Context()); err != nil {
				writeGameError(w, h.logger, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, h.logger, "GET, POST, DELETE")
		}

	case "messages":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, h.logger, http.MethodPost)
			return
		}
		h.handleMessage(w, r)

	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *ConversationHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartConversationRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.CharacterID) == "" {
		h.logger.Warn("Invalid conversation request", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'character_id' field.")
		return
	}

	opening, err := h.game.StartConversation(r.Context(), req.CharacterID)
	if err != nil {
		writeGameError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, opening)
}

func (h *ConversationHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req chat.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'message' field.")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	resp, err := h.game.SendMessage(r.Context(), req.Message)
	if err != nil {
		writeGameError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
