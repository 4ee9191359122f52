package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/questline/internal/game"
	"github.com/jwebster45206/questline/pkg/trigger"
)

// LocationsHandler moves the player.
// POST /v1/locations/{id}
type LocationsHandler struct {
	game   Game
	logger *slog.Logger
}

func NewLocationsHandler(g Game, logger *slog.Logger) *LocationsHandler {
	return &LocationsHandler{game: g, logger: logger}
}

func (h *LocationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.logger, http.MethodPost)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/locations"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid path. Expected /v1/locations/{id}")
		return
	}

	if err := h.game.MoveTo(r.Context(), id); err != nil {
		writeGameError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, h.game.Status())
}

// ItemsHandler examines items.
// POST /v1/items/{id}/examine
type ItemsHandler struct {
	game   Game
	logger *slog.Logger
}

func NewItemsHandler(g Game, logger *slog.Logger) *ItemsHandler {
	return &ItemsHandler{game: g, logger: logger}
}

func (h *ItemsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.logger, http.MethodPost)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/items"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "examine" {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid path. Expected /v1/items/{id}/examine")
		return
	}

	view, err := h.game.ExamineItem(r.Context(), parts[0])
	if err != nil {
		writeGameError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, view)
}

// AchievementsResponse lists every achievement with overall progress.
type AchievementsResponse struct {
	Achievements []game.AchievementView `json:"achievements"`
	Stats        trigger.Stats          `json:"stats"`
}

// AchievementsHandler serves GET /v1/achievements.
type AchievementsHandler struct {
	game   Game
	logger *slog.Logger
}

func NewAchievementsHandler(g Game, logger *slog.Logger) *AchievementsHandler {
	return &AchievementsHandler{game: g, logger: logger}
}

func (h *AchievementsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}
	views, stats := h.game.Achievements()
	writeJSON(w, h.logger, http.StatusOK, AchievementsResponse{Achievements: views, Stats: stats})
}

// ShowdownHandler runs the final confrontation.
// POST /v1/showdown
type ShowdownHandler struct {
	game   Game
	logger *slog.Logger
}

func NewShowdownHandler(g Game, logger *slog.Logger) *ShowdownHandler {
	return &ShowdownHandler{game: g, logger: logger}
}

func (h *ShowdownHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.logger, http.MethodPost)
		return
	}
	res, err := h.game.Showdown(r.Context())
	if err != nil {
		writeGameError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}
