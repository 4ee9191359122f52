package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/questline/internal/game"
	"github.com/jwebster45206/questline/pkg/actor"
	"github.com/jwebster45206/questline/pkg/chat"
	"github.com/jwebster45206/questline/pkg/progression"
	"github.com/jwebster45206/questline/pkg/trigger"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// Game is the playthrough the HTTP API drives. *game.Game implements it.
type Game interface {
	Status() game.Status
	Advance(ctx context.Context) (progression.Transition, error)
	Reset(ctx context.Context, full bool) error

	StartConversation(ctx context.Context, characterID string) (*game.Opening, error)
	SendMessage(ctx context.Context, message string) (*chat.ChatResponse, error)
	EndConversation(ctx context.Context) error
	ActiveConversation() string

	MoveTo(ctx context.Context, locationID string) error
	ExamineItem(ctx context.Context, itemID string) (*game.ItemView, error)
	Achievements() ([]game.AchievementView, trigger.Stats)
	Showdown(ctx context.Context) (*actor.ShowdownResult, error)
}

var _ Game = (*game.Game)(nil)

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	writeJSON(w, log, status, ErrorResponse{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, log *slog.Logger, allowed string) {
	log.Warn("Method not allowed", "method", r.Method, "path", r.URL.Path)
	w.Header().Set("Allow", allowed)
	writeError(w, log, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: "+allowed)
}

// writeGameError maps game errors to client statuses. Anything unexpected
// is logged and reported as a 500 without details.
func writeGameError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrUnknownLocation),
		errors.Is(err, game.ErrUnknownItem),
		errors.Is(err, game.ErrUnknownCharacter):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, game.ErrTooTired):
		status = http.StatusTooManyRequests
	case errors.Is(err, game.ErrNotHere),
		errors.Is(err, game.ErrInteractionBlocked),
		errors.Is(err, game.ErrNoConversation),
		errors.Is(err, game.ErrNotComplete),
		errors.Is(err, game.ErrTerminal),
		errors.Is(err, game.ErrShowdownUnavailable),
		errors.Is(err, game.ErrStaleExchange):
		status = http.StatusConflict
	case errors.Is(err, game.ErrLevelUnavailable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}

	if status == http.StatusInternalServerError {
		log.Error("Game operation failed", "error", err)
		writeError(w, log, status, "Internal server error")
		return
	}
	log.Debug("Game operation rejected", "error", err, "status", status)
	writeError(w, log, status, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
