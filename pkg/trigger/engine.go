// Package trigger decides which achievements a character's response unlocks.
//
// Matching is deliberately loose: keywords and responses are normalized
// (lowercase, underscores read as spaces) and compared by substring, so the
// keyword "go" also matches "going" and "ready" matches "i am not ready".
// Content authors pick keywords with this in mind.
package trigger

import (
	"log/slog"
	"time"

	"github.com/jwebster45206/questline/pkg/content"
	"github.com/jwebster45206/questline/pkg/state"
	"github.com/jwebster45206/questline/pkg/textfilter"
)

// Listener is told about every achievement the engine unlocks, in order,
// right after the unlock is recorded in the game state.
type Listener interface {
	AchievementUnlocked(a content.Achievement, at time.Time)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(a content.Achievement, at time.Time)

func (f ListenerFunc) AchievementUnlocked(a content.Achievement, at time.Time) { f(a, at) }

// Stats summarizes unlock progress across the catalog.
type Stats struct {
	Total      int     `json:"total"`
	Unlocked   int     `json:"unlocked"`
	Locked     int     `json:"locked"`
	Percentage float64 `json:"percentage"`
}

// Engine evaluates responses against the catalog's trigger keywords. It is
// not safe for concurrent use; callers serialize access to the game state.
type Engine struct {
	catalog  *content.Catalog
	gs       *state.GameState
	listener Listener
	now      func() time.Time
	logger   *slog.Logger
}

// New returns an engine bound to a catalog and game state. listener may be nil.
func New(catalog *content.Catalog, gs *state.GameState, listener Listener, logger *slog.Logger) *Engine {
	return &Engine{
		catalog:  catalog,
		gs:       gs,
		listener: listener,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock replaces the time source used for unlock stamps.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetState rebinds the engine to a different snapshot, e.g. after a load.
func (e *Engine) SetState(gs *state.GameState) { e.gs = gs }

// Evaluate unlocks every locked achievement of characterID whose trigger
// keywords appear in response. All matches unlock in the same pass.
func (e *Engine) Evaluate(characterID, response string) []content.Achievement {
	if characterID == "" || response == "" {
		return nil
	}
	normalized := textfilter.Normalize(response)

	var unlocked []content.Achievement
	for _, a := range e.catalog.AchievementsForCharacter(characterID, e.gs.IsUnlocked) {
		kw, ok := e.match(a.ID, normalized)
		if !ok {
			continue
		}
		e.logger.Debug("Trigger keyword matched", "achievement", a.ID, "character", characterID, "keyword", kw)
		if e.unlock(a) {
			unlocked = append(unlocked, a)
		}
	}
	return unlocked
}

func (e *Engine) match(achievementID, normalized string) (string, bool) {
	for _, kw := range e.catalog.TriggerKeywords(achievementID) {
		if textfilter.Contains(normalized, kw) {
			return kw, true
		}
	}
	return "", false
}

// Unlock is the explicit entry point for achievements that are not earned
// through conversation. It returns true only the first time an id unlocks;
// unknown ids and repeat calls return false and change nothing.
func (e *Engine) Unlock(id string) bool {
	a, ok := e.catalog.Achievement(id)
	if !ok {
		e.logger.Warn("Unlock requested for unknown achievement", "achievement", id)
		return false
	}
	return e.unlock(a)
}

func (e *Engine) unlock(a content.Achievement) bool {
	at := e.now()
	if !e.gs.MarkUnlocked(a.ID, at) {
		return false
	}
	e.logger.Info("Achievement unlocked", "achievement", a.ID, "title", a.Title)
	if e.listener != nil {
		e.listener.AchievementUnlocked(a, at)
	}
	return true
}

// Stats counts unlocked achievements against the whole catalog.
func (e *Engine) Stats() Stats {
	ids := e.catalog.AchievementIDs()
	s := Stats{Total: len(ids)}
	for _, id := range ids {
		if e.gs.IsUnlocked(id) {
			s.Unlocked++
		}
	}
	s.Locked = s.Total - s.Unlocked
	if s.Total > 0 {
		s.Percentage = float64(s.Unlocked) / float64(s.Total) * 100
	}
	return s
}
