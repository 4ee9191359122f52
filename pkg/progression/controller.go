package progression

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/questline/pkg/content"
	"github.com/jwebster45206/questline/pkg/state"
)

// Phase is where the player stands in the level sequence.
type Phase int

const (
	PhaseInProgress Phase = iota
	PhaseLevelComplete
	PhaseVictory
	PhaseGameOver
)

func (p Phase) String() string {
	switch p {
	case PhaseInProgress:
		return "in_progress"
	case PhaseLevelComplete:
		return "level_complete"
	case PhaseVictory:
		return "victory"
	case PhaseGameOver:
		return "game_over"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether only a reset can leave the phase.
func (p Phase) Terminal() bool { return p == PhaseVictory || p == PhaseGameOver }

// Transition names what a single controller call changed.
type Transition string

const (
	TransitionNone          Transition = ""
	TransitionLevelComplete Transition = "level_complete"
	TransitionLevelStarted  Transition = "level_started"
	TransitionVictory       Transition = "victory"
	TransitionGameOver      Transition = "game_over"
)

var (
	ErrNotComplete      = errors.New("current level is not complete")
	ErrLevelUnavailable = errors.New("level definition unavailable")
	ErrTerminal         = errors.New("game has ended")
)

// Status is a read-only view of the controller.
type Status struct {
	Phase     Phase  `json:"-"`
	PhaseName string `json:"phase"`
	Level     int    `json:"level"`
	LevelName string `json:"level_name,omitempty"`
}

// Controller drives level completion, advancement, victory and game over.
// Callers serialize access together with the game state it mutates.
type Controller struct {
	catalog *content.Catalog
	gs      *state.GameState
	phase   Phase
	now     func() time.Time
	logger  *slog.Logger
}

// New returns a controller for gs. Call Restore after loading a snapshot.
func New(catalog *content.Catalog, gs *state.GameState, logger *slog.Logger) *Controller {
	return &Controller{
		catalog: catalog,
		gs:      gs,
		phase:   PhaseInProgress,
		now:     time.Now,
		logger:  logger,
	}
}

// SetClock replaces the time source used on reset.
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// SetState rebinds the controller to a snapshot and restores the phase.
func (c *Controller) SetState(gs *state.GameState) {
	c.gs = gs
	c.Restore()
}

// Restore derives the phase from the snapshot.
func (c *Controller) Restore() {
	switch c.gs.Outcome {
	case state.OutcomeVictory:
		c.phase = PhaseVictory
		return
	case state.OutcomeGameOver:
		c.phase = PhaseGameOver
		return
	}
	if id := c.catalog.GameOverAchievement(); id != "" && c.gs.IsUnlocked(id) {
		c.phase = PhaseGameOver
		c.gs.Outcome = state.OutcomeGameOver
		return
	}
	lvl, ok := c.catalog.Level(c.gs.CurrentLevel)
	if ok && c.gs.IsUnlocked(lvl.CompletionAchievement) {
		c.phase = PhaseLevelComplete
		return
	}
	c.phase = PhaseInProgress
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase { return c.phase }

// CanInteract reports whether world interaction is allowed.
func (c *Controller) CanInteract() bool { return c.phase == PhaseInProgress }

// Status returns the current phase and level.
func (c *Controller) Status() Status {
	s := Status{Phase: c.phase, PhaseName: c.phase.String(), Level: c.gs.CurrentLevel}
	if lvl, ok := c.catalog.Level(c.gs.CurrentLevel); ok {
		s.LevelName = lvl.Name
	}
	return s
}

// OnUnlock reacts to an achievement unlock. Only the current level's
// completion achievement completes the level; the game over achievement
// ends the game from any non-terminal phase.
func (c *Controller) OnUnlock(id string) Transition {
	if c.phase.Terminal() {
		return TransitionNone
	}

	if gameOver := c.catalog.GameOverAchievement(); gameOver != "" && id == gameOver {
		c.phase = PhaseGameOver
		c.gs.Outcome = state.OutcomeGameOver
		c.logger.Info("Game over", "achievement", id, "level", c.gs.CurrentLevel)
		return TransitionGameOver
	}

	if c.phase != PhaseInProgress {
		return TransitionNone
	}
	lvl, ok := c.catalog.Level(c.gs.CurrentLevel)
	if !ok || id != lvl.CompletionAchievement {
		return TransitionNone
	}

	c.phase = PhaseLevelComplete
	c.gs.CompleteLevel(lvl.ID)
	c.logger.Info("Level complete", "level", lvl.ID, "name", lvl.Name)
	return TransitionLevelComplete
}

// Advance moves past a completed level after the player confirms. Past
// the final level the game is won. A missing or malformed next level is
// logged and the player stays where they are.
func (c *Controller) Advance() (Transition, error) {
	if c.phase.Terminal() {
		return TransitionNone, ErrTerminal
	}
	if c.phase != PhaseLevelComplete {
		return TransitionNone, ErrNotComplete
	}

	next := c.gs.CurrentLevel + 1
	if next > c.catalog.FinalLevel() {
		c.phase = PhaseVictory
		c.gs.Outcome = state.OutcomeVictory
		c.logger.Info("Victory", "final_level", c.gs.CurrentLevel)
		return TransitionVictory, nil
	}

	lvl, ok := c.catalog.Level(next)
	if !ok {
		c.logger.Error("Next level is missing or malformed, staying on current level",
			"current_level", c.gs.CurrentLevel,
			"next_level", next)
		return TransitionNone, fmt.Errorf("level %d: %w", next, ErrLevelUnavailable)
	}

	c.enter(lvl)
	return TransitionLevelStarted, nil
}

// enter loads a level: its achievements are locked again, transcripts are
// cleared and the player is placed at the start location.
func (c *Controller) enter(lvl content.Level) {
	c.gs.CurrentLevel = lvl.ID
	c.gs.Relock(lvl.Achievements)
	c.gs.ClearTranscripts()
	c.gs.Visit(c.startLocation(lvl))
	if lvl.TracksEnergy {
		c.gs.SetEnergy(lvl.StartingEnergy)
	}
	c.phase = PhaseInProgress
	c.logger.Info("Level started", "level", lvl.ID, "name", lvl.Name, "location", c.gs.CurrentLocation)
}

func (c *Controller) startLocation(lvl content.Level) string {
	if _, ok := c.catalog.Location(lvl.StartLocation); ok {
		return lvl.StartLocation
	}
	fallback := c.catalog.DefaultLocation()
	c.logger.Warn("Start location unavailable, using default",
		"level", lvl.ID,
		"start_location", lvl.StartLocation,
		"default_location", fallback)
	return fallback
}

// Reset starts over on level 1 with every achievement locked. Discovery
// records survive unless full is set.
func (c *Controller) Reset(full bool) error {
	c.gs.Reset(full, c.now())
	lvl, ok := c.catalog.Level(1)
	if !ok {
		c.phase = PhaseInProgress
		c.gs.Visit(c.catalog.DefaultLocation())
		return fmt.Errorf("level 1: %w", ErrLevelUnavailable)
	}
	c.enter(lvl)
	return nil
}
