package game

import (
	"context"
	"fmt"
	"time"

	"github.com/jwebster45206/questline/internal/services/events"
	"github.com/jwebster45206/questline/pkg/actor"
	"github.com/jwebster45206/questline/pkg/content"
	"github.com/jwebster45206/questline/pkg/progression"
	"github.com/jwebster45206/questline/pkg/state"
	"github.com/jwebster45206/questline/pkg/textfilter"
	"github.com/jwebster45206/questline/pkg/trigger"
)

// Ref names something the player can see.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Place describes the player's location.
type Place struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Energy is the social energy meter on levels that track it.
type Energy struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Recruits is the labyrinth defense assembled so far.
type Recruits struct {
	Monsters  []string `json:"monsters"`
	TrapMaker string   `json:"trap_maker,omitempty"`
}

// Status is what the player needs to render the current scene.
type Status struct {
	progression.Status
	GameID       string                `json:"game_id"`
	Title        string                `json:"title"`
	Minimal      bool                  `json:"minimal,omitempty"`
	Outcome      string                `json:"outcome,omitempty"`
	Location     Place                 `json:"location"`
	Characters   []Ref                 `json:"characters"`
	Items        []Ref                 `json:"items"`
	Exits        []Ref                 `json:"exits"`
	Conversation string                `json:"conversation,omitempty"`
	Energy       *Energy               `json:"energy,omitempty"`
	Recruits     Recruits              `json:"recruits"`
	Intel        state.AdventurerStats `json:"adventurer_intel"`
	Achievements trigger.Stats         `json:"achievements"`
}

// ItemView is the result of examining an item.
type ItemView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	FirstTime   bool     `json:"first_time"`
	Unlocked    []string `json:"unlocked,omitempty"`
}

// AchievementView is one catalog achievement with its unlock state.
type AchievementView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Hint        string     `json:"hint,omitempty"`
	Level       int        `json:"level,omitempty"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
	Disabled    bool       `json:"disabled,omitempty"`
}

// Status returns the current scene.
func (g *Game) Status() Status {
	active := g.session.Active()

	g.mu.Lock()
	defer g.mu.Unlock()

	lvl := g.level()
	locID := g.gs.CurrentLocation
	loc, _ := g.catalog.Location(locID)

	s := Status{
		Status:       g.ctrl.Status(),
		GameID:       g.gs.ID.String(),
		Title:        g.catalog.Title(),
		Minimal:      g.minimal,
		Outcome:      g.gs.Outcome,
		Location:     Place{ID: locID, Name: placeName(loc), Description: loc.Description},
		Characters:   []Ref{},
		Items:        []Ref{},
		Exits:        []Ref{},
		Conversation: active,
		Recruits: Recruits{
			Monsters:  append([]string{}, g.gs.RecruitedMonsters...),
			TrapMaker: g.gs.HiredTrapMaker,
		},
		Intel:        g.gs.AdventurerIntel,
		Achievements: g.engine.Stats(),
	}
	if g.minimal {
		s.LevelName = ""
	}

	for _, ch := range g.catalog.CharactersAt(lvl, locID) {
		s.Characters = append(s.Characters, Ref{ID: ch.ID, Name: displayName(ch)})
	}
	for _, it := range g.catalog.ItemsAt(lvl, locID) {
		s.Items = append(s.Items, Ref{ID: it.ID, Name: itemName(it)})
	}
	for _, id := range loc.ConnectsTo {
		if !lvl.HasLocation(id) {
			continue
		}
		next, ok := g.catalog.Location(id)
		if !ok {
			continue
		}
		s.Exits = append(s.Exits, Ref{ID: id, Name: placeName(next)})
	}
	if g.tracksEnergy() {
		s.Energy = &Energy{Current: g.gs.SocialEnergy, Max: g.gs.MaxSocialEnergy}
	}
	return s
}

// Achievements lists every catalog achievement with its unlock state.
// Hints are only shown for locked achievements.
func (g *Game) Achievements() ([]AchievementView, trigger.Stats) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := g.catalog.AchievementIDs()
	out := make([]AchievementView, 0, len(ids))
	for _, id := range ids {
		a, ok := g.catalog.Achievement(id)
		if !ok {
			continue
		}
		v := AchievementView{
			ID:          id,
			Title:       a.Title,
			Description: a.Description,
			Level:       g.catalog.LevelOf(id),
			Unlocked:    g.gs.IsUnlocked(id),
			Disabled:    g.catalog.Disabled(id),
		}
		if at, ok := g.gs.UnlockedAt(id); ok && v.Unlocked {
			v.UnlockedAt = &at
		}
		if !v.Unlocked {
			v.Hint = a.Hint
		}
		out = append(out, v)
	}
	return out, g.engine.Stats()
}

// MoveTo walks to a location on the current level. A conversation with a
// character who is not at the new location ends.
func (g *Game) MoveTo(ctx context.Context, locationID string) error {
	g.mu.Lock()
	if !g.canInteract() {
		g.mu.Unlock()
		return ErrInteractionBlocked
	}
	if _, ok := g.catalog.Location(locationID); !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownLocation, locationID)
	}
	if !g.level().HasLocation(locationID) {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s is not part of level %d", ErrUnknownLocation, locationID, g.gs.CurrentLevel)
	}

	g.begin()
	first := g.gs.Visit(locationID)
	g.emit(events.EventTypeGameStateUpdated, map[string]any{
		"location":    locationID,
		"first_visit": first,
	})
	t, snap := g.end(true)
	g.mu.Unlock()

	g.log.Info("Moved", "location", locationID, "first_visit", first)
	g.flush(ctx, t, snap)

	if active := g.session.Active(); active != "" {
		if ch, ok := g.catalog.Character(active); !ok || !ch.AppearsAt(locationID) {
			g.endConversation(ctx)
		}
	}
	return nil
}

// ExamineItem looks at an item at the current location. Items that carry
// an achievement unlock it.
func (g *Game) ExamineItem(ctx context.Context, itemID string) (*ItemView, error) {
	g.mu.Lock()
	if !g.canInteract() {
		g.mu.Unlock()
		return nil, ErrInteractionBlocked
	}
	it, ok := g.catalog.Item(itemID)
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if !g.level().HasItem(itemID) || !it.AppearsAt(g.gs.CurrentLocation) {
		g.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", itemID, ErrNotHere)
	}

	g.begin()
	first := g.gs.Examine(itemID)
	if it.UnlocksAchievement != "" {
		g.engine.Unlock(it.UnlocksAchievement)
	}
	if first {
		g.emit(events.EventTypeGameStateUpdated, map[string]any{"examined": itemID})
	}
	t, snap := g.end(first || len(g.turn.unlocked) > 0)
	terminal := g.terminal()
	g.mu.Unlock()

	g.flush(ctx, t, snap)
	if terminal {
		g.endConversation(ctx)
	}

	return &ItemView{
		ID:          it.ID,
		Name:        itemName(it),
		Description: it.Description,
		FirstTime:   first,
		Unlocked:    t.unlocked,
	}, nil
}

// Showdown pits the recruited defense against the adventurer. Winning
// completes the final level and losing ends the game.
func (g *Game) Showdown(ctx context.Context) (*actor.ShowdownResult, error) {
	g.mu.Lock()
	if g.minimal || g.gs.CurrentLevel != g.catalog.FinalLevel() {
		g.mu.Unlock()
		return nil, ErrShowdownUnavailable
	}
	if !g.ctrl.CanInteract() {
		g.mu.Unlock()
		return nil, ErrInteractionBlocked
	}
	adv, err := actor.AdventurerFromStats(g.gs.HiddenAdventurer)
	if err != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("failed to load adventurer: %w", err)
	}

	monsters := make([]content.Character, 0, len(g.gs.RecruitedMonsters))
	for _, id := range g.gs.RecruitedMonsters {
		if ch, ok := g.catalog.Character(id); ok {
			monsters = append(monsters, ch)
		}
	}
	var trapMaker *content.Character
	if ch, ok := g.catalog.Character(g.gs.HiredTrapMaker); ok {
		trapMaker = &ch
	}

	res := actor.Showdown(adv, monsters, trapMaker)

	g.begin()
	g.emit(events.EventTypeShowdownResolved, map[string]any{
		"success":   res.Success,
		"score":     res.Score,
		"max_score": res.MaxScore,
	})
	if res.Success {
		if lvl, ok := g.catalog.Level(g.gs.CurrentLevel); ok {
			g.engine.Unlock(lvl.CompletionAchievement)
		}
	} else if id := g.catalog.GameOverAchievement(); id != "" {
		g.engine.Unlock(id)
	}
	t, snap := g.end(true)
	terminal := g.terminal()
	g.mu.Unlock()

	g.log.Info("Showdown resolved", "success", res.Success, "score", res.Score)
	g.flush(ctx, t, snap)
	if terminal {
		g.endConversation(ctx)
	}
	return &res, nil
}

func placeName(l content.Location) string {
	if l.DisplayName != "" {
		return l.DisplayName
	}
	return textfilter.DisplayName(l.ID)
}

func itemName(it content.Item) string {
	if it.DisplayName != "" {
		return it.DisplayName
	}
	return textfilter.DisplayName(it.ID)
}
