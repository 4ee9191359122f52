package game

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwebster45206/questline/internal/services/events"
	"github.com/jwebster45206/questline/internal/worker"
	"github.com/jwebster45206/questline/pkg/chat"
	"github.com/jwebster45206/questline/pkg/content"
	"github.com/jwebster45206/questline/pkg/prompts"
	"github.com/jwebster45206/questline/pkg/textfilter"
)

// Opening is how a conversation begins.
type Opening struct {
	CharacterID    string `json:"character_id"`
	Name           string `json:"name"`
	Greeting       string `json:"greeting,omitempty"`
	FirstMeeting   bool   `json:"first_meeting,omitempty"`
	Fallback       bool   `json:"fallback,omitempty"`
	Resumed        bool   `json:"resumed,omitempty"` // the character was already in conversation
	EnergyRestored int    `json:"energy_restored,omitempty"`
}

// StartConversation opens a conversation with a character at the current
// location, ending any other conversation first. Approaching the character
// already in conversation changes nothing.
func (g *Game) StartConversation(ctx context.Context, characterID string) (*Opening, error) {
	g.mu.Lock()
	ch, err := g.characterHere(characterID)
	history := g.gs.History(characterID)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	started, err := g.session.Start(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to start conversation: %w", err)
	}
	if !started {
		return &Opening{CharacterID: ch.ID, Name: displayName(ch), Resumed: true}, nil
	}

	opener := prompts.Greeting(ch, history)
	greeting, fallback := opener.Text, false
	if opener.Prompt != "" {
		reply := g.oracle.Generate(ctx, worker.Request{
			Character:    ch,
			Message:      opener.Prompt,
			History:      opener.History,
			HistoryLimit: prompts.ReturningHistoryLimit,
			FallbackText: opener.Text,
		})
		greeting, fallback = reply.Text, reply.Fallback
	}

	g.mu.Lock()
	g.begin()
	first := g.gs.Meet(ch.ID)
	restored := 0
	if ch.Restorative {
		restored = g.restoreEnergy()
	}
	g.emit(events.EventTypeConversationStarted, map[string]any{
		"character":     ch.ID,
		"first_meeting": first,
	})
	t, snap := g.end(true)
	g.mu.Unlock()

	g.log.Info("Conversation started", "character", ch.ID, "first_meeting", first, "energy_restored", restored)
	g.flush(ctx, t, snap)

	return &Opening{
		CharacterID:    ch.ID,
		Name:           displayName(ch),
		Greeting:       greeting,
		FirstMeeting:   first,
		Fallback:       fallback,
		EnergyRestored: restored,
	}, nil
}

// SendMessage sends the player's message to the character in conversation,
// records the exchange and evaluates triggers against the reply.
func (g *Game) SendMessage(ctx context.Context, message string) (*chat.ChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	characterID, epoch := g.session.Current()
	if characterID == "" {
		return nil, ErrNoConversation
	}

	g.mu.Lock()
	if !g.canInteract() {
		g.mu.Unlock()
		return nil, ErrInteractionBlocked
	}
	ch, ok := g.catalog.Character(characterID)
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownCharacter, characterID)
	}
	costs := g.tracksEnergy() && !ch.Restorative
	if costs && g.gs.SocialEnergy < g.opts.ConversationCost {
		g.mu.Unlock()
		return nil, ErrTooTired
	}
	hint, nowHelpful := g.hintFor(ch, message)
	req := worker.Request{
		Character: ch,
		Message:   message,
		History:   g.gs.History(characterID),
		Hint:      hint,
	}
	gameID, level := g.gs.ID, g.gs.CurrentLevel
	g.mu.Unlock()

	reply := g.oracle.Generate(ctx, req)

	g.mu.Lock()
	// The session lock is never held while waiting on mu.
	active, now := g.session.Current()
	if g.gs.ID != gameID || g.gs.CurrentLevel != level || active != characterID || now != epoch {
		g.mu.Unlock()
		g.log.Info("Discarding stale reply", "character", characterID, "level", level)
		return nil, ErrStaleExchange
	}
	g.begin()
	if ch.Restorative {
		g.restoreEnergy()
	}
	if nowHelpful && g.gs.MarkHelpful(characterID) {
		g.emit(events.EventTypeCharacterUnlocked, map[string]any{
			"character": characterID,
			"keyword":   hint,
		})
	}
	g.gs.AddExchange(characterID, chat.Exchange{
		Timestamp: g.now(),
		Player:    message,
		Character: reply.Text,
		Location:  g.gs.CurrentLocation,
		Level:     g.gs.CurrentLevel,
	})
	if costs && !reply.Fallback {
		if g.gs.SpendEnergy(g.opts.ConversationCost) {
			g.emitEnergy(-g.opts.ConversationCost)
		}
	}
	// Filler lines are not the character's words and never trigger.
	if !reply.Fallback {
		g.engine.Evaluate(characterID, reply.Text)
	}
	t, snap := g.end(true)
	terminal := g.terminal()
	g.mu.Unlock()

	g.flush(ctx, t, snap)
	if terminal {
		g.endConversation(ctx)
	}

	return &chat.ChatResponse{
		CharacterID: characterID,
		Message:     reply.Text,
		Fallback:    reply.Fallback,
		Unlocked:    t.unlocked,
		Transition:  string(t.transition),
	}, nil
}

// EndConversation closes the active conversation. It is safe to call when
// no conversation is open.
func (g *Game) EndConversation(ctx context.Context) error {
	if _, err := g.session.End(ctx); err != nil {
		return fmt.Errorf("failed to end conversation: %w", err)
	}
	return nil
}

// ActiveConversation returns the character in conversation, or "".
func (g *Game) ActiveConversation() string {
	return g.session.Active()
}

func (g *Game) endConversation(ctx context.Context) {
	if err := g.EndConversation(ctx); err != nil {
		g.log.Warn("Failed to end conversation", "error", err)
	}
}

// conversationEnded is the session's end hook.
func (g *Game) conversationEnded(ctx context.Context, characterID string) {
	g.mu.Lock()
	g.begin()
	g.emit(events.EventTypeConversationEnded, map[string]any{"character": characterID})
	t, snap := g.end(true)
	g.mu.Unlock()

	g.log.Info("Conversation ended", "character", characterID)
	g.flush(ctx, t, snap)
}

// characterHere checks that a conversation with id may start. Callers
// hold mu.
func (g *Game) characterHere(id string) (content.Character, error) {
	if !g.canInteract() {
		return content.Character{}, ErrInteractionBlocked
	}
	ch, ok := g.catalog.Character(id)
	if !ok {
		return content.Character{}, fmt.Errorf("%w: %s", ErrUnknownCharacter, id)
	}
	if !g.level().HasCharacter(id) || !ch.AppearsAt(g.gs.CurrentLocation) {
		return content.Character{}, fmt.Errorf("%s: %w", id, ErrNotHere)
	}
	return ch, nil
}

// hintFor returns the pool keyword the character should nudge the player
// toward. A character turns helpful the first time the player says one of
// its pool keywords as a whole word, reported by the second result, and
// keeps hinting for the rest of the game. Callers hold mu.
func (g *Game) hintFor(ch content.Character, message string) (string, bool) {
	helpful := g.gs.IsHelpful(ch.ID)
	first := ""
	for _, a := range g.catalog.AchievementsForCharacter(ch.ID, nil) {
		if a.KeywordPool == "" {
			continue
		}
		kw, ok := g.catalog.ResolveKeywordPool(a.KeywordPool)
		if !ok {
			continue
		}
		switch {
		case helpful && !g.gs.IsUnlocked(a.ID):
			return kw, false
		case !helpful && textfilter.ContainsWord(message, kw):
			return kw, true
		}
		if first == "" {
			first = kw
		}
	}
	if helpful {
		return first, false
	}
	return "", false
}

func displayName(ch content.Character) string {
	if ch.DisplayName != "" {
		return ch.DisplayName
	}
	return textfilter.DisplayName(ch.ID)
}
