package game

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/questline/internal/services"
	"github.com/jwebster45206/questline/internal/services/events"
	"github.com/jwebster45206/questline/internal/storage"
	"github.com/jwebster45206/questline/internal/worker"
	"github.com/jwebster45206/questline/pkg/content"
	"github.com/jwebster45206/questline/pkg/progression"
	"github.com/jwebster45206/questline/pkg/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeOracle answers with a fixed line unless respond is set.
type fakeOracle struct {
	mu      sync.Mutex
	text    string
	respond func(req worker.Request) worker.Reply
	calls   []worker.Request
}

func (f *fakeOracle) Generate(_ context.Context, req worker.Request) worker.Reply {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn, text := f.respond, f.text
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return worker.Reply{Text: text}
}

func (f *fakeOracle) say(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
	f.respond = nil
}

func (f *fakeOracle) Calls() []worker.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]worker.Request(nil), f.calls...)
}

type fixture struct {
	game    *Game
	oracle  *fakeOracle
	events  *events.Recorder
	backend *storage.MemoryBackend
	store   *storage.SnapshotStore
	catalog *content.Catalog
}

func defaultContent(t *testing.T) content.Content {
	t.Helper()
	c, err := content.Default()
	require.NoError(t, err)
	return c
}

func newFixture(t *testing.T, c content.Content, mutate ...func(*Options)) *fixture {
	t.Helper()
	backend := storage.NewMemoryBackend()
	f := &fixture{
		oracle:  &fakeOracle{text: "..."},
		events:  &events.Recorder{},
		backend: backend,
		store:   storage.NewSnapshotStore(backend, "", testLogger()),
		catalog: content.New(c, content.WithSeed(7)),
	}
	f.game = f.build(t, mutate...)
	return f
}

func (f *fixture) build(t *testing.T, mutate ...func(*Options)) *Game {
	t.Helper()
	opts := Options{
		Catalog:          f.catalog,
		Store:            f.store,
		Oracle:           f.oracle,
		Events:           f.events,
		Logger:           testLogger(),
		AutosaveInterval: -1,
		Rand:             rand.New(rand.NewPCG(1, 2)),
	}
	for _, m := range mutate {
		m(&opts)
	}
	g, err := New(opts)
	require.NoError(t, err)
	return g
}

func startedFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, defaultContent(t))
	require.NoError(t, f.game.Start(context.Background()))
	t.Cleanup(func() { _ = f.game.Close(context.Background()) })
	return f
}

// toLevel unlocks completion achievements until the game stands on level n.
func (f *fixture) toLevel(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()
	for f.game.Snapshot().CurrentLevel < n {
		lvl, ok := f.catalog.Level(f.game.Snapshot().CurrentLevel)
		require.True(t, ok)
		require.True(t, f.game.Unlock(ctx, lvl.CompletionAchievement))
		tr, err := f.game.Advance(ctx)
		require.NoError(t, err)
		require.Equal(t, progression.TransitionLevelStarted, tr)
	}
}

func (f *fixture) count(typ events.EventType) int {
	n := 0
	for _, got := range f.events.Types() {
		if got == typ {
			n++
		}
	}
	return n
}

func TestNew_RequiresDependencies(t *testing.T) {
	cat := content.New(defaultContent(t))
	store := storage.NewSnapshotStore(storage.NewMemoryBackend(), "", testLogger())

	_, err := New(Options{Store: store, Oracle: &fakeOracle{}})
	assert.Error(t, err)
	_, err = New(Options{Catalog: cat, Oracle: &fakeOracle{}})
	assert.Error(t, err)
	_, err = New(Options{Catalog: cat, Store: store})
	assert.Error(t, err)
}

func TestGame_NewGameStartsOnLevelOne(t *testing.T) {
	f := startedFixture(t)

	snap := f.game.Snapshot()
	assert.Equal(t, 1, snap.CurrentLevel)
	assert.Equal(t, "bedroom", snap.CurrentLocation)
	assert.NotEmpty(t, snap.HiddenAdventurer.Fear)
	assert.Empty(t, snap.AdventurerIntel.Fear)

	saved, ok := f.store.Load(context.Background())
	require.True(t, ok, "a new game is saved right away")
	assert.Equal(t, snap.ID, saved.ID)

	assert.ErrorIs(t, f.game.Start(context.Background()), ErrAlreadyStarted)
}

func TestGame_Status(t *testing.T) {
	f := startedFixture(t)

	s := f.game.Status()
	assert.Equal(t, "in_progress", s.PhaseName)
	assert.Equal(t, 1, s.Level)
	assert.Equal(t, "Home Sweet Home", s.LevelName)
	assert.Equal(t, "Anxiety Minotaur", s.Title)
	assert.Equal(t, Place{ID: "bedroom", Name: "Bedroom", Description: s.Location.Description}, s.Location)
	assert.Equal(t, []Ref{{ID: "duck", Name: "Duck Companion"}}, s.Characters)
	assert.Equal(t, []Ref{{ID: "moms_letter", Name: "Mom's Letter"}}, s.Items)
	assert.Equal(t, []Ref{{ID: "livingroom", Name: "Living Room"}}, s.Exits)
	assert.Nil(t, s.Energy, "level 1 does not track energy")
	assert.Empty(t, s.Conversation)
	assert.Equal(t, 0, s.Achievements.Unlocked)
}

// The canonical flow: a duck reply containing "ready" completes level 1 and
// the player confirms into level 2.
func TestGame_DuckCompletesLevelOne(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()

	opening, err := f.game.StartConversation(ctx, "duck")
	require.NoError(t, err)
	assert.True(t, opening.FirstMeeting)
	assert.Contains(t, opening.Greeting, "Quack")
	assert.Empty(t, f.oracle.Calls(), "a restorative character's greeting is scripted")

	f.oracle.say("Quack! I'm ready for the day!")
	resp, err := f.game.SendMessage(ctx, "Do you think I'm ready?")
	require.NoError(t, err)

	assert.Equal(t, "duck", resp.CharacterID)
	assert.Equal(t, "Quack! I'm ready for the day!", resp.Message)
	assert.ElementsMatch(t, []string{"READY_FOR_THE_DAY", "TALKED_TO_DUCK"}, resp.Unlocked)
	assert.Equal(t, string(progression.TransitionLevelComplete), resp.Transition)
	assert.Equal(t, "level_complete", f.game.Status().PhaseName)

	_, err = f.game.SendMessage(ctx, "Let's keep talking")
	assert.ErrorIs(t, err, ErrInteractionBlocked)
	assert.ErrorIs(t, f.game.MoveTo(ctx, "livingroom"), ErrInteractionBlocked)

	tr, err := f.game.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, progression.TransitionLevelStarted, tr)

	snap := f.game.Snapshot()
	assert.Equal(t, 2, snap.CurrentLevel)
	assert.Equal(t, "outside_labyrinth", snap.CurrentLocation)
	assert.Empty(t, snap.ConversationHistories, "transcripts are cleared between levels")
	assert.Equal(t, 5, snap.SocialEnergy)
	assert.Contains(t, snap.CompletedLevels, 1)
	assert.Empty(t, f.game.ActiveConversation(), "advancing ends the conversation")

	types := f.events.Types()
	assert.Contains(t, types, events.EventTypeAchievementUnlocked)
	assert.Contains(t, types, events.EventTypeLevelCompleted)
	assert.Contains(t, types, events.EventTypeLevelStarted)
	assert.Contains(t, types, events.EventTypeConversationEnded)
	assert.Equal(t, 2, f.count(events.EventTypeAchievementUnlocked))

	saved, ok := f.store.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, saved.CurrentLevel)
}

func TestGame_AdvanceBeforeComplete(t *testing.T) {
	f := startedFixture(t)

	_, err := f.game.Advance(context.Background())
	assert.ErrorIs(t, err, ErrNotComplete)
	assert.Equal(t, 1, f.game.Snapshot().CurrentLevel)
}

func TestGame_ConversationErrors(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()

	_, err := f.game.StartConversation(ctx, "gardener_pig")
	assert.ErrorIs(t, err, ErrNotHere)
	_, err = f.game.StartConversation(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUnknownCharacter)
	_, err = f.game.StartConversation(ctx, "troll")
	assert.ErrorIs(t, err, ErrNotHere, "characters outside the level are not reachable")

	_, err = f.game.SendMessage(ctx, "hello?")
	assert.ErrorIs(t, err, ErrNoConversation)

	_, err = f.game.StartConversation(ctx, "duck")
	require.NoError(t, err)
	_, err = f.game.SendMessage(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestGame_ApproachingActiveCharacterResumes(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()

	_, err := f.game.StartConversation(ctx, "duck")
	require.NoError(t, err)
	again, err := f.game.StartConversation(ctx, "duck")
	require.NoError(t, err)

	assert.True(t, again.Resumed)
	assert.Empty(t, again.Greeting)
	assert.Equal(t, 1, f.count(events.EventTypeConversationStarted))
	assert.Equal(t, 0, f.count(events.EventTypeConversationEnded))
}

func TestGame_SwitchingCharactersEndsPrevious(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()
	f.toLevel(t, 2)

	_, err := f.game.StartConversation(ctx, "skeleton_warrior")
	require.NoError(t, err)
	_, err = f.game.StartConversation(ctx, "troll")
	require.NoError(t, err)

	assert.Equal(t, "troll", f.game.ActiveConversation())

	var order []string
	for _, e := range f.events.Events() {
		switch e.Type {
		case events.EventTypeConversationStarted, events.EventTypeConversationEnded:
			order = append(order, string(e.Type)+":"+e.Data["character"].(string))
		}
	}
	assert.Equal(t, []string{
		"conversation.started:skeleton_warrior",
		"conversation.ended:skeleton_warrior",
		"conversation.started:troll",
	}, order)
}

func TestGame_ReturningGreetingUsesOracle(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()
	require.NoError(t, f.game.MoveTo(ctx, "livingroom"))

	opening, err := f.game.StartConversation(ctx, "gardener_pig")
	require.NoError(t, err)
	assert.True(t, opening.FirstMeeting)
	assert.Contains(t, opening.Greeting, "garden-related")

	_, err = f.game.SendMessage(ctx, "What do you need?")
	require.NoError(t, err)
	require.NoError(t, f.game.EndConversation(ctx))

	f.oracle.say("Oh! You came back!")
	opening, err = f.game.StartConversation(ctx, "gardener_pig")
	require.NoError(t, err)

	assert.False(t, opening.FirstMeeting)
	assert.Equal(t, "Oh! You came back!", opening.Greeting)
	calls := f.oracle.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 3, calls[1].HistoryLimit)
	assert.Len(t, calls[1].History, 1)
	assert.NotEmpty(t, calls[1].FallbackText)
}

func TestGame_HintWhenPlayerSaysPoolKeyword(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()
	kw, ok := f.catalog.ResolveKeywordPool("PIG")
	require.True(t, ok)

	require.NoError(t, f.game.MoveTo(ctx, "livingroom"))
	_, err := f.game.StartConversation(ctx, "gardener_pig")
	require.NoError(t, err)

	_, err = f.game.SendMessage(ctx, "How are the roses?")
	require.NoError(t, err)
	_, err = f.game.SendMessage(ctx, "The seeds are "+kw+"ish")
	require.NoError(t, err)
	assert.False(t, f.game.Snapshot().IsHelpful("gardener_pig"), "part of a word does not count")

	f.oracle.say("Oh! " + strings.ToUpper(kw) + "! Thank you so much!")
	resp, err := f.game.SendMessage(ctx, "The seeds are "+strings.ToUpper(kw)+"!")
	require.NoError(t, err)

	calls := f.oracle.Calls()
	require.Len(t, calls, 3)
	assert.Empty(t, calls[0].Hint)
	assert.Empty(t, calls[1].Hint)
	assert.Equal(t, kw, calls[2].Hint)
	assert.Equal(t, []string{"HELPED_PIG"}, resp.Unlocked)
	assert.Empty(t, resp.Transition)

	var unlocked []events.Event
	for _, ev := range f.events.Events() {
		if ev.Type == events.EventTypeCharacterUnlocked {
			unlocked = append(unlocked, ev)
		}
	}
	require.Len(t, unlocked, 1)
	assert.Equal(t, "gardener_pig", unlocked[0].Data["character"])
	assert.Equal(t, kw, unlocked[0].Data["keyword"])

	f.oracle.say("Anything else?")
	_, err = f.game.SendMessage(ctx, "Lovely weather today")
	require.NoError(t, err)
	assert.Equal(t, kw, f.oracle.Calls()[3].Hint, "the pig keeps hinting after the achievement")
	assert.Equal(t, 1, f.count(events.EventTypeCharacterUnlocked))

	saved, ok := f.store.Load(ctx)
	require.True(t, ok)
	assert.True(t, saved.IsHelpful("gardener_pig"))

	require.NoError(t, f.game.Reset(ctx, false))
	assert.False(t, f.game.Snapshot().IsHelpful("gardener_pig"), "a new game starts unhelped")
}

func TestGame_FallbackRepliesNeverTrigger(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()
	f.oracle.respond = func(worker.Request) worker.Reply {
		return worker.Reply{Text: "Quack... I'm ready, I think?", Fallback: true}
	}

	_, err := f.game.StartConversation(ctx, "duck")
	require.NoError(t, err)
	resp, err := f.game.SendMessage(ctx, "ready?")
	require.NoError(t, err)

	assert.True(t, resp.Fallback)
	assert.Empty(t, resp.Unlocked)
	assert.Equal(t, "in_progress", f.game.Status().PhaseName)
	assert.Len(t, f.game.Snapshot().History("duck"), 1, "the exchange is still recorded")
}

func TestGame_SocialEnergy(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()
	f.toLevel(t, 2)

	require.NotNil(t, f.game.Status().Energy)
	assert.Equal(t, Energy{Current: 5, Max: 5}, *f.game.Status().Energy)

	_, err := f.game.StartConversation(ctx, "troll")
	require.NoError(t, err)
	f.oracle.say("Grumble.")
	for range 5 {
		_, err := f.game.SendMessage(ctx, "Want a job?")
		require.NoError(t, err)
	}
	assert.Equal(t, 0, f.game.Snapshot().SocialEnergy)

	_, err = f.game.SendMessage(ctx, "Please?")
	assert.ErrorIs(t, err, ErrTooTired)
	assert.Len(t, f.game.Snapshot().History("troll"), 5, "a tired player sends nothing")

	opening, err := f.game.StartConversation(ctx, "duck")
	require.NoError(t, err)
	assert.Equal(t, DefaultEnergyRestore, opening.EnergyRestored)

	f.oracle.say("Quack!")
	_, err = f.game.SendMessage(ctx, "Thanks duck")
	require.NoError(t, err)
	assert.Equal(t, 4, f.game.Snapshot().SocialEnergy, "talking to the duck is free and restorative")

	_, err = f.game.StartConversation(ctx, "troll")
	require.NoError(t, err)
	_, err = f.game.SendMessage(ctx, "Back again")
	require.NoError(t, err)
	assert.Equal(t, 3, f.game.Snapshot().SocialEnergy)
	assert.Positive(t, f.count(events.EventTypeEnergyChanged))
}

func TestGame_FallbackRepliesAreFree(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()
	f.toLevel(t, 2)
	f.oracle.respond = func(worker.Request) worker.Reply {
		return worker.Reply{Text: "...", Fallback: true}
	}

	_, err := f.game.StartConversation(ctx, "troll")
	require.NoError(t, err)
	_, err = f.game.SendMessage(ctx, "Hello?")
	require.NoError(t, err)

	assert.Equal(t, 5, f.game.Snapshot().SocialEnergy)
}

func TestGame_RecruitmentCompletesLevelTwo(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()
	f.toLevel(t, 2)

	talk := func(character, reply string) []string {
		t.Helper()
		_, err := f.game.StartConversation(ctx, character)
		require.NoError(t, err)
		f.oracle.say(reply)
		resp, err := f.game.SendMessage(ctx, "Will you join my labyrinth?")
		require.NoError(t, err)
		return resp.Unlocked
	}

	assert.Equal(t, []string{"RECRUITED_SKELETON"}, talk("skeleton_warrior", "Fine. You have a deal."))
	assert.Equal(t, []string{"RECRUITED_TROLL"}, talk("troll", "Bridge? You have a deal!"))
	assert.Equal(t, "in_progress", f.game.Status().PhaseName)

	unlocked := talk("cogwheel_kate", "Contract signed!")
	assert.Equal(t, []string{"HIRED_COGWHEEL_KATE", "RECRUITMENT_COMPLETE"}, unlocked)
	assert.Equal(t, "level_complete", f.game.Status().PhaseName)

	snap := f.game.Snapshot()
	assert.Equal(t, []string{"skeleton_warrior", "troll"}, snap.RecruitedMonsters)
	assert.Equal(t, "cogwheel_kate", snap.HiredTrapMaker)
	assert.Equal(t, 2, snap.SocialEnergy)

	s := f.game.Status()
	assert.Equal(t, Recruits{Monsters: []string{"skeleton_warrior", "troll"}, TrapMaker: "cogwheel_kate"}, s.Recruits)
}

func TestGame_IntelReveals(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()
	f.toLevel(t, 2)

	require.NoError(t, f.game.MoveTo(ctx, "forest"))
	_, err := f.game.StartConversation(ctx, "owl_informant")
	require.NoError(t, err)
	f.oracle.say("Its fear runs deep.")
	resp, err := f.game.SendMessage(ctx, "Tell me about the adventurer")
	require.NoError(t, err)

	assert.Equal(t, []string{"LEARNED_FEAR_LEVEL"}, resp.Unlocked)
	snap := f.game.Snapshot()
	assert.Equal(t, snap.HiddenAdventurer.Fear, snap.AdventurerIntel.Fear)
	assert.Empty(t, snap.AdventurerIntel.Greed)
	assert.Equal(t, snap.HiddenAdventurer.Fear, f.game.Status().Intel.Fear)
}

func TestGame_MoveAndExamine(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.game.MoveTo(ctx, "forest"), ErrUnknownLocation, "not part of level 1")
	assert.ErrorIs(t, f.game.MoveTo(ctx, "atlantis"), ErrUnknownLocation)

	require.NoError(t, f.game.MoveTo(ctx, "livingroom"))
	_, err := f.game.ExamineItem(ctx, "moms_letter")
	assert.ErrorIs(t, err, ErrNotHere)
	_, err = f.game.ExamineItem(ctx, "crown")
	assert.ErrorIs(t, err, ErrUnknownItem)

	require.NoError(t, f.game.MoveTo(ctx, "bedroom"))
	view, err := f.game.ExamineItem(ctx, "moms_letter")
	require.NoError(t, err)
	assert.True(t, view.FirstTime)
	assert.Equal(t, "Mom's Letter", view.Name)
	assert.Equal(t, []string{"READ_MOMS_LETTER"}, view.Unlocked)

	view, err = f.game.ExamineItem(ctx, "moms_letter")
	require.NoError(t, err)
	assert.False(t, view.FirstTime)
	assert.Empty(t, view.Unlocked)

	snap := f.game.Snapshot()
	assert.ElementsMatch(t, []string{"bedroom", "livingroom"}, snap.VisitedLocations)
	assert.Equal(t, []string{"moms_letter"}, snap.ExaminedItems)
}

func TestGame_ItemDescriptionCarriesPoolKeyword(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()
	kw, _ := f.catalog.ResolveKeywordPool("PIG")

	require.NoError(t, f.game.MoveTo(ctx, "garden"))
	view, err := f.game.ExamineItem(ctx, "seed_packet")
	require.NoError(t, err)
	assert.Contains(t, view.Description, "'"+kw+"'")
}

func TestGame_MovingAwayEndsConversation(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()

	_, err := f.game.StartConversation(ctx, "duck")
	require.NoError(t, err)

	require.NoError(t, f.game.MoveTo(ctx, "garden"))
	assert.Equal(t, "duck", f.game.ActiveConversation(), "the duck is in the garden too")

	require.NoError(t, f.game.MoveTo(ctx, "livingroom"))
	assert.Empty(t, f.game.ActiveConversation())
	assert.Equal(t, 1, f.count(events.EventTypeConversationEnded))
}

func TestGame_Achievements(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()
	require.True(t, f.game.Unlock(ctx, "READ_MOMS_LETTER"))
	assert.False(t, f.game.Unlock(ctx, "READ_MOMS_LETTER"))
	assert.False(t, f.game.Unlock(ctx, "NOT_AN_ACHIEVEMENT"))

	views, stats := f.game.Achievements()
	assert.Equal(t, len(f.catalog.AchievementIDs()), stats.Total)
	assert.Equal(t, 1, stats.Unlocked)

	byID := make(map[string]AchievementView, len(views))
	for _, v := range views {
		byID[v.ID] = v
	}
	letter := byID["READ_MOMS_LETTER"]
	assert.True(t, letter.Unlocked)
	assert.NotNil(t, letter.UnlockedAt)
	assert.Equal(t, 1, letter.Level)

	duck := byID["TALKED_TO_DUCK"]
	assert.False(t, duck.Unlocked)
	assert.Nil(t, duck.UnlockedAt)
	assert.Equal(t, "What sound do ducks make?", duck.Hint)
}

func adventurerSave(t *testing.T, f *fixture, monsters []string, trapMaker string) {
	t.Helper()
	gs := state.New(state.Options{
		Adventurer: state.AdventurerStats{Fear: "fear_high", Greed: "greed_high", Pride: "pride_low"},
		Now:        time.Now(),
	})
	gs.CurrentLevel = 3
	gs.Visit("inside_labyrinth")
	for _, id := range monsters {
		require.NoError(t, gs.RecruitMonster(id))
	}
	if trapMaker != "" {
		require.NoError(t, gs.HireTrapMaker(trapMaker))
	}
	require.True(t, f.store.Save(context.Background(), gs))
}

func TestGame_ShowdownVictory(t *testing.T) {
	f := newFixture(t, defaultContent(t))
	ctx := context.Background()
	adventurerSave(t, f, []string{"skeleton_warrior", "dragon_hatchling"}, "pit_boss_pete")
	require.NoError(t, f.game.Start(ctx))
	defer f.game.Close(ctx)

	res, err := f.game.Showdown(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.GreaterOrEqual(t, res.Score, 60)

	assert.Equal(t, "level_complete", f.game.Status().PhaseName)
	assert.Equal(t, 1, f.count(events.EventTypeShowdownResolved))

	tr, err := f.game.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, progression.TransitionVictory, tr)

	s := f.game.Status()
	assert.Equal(t, "victory", s.PhaseName)
	assert.Equal(t, state.OutcomeVictory, s.Outcome)
	assert.Contains(t, f.events.Types(), events.EventTypeVictory)

	_, err = f.game.Advance(ctx)
	assert.ErrorIs(t, err, ErrTerminal)
	_, err = f.game.StartConversation(ctx, "duck")
	assert.ErrorIs(t, err, ErrInteractionBlocked)
}

func TestGame_ShowdownDefeat(t *testing.T) {
	f := newFixture(t, defaultContent(t))
	ctx := context.Background()
	adventurerSave(t, f, nil, "")
	require.NoError(t, f.game.Start(ctx))
	defer f.game.Close(ctx)

	_, err := f.game.StartConversation(ctx, "duck")
	require.NoError(t, err)

	res, err := f.game.Showdown(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Score)

	s := f.game.Status()
	assert.Equal(t, "game_over", s.PhaseName)
	assert.Equal(t, state.OutcomeGameOver, s.Outcome)
	assert.True(t, f.game.Snapshot().IsUnlocked("ADVENTURER_ESCAPED"))
	assert.Empty(t, f.game.ActiveConversation(), "game over ends the conversation")
	assert.Contains(t, f.events.Types(), events.EventTypeGameOver)

	_, err = f.game.Showdown(ctx)
	assert.ErrorIs(t, err, ErrInteractionBlocked)
}

func TestGame_ShowdownOnlyOnFinalLevel(t *testing.T) {
	f := startedFixture(t)

	_, err := f.game.Showdown(context.Background())
	assert.ErrorIs(t, err, ErrShowdownUnavailable)
}

func TestGame_Reset(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()

	require.NoError(t, f.game.MoveTo(ctx, "livingroom"))
	_, err := f.game.StartConversation(ctx, "gardener_pig")
	require.NoError(t, err)
	f.toLevel(t, 2)
	before := f.game.Snapshot()

	require.NoError(t, f.game.Reset(ctx, false))

	snap := f.game.Snapshot()
	assert.NotEqual(t, before.ID, snap.ID)
	assert.Equal(t, 1, snap.CurrentLevel)
	assert.Equal(t, "bedroom", snap.CurrentLocation)
	assert.Empty(t, snap.UnlockedAchievements)
	assert.Empty(t, snap.CompletedLevels)
	assert.Contains(t, snap.VisitedLocations, "livingroom", "discovery survives a soft reset")
	assert.Contains(t, snap.MetCharacters, "gardener_pig")
	assert.Empty(t, f.game.ActiveConversation())
	assert.Contains(t, f.events.Types(), events.EventTypeGameReset)

	saved, ok := f.store.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, snap.ID, saved.ID)

	require.NoError(t, f.game.Reset(ctx, true))
	snap = f.game.Snapshot()
	assert.Equal(t, []string{"bedroom"}, snap.VisitedLocations)
	assert.Empty(t, snap.MetCharacters)
}

func TestGame_ResetDuringReplyIsStale(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	f.oracle.respond = func(worker.Request) worker.Reply {
		close(entered)
		<-release
		return worker.Reply{Text: "Quack, ready!"}
	}
	_, err := f.game.StartConversation(ctx, "duck")
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := f.game.SendMessage(ctx, "ready?")
		errc <- err
	}()
	<-entered
	require.NoError(t, f.game.Reset(ctx, false))
	close(release)

	assert.ErrorIs(t, <-errc, ErrStaleExchange)
	snap := f.game.Snapshot()
	assert.Empty(t, snap.UnlockedAchievements)
	assert.Empty(t, snap.ConversationHistories)
}

func TestGame_ReplyAfterConversationMovesOnIsStale(t *testing.T) {
	tests := []struct {
		name      string
		interrupt func(t *testing.T, f *fixture)
		level     int
	}{
		{
			name: "level advanced",
			interrupt: func(t *testing.T, f *fixture) {
				ctx := context.Background()
				require.True(t, f.game.Unlock(ctx, "READY_FOR_THE_DAY"))
				_, err := f.game.Advance(ctx)
				require.NoError(t, err)
			},
			level: 2,
		},
		{
			name: "conversation ended",
			interrupt: func(t *testing.T, f *fixture) {
				require.NoError(t, f.game.EndConversation(context.Background()))
			},
			level: 1,
		},
		{
			name: "conversation ended and reopened",
			interrupt: func(t *testing.T, f *fixture) {
				ctx := context.Background()
				require.NoError(t, f.game.EndConversation(ctx))
				_, err := f.game.StartConversation(ctx, "duck")
				require.NoError(t, err)
			},
			level: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := startedFixture(t)
			ctx := context.Background()

			_, err := f.game.StartConversation(ctx, "duck")
			require.NoError(t, err)

			entered := make(chan struct{})
			release := make(chan struct{})
			f.oracle.respond = func(worker.Request) worker.Reply {
				close(entered)
				<-release
				return worker.Reply{Text: "Quack! I'm ready for the day!"}
			}

			errc := make(chan error, 1)
			go func() {
				_, err := f.game.SendMessage(ctx, "ready?")
				errc <- err
			}()
			<-entered
			tt.interrupt(t, f)
			close(release)

			assert.ErrorIs(t, <-errc, ErrStaleExchange)
			snap := f.game.Snapshot()
			assert.Equal(t, tt.level, snap.CurrentLevel)
			assert.Empty(t, snap.History("duck"), "the late reply is not recorded")
			assert.False(t, snap.IsUnlocked("TALKED_TO_DUCK"))
		})
	}
}

func TestGame_ResumesSavedGame(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()

	require.NoError(t, f.game.MoveTo(ctx, "garden"))
	require.True(t, f.game.Unlock(ctx, "READ_MOMS_LETTER"))
	id := f.game.Snapshot().ID
	require.NoError(t, f.game.Close(ctx))

	again := f.build(t)
	require.NoError(t, again.Start(ctx))
	defer again.Close(ctx)

	snap := again.Snapshot()
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, "garden", snap.CurrentLocation)
	assert.True(t, snap.IsUnlocked("READ_MOMS_LETTER"))
	assert.Equal(t, snap.HiddenAdventurer, f.game.Snapshot().HiddenAdventurer)
}

func TestGame_UnknownSavedLocationFallsBack(t *testing.T) {
	f := newFixture(t, defaultContent(t))
	ctx := context.Background()
	gs := state.New(state.Options{Now: time.Now()})
	gs.Visit("demolished_tower")
	require.True(t, f.store.Save(ctx, gs))

	require.NoError(t, f.game.Start(ctx))
	defer f.game.Close(ctx)
	assert.Equal(t, "bedroom", f.game.Snapshot().CurrentLocation)
}

func TestGame_MinimalMode(t *testing.T) {
	c := defaultContent(t)
	c.Levels = nil
	f := newFixture(t, c)
	ctx := context.Background()
	require.NoError(t, f.game.Start(ctx))
	defer f.game.Close(ctx)

	assert.True(t, f.game.Minimal())
	assert.Equal(t, "bedroom", f.game.Snapshot().CurrentLocation)
	assert.True(t, f.game.Status().Minimal)

	require.NoError(t, f.game.MoveTo(ctx, "forest"), "every location is reachable")
	_, err := f.game.StartConversation(ctx, "owl_informant")
	require.NoError(t, err)

	f.oracle.say("Fear, greed and pride.")
	resp, err := f.game.SendMessage(ctx, "Tell me everything")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Unlocked)
	assert.Empty(t, resp.Transition)

	_, err = f.game.Advance(ctx)
	assert.ErrorIs(t, err, ErrLevelUnavailable)
	_, err = f.game.Showdown(ctx)
	assert.ErrorIs(t, err, ErrShowdownUnavailable)
	assert.Equal(t, "in_progress", f.game.Status().PhaseName)
}

func TestGame_Autosave(t *testing.T) {
	f := newFixture(t, defaultContent(t), func(o *Options) { o.AutosaveInterval = 5 * time.Millisecond })
	ctx := context.Background()
	require.NoError(t, f.game.Start(ctx))

	initial := f.backend.SetCount()
	require.Eventually(t, func() bool { return f.backend.SetCount() >= initial+3 }, time.Second, time.Millisecond)

	require.NoError(t, f.game.Close(ctx))
	after := f.backend.SetCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, f.backend.SetCount(), "autosave stops on close")
}

func TestGame_CloseReportsSaveFailure(t *testing.T) {
	f := newFixture(t, defaultContent(t))
	ctx := context.Background()
	require.NoError(t, f.game.Start(ctx))

	f.backend.SetSetError(assert.AnError)
	assert.ErrorIs(t, f.game.Close(ctx), ErrSaveFailed)
}

// gatedStore holds the first save after arm until release is closed.
type gatedStore struct {
	*storage.SnapshotStore
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	s.entered = make(chan struct{})
	s.release = make(chan struct{})
}

func (s *gatedStore) Save(ctx context.Context, gs *state.GameState) bool {
	s.mu.Lock()
	gated := s.armed
	s.armed = false
	entered, release := s.entered, s.release
	s.mu.Unlock()
	if gated {
		close(entered)
		<-release
	}
	return s.SnapshotStore.Save(ctx, gs)
}

func TestGame_SlowSaveDoesNotOverwriteNewerState(t *testing.T) {
	f := newFixture(t, defaultContent(t))
	gated := &gatedStore{SnapshotStore: f.store}
	f.game = f.build(t, func(o *Options) { o.Store = gated })
	ctx := context.Background()
	require.NoError(t, f.game.Start(ctx))
	defer f.game.Close(ctx)

	gated.arm()
	saved := make(chan bool, 1)
	go func() { saved <- f.game.Save(ctx) }()
	<-gated.entered

	unlocked := make(chan bool, 1)
	go func() { unlocked <- f.game.Unlock(ctx, "READ_MOMS_LETTER") }()
	require.Eventually(t, func() bool {
		return f.game.Snapshot().IsUnlocked("READ_MOMS_LETTER")
	}, time.Second, time.Millisecond)

	close(gated.release)
	assert.True(t, <-saved)
	assert.True(t, <-unlocked)

	stored, ok := f.store.Load(ctx)
	require.True(t, ok)
	assert.True(t, stored.IsUnlocked("READ_MOMS_LETTER"), "the older snapshot landed first")
}

func TestGame_PersistSkipsOlderSnapshot(t *testing.T) {
	f := startedFixture(t)
	ctx := context.Background()

	f.game.mu.Lock()
	older := f.game.clone()
	f.game.gs.MarkUnlocked("READ_MOMS_LETTER", time.Now())
	newer := f.game.clone()
	f.game.mu.Unlock()

	require.True(t, f.game.persist(ctx, newer))
	writes := f.backend.SetCount()
	assert.True(t, f.game.persist(ctx, older))
	assert.Equal(t, writes, f.backend.SetCount(), "an older snapshot is not written")

	stored, ok := f.store.Load(ctx)
	require.True(t, ok)
	assert.True(t, stored.IsUnlocked("READ_MOMS_LETTER"))
}

func TestGame_PlayTimeAccumulates(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	f := newFixture(t, defaultContent(t), func(o *Options) { o.Now = clock })
	ctx := context.Background()
	require.NoError(t, f.game.Start(ctx))
	defer f.game.Close(ctx)

	mu.Lock()
	now = now.Add(90*time.Second + 400*time.Millisecond)
	mu.Unlock()

	assert.Equal(t, int64(90), f.game.Snapshot().GameProgress.PlayTimeSeconds)
}

func TestGame_WithWorkerOracle(t *testing.T) {
	llm := services.NewMockLLM()
	llm.SetReply("Quack quack! You look ready!")
	o := worker.NewOracle(llm, worker.Options{Delay: time.Nanosecond}, testLogger())
	o.Start()
	defer o.Stop()

	f := newFixture(t, defaultContent(t), func(opts *Options) { opts.Oracle = o })
	ctx := context.Background()
	require.NoError(t, f.game.Start(ctx))
	defer f.game.Close(ctx)

	_, err := f.game.StartConversation(ctx, "duck")
	require.NoError(t, err)
	resp, err := f.game.SendMessage(ctx, "How do I look?")
	require.NoError(t, err)

	assert.False(t, resp.Fallback)
	assert.ElementsMatch(t, []string{"TALKED_TO_DUCK", "READY_FOR_THE_DAY"}, resp.Unlocked)
	require.Len(t, llm.Calls(), 1)
}
