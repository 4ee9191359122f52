// Package game ties the catalog, snapshot, trigger engine, progression
// controller and oracle into one playable session. All state mutations are
// serialized by the Game's mutex; the oracle is always called without it.
package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jwebster45206/questline/internal/services/events"
	"github.com/jwebster45206/questline/internal/worker"
	"github.com/jwebster45206/questline/pkg/actor"
	"github.com/jwebster45206/questline/pkg/content"
	"github.com/jwebster45206/questline/pkg/progression"
	"github.com/jwebster45206/questline/pkg/state"
	"github.com/jwebster45206/questline/pkg/trigger"
)

const (
	DefaultAutosaveInterval = 30 * time.Second
	DefaultEnergyRestore    = 2
	DefaultConversationCost = 1
)

var (
	ErrTooTired            = errors.New("too tired to talk, visit your duck")
	ErrNotHere             = errors.New("not at the current location")
	ErrInteractionBlocked  = errors.New("interaction is blocked until the level advances")
	ErrNoConversation      = errors.New("no active conversation")
	ErrUnknownLocation     = errors.New("unknown location")
	ErrUnknownItem         = errors.New("unknown item")
	ErrUnknownCharacter    = errors.New("unknown character")
	ErrEmptyMessage        = errors.New("message cannot be empty")
	ErrStaleExchange       = errors.New("the conversation moved on while waiting for a reply")
	ErrShowdownUnavailable = errors.New("showdown is only available on the final level")
	ErrSaveFailed          = errors.New("failed to save game")
	ErrAlreadyStarted      = errors.New("game already started")

	ErrLevelUnavailable = progression.ErrLevelUnavailable
	ErrNotComplete      = progression.ErrNotComplete
	ErrTerminal         = progression.ErrTerminal
	ErrRecruitLimit     = state.ErrRecruitLimit
)

// Oracle answers on behalf of characters. worker.Oracle is the production
// implementation.
type Oracle interface {
	Generate(ctx context.Context, req worker.Request) worker.Reply
}

// Store persists snapshots. storage.SnapshotStore is the production
// implementation.
type Store interface {
	Save(ctx context.Context, gs *state.GameState) bool
	Load(ctx context.Context) (*state.GameState, bool)
	Clear(ctx context.Context) bool
}

// Options configures a Game.
type Options struct {
	Catalog *content.Catalog
	Store   Store
	Oracle  Oracle
	Events  events.Publisher
	Logger  *slog.Logger

	AutosaveInterval time.Duration // 0 selects the default, < 0 disables
	MaxSocialEnergy  int
	EnergyRestore    int
	ConversationCost int
	TranscriptLimit  int

	Rand *rand.Rand       // rolls the adventurer
	Now  func() time.Time // clock for unlock stamps and play time
}

// Game is one playthrough.
type Game struct {
	catalog *content.Catalog
	store   Store
	oracle  Oracle
	events  events.Publisher
	log     *slog.Logger
	opts    Options
	now     func() time.Time
	rng     *rand.Rand

	mu       sync.Mutex
	gs       *state.GameState
	engine   *trigger.Engine
	ctrl     *progression.Controller
	minimal  bool
	started  bool
	turn     *turn
	lastTick time.Time

	session *Session

	snapSeq  uint64     // last snapshot handed out, guarded by mu
	saveMu   sync.Mutex // orders writes to the store
	savedSeq uint64     // newest snapshot written, guarded by saveMu

	autosaveCancel context.CancelFunc
	autosaveDone   chan struct{}
	closeOnce      sync.Once
}

var _ trigger.Listener = (*Game)(nil)

// snapshot is a state copy tagged with the order it was taken in.
type snapshot struct {
	*state.GameState
	seq uint64
}

// turn collects the side effects of one mutating call so they can be
// saved and published after the lock is released.
type turn struct {
	unlocked   []string
	transition progression.Transition
	events     []events.Event
}

// New creates a game. Call Start to load or create the snapshot.
func New(opts Options) (*Game, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.AutosaveInterval == 0 {
		opts.AutosaveInterval = DefaultAutosaveInterval
	}
	if opts.MaxSocialEnergy <= 0 {
		opts.MaxSocialEnergy = state.DefaultMaxSocialEnergy
	}
	if opts.EnergyRestore <= 0 {
		opts.EnergyRestore = DefaultEnergyRestore
	}
	if opts.ConversationCost <= 0 {
		opts.ConversationCost = DefaultConversationCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	g := &Game{
		catalog: opts.Catalog,
		store:   opts.Store,
		oracle:  opts.Oracle,
		events:  opts.Events,
		log:     opts.Logger,
		opts:    opts,
		now:     opts.Now,
		rng:     opts.Rand,
	}
	g.gs = g.newState()
	g.engine = trigger.New(g.catalog, g.gs, g, g.log)
	g.engine.SetClock(g.now)
	g.ctrl = progression.New(g.catalog, g.gs, g.log)
	g.ctrl.SetClock(g.now)
	g.session = NewSession(g.conversationEnded)
	return g, nil
}

func (g *Game) newState() *state.GameState {
	return state.New(state.Options{
		MaxSocialEnergy: g.opts.MaxSocialEnergy,
		TranscriptLimit: g.opts.TranscriptLimit,
		Adventurer:      g.rollAdventurer(),
		Now:             g.now(),
	})
}

func (g *Game) rollAdventurer() state.AdventurerStats {
	adv, err := actor.NewAdventurer(g.rng)
	if err != nil {
		g.log.Error("Failed to roll adventurer", "error", err)
		return state.AdventurerStats{}
	}
	return adv.Stats()
}

func (g *Game) bind(gs *state.GameState) {
	g.gs = gs
	g.engine.SetState(gs)
	g.ctrl.SetState(gs)
}

// Start loads the saved snapshot or begins a new game, then launches the
// autosave loop. Without a level 1 the game runs in minimal mode: the
// player can move and talk but nothing progresses.
func (g *Game) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return ErrAlreadyStarted
	}
	g.started = true

	gs, loaded := g.store.Load(ctx)
	if !loaded {
		gs = g.newState()
	}
	gs.SetTranscriptLimit(g.opts.TranscriptLimit)
	if gs.HiddenAdventurer == (state.AdventurerStats{}) {
		gs.HiddenAdventurer = g.rollAdventurer()
	}
	g.bind(gs)

	_, hasFirst := g.catalog.Level(1)
	g.minimal = !hasFirst
	switch {
	case g.minimal:
		g.log.Warn("Level data unavailable, running in minimal mode",
			"default_location", g.catalog.DefaultLocation())
		if _, ok := g.catalog.Location(gs.CurrentLocation); !ok {
			gs.Visit(g.catalog.DefaultLocation())
		}
	case !loaded:
		if err := g.ctrl.Reset(false); err != nil {
			g.log.Error("Failed to enter level 1", "error", err)
		}
	default:
		if _, ok := g.catalog.Location(gs.CurrentLocation); !ok {
			g.log.Warn("Saved location unknown, using default",
				"location", gs.CurrentLocation,
				"default_location", g.catalog.DefaultLocation())
			gs.Visit(g.catalog.DefaultLocation())
		}
	}
	g.lastTick = g.now()
	snap := g.clone()
	phase, minimal := g.ctrl.Phase(), g.minimal
	g.mu.Unlock()

	g.log.Info("Game started",
		"game_id", snap.ID.String(),
		"loaded", loaded,
		"level", snap.CurrentLevel,
		"location", snap.CurrentLocation,
		"phase", phase.String(),
		"minimal", minimal,
	)

	if !loaded {
		g.persist(ctx, snap)
	}
	g.startAutosave()
	return nil
}

func (g *Game) startAutosave() {
	interval := g.opts.AutosaveInterval
	if interval < 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.autosaveCancel = cancel
	g.autosaveDone = make(chan struct{})

	go func() {
		defer close(g.autosaveDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if g.Save(ctx) {
					g.log.Debug("Autosaved")
				}
			}
		}
	}()
}

// Close stops autosave, ends any conversation and saves one last time.
func (g *Game) Close(ctx context.Context) error {
	var err error
	g.closeOnce.Do(func() {
		if g.autosaveCancel != nil {
			g.autosaveCancel()
			<-g.autosaveDone
		}
		if _, endErr := g.session.End(ctx); endErr != nil {
			g.log.Warn("Failed to end conversation on close", "error", endErr)
		}
		if !g.Save(ctx) {
			err = ErrSaveFailed
		}
		g.log.Info("Game closed")
	})
	return err
}

// Save writes the current snapshot.
func (g *Game) Save(ctx context.Context) bool {
	g.mu.Lock()
	g.tick()
	snap := g.clone()
	g.mu.Unlock()
	return g.persist(ctx, snap)
}

// clone copies the state for saving. Callers hold mu.
func (g *Game) clone() *snapshot {
	g.snapSeq++
	return &snapshot{GameState: g.gs.Clone(), seq: g.snapSeq}
}

// persist writes snap unless a newer snapshot already reached the store.
func (g *Game) persist(ctx context.Context, snap *snapshot) bool {
	g.saveMu.Lock()
	defer g.saveMu.Unlock()
	if snap.seq <= g.savedSeq {
		g.log.Debug("Skipping stale save", "seq", snap.seq, "saved_seq", g.savedSeq)
		return true
	}
	if !g.store.Save(ctx, snap.GameState) {
		return false
	}
	g.savedSeq = snap.seq
	g.mu.Lock()
	if g.gs.ID == snap.ID {
		g.gs.SaveTime = snap.SaveTime
	}
	g.mu.Unlock()
	return true
}

// clearStore deletes the saved game in order with pending writes.
func (g *Game) clearStore(ctx context.Context) {
	g.saveMu.Lock()
	defer g.saveMu.Unlock()
	g.store.Clear(ctx)
}

// tick folds elapsed wall time into the play time counter. Callers hold mu.
func (g *Game) tick() {
	now := g.now()
	elapsed := now.Sub(g.lastTick).Truncate(time.Second)
	if elapsed <= 0 {
		return
	}
	g.gs.AddPlayTime(elapsed)
	g.lastTick = g.lastTick.Add(elapsed)
}

// begin starts collecting side effects. Callers hold mu.
func (g *Game) begin() *turn {
	g.turn = &turn{}
	return g.turn
}

// end stops collecting and, when save is set, snapshots the state. Callers
// hold mu.
func (g *Game) end(save bool) (*turn, *snapshot) {
	t := g.turn
	g.turn = nil
	if t == nil {
		t = &turn{}
	}
	if !save {
		return t, nil
	}
	g.tick()
	return t, g.clone()
}

// flush saves and publishes what a turn produced. Callers must not hold mu.
func (g *Game) flush(ctx context.Context, t *turn, snap *snapshot) {
	if snap != nil {
		g.persist(ctx, snap)
	}
	for _, e := range t.events {
		if err := g.events.Publish(ctx, e); err != nil {
			g.log.Warn("Failed to publish event", "error", err, "event_type", e.Type)
		}
	}
}

// emit queues an event on the current turn. Callers hold mu.
func (g *Game) emit(typ events.EventType, data map[string]any) {
	e := events.Event{
		Type:   typ,
		GameID: g.gs.ID.String(),
		Time:   g.now(),
		Data:   data,
	}
	if g.turn == nil {
		g.log.Warn("Event emitted outside a turn, dropping", "event_type", typ)
		return
	}
	g.turn.events = append(g.turn.events, e)
}

// AchievementUnlocked reacts to every unlock: stat reveals, progression and
// recruitment. It runs with mu held, from inside the trigger engine.
func (g *Game) AchievementUnlocked(a content.Achievement, at time.Time) {
	if g.turn != nil {
		g.turn.unlocked = append(g.turn.unlocked, a.ID)
	}
	g.emit(events.EventTypeAchievementUnlocked, map[string]any{
		"achievement": a.ID,
		"title":       a.Title,
		"description": a.Description,
		"level":       g.catalog.LevelOf(a.ID),
		"unlocked_at": at,
	})

	if a.Reveals != "" && g.gs.RevealStat(a.Reveals) {
		g.log.Info("Adventurer stat revealed", "stat", a.Reveals, "value", g.gs.AdventurerIntel.Get(a.Reveals))
	}

	if !g.minimal {
		g.transition(g.ctrl.OnUnlock(a.ID))
	}

	if a.Recruits {
		g.recruit(a)
	}
}

func (g *Game) recruit(a content.Achievement) {
	ch, ok := g.catalog.Character(a.CharacterID)
	if !ok {
		g.log.Warn("Recruit achievement names an unknown character", "achievement", a.ID, "character", a.CharacterID)
		return
	}

	var err error
	switch ch.Role {
	case content.RoleMonster:
		err = g.gs.RecruitMonster(ch.ID)
	case content.RoleTrapMaker:
		err = g.gs.HireTrapMaker(ch.ID)
	default:
		g.log.Warn("Character cannot be recruited", "character", ch.ID, "role", ch.Role)
		return
	}
	if err != nil {
		g.log.Warn("Recruitment ignored", "error", err, "character", ch.ID)
		return
	}
	g.log.Info("Character recruited", "character", ch.ID, "role", ch.Role)

	if id := g.catalog.RecruitmentAchievement(); id != "" && g.gs.RecruitmentComplete() {
		g.engine.Unlock(id)
	}
}

// transition publishes a controller transition. Callers hold mu.
func (g *Game) transition(tr progression.Transition) {
	if tr == progression.TransitionNone {
		return
	}
	status := g.ctrl.Status()
	data := map[string]any{"level": status.Level, "name": status.LevelName}

	switch tr {
	case progression.TransitionLevelComplete:
		g.emit(events.EventTypeLevelCompleted, data)
	case progression.TransitionLevelStarted:
		data["location"] = g.gs.CurrentLocation
		g.emit(events.EventTypeLevelStarted, data)
		if g.tracksEnergy() {
			g.emitEnergy(0)
		}
	case progression.TransitionVictory:
		g.emit(events.EventTypeVictory, data)
	case progression.TransitionGameOver:
		g.emit(events.EventTypeGameOver, data)
	}
	if g.turn != nil {
		g.turn.transition = tr
	}
}

func (g *Game) canInteract() bool {
	return g.minimal || g.ctrl.CanInteract()
}

// level returns the playable content for the current level. Callers hold mu.
func (g *Game) level() content.Level {
	if !g.minimal {
		if lvl, ok := g.catalog.Level(g.gs.CurrentLevel); ok {
			return lvl
		}
	}
	return g.catalog.Unrestricted()
}

func (g *Game) tracksEnergy() bool {
	if g.minimal {
		return false
	}
	lvl, ok := g.catalog.Level(g.gs.CurrentLevel)
	return ok && lvl.TracksEnergy
}

func (g *Game) emitEnergy(delta int) {
	g.emit(events.EventTypeEnergyChanged, map[string]any{
		"energy": g.gs.SocialEnergy,
		"max":    g.gs.MaxSocialEnergy,
		"delta":  delta,
	})
}

// restoreEnergy applies a restorative character's boost on energy levels.
// Callers hold mu.
func (g *Game) restoreEnergy() int {
	if !g.tracksEnergy() {
		return 0
	}
	n := g.gs.RestoreEnergy(g.opts.EnergyRestore)
	if n > 0 {
		g.emitEnergy(n)
	}
	return n
}

// Unlock is the explicit entry point for non-conversational triggers.
func (g *Game) Unlock(ctx context.Context, id string) bool {
	g.mu.Lock()
	g.begin()
	ok := g.engine.Unlock(id)
	t, snap := g.end(ok)
	terminal := g.terminal()
	g.mu.Unlock()

	g.flush(ctx, t, snap)
	if terminal {
		g.endConversation(ctx)
	}
	return ok
}

// Advance moves past a completed level.
func (g *Game) Advance(ctx context.Context) (progression.Transition, error) {
	g.mu.Lock()
	if g.minimal {
		g.mu.Unlock()
		return progression.TransitionNone, fmt.Errorf("minimal mode: %w", ErrLevelUnavailable)
	}
	g.begin()
	tr, err := g.ctrl.Advance()
	if err != nil {
		g.end(false)
		g.mu.Unlock()
		return tr, err
	}
	g.transition(tr)
	t, snap := g.end(true)
	g.mu.Unlock()

	g.flush(ctx, t, snap)
	g.endConversation(ctx)
	return tr, nil
}

// Reset starts a new game on level 1 with a freshly rolled adventurer.
// Discovery records survive unless full is set.
func (g *Game) Reset(ctx context.Context, full bool) error {
	g.endConversation(ctx)

	g.mu.Lock()
	g.begin()
	previous := g.gs.ID.String()
	err := g.ctrl.Reset(full)
	if err != nil && !g.minimal {
		g.log.Error("Failed to enter level 1 after reset", "error", err)
	}
	g.gs.HiddenAdventurer = g.rollAdventurer()
	g.lastTick = g.now()
	g.emit(events.EventTypeGameReset, map[string]any{"full": full, "previous_id": previous})
	if err == nil {
		g.transition(progression.TransitionLevelStarted)
	}
	t, snap := g.end(true)
	g.mu.Unlock()

	g.log.Info("Game reset", "full", full, "previous_id", previous, "game_id", snap.ID.String())
	g.clearStore(ctx)
	g.flush(ctx, t, snap)

	if g.minimal {
		return nil
	}
	return err
}

// Snapshot returns a copy of the current state.
func (g *Game) Snapshot() *state.GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tick()
	return g.gs.Clone()
}

// Minimal reports whether the game runs without level data.
func (g *Game) Minimal() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.minimal
}

// Catalog returns the content the game is played with.
func (g *Game) Catalog() *content.Catalog { return g.catalog }

// AchievementStats counts unlocked achievements.
func (g *Game) AchievementStats() trigger.Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.Stats()
}

func (g *Game) terminal() bool {
	return !g.minimal && g.ctrl.Phase().Terminal()
}
