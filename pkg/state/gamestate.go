package state

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/questline/pkg/chat"
)

// Version tags every persisted snapshot. Snapshots carrying any other
// version are discarded on load, never migrated.
const Version = "3.0"

const (
	DefaultTranscriptLimit = 10
	DefaultMaxSocialEnergy = 5
	MaxRecruitedMonsters   = 2
)

const (
	OutcomeVictory  = "victory"
	OutcomeGameOver = "game_over"
)

var (
	ErrRecruitLimit     = errors.New("recruit limit reached")
	ErrAlreadyRecruited = errors.New("already recruited")
)

// AdventurerStats holds one value per trait, e.g. "fear_high".
type AdventurerStats struct {
	Fear  string `json:"fear,omitempty"`
	Greed string `json:"greed,omitempty"`
	Pride string `json:"pride,omitempty"`
}

// Get returns the value for a trait name.
func (a AdventurerStats) Get(stat string) string {
	switch stat {
	case "fear":
		return a.Fear
	case "greed":
		return a.Greed
	case "pride":
		return a.Pride
	}
	return ""
}

func (a *AdventurerStats) set(stat, value string) bool {
	switch stat {
	case "fear":
		a.Fear = value
	case "greed":
		a.Greed = value
	case "pride":
		a.Pride = value
	default:
		return false
	}
	return true
}

// Progress holds aggregate counters for a playthrough.
type Progress struct {
	StartTime         time.Time `json:"startTime"`
	PlayTimeSeconds   int64     `json:"playTime"`
	ConversationCount int       `json:"conversationCount"`
	LocationsVisited  int       `json:"locationsVisited"`
	LevelsCompleted   int       `json:"levelsCompleted"`
	EnergyRestored    int       `json:"energyRestored"`
	MonstersRecruited int       `json:"monstersRecruited"`
	TrapMakersHired   int       `json:"trapMakersHired"`
}

// GameState is the serializable snapshot of a playthrough.
type GameState struct {
	Version               string                       `json:"version"`
	ID                    uuid.UUID                    `json:"id"`
	CurrentLocation       string                       `json:"currentLocation"`
	CurrentLevel          int                          `json:"currentLevel"`
	VisitedLocations      []string                     `json:"visitedLocations"`
	ExaminedItems         []string                     `json:"examinedItems"`
	MetCharacters         []string                     `json:"metCharacters"`
	HelpfulCharacters     []string                     `json:"helpfulCharacters"`
	UnlockedAchievements  []string                     `json:"unlockedAchievements"`
	UnlockTimes           map[string]time.Time         `json:"unlockTimes,omitempty"`
	ConversationHistories map[string][]chat.Exchange   `json:"conversationHistories"`
	CompletedLevels       []int                        `json:"completedLevels"`
	SocialEnergy          int                          `json:"socialEnergy"`
	MaxSocialEnergy       int                          `json:"maxSocialEnergy"`
	RecruitedMonsters     []string                     `json:"recruitedMonsters"`
	HiredTrapMaker        string                       `json:"hiredTrapMaker,omitempty"`
	AdventurerIntel       AdventurerStats              `json:"adventurerStats"`
	HiddenAdventurer      AdventurerStats              `json:"hiddenAdventurerStats"`
	Outcome               string                       `json:"outcome,omitempty"`
	GameProgress          Progress                     `json:"gameProgress"`
	SaveTime              time.Time                    `json:"saveTime"`

	transcriptLimit int
}

// Options configures a new GameState.
type Options struct {
	MaxSocialEnergy int
	TranscriptLimit int
	Adventurer      AdventurerStats
	Now             time.Time
}

// New returns a fresh snapshot on level 1 with no location set.
func New(opts Options) *GameState {
	gs := &GameState{
		Version:          Version,
		MaxSocialEnergy:  opts.MaxSocialEnergy,
		HiddenAdventurer: opts.Adventurer,
		transcriptLimit:  opts.TranscriptLimit,
	}
	if gs.MaxSocialEnergy <= 0 {
		gs.MaxSocialEnergy = DefaultMaxSocialEnergy
	}
	gs.clearProgress(opts.Now)
	gs.clearDiscovery()
	return gs
}

func (gs *GameState) clearProgress(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	gs.ID = uuid.New()
	gs.CurrentLevel = 1
	gs.CurrentLocation = ""
	gs.UnlockedAchievements = []string{}
	gs.UnlockTimes = make(map[string]time.Time)
	gs.ConversationHistories = make(map[string][]chat.Exchange)
	gs.CompletedLevels = []int{}
	gs.SocialEnergy = 0
	gs.RecruitedMonsters = []string{}
	gs.HelpfulCharacters = []string{}
	gs.HiredTrapMaker = ""
	gs.AdventurerIntel = AdventurerStats{}
	gs.Outcome = ""
	gs.GameProgress = Progress{StartTime: now}
	gs.SaveTime = time.Time{}
}

func (gs *GameState) clearDiscovery() {
	gs.VisitedLocations = []string{}
	gs.ExaminedItems = []string{}
	gs.MetCharacters = []string{}
}

// Reset returns the snapshot to a new game. Discovery records (visited
// locations, examined items, met characters) survive unless full is set.
func (gs *GameState) Reset(full bool, now time.Time) {
	gs.clearProgress(now)
	if full {
		gs.clearDiscovery()
	}
}

// SetTranscriptLimit sets the per-character transcript cap. Values <= 0
// select DefaultTranscriptLimit.
func (gs *GameState) SetTranscriptLimit(n int) { gs.transcriptLimit = n }

// TranscriptLimit returns the effective per-character transcript cap.
func (gs *GameState) TranscriptLimit() int {
	if gs.transcriptLimit <= 0 {
		return DefaultTranscriptLimit
	}
	return gs.transcriptLimit
}

// Normalize repairs a decoded snapshot: nil collections are allocated and
// energy is clamped into range.
func (gs *GameState) Normalize() {
	if gs.UnlockedAchievements == nil {
		gs.UnlockedAchievements = []string{}
	}
	if gs.UnlockTimes == nil {
		gs.UnlockTimes = make(map[string]time.Time)
	}
	if gs.ConversationHistories == nil {
		gs.ConversationHistories = make(map[string][]chat.Exchange)
	}
	if gs.VisitedLocations == nil {
		gs.VisitedLocations = []string{}
	}
	if gs.ExaminedItems == nil {
		gs.ExaminedItems = []string{}
	}
	if gs.MetCharacters == nil {
		gs.MetCharacters = []string{}
	}
	if gs.CompletedLevels == nil {
		gs.CompletedLevels = []int{}
	}
	if gs.RecruitedMonsters == nil {
		gs.RecruitedMonsters = []string{}
	}
	if gs.HelpfulCharacters == nil {
		gs.HelpfulCharacters = []string{}
	}
	if gs.MaxSocialEnergy <= 0 {
		gs.MaxSocialEnergy = DefaultMaxSocialEnergy
	}
	if gs.CurrentLevel <= 0 {
		gs.CurrentLevel = 1
	}
	gs.SocialEnergy = min(max(gs.SocialEnergy, 0), gs.MaxSocialEnergy)
}

// Achievements

func (gs *GameState) IsUnlocked(id string) bool {
	return slices.Contains(gs.UnlockedAchievements, id)
}

// MarkUnlocked records an unlock. It returns false, leaving the original
// timestamp alone, if the id was already unlocked.
func (gs *GameState) MarkUnlocked(id string, at time.Time) bool {
	if gs.IsUnlocked(id) {
		return false
	}
	gs.UnlockedAchievements = append(gs.UnlockedAchievements, id)
	gs.UnlockTimes[id] = at
	return true
}

// UnlockedAt returns when an achievement was unlocked.
func (gs *GameState) UnlockedAt(id string) (time.Time, bool) {
	t, ok := gs.UnlockTimes[id]
	return t, ok
}

// Relock locks the given achievements again.
func (gs *GameState) Relock(ids []string) {
	gs.UnlockedAchievements = slices.DeleteFunc(gs.UnlockedAchievements, func(id string) bool {
		return slices.Contains(ids, id)
	})
	for _, id := range ids {
		delete(gs.UnlockTimes, id)
	}
}

// Transcripts

// AddExchange appends to a character's transcript, evicting the oldest
// entries beyond the transcript limit.
func (gs *GameState) AddExchange(characterID string, ex chat.Exchange) {
	gs.ConversationHistories[characterID] = chat.AppendBounded(gs.ConversationHistories[characterID], ex, gs.TranscriptLimit())
	gs.GameProgress.ConversationCount++
}

// History returns a character's transcript, oldest first.
func (gs *GameState) History(characterID string) []chat.Exchange {
	return slices.Clone(gs.ConversationHistories[characterID])
}

// ClearTranscripts drops every character's transcript.
func (gs *GameState) ClearTranscripts() {
	gs.ConversationHistories = make(map[string][]chat.Exchange)
}

// Discovery

// Visit moves the player and records the location. It reports whether the
// location had not been visited before.
func (gs *GameState) Visit(locationID string) bool {
	gs.CurrentLocation = locationID
	if slices.Contains(gs.VisitedLocations, locationID) {
		return false
	}
	gs.VisitedLocations = append(gs.VisitedLocations, locationID)
	gs.GameProgress.LocationsVisited++
	return true
}

// Examine records an item. It reports whether the item was new.
func (gs *GameState) Examine(itemID string) bool {
	if slices.Contains(gs.ExaminedItems, itemID) {
		return false
	}
	gs.ExaminedItems = append(gs.ExaminedItems, itemID)
	return true
}

// Meet records a character. It reports whether this was a first meeting.
func (gs *GameState) Meet(characterID string) bool {
	if slices.Contains(gs.MetCharacters, characterID) {
		return false
	}
	gs.MetCharacters = append(gs.MetCharacters, characterID)
	return true
}

// MarkHelpful records that the player said the character's keyword. It
// reports whether the character was not helpful before.
func (gs *GameState) MarkHelpful(characterID string) bool {
	if gs.IsHelpful(characterID) {
		return false
	}
	gs.HelpfulCharacters = append(gs.HelpfulCharacters, characterID)
	return true
}

func (gs *GameState) IsHelpful(characterID string) bool {
	return slices.Contains(gs.HelpfulCharacters, characterID)
}

// Levels

// CompleteLevel records a completed level once.
func (gs *GameState) CompleteLevel(level int) bool {
	if slices.Contains(gs.CompletedLevels, level) {
		return false
	}
	gs.CompletedLevels = append(gs.CompletedLevels, level)
	gs.GameProgress.LevelsCompleted++
	return true
}

func (gs *GameState) IsLevelCompleted(level int) bool {
	return slices.Contains(gs.CompletedLevels, level)
}

// Social energy

// SetEnergy sets energy, clamped to [0, MaxSocialEnergy].
func (gs *GameState) SetEnergy(n int) {
	gs.SocialEnergy = min(max(n, 0), gs.MaxSocialEnergy)
}

// RestoreEnergy adds up to n energy without passing the maximum and returns
// how much was actually restored.
func (gs *GameState) RestoreEnergy(n int) int {
	if n <= 0 {
		return 0
	}
	before := gs.SocialEnergy
	gs.SocialEnergy = min(gs.SocialEnergy+n, gs.MaxSocialEnergy)
	restored := gs.SocialEnergy - before
	gs.GameProgress.EnergyRestored += restored
	return restored
}

// SpendEnergy removes n energy. It returns false and changes nothing when
// there is not enough.
func (gs *GameState) SpendEnergy(n int) bool {
	if n < 0 || n > gs.SocialEnergy {
		return false
	}
	gs.SocialEnergy -= n
	return true
}

// Recruitment and intel

// RecruitMonster adds a monster to the defense.
func (gs *GameState) RecruitMonster(id string) error {
	if slices.Contains(gs.RecruitedMonsters, id) {
		return fmt.Errorf("monster %s: %w", id, ErrAlreadyRecruited)
	}
	if len(gs.RecruitedMonsters) >= MaxRecruitedMonsters {
		return fmt.Errorf("monster %s: %w", id, ErrRecruitLimit)
	}
	gs.RecruitedMonsters = append(gs.RecruitedMonsters, id)
	gs.GameProgress.MonstersRecruited++
	return nil
}

// HireTrapMaker hires the single trap maker.
func (gs *GameState) HireTrapMaker(id string) error {
	if gs.HiredTrapMaker == id {
		return fmt.Errorf("trap maker %s: %w", id, ErrAlreadyRecruited)
	}
	if gs.HiredTrapMaker != "" {
		return fmt.Errorf("trap maker %s: %w", id, ErrRecruitLimit)
	}
	gs.HiredTrapMaker = id
	gs.GameProgress.TrapMakersHired++
	return nil
}

// RecruitmentComplete reports whether the defense is fully staffed.
func (gs *GameState) RecruitmentComplete() bool {
	return len(gs.RecruitedMonsters) >= MaxRecruitedMonsters && gs.HiredTrapMaker != ""
}

// RevealStat copies a hidden adventurer trait into the player's intel.
func (gs *GameState) RevealStat(stat string) bool {
	v := gs.HiddenAdventurer.Get(stat)
	if v == "" {
		return false
	}
	return gs.AdventurerIntel.set(stat, v)
}

// AddPlayTime accumulates wall-clock play time.
func (gs *GameState) AddPlayTime(d time.Duration) {
	gs.GameProgress.PlayTimeSeconds += int64(d / time.Second)
}

// Clone returns a deep copy safe to serialize while the original changes.
func (gs *GameState) Clone() *GameState {
	c := *gs
	c.VisitedLocations = slices.Clone(gs.VisitedLocations)
	c.ExaminedItems = slices.Clone(gs.ExaminedItems)
	c.MetCharacters = slices.Clone(gs.MetCharacters)
	c.UnlockedAchievements = slices.Clone(gs.UnlockedAchievements)
	c.UnlockTimes = maps.Clone(gs.UnlockTimes)
	c.CompletedLevels = slices.Clone(gs.CompletedLevels)
	c.RecruitedMonsters = slices.Clone(gs.RecruitedMonsters)
	c.HelpfulCharacters = slices.Clone(gs.HelpfulCharacters)
	c.ConversationHistories = make(map[string][]chat.Exchange, len(gs.ConversationHistories))
	for k, v := range gs.ConversationHistories {
		c.ConversationHistories[k] = slices.Clone(v)
	}
	return &c
}
