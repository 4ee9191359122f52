package content

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
)

// KeywordPlaceholder is replaced in item descriptions by the keyword
// selected for the owning achievement's pool.
const KeywordPlaceholder = "{keyword}"

// Diagnostic records a content problem found while building the catalog.
type Diagnostic struct {
	AchievementID string `json:"achievement_id,omitempty"`
	Level         int    `json:"level,omitempty"`
	Reason        string `json:"reason"`
}

func (d Diagnostic) String() string {
	switch {
	case d.AchievementID != "":
		return fmt.Sprintf("achievement %s: %s", d.AchievementID, d.Reason)
	case d.Level != 0:
		return fmt.Sprintf("level %d: %s", d.Level, d.Reason)
	default:
		return d.Reason
	}
}

// Catalog is the read-only view of a game's content. It is safe for
// concurrent use; nothing changes after New returns.
type Catalog struct {
	title               string
	defaultLocation     string
	gameOverAchievement string
	recruitAchievement  string

	locations    map[string]Location
	characters   map[string]Character
	items        map[string]Item
	achievements map[string]Achievement
	achOrder     []string

	levels     map[int]Level
	finalLevel int
	levelOf    map[string]int

	pools map[string]string // pool id -> frozen keyword

	disabled    map[string]string
	diagnostics []Diagnostic
}

type options struct {
	rng    *rand.Rand
	logger *slog.Logger
}

// Option configures New.
type Option func(*options)

// WithRand sets the source used to pick pool keywords.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithSeed picks pool keywords from a deterministic source.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithLogger sets the logger used to report diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a catalog from raw content. Keyword pools are resolved here,
// once, and item placeholders are filled. Broken cross references disable
// the affected achievement and are reported through Diagnostics.
func New(c Content, opts ...Option) *Catalog {
	o := options{
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cat := &Catalog{
		title:               c.Title,
		defaultLocation:     c.DefaultLocation,
		gameOverAchievement: c.GameOverAchievement,
		recruitAchievement:  c.RecruitmentAchievement,
		locations:           make(map[string]Location, len(c.Locations)),
		characters:          make(map[string]Character, len(c.Characters)),
		items:               make(map[string]Item, len(c.Items)),
		achievements:        make(map[string]Achievement, len(c.Achievements)),
		levels:              make(map[int]Level, len(c.Levels)),
		levelOf:             make(map[string]int),
		pools:               make(map[string]string, len(c.KeywordPools)),
		disabled:            make(map[string]string),
	}

	for id, l := range c.Locations {
		l = l.clone()
		l.ID = id
		cat.locations[id] = l
	}
	for id, ch := range c.Characters {
		ch = ch.clone()
		ch.ID = id
		cat.characters[id] = ch
	}
	for id, it := range c.Items {
		it = it.clone()
		it.ID = id
		cat.items[id] = it
	}
	for id, a := range c.Achievements {
		a = a.clone()
		a.ID = id
		cat.achievements[id] = a
		cat.achOrder = append(cat.achOrder, id)
	}
	sort.Strings(cat.achOrder)

	// Sorted pool ids keep a seeded source reproducible.
	poolIDs := make([]string, 0, len(c.KeywordPools))
	for id := range c.KeywordPools {
		poolIDs = append(poolIDs, id)
	}
	sort.Strings(poolIDs)
	for _, id := range poolIDs {
		words := c.KeywordPools[id]
		if len(words) == 0 {
			cat.diagnostics = append(cat.diagnostics, Diagnostic{Reason: fmt.Sprintf("keyword pool %s is empty", id)})
			continue
		}
		cat.pools[id] = words[o.rng.IntN(len(words))]
	}

	cat.buildLevels(c.Levels)
	cat.linkAchievements()

	if cat.defaultLocation == "" || !cat.hasLocation(cat.defaultLocation) {
		cat.diagnostics = append(cat.diagnostics, Diagnostic{Reason: fmt.Sprintf("default location %q is not defined", cat.defaultLocation)})
	}
	if cat.gameOverAchievement != "" {
		if _, ok := cat.achievements[cat.gameOverAchievement]; !ok {
			cat.diagnostics = append(cat.diagnostics, Diagnostic{Reason: fmt.Sprintf("game over achievement %q is not defined", cat.gameOverAchievement)})
			cat.gameOverAchievement = ""
		}
	}
	if cat.recruitAchievement != "" {
		if _, ok := cat.achievements[cat.recruitAchievement]; !ok {
			cat.diagnostics = append(cat.diagnostics, Diagnostic{Reason: fmt.Sprintf("recruitment achievement %q is not defined", cat.recruitAchievement)})
			cat.recruitAchievement = ""
		}
	}

	for _, d := range cat.diagnostics {
		o.logger.Warn("Content diagnostic", "diagnostic", d.String())
	}
	return cat
}

func (c *Catalog) buildLevels(levels []Level) {
	for _, l := range levels {
		if l.ID <= 0 {
			c.diagnostics = append(c.diagnostics, Diagnostic{Reason: fmt.Sprintf("level %q has invalid id %d", l.Name, l.ID)})
			continue
		}
		if l.ID > c.finalLevel {
			c.finalLevel = l.ID
		}
		if _, dup := c.levels[l.ID]; dup {
			c.diagnostics = append(c.diagnostics, Diagnostic{Level: l.ID, Reason: "duplicate level id"})
			continue
		}
		if _, ok := c.achievements[l.CompletionAchievement]; !ok {
			// A level without a working completion trigger cannot be played.
			c.diagnostics = append(c.diagnostics, Diagnostic{Level: l.ID, Reason: fmt.Sprintf("completion achievement %q is not defined", l.CompletionAchievement)})
			continue
		}
		for _, id := range l.Locations {
			if !c.hasLocation(id) {
				c.diagnostics = append(c.diagnostics, Diagnostic{Level: l.ID, Reason: fmt.Sprintf("unknown location %q", id)})
			}
		}
		if !c.hasLocation(l.StartLocation) {
			c.diagnostics = append(c.diagnostics, Diagnostic{Level: l.ID, Reason: fmt.Sprintf("unknown start location %q", l.StartLocation)})
		}
		for _, id := range l.Characters {
			if _, ok := c.characters[id]; !ok {
				c.diagnostics = append(c.diagnostics, Diagnostic{Level: l.ID, Reason: fmt.Sprintf("unknown character %q", id)})
			}
		}
		for _, id := range l.Items {
			if _, ok := c.items[id]; !ok {
				c.diagnostics = append(c.diagnostics, Diagnostic{Level: l.ID, Reason: fmt.Sprintf("unknown item %q", id)})
			}
		}
		if !slices.Contains(l.Achievements, l.CompletionAchievement) {
			l.Achievements = append(slices.Clone(l.Achievements), l.CompletionAchievement)
		}
		for _, id := range l.Achievements {
			if _, ok := c.achievements[id]; !ok {
				c.diagnostics = append(c.diagnostics, Diagnostic{Level: l.ID, Reason: fmt.Sprintf("unknown achievement %q", id)})
				continue
			}
			if _, seen := c.levelOf[id]; !seen {
				c.levelOf[id] = l.ID
			}
		}
		c.levels[l.ID] = l.clone()
	}
}

// linkAchievements validates each achievement's character/item/pool
// references and performs the one-time {keyword} substitution.
func (c *Catalog) linkAchievements() {
	for _, id := range c.achOrder {
		a := c.achievements[id]

		if a.CharacterID != "" {
			if _, ok := c.characters[a.CharacterID]; !ok {
				c.disable(id, fmt.Sprintf("unknown character %q", a.CharacterID))
				continue
			}
		}
		if a.Recruits && a.CharacterID == "" {
			c.disable(id, "recruit achievement has no character")
			continue
		}

		var keyword string
		if a.KeywordPool != "" {
			kw, ok := c.pools[a.KeywordPool]
			if !ok {
				c.disable(id, fmt.Sprintf("unknown keyword pool %q", a.KeywordPool))
				continue
			}
			keyword = kw
		}

		if a.ItemID != "" {
			item, ok := c.items[a.ItemID]
			if !ok {
				c.disable(id, fmt.Sprintf("unknown item %q", a.ItemID))
				continue
			}
			if a.KeywordPool == "" {
				c.disable(id, fmt.Sprintf("item %q declared without a keyword pool", a.ItemID))
				continue
			}
			if strings.Contains(item.Description, KeywordPlaceholder) {
				item.Description = strings.ReplaceAll(item.Description, KeywordPlaceholder, keyword)
				c.items[a.ItemID] = item
			}
		}
	}
}

func (c *Catalog) disable(id, reason string) {
	c.disabled[id] = reason
	c.diagnostics = append(c.diagnostics, Diagnostic{AchievementID: id, Reason: reason})
}

func (c *Catalog) hasLocation(id string) bool {
	_, ok := c.locations[id]
	return ok
}

// Title returns the game title.
func (c *Catalog) Title() string { return c.title }

// DefaultLocation is the fallback used when a location cannot be loaded.
func (c *Catalog) DefaultLocation() string { return c.defaultLocation }

// GameOverAchievement returns the id whose unlock ends the game, or "".
func (c *Catalog) GameOverAchievement() string { return c.gameOverAchievement }

// RecruitmentAchievement returns the achievement unlocked when the defense
// is fully staffed, or "".
func (c *Catalog) RecruitmentAchievement() string { return c.recruitAchievement }

func (c *Catalog) Location(id string) (Location, bool) {
	l, ok := c.locations[id]
	return l.clone(), ok
}

func (c *Catalog) Character(id string) (Character, bool) {
	ch, ok := c.characters[id]
	return ch.clone(), ok
}

func (c *Catalog) Item(id string) (Item, bool) {
	it, ok := c.items[id]
	return it.clone(), ok
}

func (c *Catalog) Achievement(id string) (Achievement, bool) {
	a, ok := c.achievements[id]
	return a.clone(), ok
}

// Level returns a playable level definition. Levels that were declared but
// are malformed are reported as missing.
func (c *Catalog) Level(n int) (Level, bool) {
	l, ok := c.levels[n]
	return l.clone(), ok
}

// FinalLevel is the highest level id declared by the content.
func (c *Catalog) FinalLevel() int { return c.finalLevel }

// LevelOf returns the level an achievement belongs to, or 0.
func (c *Catalog) LevelOf(achievementID string) int { return c.levelOf[achievementID] }

// AchievementIDs returns every achievement id in a stable order.
func (c *Catalog) AchievementIDs() []string { return slices.Clone(c.achOrder) }

// AchievementsForCharacter returns the character's achievements that are
// still locked and not disabled.
func (c *Catalog) AchievementsForCharacter(characterID string, isUnlocked func(string) bool) []Achievement {
	var out []Achievement
	for _, id := range c.achOrder {
		a := c.achievements[id]
		if a.CharacterID != characterID {
			continue
		}
		if _, off := c.disabled[id]; off {
			continue
		}
		if isUnlocked != nil && isUnlocked(id) {
			continue
		}
		out = append(out, a.clone())
	}
	return out
}

// ResolveKeywordPool returns the keyword frozen for the pool when the
// catalog was built. Every call for the same pool returns the same value.
func (c *Catalog) ResolveKeywordPool(poolID string) (string, bool) {
	kw, ok := c.pools[poolID]
	return kw, ok
}

// TriggerKeywords returns the achievement's explicit keywords followed by its
// pool keyword, if any.
func (c *Catalog) TriggerKeywords(achievementID string) []string {
	a, ok := c.achievements[achievementID]
	if !ok {
		return nil
	}
	kws := slices.Clone(a.Keywords)
	if a.KeywordPool != "" {
		if kw, ok := c.pools[a.KeywordPool]; ok {
			kws = append(kws, kw)
		}
	}
	return kws
}

// Disabled reports whether an achievement was excluded from trigger
// evaluation because of a broken reference.
func (c *Catalog) Disabled(achievementID string) bool {
	_, off := c.disabled[achievementID]
	return off
}

// Diagnostics returns the problems recorded while building the catalog.
func (c *Catalog) Diagnostics() []Diagnostic { return slices.Clone(c.diagnostics) }

// CharactersAt returns the level's characters present at a location, sorted by id.
func (c *Catalog) CharactersAt(level Level, locationID string) []Character {
	var out []Character
	for _, id := range level.Characters {
		ch, ok := c.characters[id]
		if ok && ch.AppearsAt(locationID) {
			out = append(out, ch.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ItemsAt returns the level's items present at a location, sorted by id.
func (c *Catalog) ItemsAt(level Level, locationID string) []Item {
	var out []Item
	for _, id := range level.Items {
		it, ok := c.items[id]
		if ok && it.AppearsAt(locationID) {
			out = append(out, it.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unrestricted returns a pseudo level containing every location, character
// and item. It stands in when no level data is available.
func (c *Catalog) Unrestricted() Level {
	l := Level{Name: c.title, StartLocation: c.defaultLocation}
	for id := range c.locations {
		l.Locations = append(l.Locations, id)
	}
	for id := range c.characters {
		l.Characters = append(l.Characters, id)
	}
	for id := range c.items {
		l.Items = append(l.Items, id)
	}
	sort.Strings(l.Locations)
	sort.Strings(l.Characters)
	sort.Strings(l.Items)
	return l
}
