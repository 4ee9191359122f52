package content

import "slices"

// Character roles that carry game meaning beyond conversation.
const (
	RoleMonster   = "monster"
	RoleTrapMaker = "trap_maker"
	RoleInformant = "informant"
)

// Location is a place the player can stand in.
type Location struct {
	ID          string   `json:"-" yaml:"-"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	ConnectsTo  []string `json:"connects_to,omitempty" yaml:"connects_to,omitempty"`
}

// Character is someone the player can talk to. Prompt is the persona text
// handed to the chat oracle.
type Character struct {
	ID          string   `json:"-" yaml:"-"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Prompt      string   `json:"prompt" yaml:"prompt"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Greeting    string   `json:"greeting,omitempty" yaml:"greeting,omitempty"`       // first meeting line
	Personality string   `json:"personality,omitempty" yaml:"personality,omitempty"` // shy, wise, cheerful, mysterious
	Restorative bool     `json:"restorative,omitempty" yaml:"restorative,omitempty"` // talking restores social energy
	AppearsIn   []string `json:"appears_in,omitempty" yaml:"appears_in,omitempty"`
	Role        string   `json:"role,omitempty" yaml:"role,omitempty"`
	Counters    []string `json:"counters,omitempty" yaml:"counters,omitempty"`   // adventurer stat values a monster counters
	TrapType    string   `json:"trap_type,omitempty" yaml:"trap_type,omitempty"` // fear, greed, pride or universal
}

// Item is something the player can examine. Description may contain a
// {keyword} placeholder filled from a keyword pool.
type Item struct {
	ID                 string   `json:"-" yaml:"-"`
	DisplayName        string   `json:"display_name" yaml:"display_name"`
	Description        string   `json:"description" yaml:"description"`
	AppearsIn          []string `json:"appears_in,omitempty" yaml:"appears_in,omitempty"`
	UnlocksAchievement string   `json:"unlocks_achievement,omitempty" yaml:"unlocks_achievement,omitempty"`
}

// Achievement is a one-way progress flag. Unlock state lives in the game
// state, not here.
type Achievement struct {
	ID          string   `json:"-" yaml:"-"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Hint        string   `json:"hint,omitempty" yaml:"hint,omitempty"`
	CharacterID string   `json:"character,omitempty" yaml:"character,omitempty"`
	ItemID      string   `json:"item,omitempty" yaml:"item,omitempty"`
	KeywordPool string   `json:"keyword_pool,omitempty" yaml:"keyword_pool,omitempty"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Recruits    bool     `json:"recruits,omitempty" yaml:"recruits,omitempty"` // unlocking recruits CharacterID
	Reveals     string   `json:"reveals,omitempty" yaml:"reveals,omitempty"`   // adventurer stat revealed on unlock
}

// Level is a static content partition with one completion achievement.
type Level struct {
	ID                    int      `json:"id" yaml:"id"`
	Name                  string   `json:"name" yaml:"name"`
	Description           string   `json:"description,omitempty" yaml:"description,omitempty"`
	StartLocation         string   `json:"start_location" yaml:"start_location"`
	Locations             []string `json:"locations" yaml:"locations"`
	Characters            []string `json:"characters,omitempty" yaml:"characters,omitempty"`
	Items                 []string `json:"items,omitempty" yaml:"items,omitempty"`
	Achievements          []string `json:"achievements,omitempty" yaml:"achievements,omitempty"`
	CompletionAchievement string   `json:"completion_achievement" yaml:"completion_achievement"`
	TracksEnergy          bool     `json:"tracks_energy,omitempty" yaml:"tracks_energy,omitempty"`
	StartingEnergy        int      `json:"starting_energy,omitempty" yaml:"starting_energy,omitempty"`
}

// Content is the raw, serializable form of a game. Map keys are the ids.
type Content struct {
	Title                  string `json:"title" yaml:"title"`
	DefaultLocation        string `json:"default_location" yaml:"default_location"`
	GameOverAchievement    string `json:"game_over_achievement,omitempty" yaml:"game_over_achievement,omitempty"`
	RecruitmentAchievement string `json:"recruitment_achievement,omitempty" yaml:"recruitment_achievement,omitempty"` // unlocks when the defense is fully staffed

	Locations    map[string]Location    `json:"locations" yaml:"locations"`
	Characters   map[string]Character   `json:"characters" yaml:"characters"`
	Items        map[string]Item        `json:"items,omitempty" yaml:"items,omitempty"`
	Achievements map[string]Achievement `json:"achievements" yaml:"achievements"`
	KeywordPools map[string][]string    `json:"keyword_pools,omitempty" yaml:"keyword_pools,omitempty"`
	Levels       []Level                `json:"levels" yaml:"levels"`
}

// HasLocation reports whether the level includes the location.
func (l Level) HasLocation(id string) bool { return slices.Contains(l.Locations, id) }

// HasCharacter reports whether the level includes the character.
func (l Level) HasCharacter(id string) bool { return slices.Contains(l.Characters, id) }

// HasItem reports whether the level includes the item.
func (l Level) HasItem(id string) bool { return slices.Contains(l.Items, id) }

// AppearsAt reports whether the character can be found at the location.
func (c Character) AppearsAt(locationID string) bool { return slices.Contains(c.AppearsIn, locationID) }

// AppearsAt reports whether the item can be found at the location.
func (i Item) AppearsAt(locationID string) bool { return slices.Contains(i.AppearsIn, locationID) }

func (l Location) clone() Location {
	l.ConnectsTo = slices.Clone(l.ConnectsTo)
	return l
}

func (c Character) clone() Character {
	c.AppearsIn = slices.Clone(c.AppearsIn)
	c.Counters = slices.Clone(c.Counters)
	return c
}

func (i Item) clone() Item {
	i.AppearsIn = slices.Clone(i.AppearsIn)
	return i
}

func (a Achievement) clone() Achievement {
	a.Keywords = slices.Clone(a.Keywords)
	return a
}

func (l Level) clone() Level {
	l.Locations = slices.Clone(l.Locations)
	l.Characters = slices.Clone(l.Characters)
	l.Items = slices.Clone(l.Items)
	l.Achievements = slices.Clone(l.Achievements)
	return l
}
