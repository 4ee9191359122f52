package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/jwebster45206/questline/pkg/content"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <game.yaml|game.json>...\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	for _, filename := range os.Args[1:] {
		validator := &ContentValidator{}
		if err := validator.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
			continue
		}
		for _, w := range validator.warnings {
			fmt.Println("warning:" + strings.TrimPrefix(w, " "))
		}
		fmt.Printf("%s is valid!\n", filename)
	}
	if failed {
		os.Exit(1)
	}
}

type ContentValidator struct {
	errors   []string
	warnings []string
}

func (v *ContentValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	ext := filepath.Ext(baseName)
	switch ext {
	case ".yaml", ".yml", ".json":
	default:
		return fmt.Errorf("content file must have a .yaml, .yml or .json extension: %s", baseName)
	}
	if name := strings.TrimSuffix(baseName, ext); !isValidFilename(name) {
		return fmt.Errorf("content filename '%s' must be lowercase snake_case (e.g., my_game.yaml, not my-game.yaml or MyGame.yaml)", baseName)
	}

	c, err := content.LoadFile(filename)
	if err != nil {
		return err
	}

	v.errors, v.warnings = nil, nil
	v.validateContent(c)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *ContentValidator) validateContent(c content.Content) {
	if c.Title == "" {
		v.addError("title is required")
	}
	if len(c.Levels) == 0 {
		v.addWarning("no levels defined; the game runs in minimal mode")
	}
	v.validateLocationRef("default_location", c.DefaultLocation, c)
	v.validateAchievementRef("game_over_achievement", c.GameOverAchievement, c)
	v.validateAchievementRef("recruitment_achievement", c.RecruitmentAchievement, c)

	for _, id := range sortedKeys(c.Locations) {
		v.validateIDFormat("location ID", id)
		for _, to := range c.Locations[id].ConnectsTo {
			v.validateLocationRef("location "+id+" connects_to", to, c)
		}
	}

	for _, id := range sortedKeys(c.Characters) {
		ch := c.Characters[id]
		v.validateIDFormat("character ID", id)
		if strings.TrimSpace(ch.Prompt) == "" {
			v.addError(fmt.Sprintf("character %s has no prompt", id))
		}
		for _, loc := range ch.AppearsIn {
			v.validateLocationRef("character "+id+" appears_in", loc, c)
		}
		switch ch.Role {
		case "", content.RoleMonster, content.RoleTrapMaker, content.RoleInformant:
		default:
			v.addError(fmt.Sprintf("character %s has unknown role '%s'", id, ch.Role))
		}
		if ch.Role == content.RoleTrapMaker && ch.TrapType == "" {
			v.addError(fmt.Sprintf("trap maker %s has no trap_type", id))
		}
		if ch.Role == content.RoleMonster && len(ch.Counters) == 0 {
			v.addWarning(fmt.Sprintf("monster %s counters nothing", id))
		}
	}

	for _, id := range sortedKeys(c.Items) {
		it := c.Items[id]
		v.validateIDFormat("item ID", id)
		for _, loc := range it.AppearsIn {
			v.validateLocationRef("item "+id+" appears_in", loc, c)
		}
		v.validateAchievementRef("item "+id+" unlocks_achievement", it.UnlocksAchievement, c)
	}

	for _, id := range sortedKeys(c.Achievements) {
		a := c.Achievements[id]
		if !isValidAchievementID(id) {
			v.addError(fmt.Sprintf("achievement ID '%s' should be UPPER_SNAKE_CASE", id))
		}
		if a.CharacterID != "" {
			if _, ok := c.Characters[a.CharacterID]; !ok {
				v.addError(fmt.Sprintf("achievement %s references unknown character '%s'", id, a.CharacterID))
			}
		}
		if a.ItemID != "" {
			if _, ok := c.Items[a.ItemID]; !ok {
				v.addError(fmt.Sprintf("achievement %s references unknown item '%s'", id, a.ItemID))
			}
		}
		if a.KeywordPool != "" {
			if _, ok := c.KeywordPools[a.KeywordPool]; !ok {
				v.addError(fmt.Sprintf("achievement %s references unknown keyword pool '%s'", id, a.KeywordPool))
			}
		}
		if a.CharacterID != "" && a.KeywordPool == "" && len(a.Keywords) == 0 {
			v.addWarning(fmt.Sprintf("achievement %s has no trigger keywords", id))
		}
	}

	seen := make(map[int]bool)
	for _, l := range c.Levels {
		where := fmt.Sprintf("level %d", l.ID)
		if l.ID <= 0 || seen[l.ID] {
			v.addError(fmt.Sprintf("%s has a duplicate or non-positive id", where))
		}
		seen[l.ID] = true
		if l.CompletionAchievement == "" {
			v.addError(where + " has no completion_achievement")
		}
		v.validateAchievementRef(where+" completion_achievement", l.CompletionAchievement, c)
		v.validateLocationRef(where+" start_location", l.StartLocation, c)
		if l.StartLocation != "" && !slices.Contains(l.Locations, l.StartLocation) {
			v.addError(fmt.Sprintf("%s start_location '%s' is not one of its locations", where, l.StartLocation))
		}
		for _, loc := range l.Locations {
			v.validateLocationRef(where+" locations", loc, c)
		}
		for _, ch := range l.Characters {
			if _, ok := c.Characters[ch]; !ok {
				v.addError(fmt.Sprintf("%s references unknown character '%s'", where, ch))
			}
		}
		for _, it := range l.Items {
			if _, ok := c.Items[it]; !ok {
				v.addError(fmt.Sprintf("%s references unknown item '%s'", where, it))
			}
		}
		for _, a := range l.Achievements {
			v.validateAchievementRef(where+" achievements", a, c)
		}
		if l.TracksEnergy && l.StartingEnergy < 0 {
			v.addError(where + " has negative starting_energy")
		}
	}

	// Anything the catalog would disable at load time is a content bug.
	for _, d := range content.New(c).Diagnostics() {
		v.addWarning(d.String())
	}
}

func (v *ContentValidator) validateLocationRef(field, id string, c content.Content) {
	if id == "" {
		return
	}
	if _, ok := c.Locations[id]; !ok {
		v.addError(fmt.Sprintf("%s references unknown location '%s'", field, id))
	}
}

func (v *ContentValidator) validateAchievementRef(field, id string, c content.Content) {
	if id == "" {
		return
	}
	if _, ok := c.Achievements[id]; !ok {
		v.addError(fmt.Sprintf("%s references unknown achievement '%s'", field, id))
	}
}

func (v *ContentValidator) validateIDFormat(fieldName, id string) {
	if !isValidID(id) {
		v.addError(fmt.Sprintf("%s '%s' should be lowercase snake_case", fieldName, id))
	}
}

func (v *ContentValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

func (v *ContentValidator) addWarning(msg string) {
	v.warnings = append(v.warnings, " "+msg)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	validIDRegex          = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
	validAchievementRegex = regexp.MustCompile(`^[A-Z][A-Z0-9_]*[A-Z0-9]$|^[A-Z]$`)
	validFilenameRegex    = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}

func isValidAchievementID(id string) bool {
	return validAchievementRegex.MatchString(id)
}

func isValidFilename(name string) bool {
	// Allow 'x.' prefix for experimental content
	name = strings.TrimPrefix(name, "x.")
	return validFilenameRegex.MatchString(name)
}
