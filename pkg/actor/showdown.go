package actor

import (
	"fmt"
	"slices"

	"github.com/jwebster45206/questline/pkg/content"
	"github.com/jwebster45206/questline/pkg/textfilter"
)

// Showdown scoring.
const (
	MaxScore     = 100
	PassingScore = 60

	monsterCounterPoints = 25
	trapCounterPoints    = 15
	layeredPoints        = 5
	trapBasePoints       = 5
	trapMatchPoints      = 2
	perfectPoints        = 5
	synergyPoints        = 2
	universalPoints      = 2
	gapPoints            = 3
)

// TrapUniversal works against every trait.
const TrapUniversal = "universal"

// TraitResult is how one adventurer trait was handled.
type TraitResult struct {
	Trait   string `json:"trait"`
	Value   string `json:"value"`
	Success bool   `json:"success"`
	Points  int    `json:"points"`
	Reason  string `json:"reason"`
}

// ShowdownResult is the outcome of the final confrontation.
type ShowdownResult struct {
	Success      bool          `json:"success"`
	Score        int           `json:"score"`
	MaxScore     int           `json:"max_score"`
	Traits       []TraitResult `json:"traits"`
	TrapPoints   int           `json:"trap_points"`
	TrapReason   string        `json:"trap_reason"`
	BonusPoints  int           `json:"bonus_points"`
	BonusReasons []string      `json:"bonus_reasons,omitempty"`
	Adventurer   []string      `json:"adventurer"`
	Monsters     []string      `json:"monsters"`
	TrapMaker    string        `json:"trap_maker,omitempty"`
}

// Showdown scores the recruited monsters and trap maker against the
// adventurer. trapMaker may be nil.
func Showdown(adv *Adventurer, monsters []content.Character, trapMaker *content.Character) ShowdownResult {
	res := ShowdownResult{
		MaxScore:   MaxScore,
		Adventurer: adv.Describe(),
		Monsters:   make([]string, 0, len(monsters)),
	}
	for _, m := range monsters {
		res.Monsters = append(res.Monsters, m.ID)
	}
	if trapMaker != nil {
		res.TrapMaker = trapMaker.ID
	}

	for _, trait := range Traits {
		tr := scoreTrait(trait, adv.Value(trait), monsters, trapMaker)
		res.Traits = append(res.Traits, tr)
		res.Score += tr.Points
	}

	res.TrapPoints, res.TrapReason = scoreTrapMaker(trapMaker)
	res.Score += res.TrapPoints

	res.BonusPoints, res.BonusReasons = scoreBonus(adv, monsters, trapMaker)
	res.Score += res.BonusPoints

	res.Success = res.Score >= PassingScore
	return res
}

func scoreTrait(trait, value string, monsters []content.Character, trapMaker *content.Character) TraitResult {
	tr := TraitResult{Trait: trait, Value: value}
	monster, hasMonster := counteredBy(monsters, value)
	trapWorks := trapCounters(trapMaker, trait)

	switch {
	case hasMonster:
		tr.Points = monsterCounterPoints
		tr.Success = true
		tr.Reason = fmt.Sprintf("%s perfectly counters %s", name(monster), textfilter.DisplayName(value))
		if trapWorks {
			tr.Points += layeredPoints
			tr.Reason += " (with trap backup!)"
		}
	case trapWorks:
		tr.Points = trapCounterPoints
		tr.Success = true
		tr.Reason = fmt.Sprintf("%s provides a counter to %s", name(*trapMaker), textfilter.DisplayName(value))
	default:
		tr.Reason = fmt.Sprintf("No effective counter for %s", textfilter.DisplayName(value))
	}
	return tr
}

func scoreTrapMaker(trapMaker *content.Character) (int, string) {
	if trapMaker == nil {
		return 0, "No trap maker hired"
	}
	trapType := trapMaker.TrapType
	if trapType == "" {
		trapType = TrapUniversal
	}
	reason := fmt.Sprintf("%s provides %s traps", name(*trapMaker), trapType)
	if trapType == TrapUniversal || slices.Contains(Traits, trapType) {
		return trapBasePoints + trapMatchPoints, reason + " that suit this adventurer"
	}
	return trapBasePoints, reason + " that do not suit this adventurer"
}

func scoreBonus(adv *Adventurer, monsters []content.Character, trapMaker *content.Character) (int, []string) {
	var (
		points  int
		reasons []string
	)

	covered := 0
	for _, trait := range Traits {
		if _, ok := counteredBy(monsters, adv.Value(trait)); ok {
			covered++
		}
	}
	if covered == len(Traits) {
		points += perfectPoints
		reasons = append(reasons, "Perfect counter strategy!")
	}

	if len(monsters) == 2 {
		a, b := monsters[0], monsters[1]
		for _, trait := range Traits {
			high, low := trait+"_high", trait+"_low"
			if (slices.Contains(a.Counters, high) && slices.Contains(b.Counters, low)) ||
				(slices.Contains(a.Counters, low) && slices.Contains(b.Counters, high)) {
				points += synergyPoints
				reasons = append(reasons, fmt.Sprintf("%s and %s complement each other on %s", name(a), name(b), trait))
			}
		}
	}

	if trapMaker != nil {
		if trapMaker.TrapType == TrapUniversal {
			points += universalPoints
			reasons = append(reasons, fmt.Sprintf("%s's universal traps enhance any strategy", name(*trapMaker)))
		} else {
			for _, trait := range Traits {
				if _, ok := counteredBy(monsters, adv.Value(trait)); !ok && trapMaker.TrapType == trait {
					points += gapPoints
					reasons = append(reasons, fmt.Sprintf("%s fills the gap in %s coverage", name(*trapMaker), trait))
				}
			}
		}
	}

	return points, reasons
}

func counteredBy(monsters []content.Character, value string) (content.Character, bool) {
	for _, m := range monsters {
		if slices.Contains(m.Counters, value) {
			return m, true
		}
	}
	return content.Character{}, false
}

func trapCounters(trapMaker *content.Character, trait string) bool {
	if trapMaker == nil {
		return false
	}
	return trapMaker.TrapType == TrapUniversal || trapMaker.TrapType == trait
}

func name(c content.Character) string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return textfilter.DisplayName(c.ID)
}
