package actor

import (
	"fmt"
	"math/rand/v2"

	"github.com/jwebster45206/d20"
	"github.com/jwebster45206/questline/pkg/state"
)

// Trait attribute scores on the adventurer's d20 actor.
const (
	HighScore = 15
	LowScore  = 5
)

const (
	adventurerID = "adventurer"
	adventurerHP = 20
	adventurerAC = 12
)

// Traits are the adventurer attributes the showdown scores against.
var Traits = []string{"fear", "greed", "pride"}

var traitDescriptions = map[string]string{
	"fear_high":  "a cowardly adventurer who scares easily",
	"fear_low":   "a brave adventurer who faces danger head-on",
	"greed_high": "a greedy adventurer obsessed with treasure",
	"greed_low":  "a generous adventurer who cares little for wealth",
	"pride_high": "an arrogant adventurer overconfident in their abilities",
	"pride_low":  "a humble adventurer who doesn't seek glory",
}

// Adventurer is the hidden hero who raids the labyrinth in the final level.
type Adventurer struct {
	Actor *d20.Actor
}

// NewAdventurer rolls each trait high or low.
func NewAdventurer(rng *rand.Rand) (*Adventurer, error) {
	attrs := make(map[string]int, len(Traits))
	for _, t := range Traits {
		if rng.IntN(2) == 0 {
			attrs[t] = HighScore
		} else {
			attrs[t] = LowScore
		}
	}
	return build(attrs)
}

// AdventurerFromStats rebuilds an adventurer from a saved snapshot.
func AdventurerFromStats(stats state.AdventurerStats) (*Adventurer, error) {
	attrs := make(map[string]int, len(Traits))
	for _, t := range Traits {
		switch stats.Get(t) {
		case t + "_high":
			attrs[t] = HighScore
		case t + "_low":
			attrs[t] = LowScore
		default:
			return nil, fmt.Errorf("invalid %s value %q", t, stats.Get(t))
		}
	}
	return build(attrs)
}

func build(attrs map[string]int) (*Adventurer, error) {
	a, err := d20.NewActor(adventurerID).
		WithHP(adventurerHP).
		WithAC(adventurerAC).
		WithAttributes(attrs).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build adventurer: %w", err)
	}
	return &Adventurer{Actor: a}, nil
}

// Value returns a trait's value, e.g. "fear_high".
func (a *Adventurer) Value(trait string) string {
	score, ok := a.Actor.Attribute(trait)
	if !ok {
		return ""
	}
	if score >= (HighScore+LowScore)/2 {
		return trait + "_high"
	}
	return trait + "_low"
}

// Stats returns the trait values in snapshot form.
func (a *Adventurer) Stats() state.AdventurerStats {
	return state.AdventurerStats{
		Fear:  a.Value("fear"),
		Greed: a.Value("greed"),
		Pride: a.Value("pride"),
	}
}

// Describe returns one phrase per trait.
func (a *Adventurer) Describe() []string {
	out := make([]string, 0, len(Traits))
	for _, t := range Traits {
		if d, ok := traitDescriptions[a.Value(t)]; ok {
			out = append(out, d)
		}
	}
	return out
}
