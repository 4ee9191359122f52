package actor

import (
	"testing"

	"github.com/jwebster45206/questline/pkg/content"
	"github.com/jwebster45206/questline/pkg/state"
)

var (
	skeleton = content.Character{ID: "skeleton_warrior", DisplayName: "Skeleton Warrior", Counters: []string{"fear_high"}}
	spider   = content.Character{ID: "giant_spider", DisplayName: "Giant Spider", Counters: []string{"fear_low"}}
	troll    = content.Character{ID: "troll", DisplayName: "Troll", Counters: []string{"greed_low"}}
	kate     = content.Character{ID: "cogwheel_kate", DisplayName: "Cogwheel Kate", TrapType: "fear"}
	pete     = content.Character{ID: "pit_boss_pete", DisplayName: "Pit Boss Pete", TrapType: TrapUniversal}
)

func TestShowdown(t *testing.T) {
	cowardlyGenerousArrogant := state.AdventurerStats{Fear: "fear_high", Greed: "greed_low", Pride: "pride_high"}

	tests := []struct {
		name        string
		stats       state.AdventurerStats
		monsters    []content.Character
		trapMaker   *content.Character
		wantScore   int
		wantSuccess bool
	}{
		{
			// fear 25+5, greed 25, pride 0, trap 7
			name:        "two counters with layered trap",
			stats:       cowardlyGenerousArrogant,
			monsters:    []content.Character{skeleton, troll},
			trapMaker:   &kate,
			wantScore:   62,
			wantSuccess: true,
		},
		{
			// 15 per trait, trap 7, universal bonus 2
			name:        "universal trap alone",
			stats:       cowardlyGenerousArrogant,
			monsters:    nil,
			trapMaker:   &pete,
			wantScore:   54,
			wantSuccess: false,
		},
		{
			// fear 15 from trap, greed 25, trap 7, gap filled 3
			name:        "trap fills a gap but not enough",
			stats:       cowardlyGenerousArrogant,
			monsters:    []content.Character{spider, troll},
			trapMaker:   &kate,
			wantScore:   25 + 15 + 7 + 3,
			wantSuccess: false,
		},
		{
			name:        "nobody recruited",
			stats:       cowardlyGenerousArrogant,
			wantScore:   0,
			wantSuccess: false,
		},
		{
			// 25 * 3, perfect 5, fear synergy 2
			name:  "perfect coverage without trap maker",
			stats: cowardlyGenerousArrogant,
			monsters: []content.Character{
				{ID: "a", Counters: []string{"fear_high", "pride_high"}},
				{ID: "b", Counters: []string{"fear_low", "greed_low"}},
			},
			wantScore:   82,
			wantSuccess: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := mustAdventurer(t, tt.stats)

			got := Showdown(adv, tt.monsters, tt.trapMaker)

			if got.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d (traits %+v, trap %d, bonus %d %v)",
					got.Score, tt.wantScore, got.Traits, got.TrapPoints, got.BonusPoints, got.BonusReasons)
			}
			if got.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", got.Success, tt.wantSuccess)
			}
			if got.MaxScore != MaxScore {
				t.Errorf("MaxScore = %d, want %d", got.MaxScore, MaxScore)
			}
			if len(got.Traits) != len(Traits) {
				t.Errorf("got %d trait results, want %d", len(got.Traits), len(Traits))
			}
		})
	}
}

func TestShowdown_TraitReasons(t *testing.T) {
	adv := mustAdventurer(t, state.AdventurerStats{Fear: "fear_high", Greed: "greed_low", Pride: "pride_high"})

	got := Showdown(adv, []content.Character{skeleton}, &kate)

	fear := got.Traits[0]
	if !fear.Success || fear.Points != 30 || fear.Reason != "Skeleton Warrior perfectly counters Fear High (with trap backup!)" {
		t.Errorf("fear = %+v", fear)
	}
	pride := got.Traits[2]
	if pride.Success || pride.Reason != "No effective counter for Pride High" {
		t.Errorf("pride = %+v", pride)
	}
	if got.TrapMaker != "cogwheel_kate" || len(got.Monsters) != 1 || got.Monsters[0] != "skeleton_warrior" {
		t.Errorf("roster = %q %v", got.TrapMaker, got.Monsters)
	}
}
