package combat

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

// RollInitiative rolls initiative for every participant and sorts the turn
// order by it. Formula: d20 + DEX modifier, with check_roll hooks for
// "initiative" granting advantage or disadvantage. Ties go to the higher
// Dexterity score, then to join order.
//
// Postcondition: Round() == 1 and the first entity in order holds the turn.
func (enc *Encounter) RollInitiative(ctx context.Context) error {
	entities := enc.Entities()
	for _, e := range entities {
		mods, err := enc.rollMods(ctx, e, effect.HookCheckRoll, "dex", "initiative")
		if err != nil {
			return err
		}
		dex, err := enc.AbilityModifier(ctx, e.ID, "dex")
		if err != nil {
			return err
		}
		roll := enc.deps.Dice.D20(mods.Advantage, mods.Disadvantage) + dex + mods.Bonus
		e.mu.Lock()
		e.initiative = roll
		e.mu.Unlock()
		enc.logger.Debug("initiative rolled", zap.String("entity", e.ID), zap.Int("initiative", roll))
	}
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		if a.Initiative() != b.Initiative() {
			return a.Initiative() > b.Initiative()
		}
		return a.Stats.Score("dex") > b.Stats.Score("dex")
	})

	enc.mu.Lock()
	defer enc.mu.Unlock()
	enc.order = enc.order[:0]
	for _, e := range entities {
		if _, ok := enc.entities[e.ID]; ok {
			enc.order = append(enc.order, e.ID)
		}
	}
	enc.turn = 0
	enc.round = 1
	return nil
}
