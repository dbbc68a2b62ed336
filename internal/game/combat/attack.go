package combat

import (
	"context"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
	"github.com/cory-johannsen/skirmish/internal/game/event"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Attack kinds.
const (
	Melee   = "melee"
	Ranged  = "ranged"
	Spell   = "ability"
	Unarmed = "unarmed"
)

// attackAbility returns the ability an attack of kind is rolled with.
func (e *Entity) attackAbility(kind string) (string, error) {
	switch kind {
	case Melee, Unarmed:
		return "str", nil
	case Ranged:
		return "dex", nil
	case Spell:
		if e.Stats.SpellAbility == "" {
			return "int", nil
		}
		return NormalizeAbility(e.Stats.SpellAbility)
	}
	return "", skerr.InvalidArgumentf("unknown attack kind %q", kind)
}

// Attack rolls an attack by attackerID against targetID's armor class and,
// on a hit, deals damage. A critical hit doubles the damage dice. An empty
// damage string makes a touch that only reports whether it landed.
//
// The attacker's attack_roll hooks and the target's defense_roll hooks
// both shape the roll; the before_attack reactions see the result and may
// add to it.
func (enc *Encounter) Attack(ctx context.Context, attackerID, targetID, kind, damage string) (Outcome, error) {
	attacker, err := enc.lookup(attackerID)
	if err != nil {
		return Outcome{}, err
	}
	target, err := enc.lookup(targetID)
	if err != nil {
		return Outcome{}, err
	}
	ab, err := attacker.attackAbility(kind)
	if err != nil {
		return Outcome{}, err
	}

	aref, tref := scripting.Ref{ID: attackerID}, scripting.Ref{ID: targetID}
	offence, err := enc.rollMods(ctx, attacker, effect.HookAttackRoll, aref, tref, kind)
	if err != nil {
		return Outcome{}, err
	}
	defence, err := enc.rollMods(ctx, target, effect.HookDefenseRoll, aref, tref, kind)
	if err != nil {
		return Outcome{}, err
	}
	mod, err := enc.AbilityModifier(ctx, attackerID, ab)
	if err != nil {
		return Outcome{}, err
	}
	ac, err := enc.ArmorClass(ctx, targetID)
	if err != nil {
		return Outcome{}, err
	}

	res := enc.resolve(ctx, d20Test{
		source:  attackerID,
		target:  targetID,
		kind:    "attack:" + kind,
		against: ac,
		bonus:   mod + ProficiencyBonus(attacker.Stats.Level),
		mods:    offence.Merge(defence),
		attack:  true,
		before:  event.BeforeAttack,
		success: event.AttackHit,
		failure: event.AttackMiss,
	})
	msg := res.describe(attacker.Stats.Name, kind+" attack on "+target.Stats.Name, "AC")
	if res.critical {
		msg += " (critical hit)"
	}
	if !res.success || res.halted {
		return fail(msg), nil
	}
	if damage == "" {
		return succeed(msg), nil
	}
	out, err := enc.Damage(ctx, attackerID, targetID, damage, res.critical)
	if err != nil {
		return Outcome{}, err
	}
	return succeed(msg + "\n" + out.Message), nil
}
