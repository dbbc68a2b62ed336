package combat

import (
	"context"
	"fmt"
	"strings"

	"github.com/cory-johannsen/skirmish/internal/game/effect"
	"github.com/cory-johannsen/skirmish/internal/game/modifier"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// values folds the results of a value hook. A hook may return one value
// record, a list of them, or a bare number meaning an addition.
func values(results []any) (modifier.Values, error) {
	var out modifier.Values
	var add func(v any) error
	add = func(v any) error {
		switch tv := v.(type) {
		case modifier.Value:
			out = out.With(tv)
		case float64:
			out = out.With(modifier.Add(tv))
		case []any:
			for _, e := range tv {
				if err := add(e); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("combat: value hook returned %T", v)
		}
		return nil
	}
	for _, r := range results {
		if err := add(r); err != nil {
			return modifier.Values{}, err
		}
	}
	return out, nil
}

// rolls folds the results of a roll hook.
func rolls(results []any) (modifier.Roll, error) {
	records := make([]modifier.Roll, 0, len(results))
	for _, r := range results {
		switch tv := r.(type) {
		case modifier.Roll:
			records = append(records, tv)
		case []any:
			nested, err := rolls(tv)
			if err != nil {
				return modifier.Roll{}, err
			}
			records = append(records, nested)
		default:
			return modifier.Roll{}, fmt.Errorf("combat: roll hook returned %T", r)
		}
	}
	return modifier.FoldRolls(records...), nil
}

func names(results []any) []string {
	var out []string
	for _, r := range results {
		out = append(out, scripting.AsStrings(r)...)
	}
	return out
}

func (enc *Encounter) fold(ctx context.Context, e *Entity, hook string, args ...any) (modifier.Values, error) {
	res, err := e.Effects.Results(ctx, hook, args...)
	if err != nil {
		return modifier.Values{}, err
	}
	return values(res)
}

func (enc *Encounter) rollMods(ctx context.Context, e *Entity, hook string, args ...any) (modifier.Roll, error) {
	res, err := e.Effects.Results(ctx, hook, args...)
	if err != nil {
		return modifier.Roll{}, err
	}
	return rolls(res)
}

// MaxHP returns the maximum hit points of id after effects.
func (enc *Encounter) MaxHP(ctx context.Context, id string) (int, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return 0, err
	}
	v, err := enc.fold(ctx, e, effect.HookMaxHP)
	if err != nil {
		return 0, err
	}
	return max(modifier.Int(v.ApplyFloor(float64(e.Stats.MaxHP))), 1), nil
}

// ArmorClass returns the armor class of id after effects.
func (enc *Encounter) ArmorClass(ctx context.Context, id string) (int, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return 0, err
	}
	v, err := enc.fold(ctx, e, effect.HookArmorClass)
	if err != nil {
		return 0, err
	}
	return modifier.Int(v.ApplyFloor(float64(e.Stats.ArmorClass))), nil
}

// Speed returns the walking speed of id after effects. Set records cap it,
// so a grapple's speed of 0 wins over any bonus.
func (enc *Encounter) Speed(ctx context.Context, id string) (int, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return 0, err
	}
	v, err := enc.fold(ctx, e, effect.HookSpeed)
	if err != nil {
		return 0, err
	}
	return max(modifier.Int(v.ApplyCeiling(float64(e.Stats.Speed))), 0), nil
}

// AbilityScore returns the score of ability for id after effects.
func (enc *Encounter) AbilityScore(ctx context.Context, id, ability string) (int, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return 0, err
	}
	ab, err := NormalizeAbility(ability)
	if err != nil {
		return 0, err
	}
	v, err := enc.fold(ctx, e, effect.HookAbilityScore, ab)
	if err != nil {
		return 0, err
	}
	return modifier.Int(v.ApplyFloor(float64(e.Stats.Score(ab)))), nil
}

// AbilityModifier returns the modifier of ability for id after effects.
func (enc *Encounter) AbilityModifier(ctx context.Context, id, ability string) (int, error) {
	score, err := enc.AbilityScore(ctx, id, ability)
	if err != nil {
		return 0, err
	}
	return AbilityMod(score), nil
}

// damageTraits gathers the statblock's damage traits with those granted by
// effects, lowercased to match parsed damage types.
func (enc *Encounter) damageTraits(ctx context.Context, e *Entity) (resist, immune, vuln map[string]bool, err error) {
	collect := func(base []string, hook string) (map[string]bool, error) {
		set := make(map[string]bool)
		for _, t := range base {
			set[strings.ToLower(strings.TrimSpace(t))] = true
		}
		res, err := e.Effects.Results(ctx, hook)
		if err != nil {
			return nil, err
		}
		for _, t := range names(res) {
			set[strings.ToLower(strings.TrimSpace(t))] = true
		}
		return set, nil
	}
	if resist, err = collect(e.Stats.Resistances, effect.HookResistances); err != nil {
		return nil, nil, nil, err
	}
	if immune, err = collect(e.Stats.Immunities, effect.HookImmunities); err != nil {
		return nil, nil, nil, err
	}
	if vuln, err = collect(e.Stats.Vulnerabilities, effect.HookVulnerabilities); err != nil {
		return nil, nil, nil, err
	}
	return resist, immune, vuln, nil
}
