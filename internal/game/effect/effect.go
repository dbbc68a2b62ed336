// Package effect tracks the effects and conditions active on one entity.
package effect

import (
	"maps"
	"slices"
	"strings"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/timing"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Hook names an effect script may define. Modifier hooks run read-only and
// return modifier records; lifecycle hooks run with full capabilities.
const (
	HookAttackRoll      = "attack_roll"  // (attacker, target, kind) on the attacker's effects
	HookDefenseRoll     = "defense_roll" // (attacker, target, kind) on the target's effects
	HookCheckRoll       = "check_roll"   // (ability, skill)
	HookSaveRoll        = "save_roll"    // (ability)
	HookMaxHP           = "max_hp"
	HookArmorClass      = "armor_class"
	HookSpeed           = "speed"
	HookAbilityScore    = "ability_score" // (ability)
	HookMovementCost    = "movement_cost"
	HookResistances     = "resistances"
	HookImmunities      = "immunities"
	HookVulnerabilities = "vulnerabilities"
	HookGetAbilities    = "get_abilities"

	OnApply   = "on_apply"
	OnRemoval = "on_removal"
	OnExpire  = "on_expire"
	OnTick    = "on_tick"
)

// ReactionHook is the hook an effect defines to react to a trigger.
func ReactionHook(trigger string) string {
	return "on_" + trigger
}

// Separator joins a parent effect name and a derived condition name.
const Separator = "%"

// Effect is one named modifier source on an entity.
type Effect struct {
	Name  string
	Entry scripting.Entry
	// Remaining is in rounds; timing.Indefinite never expires.
	Remaining int
	// Source is the entity that first applied the effect.
	Source string
	// Sources lists every entity that applied the effect while it was
	// active, first applier first.
	Sources []string
	// UseID ties the effect to the ability use that created it.
	UseID string
	// Parent is set on derived conditions.
	Parent          string
	Conditions      []string
	RestrictActions []string
	Env             map[string]any
}

// Template is a reusable effect definition, such as a catalog condition.
type Template struct {
	Name            string
	Script          *scripting.Script
	RestrictActions []string
}

// New builds an effect from a compiled script.
func New(name string, s *scripting.Script) (*Effect, error) {
	return FromTemplate(Template{Name: name, Script: s})
}

// FromTemplate builds a fresh effect from t. The script's declared
// conditions and initial state are copied.
func FromTemplate(t Template) (*Effect, error) {
	if t.Name == "" || strings.Contains(t.Name, Separator) {
		return nil, skerr.Authoringf("effect name %q is empty or contains %q", t.Name, Separator)
	}
	if t.Script == nil {
		return nil, skerr.InvalidArgumentf("effect %q has no script", t.Name)
	}
	root := t.Script.Root()
	e := &Effect{
		Name:            t.Name,
		Entry:           root,
		Remaining:       timing.Indefinite,
		RestrictActions: slices.Clone(t.RestrictActions),
	}
	if v, ok := root.Value("conditions"); ok {
		e.Conditions = scripting.AsStrings(v)
	}
	if v, ok := root.Value("restrict_actions"); ok {
		e.RestrictActions = append(e.RestrictActions, scripting.AsStrings(v)...)
	}
	if v, ok := root.Value("duration"); ok {
		switch d := v.(type) {
		case timing.Duration:
			e.Remaining = d.Rounds()
		default:
			if n, ok := scripting.AsInt(v); ok {
				e.Remaining = n
			}
		}
	}
	if st, ok := root.Value("state"); ok {
		if m, ok := st.(map[string]any); ok {
			e.Env = maps.Clone(m)
		}
	}
	return e, nil
}

// Derived reports whether e was created by its parent's conditions list.
func (e *Effect) Derived() bool { return e.Parent != "" }

// Restricts reports whether e forbids spending the named turn resource.
func (e *Effect) Restricts(kind string) bool {
	return slices.Contains(e.RestrictActions, kind)
}

// BaseName is the condition name without any parent prefix.
func (e *Effect) BaseName() string {
	if i := strings.LastIndex(e.Name, Separator); i >= 0 {
		return e.Name[i+1:]
	}
	return e.Name
}

func derivedName(parent, condition string) string {
	return parent + Separator + condition
}
