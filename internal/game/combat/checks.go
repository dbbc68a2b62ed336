package combat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
	"github.com/cory-johannsen/skirmish/internal/game/event"
	"github.com/cory-johannsen/skirmish/internal/game/modifier"
)

// d20Test describes one d20 roll against a target number.
type d20Test struct {
	source, target string
	kind           string
	against        int
	bonus          int
	mods           modifier.Roll
	attack         bool

	before, success, failure event.Trigger
}

type d20Result struct {
	natural  int
	total    int
	against  int
	success  bool
	critical bool
	// auto is set when a modifier decided the roll and no die was thrown.
	auto bool
	// halted is set when a reaction stopped the roll.
	halted bool
}

func (enc *Encounter) fire(ctx context.Context, trigger event.Trigger, c event.Context) {
	if err := enc.bus.Fire(ctx, event.ReactionEvent{Trigger: trigger, Context: c}); err != nil {
		enc.logger.Warn("reactions failed", zap.String("trigger", string(trigger)), zap.Error(err))
	}
}

// resolve runs the shared roll template: fire the pre-roll event, honour
// auto results without rolling, roll, fire the result event, and re-read
// the totals reactions may have adjusted.
func (enc *Encounter) resolve(ctx context.Context, t d20Test) d20Result {
	rc := event.NewRollContext(t.source, t.target, t.kind, t.against, t.mods)
	enc.fire(ctx, t.before, rc)
	if !rc.Proceed() {
		return d20Result{halted: true, against: t.against}
	}

	m := rc.Modifiers()
	res := d20Result{against: t.against}
	switch {
	case m.AutoFail:
		res.auto = true
	case m.AutoSucceed:
		res.auto = true
		res.success = true
	default:
		res.natural = enc.deps.Dice.D20(m.Advantage, m.Disadvantage)
		res.total = res.natural + t.bonus + m.Bonus
		res.success = enc.succeeds(t.attack, res.natural, res.total, res.against)
		res.critical = t.attack && res.success && res.natural >= m.ThresholdFrom(enc.deps.Config.CriticalThreshold)
	}

	trigger := t.failure
	switch {
	case res.critical && t.attack:
		trigger = event.AttackCritical
	case res.success:
		trigger = t.success
	}
	rr := &event.RollResultContext{
		Source:   t.source,
		Target:   t.target,
		Kind:     t.kind,
		Natural:  res.natural,
		Total:    res.total,
		Against:  res.against,
		Critical: res.critical,
	}
	enc.fire(ctx, trigger, rr)
	if !rr.Proceed() {
		res.halted = true
		return res
	}
	if !res.auto {
		res.total, res.against = rr.Snapshot()
		res.success = enc.succeeds(t.attack, res.natural, res.total, res.against)
		res.critical = res.critical && res.success
	}
	enc.logger.Debug("d20 resolved",
		zap.String("source", t.source),
		zap.String("kind", t.kind),
		zap.Int("natural", res.natural),
		zap.Int("total", res.total),
		zap.Int("against", res.against),
		zap.Bool("success", res.success),
		zap.Bool("critical", res.critical),
	)
	return res
}

// succeeds compares a roll with its target. Attacks always hit on a
// natural 20 and always miss on a natural 1.
func (enc *Encounter) succeeds(attack bool, natural, total, against int) bool {
	if attack {
		switch natural {
		case 20:
			return true
		case 1:
			return false
		}
	}
	return total >= against
}

func (r d20Result) describe(who, what, versus string) string {
	switch {
	case r.halted:
		return fmt.Sprintf("%s's %s was prevented", who, what)
	case r.auto && r.success:
		return fmt.Sprintf("%s's %s automatically succeeds", who, what)
	case r.auto:
		return fmt.Sprintf("%s's %s automatically fails", who, what)
	}
	verdict := "fails"
	if r.success {
		verdict = "succeeds"
	}
	return fmt.Sprintf("%s's %s: %d (natural %d) vs %s %d, %s", who, what, r.total, r.natural, versus, r.against, verdict)
}

// AbilityCheck rolls a d20 plus the ability modifier of id against dc.
func (enc *Encounter) AbilityCheck(ctx context.Context, id, ability string, dc int) (Outcome, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	ab, err := NormalizeAbility(ability)
	if err != nil {
		return Outcome{}, err
	}
	return enc.check(ctx, e, ab, "", dc)
}

// SkillCheck rolls a d20 plus the skill's ability modifier, and the
// proficiency bonus when id is proficient, against dc.
func (enc *Encounter) SkillCheck(ctx context.Context, id, skill string, dc int) (Outcome, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	skill = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(skill), " ", "_"))
	ab, ok := Skills[skill]
	if !ok {
		return Outcome{}, skerr.InvalidArgumentf("unknown skill %q", skill)
	}
	return enc.check(ctx, e, ab, skill, dc)
}

func (enc *Encounter) check(ctx context.Context, e *Entity, ab, skill string, dc int) (Outcome, error) {
	var skillArg any
	kind, what := "check:"+ab, ab+" check"
	if skill != "" {
		skillArg = skill
		kind, what = "skill:"+skill, strings.ReplaceAll(skill, "_", " ")+" check"
	}
	mods, err := enc.rollMods(ctx, e, effect.HookCheckRoll, ab, skillArg)
	if err != nil {
		return Outcome{}, err
	}
	bonus, err := enc.AbilityModifier(ctx, e.ID, ab)
	if err != nil {
		return Outcome{}, err
	}
	if skill != "" && e.Stats.proficient(e.Stats.Skills, skill) {
		bonus += ProficiencyBonus(e.Stats.Level)
	}
	res := enc.resolve(ctx, d20Test{
		source:  e.ID,
		kind:    kind,
		against: dc,
		bonus:   bonus,
		mods:    mods,
		before:  event.BeforeCheck,
		success: event.CheckSuccess,
		failure: event.CheckFailure,
	})
	return Outcome{Success: res.success && !res.halted, Message: res.describe(e.Stats.Name, what, "DC")}, nil
}

// SavingThrow rolls a d20 plus the ability modifier of id, and the
// proficiency bonus when id is proficient in the save, against dc.
func (enc *Encounter) SavingThrow(ctx context.Context, id, ability string, dc int) (Outcome, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	ab, err := NormalizeAbility(ability)
	if err != nil {
		return Outcome{}, err
	}
	mods, err := enc.rollMods(ctx, e, effect.HookSaveRoll, ab)
	if err != nil {
		return Outcome{}, err
	}
	bonus, err := enc.AbilityModifier(ctx, id, ab)
	if err != nil {
		return Outcome{}, err
	}
	if e.Stats.proficient(e.Stats.Saves, ab) {
		bonus += ProficiencyBonus(e.Stats.Level)
	}
	res := enc.resolve(ctx, d20Test{
		source:  id,
		kind:    "save:" + ab,
		against: dc,
		bonus:   bonus,
		mods:    mods,
		before:  event.BeforeSave,
		success: event.SaveSuccess,
		failure: event.SaveFailure,
	})
	return Outcome{Success: res.success && !res.halted, Message: res.describe(e.Stats.Name, ab+" save", "DC")}, nil
}
