package combat

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/event"
)

// Unconscious is the condition applied at 0 hit points.
const Unconscious = "unconscious"

// Damage rolls damage from sourceID against targetID and applies it.
//
// The damage string is split into typed pools, each rolled into separate
// dice that damage_roll reactions may rewrite. Per type, immunity removes
// the damage, then vulnerability doubles it, then resistance halves it
// rounding down. take_damage reactions may adjust the total before
// temporary hit points absorb it. A concentrating target that survives
// saves Constitution at DC max(10, damage/2) or loses concentration.
func (enc *Encounter) Damage(ctx context.Context, sourceID, targetID, damage string, critical bool) (Outcome, error) {
	target, err := enc.lookup(targetID)
	if err != nil {
		return Outcome{}, err
	}
	pools, err := dice.ParseDamage(damage)
	if err != nil {
		return Outcome{}, skerr.WrapWithCode(err, skerr.CodeInvalidArgument, "damage")
	}

	rolled := make([]event.RolledPool, len(pools))
	for i, p := range pools {
		expr := p.Expr
		if critical {
			expr = expr.Doubled()
		}
		faces := []int{}
		if expr.Count > 0 {
			faces = enc.deps.Dice.Dice(expr.Count, expr.Sides)
		}
		if expr.KeepHighest > 0 && expr.KeepHighest < len(faces) {
			sort.Sort(sort.Reverse(sort.IntSlice(faces)))
			faces = faces[:expr.KeepHighest]
		}
		rolled[i] = event.RolledPool{Type: p.Type, Sides: expr.Sides, Dice: faces, Modifier: expr.Modifier}
	}

	enc.logger.Debug("damage rolled",
		zap.String("target", targetID),
		zap.String("damage", dice.FormatDamage(pools)),
		zap.Bool("critical", critical),
	)

	rc := event.NewDamageRollContext(sourceID, targetID, critical, rolled)
	enc.fire(ctx, event.DamageRoll, rc)
	if !rc.Proceed() {
		return fail(fmt.Sprintf("the damage to %s was prevented", target.Stats.Name)), nil
	}

	resist, immune, vuln, err := enc.damageTraits(ctx, target)
	if err != nil {
		return Outcome{}, err
	}
	byType := make(map[string]int)
	for _, p := range rc.Pools() {
		byType[p.Type] += p.Total()
	}
	for t, n := range byType {
		byType[t] = Mitigate(n, immune[t], vuln[t], resist[t])
	}

	dc := event.NewDamageContext(sourceID, targetID, byType)
	enc.fire(ctx, event.TakeDamage, dc)
	if !dc.Proceed() {
		return fail(fmt.Sprintf("the damage to %s was prevented", target.Stats.Name)), nil
	}
	amount := dc.Total()
	return enc.applyDamage(ctx, target, amount, byType)
}

// Mitigate applies immunity, vulnerability and resistance to n, in that
// order.
func Mitigate(n int, immune, vulnerable, resistant bool) int {
	if immune {
		return 0
	}
	if vulnerable {
		n *= 2
	}
	if resistant {
		n /= 2
	}
	return n
}

func (enc *Encounter) applyDamage(ctx context.Context, target *Entity, amount int, byType map[string]int) (Outcome, error) {
	absorbed, dealt, hp := target.applyDamage(amount)
	enc.logger.Debug("damage applied",
		zap.String("target", target.ID),
		zap.Int("amount", amount),
		zap.Int("absorbed", absorbed),
		zap.Int("hp", hp),
	)

	msg := fmt.Sprintf("%s takes %d damage%s", target.Stats.Name, amount, formatTypes(byType))
	if absorbed > 0 {
		msg += fmt.Sprintf(", %d absorbed by temporary hit points", absorbed)
	}

	conc := target.Effects.Concentration()
	switch {
	case hp == 0 && dealt > 0:
		msg += fmt.Sprintf("\n%s drops to 0 hit points", target.Stats.Name)
		if conc.IsConcentrating() {
			if err := conc.End(ctx); err != nil {
				return Outcome{}, err
			}
		}
		if !target.Effects.Has(Unconscious) && enc.deps.Catalog != nil {
			if _, err := enc.AddEffect(ctx, target.ID, Unconscious, -1, "", ""); err != nil {
				return Outcome{}, err
			}
		}
	case amount > 0 && conc.IsConcentrating():
		save, err := enc.SavingThrow(ctx, target.ID, "con", max(10, amount/2))
		if err != nil {
			return Outcome{}, err
		}
		msg += "\n" + save.Message
		if !save.Success {
			if err := conc.End(ctx); err != nil {
				return Outcome{}, err
			}
			msg += fmt.Sprintf("\n%s loses concentration", target.Stats.Name)
		}
	}
	return succeed(msg), nil
}

func formatTypes(byType map[string]int) string {
	if len(byType) == 0 {
		return ""
	}
	keys := make([]string, 0, len(byType))
	for k := range byType {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%d %s", byType[k], k)
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// Heal restores amount hit points to id, up to its maximum. A creature
// brought above 0 hit points wakes up.
func (enc *Encounter) Heal(ctx context.Context, id string, amount int) (Outcome, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	if amount < 0 {
		return Outcome{}, skerr.InvalidArgumentf("cannot heal a negative amount (%d)", amount)
	}
	maxHP, err := enc.MaxHP(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	healed, hp := e.heal(amount, maxHP)
	msg := fmt.Sprintf("%s regains %d hit points (%d/%d)", e.Stats.Name, healed, hp, maxHP)
	if hp > 0 && e.Effects.Has(Unconscious) {
		switch err := e.Effects.Remove(ctx, Unconscious); {
		case err == nil:
			msg += fmt.Sprintf("\n%s regains consciousness", e.Stats.Name)
		case !skerr.IsNotFound(err) && !skerr.IsInvalidArgument(err):
			return Outcome{}, err
		}
	}
	return succeed(msg), nil
}
