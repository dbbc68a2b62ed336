package combat

import (
	"context"

	"github.com/cory-johannsen/skirmish/internal/game/resource"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// statblock is the script-facing view of an entity. Every call goes back
// through the encounter, so proxies always observe live state.
type statblock struct {
	enc *Encounter
	e   *Entity
}

var _ scripting.Statblock = (*statblock)(nil)

func (s *statblock) ID() string            { return s.e.ID }
func (s *statblock) Name() string          { return s.e.Stats.Name }
func (s *statblock) Level() int            { return s.e.Stats.Level }
func (s *statblock) Size() string          { return s.e.Stats.Size }
func (s *statblock) HP() int               { return s.e.HP() }
func (s *statblock) TempHP() int           { return s.e.TempHP() }
func (s *statblock) ProficiencyBonus() int { return ProficiencyBonus(s.e.Stats.Level) }
func (s *statblock) HasEffect(name string) bool {
	return s.e.Effects.Has(name)
}
func (s *statblock) IsConcentrating() bool {
	return s.e.Effects.Concentration().IsConcentrating()
}

func (s *statblock) HasResource(kind string) bool {
	k, err := resource.ParseKind(kind)
	if err != nil {
		return false
	}
	return s.e.Resources.Has(k)
}

func (s *statblock) MaxHP(ctx context.Context) (int, error) {
	return s.enc.MaxHP(ctx, s.e.ID)
}

func (s *statblock) ArmorClass(ctx context.Context) (int, error) {
	return s.enc.ArmorClass(ctx, s.e.ID)
}

func (s *statblock) Speed(ctx context.Context) (int, error) {
	return s.enc.Speed(ctx, s.e.ID)
}

func (s *statblock) AbilityScore(ctx context.Context, ability string) (int, error) {
	return s.enc.AbilityScore(ctx, s.e.ID, ability)
}

func (s *statblock) AbilityModifier(ctx context.Context, ability string) (int, error) {
	return s.enc.AbilityModifier(ctx, s.e.ID, ability)
}

func (s *statblock) DistanceTo(otherID string) (int, error) {
	return s.enc.grid.Distance(s.e.ID, otherID)
}

func unpack(o Outcome, err error) (bool, string, error) {
	return o.Success, o.Message, err
}

// TakeDamage applies damage dealt by the script's owner.
func (s *statblock) TakeDamage(ctx context.Context, origin scripting.Origin, damage string) (bool, string, error) {
	return unpack(s.enc.Damage(ctx, origin.Owner, s.e.ID, damage, false))
}

func (s *statblock) Heal(ctx context.Context, _ scripting.Origin, amount int) (bool, string, error) {
	return unpack(s.enc.Heal(ctx, s.e.ID, amount))
}

func (s *statblock) AbilityCheck(ctx context.Context, _ scripting.Origin, ability string, dc int) (bool, string, error) {
	return unpack(s.enc.AbilityCheck(ctx, s.e.ID, ability, dc))
}

func (s *statblock) SkillCheck(ctx context.Context, _ scripting.Origin, skill string, dc int) (bool, string, error) {
	return unpack(s.enc.SkillCheck(ctx, s.e.ID, skill, dc))
}

func (s *statblock) SavingThrow(ctx context.Context, _ scripting.Origin, ability string, dc int) (bool, string, error) {
	return unpack(s.enc.SavingThrow(ctx, s.e.ID, ability, dc))
}

// Attack makes this entity attack targetID.
func (s *statblock) Attack(ctx context.Context, _ scripting.Origin, targetID, kind, damage string) (bool, string, error) {
	return unpack(s.enc.Attack(ctx, s.e.ID, targetID, kind, damage))
}

// AddEffect applies a catalog condition to this entity. Conditions applied
// during an ability use carry its use id, so ending the use's
// concentration removes them.
func (s *statblock) AddEffect(ctx context.Context, origin scripting.Origin, name string, duration int) (bool, string, error) {
	return unpack(s.enc.AddEffect(ctx, s.e.ID, name, duration, origin.Owner, origin.UseID))
}

func (s *statblock) RemoveEffect(ctx context.Context, _ scripting.Origin, name string) (bool, string, error) {
	return unpack(s.enc.RemoveEffect(ctx, s.e.ID, name))
}
