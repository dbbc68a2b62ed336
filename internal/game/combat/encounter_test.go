package combat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/ability"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/combat/mocks"
	"github.com/cory-johannsen/skirmish/internal/game/condition"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
	"github.com/cory-johannsen/skirmish/internal/game/resource"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

type fixture struct {
	enc  *combat.Encounter
	dice *mocks.MockDice
	mgr  *scripting.Manager
	hero *combat.Entity
	ogre *combat.Entity
}

func heroStats() combat.Stats {
	return combat.Stats{
		Name:       "Hero",
		Kind:       combat.KindPlayer,
		Level:      1,
		MaxHP:      100,
		ArmorClass: 12,
		Speed:      30,
		Scores:     map[string]int{"str": 14, "dex": 12, "con": 12},
		Saves:      []string{"str"},
		Skills:     []string{"athletics"},
	}
}

func ogreStats() combat.Stats {
	return combat.Stats{
		Name:       "Ogre",
		Kind:       combat.KindNPC,
		Level:      1,
		Size:       "large",
		MaxHP:      100,
		ArmorClass: 12,
		Speed:      40,
		Scores:     map[string]int{"str": 18, "dex": 10, "con": 16},
	}
}

func newFixture(t *testing.T, ogre ...func(*combat.Stats)) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDice(ctrl)
	logger := zap.NewNop()
	mgr := scripting.NewManager(logger, 0)
	reg, err := condition.Load(mgr, "")
	require.NoError(t, err)

	enc := combat.NewEncounter("test", grid.New(), combat.Deps{
		Dice:    d,
		Scripts: mgr,
		Catalog: reg,
		Logger:  logger,
	})
	hero, err := enc.Join("hero", heroStats(), grid.Point{X: 0, Y: 0})
	require.NoError(t, err)
	os := ogreStats()
	for _, fn := range ogre {
		fn(&os)
	}
	o, err := enc.Join("ogre", os, grid.Point{X: 1, Y: 0})
	require.NoError(t, err)
	return &fixture{enc: enc, dice: d, mgr: mgr, hero: hero, ogre: o}
}

func (f *fixture) ability(t *testing.T, e *combat.Entity, name, src string) {
	t.Helper()
	s, err := f.mgr.Compile(name, src)
	require.NoError(t, err)
	a, err := ability.FromScript(s)
	require.NoError(t, err)
	require.NoError(t, e.Abilities.Add(a))
}

func (f *fixture) condition(t *testing.T, id, name, source string) {
	t.Helper()
	out, err := f.enc.AddEffect(context.Background(), id, name, 0, source, "")
	require.NoError(t, err)
	require.True(t, out.Success)
}

func TestJoin_Duplicate(t *testing.T) {
	f := newFixture(t)
	_, err := f.enc.Join("hero", heroStats(), grid.Point{X: 5, Y: 5})
	assert.True(t, skerr.IsAlreadyExists(err))
}

func TestDamage_Flat(t *testing.T) {
	f := newFixture(t)
	out, err := f.enc.Damage(context.Background(), "hero", "ogre", "10 slashing", false)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 90, f.ogre.HP())
	assert.Contains(t, out.Message, "10 slashing")
}

func TestDamage_Traits(t *testing.T) {
	tests := []struct {
		name   string
		traits func(*combat.Stats)
		wantHP int
	}{
		{"resistant", func(s *combat.Stats) { s.Resistances = []string{"slashing"} }, 95},
		{"immune", func(s *combat.Stats) { s.Immunities = []string{"slashing"} }, 100},
		{"vulnerable and resistant", func(s *combat.Stats) {
			s.Resistances = []string{"slashing"}
			s.Vulnerabilities = []string{"slashing"}
		}, 90},
		{"other type", func(s *combat.Stats) { s.Resistances = []string{"fire"} }, 90},
		{"capitalised trait", func(s *combat.Stats) { s.Immunities = []string{"Slashing"} }, 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.traits)
			_, err := f.enc.Damage(context.Background(), "hero", "ogre", "10 slashing", false)
			require.NoError(t, err)
			assert.Equal(t, tc.wantHP, f.ogre.HP())
		})
	}
}

func TestDamage_RolledPools(t *testing.T) {
	f := newFixture(t)
	f.dice.EXPECT().Dice(2, 6).Return([]int{6, 6})
	_, err := f.enc.Damage(context.Background(), "hero", "ogre", "2d6 slashing", false)
	require.NoError(t, err)
	assert.Equal(t, 88, f.ogre.HP())
}

func TestDamage_CriticalDoublesDice(t *testing.T) {
	f := newFixture(t)
	f.dice.EXPECT().Dice(2, 8).Return([]int{3, 4})
	_, err := f.enc.Damage(context.Background(), "hero", "ogre", "1d8+2 piercing", true)
	require.NoError(t, err)
	assert.Equal(t, 91, f.ogre.HP())
}

func TestDamage_InvalidString(t *testing.T) {
	f := newFixture(t)
	_, err := f.enc.Damage(context.Background(), "hero", "ogre", "lots of fire", false)
	assert.True(t, skerr.IsInvalidArgument(err))
}

func TestDamage_TempHPAbsorbsFirst(t *testing.T) {
	f := newFixture(t)
	f.ogre.SetTempHP(5)
	out, err := f.enc.Damage(context.Background(), "hero", "ogre", "8", false)
	require.NoError(t, err)
	assert.Equal(t, 97, f.ogre.HP())
	assert.Equal(t, 0, f.ogre.TempHP())
	assert.Contains(t, out.Message, "5 absorbed")
}

func TestDamage_ZeroHPAppliesUnconscious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.enc.Damage(ctx, "hero", "ogre", "150 bludgeoning", false)
	require.NoError(t, err)
	assert.Equal(t, 0, f.ogre.HP())
	assert.True(t, f.ogre.Effects.Has("unconscious"))
	assert.True(t, f.ogre.Effects.Has("incapacitated"))
	assert.True(t, f.ogre.Effects.Restricted("action"))

	out, err := f.enc.Heal(ctx, "ogre", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, f.ogre.HP())
	assert.False(t, f.ogre.Effects.Has("unconscious"))
	assert.Contains(t, out.Message, "regains consciousness")
}

func TestDamage_ConcentrationSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.hero.Effects.Concentration().Start(ctx, "use-1", 10))

	// DC max(10, 30/2) = 15; 3 + CON 1 fails.
	f.dice.EXPECT().D20(false, false).Return(3)
	out, err := f.enc.Damage(ctx, "ogre", "hero", "30 fire", false)
	require.NoError(t, err)
	assert.False(t, f.hero.Effects.Concentration().IsConcentrating())
	assert.Contains(t, out.Message, "loses concentration")
}

func TestDamage_ConcentrationHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.hero.Effects.Concentration().Start(ctx, "use-1", 10))

	// DC 10 for small hits.
	f.dice.EXPECT().D20(false, false).Return(9)
	_, err := f.enc.Damage(ctx, "ogre", "hero", "4 fire", false)
	require.NoError(t, err)
	assert.True(t, f.hero.Effects.Concentration().IsConcentrating())
}

func TestHeal_CapsAtMax(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.enc.Damage(ctx, "ogre", "hero", "10", false)
	require.NoError(t, err)
	out, err := f.enc.Heal(ctx, "hero", 50)
	require.NoError(t, err)
	assert.Equal(t, 100, f.hero.HP())
	assert.Contains(t, out.Message, "regains 10 hit points")

	_, err = f.enc.Heal(ctx, "hero", -1)
	assert.True(t, skerr.IsInvalidArgument(err))
}

func TestAttack_BlindedAttackerHasDisadvantage(t *testing.T) {
	f := newFixture(t)
	f.condition(t, "hero", "blinded", "")
	f.dice.EXPECT().D20(false, true).Return(15)
	out, err := f.enc.Attack(context.Background(), "hero", "ogre", combat.Melee, "")
	require.NoError(t, err)
	assert.True(t, out.Success, out.Message)
}

func TestAttack_BlindedDefenderGrantsAdvantage(t *testing.T) {
	f := newFixture(t)
	f.condition(t, "ogre", "blinded", "")
	f.dice.EXPECT().D20(true, false).Return(15)
	_, err := f.enc.Attack(context.Background(), "hero", "ogre", combat.Melee, "")
	require.NoError(t, err)
}

func TestAttack_CharmedAutoFailsWithoutRolling(t *testing.T) {
	f := newFixture(t)
	f.condition(t, "hero", "charmed", "ogre")
	f.dice.EXPECT().D20(gomock.Any(), gomock.Any()).Times(0)
	f.dice.EXPECT().Dice(gomock.Any(), gomock.Any()).Times(0)
	out, err := f.enc.Attack(context.Background(), "hero", "ogre", combat.Melee, "1d8 slashing")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "automatically fails")
	assert.Equal(t, 100, f.ogre.HP())
}

func TestAttack_CharmedByTwoRefusesBoth(t *testing.T) {
	f := newFixture(t)
	_, err := f.enc.Join("witch", combat.Stats{Name: "Witch", MaxHP: 20, ArmorClass: 10, Speed: 30}, grid.Point{X: 0, Y: 1})
	require.NoError(t, err)
	f.condition(t, "hero", "charmed", "ogre")
	f.condition(t, "hero", "charmed", "witch")
	f.dice.EXPECT().D20(gomock.Any(), gomock.Any()).Times(0)

	for _, target := range []string{"ogre", "witch"} {
		out, err := f.enc.Attack(context.Background(), "hero", target, combat.Melee, "1d8 slashing")
		require.NoError(t, err)
		assert.False(t, out.Success, target)
		assert.Contains(t, out.Message, "automatically fails", target)
	}

	eff, ok := f.hero.Effects.Get("charmed")
	require.True(t, ok)
	assert.Equal(t, []string{"ogre", "witch"}, eff.Sources)
}

func TestAttack_HitDealsDamage(t *testing.T) {
	f := newFixture(t)
	// 10 + STR 2 + proficiency 2 = 14 vs AC 12.
	f.dice.EXPECT().D20(false, false).Return(10)
	f.dice.EXPECT().Dice(1, 8).Return([]int{5})
	out, err := f.enc.Attack(context.Background(), "hero", "ogre", combat.Melee, "1d8+2 slashing")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 93, f.ogre.HP())
}

func TestAttack_NaturalOneMisses(t *testing.T) {
	f := newFixture(t, func(s *combat.Stats) { s.ArmorClass = 1 })
	f.dice.EXPECT().D20(false, false).Return(1)
	out, err := f.enc.Attack(context.Background(), "hero", "ogre", combat.Melee, "1d8 slashing")
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestAttack_ParalyzedTakesCriticalInReach(t *testing.T) {
	f := newFixture(t)
	f.condition(t, "ogre", "paralyzed", "")
	// 9 + 4 = 13 hits AC 12, and the adjacent hit is critical.
	f.dice.EXPECT().D20(true, false).Return(9)
	f.dice.EXPECT().Dice(2, 6).Return([]int{1, 1})
	out, err := f.enc.Attack(context.Background(), "hero", "ogre", combat.Melee, "1d6 slashing")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Contains(t, out.Message, "critical hit")
	assert.Equal(t, 98, f.ogre.HP())
}

func TestAttack_ReactionRaisesArmorClass(t *testing.T) {
	f := newFixture(t)
	f.ability(t, f.ogre, "shield", `
trigger = "attack_hit"
function run(ev)
  if ev.target == statblock then
    ev.against = ev.against + 5
  end
end
`)
	// 12 + 4 = 16 hits AC 12 but not the shielded 17.
	f.dice.EXPECT().D20(false, false).Return(12)
	out, err := f.enc.Attack(context.Background(), "hero", "ogre", combat.Melee, "1d8 slashing")
	require.NoError(t, err)
	assert.False(t, out.Success, out.Message)
	assert.False(t, f.ogre.Resources.Has(resource.Reaction))
	assert.Equal(t, 100, f.ogre.HP())
}

func TestAttack_NeverReactKeepsReaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDice(ctrl)
	logger := zap.NewNop()
	mgr := scripting.NewManager(logger, 0)
	enc := combat.NewEncounter("quiet", nil, combat.Deps{Dice: d, Scripts: mgr, Logger: logger, Policy: combat.NeverReact})
	_, err := enc.Join("hero", heroStats(), grid.Point{})
	require.NoError(t, err)
	ogre, err := enc.Join("ogre", ogreStats(), grid.Point{X: 1})
	require.NoError(t, err)
	s, err := mgr.Compile("shield", "trigger = \"attack_hit\"\nfunction run(ev) ev.against = ev.against + 5 end")
	require.NoError(t, err)
	a, err := ability.FromScript(s)
	require.NoError(t, err)
	require.NoError(t, ogre.Abilities.Add(a))

	d.EXPECT().D20(false, false).Return(12)
	out, err := enc.Attack(context.Background(), "hero", "ogre", combat.Melee, "")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, ogre.Resources.Has(resource.Reaction))
}

func TestChecksAndSaves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// athletics: 8 + STR 2 + proficiency 2 = 12.
	f.dice.EXPECT().D20(false, false).Return(8)
	out, err := f.enc.SkillCheck(ctx, "hero", "athletics", 12)
	require.NoError(t, err)
	assert.True(t, out.Success, out.Message)

	// dex check: 8 + 1 = 9.
	f.dice.EXPECT().D20(false, false).Return(8)
	out, err = f.enc.AbilityCheck(ctx, "hero", "dexterity", 10)
	require.NoError(t, err)
	assert.False(t, out.Success, out.Message)

	_, err = f.enc.SkillCheck(ctx, "hero", "juggling", 10)
	assert.True(t, skerr.IsInvalidArgument(err))
}

func TestSavingThrow_ParalyzedAutoFailsDex(t *testing.T) {
	f := newFixture(t)
	f.condition(t, "hero", "paralyzed", "")
	f.dice.EXPECT().D20(gomock.Any(), gomock.Any()).Times(0)
	out, err := f.enc.SavingThrow(context.Background(), "hero", "dex", 5)
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestSkillCheck_DeafenedPerception(t *testing.T) {
	f := newFixture(t)
	f.condition(t, "hero", "deafened", "")
	f.dice.EXPECT().D20(false, true).Return(20)
	out, err := f.enc.SkillCheck(context.Background(), "hero", "perception", 15)
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestStats_FoldEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.condition(t, "hero", "grappled", "")
	speed, err := f.enc.Speed(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, 0, speed)

	out, err := f.enc.Move(ctx, "hero", grid.Point{X: 0, Y: 1})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "cannot move")
}

func TestMove_PaysForProne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out, err := f.enc.Move(ctx, "hero", grid.Point{X: 0, Y: 1})
	require.NoError(t, err)
	assert.True(t, out.Success, out.Message)
	assert.Equal(t, 25, f.hero.Movement())

	f.condition(t, "hero", "prone", "")
	out, err = f.enc.Move(ctx, "hero", grid.Point{X: 0, Y: 2})
	require.NoError(t, err)
	assert.True(t, out.Success, out.Message)
	assert.Equal(t, 15, f.hero.Movement())

	out, err = f.enc.Move(ctx, "hero", grid.Point{X: 1, Y: 0})
	require.NoError(t, err)
	assert.False(t, out.Success, "occupied by the ogre")
	p, _ := f.enc.Grid().Position("hero")
	assert.Equal(t, grid.Point{X: 0, Y: 2}, p)
}

const secondWind = `
use_time = UseTime("bonus_action")
function run()
  local ok, msg = statblock:heal(5)
  return ok, msg
end
`

func TestUseAbility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ability(t, f.hero, "second_wind", secondWind)
	_, err := f.enc.Damage(ctx, "ogre", "hero", "10", false)
	require.NoError(t, err)

	out, err := f.enc.UseAbility(ctx, "hero", ability.Request{Name: "second_wind"})
	require.NoError(t, err)
	assert.True(t, out.Success, out.Message)
	assert.Equal(t, 95, f.hero.HP())
	assert.False(t, f.hero.Resources.Has(resource.BonusAction))

	out, err = f.enc.UseAbility(ctx, "hero", ability.Request{Name: "second_wind"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "bonus_action")
}

func TestUseAbility_RestrictedByCondition(t *testing.T) {
	f := newFixture(t)
	f.ability(t, f.hero, "second_wind", secondWind)
	f.condition(t, "hero", "stunned", "")
	out, err := f.enc.UseAbility(context.Background(), "hero", ability.Request{Name: "second_wind"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.True(t, f.hero.Resources.Has(resource.BonusAction))
}

func TestUseAbility_RestrictedModifierRefusesUse(t *testing.T) {
	f := newFixture(t)
	f.ability(t, f.hero, "shout", `
use_time = "free"
function run() return "shout" end
`)
	f.ability(t, f.hero, "booming", `
use_time = "bonus_action"
modifies = {"shout"}
function modify() return "booming" end
`)
	f.condition(t, "hero", "stunned", "")

	out, err := f.enc.UseAbility(context.Background(), "hero", ability.Request{
		Name:      "shout",
		Modifiers: []ability.ModifierCall{{Name: "booming"}},
	})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "booming")
	assert.True(t, f.hero.Resources.Has(resource.BonusAction))
	assert.True(t, f.hero.Resources.Has(resource.FreeInteraction))

	out, err = f.enc.UseAbility(context.Background(), "hero", ability.Request{Name: "shout"})
	require.NoError(t, err)
	assert.True(t, out.Success, out.Message)
}

func TestUseAbility_ScriptAttacksThroughProxy(t *testing.T) {
	f := newFixture(t)
	f.ability(t, f.hero, "cleave", `
use_time = "action"
function run(target)
  return statblock:attack(target, "melee", "2d6 slashing")
end
`)
	f.dice.EXPECT().D20(false, false).Return(15)
	f.dice.EXPECT().Dice(2, 6).Return([]int{3, 3})
	out, err := f.enc.UseAbility(context.Background(), "hero", ability.Request{
		Name: "cleave",
		Args: []any{scripting.Ref{ID: "ogre"}},
	})
	require.NoError(t, err)
	assert.True(t, out.Success, out.Message)
	assert.Equal(t, 94, f.ogre.HP())
}

func TestUseAbility_ScriptErrorKeepsEncounterUsable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ability(t, f.hero, "broken", `
use_time = "action"
function run() error("boom") end
`)
	_, err := f.enc.UseAbility(ctx, "hero", ability.Request{Name: "broken"})
	assert.True(t, skerr.IsScriptRuntime(err))

	out, err := f.enc.Damage(ctx, "hero", "ogre", "1", false)
	require.NoError(t, err)
	assert.True(t, out.Success)
}
