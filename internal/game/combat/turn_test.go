package combat_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/combat/mocks"
	"github.com/cory-johannsen/skirmish/internal/game/condition"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
	"github.com/cory-johannsen/skirmish/internal/game/resource"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

func TestRollInitiative_OrdersByRollThenDex(t *testing.T) {
	f := newFixture(t)
	f.dice.EXPECT().D20(false, false).Return(10).Times(2)
	require.NoError(t, f.enc.RollInitiative(context.Background()))

	order := f.enc.Entities()
	require.Len(t, order, 2)
	assert.Equal(t, "hero", order[0].ID)
	assert.Equal(t, 11, order[0].Initiative())
	assert.Equal(t, 10, order[1].Initiative())
	assert.Equal(t, 1, f.enc.Round())
	assert.Equal(t, "hero", f.enc.CurrentTurn().ID)
}

func TestPerform_TurnOrderAndActionEconomy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dice.EXPECT().D20(false, false).Return(10).Times(2)
	require.NoError(t, f.enc.RollInitiative(ctx))

	ev, err := f.enc.Perform(ctx, combat.Action{Type: combat.ActionStartTurn})
	require.NoError(t, err)
	assert.Equal(t, "hero", ev.ActorID)
	assert.Equal(t, 30, f.hero.Movement())

	ev, err = f.enc.Perform(ctx, combat.Action{Type: combat.ActionAttack, Actor: "ogre", Target: "hero"})
	require.NoError(t, err)
	assert.False(t, ev.Outcome.Success)
	assert.Contains(t, ev.Outcome.Message, "not ogre's turn")

	f.dice.EXPECT().D20(false, false).Return(15)
	ev, err = f.enc.Perform(ctx, combat.Action{Type: combat.ActionAttack, Actor: "hero", Target: "ogre"})
	require.NoError(t, err)
	assert.True(t, ev.Outcome.Success, ev.Outcome.Message)
	assert.False(t, f.hero.Resources.Has(resource.Action))

	ev, err = f.enc.Perform(ctx, combat.Action{Type: combat.ActionAttack, Actor: "hero", Target: "ogre"})
	require.NoError(t, err)
	assert.False(t, ev.Outcome.Success)
	assert.Contains(t, ev.Outcome.Message, "no action remaining")

	// Checks and saves are not tied to the turn.
	f.dice.EXPECT().D20(false, false).Return(20)
	ev, err = f.enc.Perform(ctx, combat.Action{Type: combat.ActionSave, Actor: "ogre", Name: "con", DC: 10})
	require.NoError(t, err)
	assert.True(t, ev.Outcome.Success)

	_, err = f.enc.Perform(ctx, combat.Action{Type: combat.ActionEndTurn})
	require.NoError(t, err)
	assert.Equal(t, "ogre", f.enc.CurrentTurn().ID)

	_, err = f.enc.Perform(ctx, combat.Action{Type: combat.ActionStartTurn})
	require.NoError(t, err)
	_, err = f.enc.Perform(ctx, combat.Action{Type: combat.ActionEndTurn})
	require.NoError(t, err)
	assert.Equal(t, 2, f.enc.Round())
	assert.Equal(t, "hero", f.enc.CurrentTurn().ID)

	log := f.enc.Log()
	assert.Len(t, log, 8)
	assert.Contains(t, log[2].Narrative(), "[round 1] Hero attack (ok)")
}

func TestPerform_StunnedCannotAttack(t *testing.T) {
	f := newFixture(t)
	f.condition(t, "hero", "stunned", "")
	ev, err := f.enc.Perform(context.Background(), combat.Action{Type: combat.ActionAttack, Actor: "hero", Target: "ogre"})
	require.NoError(t, err)
	assert.False(t, ev.Outcome.Success)
	assert.True(t, f.hero.Resources.Has(resource.Action))
}

func TestEndTurn_ExpiresEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out, err := f.enc.AddEffect(ctx, "hero", "poisoned", 1, "", "")
	require.NoError(t, err)
	require.True(t, out.Success)

	_, err = f.enc.StartTurn(ctx)
	require.NoError(t, err)
	require.NoError(t, f.enc.EndTurn(ctx))
	assert.False(t, f.hero.Effects.Has("poisoned"))
}

func TestRemoveEffect_MissingIsRefused(t *testing.T) {
	f := newFixture(t)
	out, err := f.enc.RemoveEffect(context.Background(), "hero", "blinded")
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func engineDeps(t *testing.T, d combat.Dice) combat.Deps {
	t.Helper()
	logger := zap.NewNop()
	mgr := scripting.NewManager(logger, 0)
	reg, err := condition.Load(mgr, "")
	require.NoError(t, err)
	return combat.Deps{Dice: d, Scripts: mgr, Catalog: reg, Logger: logger}
}

func TestEngine_Lifecycle(t *testing.T) {
	en := combat.NewEngine(engineDeps(t, mocks.NewMockDice(gomock.NewController(t))))

	a := en.Start(nil)
	require.NotNil(t, a)
	b, err := en.StartWithID("arena", nil)
	require.NoError(t, err)
	_, err = en.StartWithID("arena", nil)
	assert.True(t, skerr.IsAlreadyExists(err))

	got, ok := en.Get("arena")
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Len(t, en.IDs(), 2)

	require.NoError(t, en.End("arena"))
	assert.True(t, skerr.IsNotFound(en.End("arena")))
	assert.Equal(t, []string{a.ID}, en.IDs())
}

func TestNewEngine_PanicsWithoutDeps(t *testing.T) {
	assert.Panics(t, func() { combat.NewEngine(combat.Deps{}) })
}

func TestSnapshot_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ability(t, f.hero, "second_wind", secondWind)
	f.condition(t, "ogre", "prone", "hero")
	f.hero.SetTempHP(4)
	_, err := f.enc.Damage(ctx, "ogre", "hero", "10 fire", false)
	require.NoError(t, err)
	f.dice.EXPECT().D20(false, false).Return(10).Times(2)
	require.NoError(t, f.enc.RollInitiative(ctx))
	require.NoError(t, f.enc.EndTurn(ctx))

	// Through JSON, as storage would.
	b, err := json.Marshal(f.enc.Export())
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(b, &data))

	en := combat.NewEngine(engineDeps(t, mocks.NewMockDice(gomock.NewController(t))))
	restored, err := en.StartWithID("test", nil)
	require.NoError(t, err)
	require.NoError(t, restored.Import(ctx, data))

	hero, ok := restored.Entity("hero")
	require.True(t, ok)
	assert.Equal(t, 94, hero.HP())
	assert.Equal(t, 0, hero.TempHP())
	assert.Equal(t, 11, hero.Initiative())
	_, ok = hero.Abilities.Lookup("second_wind")
	assert.True(t, ok)

	ogre, ok := restored.Entity("ogre")
	require.True(t, ok)
	assert.True(t, ogre.Effects.Has("prone"))
	assert.Equal(t, "large", ogre.Stats.Size)
	p, ok := restored.Grid().Position("ogre")
	require.True(t, ok)
	assert.Equal(t, grid.Point{X: 1, Y: 0}, p)

	assert.Equal(t, 1, restored.Round())
	assert.Equal(t, "ogre", restored.CurrentTurn().ID)

	err = restored.Import(ctx, data)
	assert.True(t, skerr.IsInvalidArgument(err))
}
