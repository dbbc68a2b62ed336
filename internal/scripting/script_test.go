package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/modifier"
	"github.com/cory-johannsen/skirmish/internal/game/timing"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

const compositeSrc = `
use_time = UseTime("action")
modifies = {"fire_bolt"}

function validate(target) return true end
function modify(target, extra) return "empowered" end

evocation = {
	fire_bolt = {
		use_time = UseTime("action"),
		run = function(target) return "bolt" end,
	},
	fireball = {
		use_time = UseTime("minutes", 1),
		concentration = true,
		duration = Duration(1, "minutes"),
		run = function(center, ...) return "boom" end,
	},
}

state = {uses = 0}
`

func TestCompile_DiscoversRootHooksInOrder(t *testing.T) {
	s, err := scripting.Compile("spells", compositeSrc)
	require.NoError(t, err)
	root := s.Root()
	assert.Equal(t, []string{"validate", "modify"}, root.Meta().Order)
	h, ok := root.Hook("modify")
	require.True(t, ok)
	assert.Equal(t, []string{"target", "extra"}, h.Params)

	ut, ok := root.Value("use_time")
	require.True(t, ok)
	assert.Equal(t, timing.UseTime{Kind: timing.Action}, ut)
	mods, _ := root.Value("modifies")
	assert.Equal(t, []any{"fire_bolt"}, mods)
	st, _ := root.Value("state")
	assert.Equal(t, map[string]any{"uses": 0.0}, st)
}

func TestCompile_DiscoversNestedEntries(t *testing.T) {
	s, err := scripting.Compile("spells", compositeSrc)
	require.NoError(t, err)
	children := s.Root().Children()
	require.Len(t, children, 1)
	assert.Equal(t, "evocation", children[0].Path)

	var names []string
	for _, c := range children[0].Children() {
		names = append(names, c.Path)
	}
	assert.Equal(t, []string{"evocation.fire_bolt", "evocation.fireball"}, names)

	fb, ok := s.Entry("evocation.fireball")
	require.True(t, ok)
	assert.Equal(t, "fireball", fb.Name())
	h, _ := fb.Hook("run")
	assert.Equal(t, []string{"center", "..."}, h.Params)
	conc, _ := fb.Value("concentration")
	assert.Equal(t, true, conc)
	dur, _ := fb.Value("duration")
	assert.Equal(t, timing.Duration{Amount: 1, Unit: timing.Minutes}, dur)
}

func TestCompile_RunAndModifyIsAuthoringError(t *testing.T) {
	_, err := scripting.Compile("bad", `
		function run() end
		function modify() end
	`)
	require.Error(t, err)
	assert.True(t, skerr.IsAuthoring(err))

	_, err = scripting.Compile("bad_nested", `
		child = { run = function() end, modify = function() end }
	`)
	require.Error(t, err)
	assert.True(t, skerr.IsAuthoring(err))
}

func TestCompile_SyntaxErrorIsAuthoringError(t *testing.T) {
	_, err := scripting.Compile("broken", `function (`)
	require.Error(t, err)
	assert.True(t, skerr.IsAuthoring(err))
}

func TestCompile_LoadTimeErrorIsAuthoringError(t *testing.T) {
	_, err := scripting.Compile("explodes", `error("no")`)
	require.Error(t, err)
	assert.True(t, skerr.IsAuthoring(err))

	_, err = scripting.Compile("rolls", `x = roll("1d6")`)
	require.Error(t, err)
	assert.True(t, skerr.IsAuthoring(err))
}

func TestCompile_Builders(t *testing.T) {
	s, err := scripting.Compile("builders", `
		r = RollResult{advantage = true, bonus = 2, critical = AddValue(-1)}
		a = AddValue(3)
		m = MultiplyValue(2)
		v = SetValue(0)
		sp = SpeedModifier(10)
		u = UseTime("bonus_action")
	`)
	require.NoError(t, err)
	root := s.Root()
	r, _ := root.Value("r")
	roll, ok := r.(modifier.Roll)
	require.True(t, ok)
	assert.True(t, roll.Advantage)
	assert.Equal(t, 2, roll.Bonus)
	assert.Equal(t, 19, roll.CriticalThreshold())

	a, _ := root.Value("a")
	assert.Equal(t, modifier.Add(3), a)
	m, _ := root.Value("m")
	assert.Equal(t, modifier.Multiply(2), m)
	v, _ := root.Value("v")
	assert.Equal(t, modifier.Set(0), v)
	sp, _ := root.Value("sp")
	assert.Equal(t, modifier.Add(10), sp)
	u, _ := root.Value("u")
	assert.Equal(t, timing.UseTime{Kind: timing.BonusAction}, u)
}

func TestCompile_BadUseTimeIsAuthoringError(t *testing.T) {
	_, err := scripting.Compile("bad_use", `use_time = UseTime("eventually")`)
	require.Error(t, err)
	assert.True(t, skerr.IsAuthoring(err))
}
