package dice_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

func TestRollResult_Total(t *testing.T) {
	r := dice.RollResult{Expression: "2d6+3", Dice: []int{4, 5}, Modifier: 3}
	assert.Equal(t, 12, r.Total())
	assert.Equal(t, "2d6+3 → [4 5] +3 = 12", r.String())
}

func TestRollResult_Total_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		faces := rapid.SliceOf(rapid.IntRange(1, 20)).Draw(rt, "dice")
		modifier := rapid.IntRange(-100, 100).Draw(rt, "modifier")
		r := dice.RollResult{Expression: "Nd6+M", Dice: faces, Modifier: modifier}
		expected := modifier
		for _, d := range faces {
			expected += d
		}
		assert.Equal(rt, expected, r.Total())
		assert.True(rt, strings.Contains(r.String(), fmt.Sprintf("%d", r.Total())))
	})
}

func TestParse_Forms(t *testing.T) {
	cases := map[string]dice.Expression{
		"d20":    {Raw: "d20", Count: 1, Sides: 20},
		"2d6+3":  {Raw: "2d6+3", Count: 2, Sides: 6, Modifier: 3},
		"4d8-2":  {Raw: "4d8-2", Count: 4, Sides: 8, Modifier: -2},
		"4d6kh3": {Raw: "4d6kh3", Count: 4, Sides: 6, KeepHighest: 3},
		"7":      {Raw: "7", Modifier: 7},
	}
	for in, want := range cases {
		got, err := dice.Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "dx", "0d6", "2d1", "fire", "4d6kh4"} {
		_, err := dice.Parse(in)
		assert.Error(t, err, in)
	}
}

func TestExpression_Doubled(t *testing.T) {
	e := dice.MustParse("2d6+3").Doubled()
	assert.Equal(t, 4, e.Count)
	assert.Equal(t, 3, e.Modifier)
}

func TestParseDamage(t *testing.T) {
	pools, err := dice.ParseDamage("1d8 + 3 piercing + 2d6 fire")
	require.NoError(t, err)
	require.Len(t, pools, 2)
	assert.Equal(t, "piercing", pools[0].Type)
	assert.Equal(t, 3, pools[0].Expr.Modifier)
	assert.Equal(t, "fire", pools[1].Type)
	assert.Equal(t, 2, pools[1].Expr.Count)

	pools, err = dice.ParseDamage("10 slashing, 1d6 Poison")
	require.NoError(t, err)
	require.Len(t, pools, 2)
	assert.Equal(t, 10, pools[0].Expr.Modifier)
	assert.Equal(t, "poison", pools[1].Type)

	pools, err = dice.ParseDamage("2d4")
	require.NoError(t, err)
	assert.Equal(t, dice.Untyped, pools[0].Type)
}

func TestFormatDamage_Canonical(t *testing.T) {
	pools, err := dice.ParseDamage("1d8 + 3 Piercing, 2d6 fire")
	require.NoError(t, err)
	text := dice.FormatDamage(pools)
	assert.Equal(t, "1d8+3 piercing + 2d6 fire", text)

	again, err := dice.ParseDamage(text)
	require.NoError(t, err)
	assert.Equal(t, pools, again)
}

func TestParseDamage_Invalid(t *testing.T) {
	for _, in := range []string{"", "slashing", "2d6 fire - 1d4 cold"} {
		_, err := dice.ParseDamage(in)
		assert.Error(t, err, in)
	}
}

func TestD20_AdvantageKeepsHigher(t *testing.T) {
	src := &dice.FixedSource{Values: []int{3, 15}}
	assert.Equal(t, 16, dice.D20(true, false, src))

	src = &dice.FixedSource{Values: []int{3, 15}}
	assert.Equal(t, 4, dice.D20(false, true, src))

	src = &dice.FixedSource{Values: []int{3, 15}}
	assert.Equal(t, 4, dice.D20(true, true, src))
}

func TestProperty_D20InRange(t *testing.T) {
	src := dice.NewSeededSource(42)
	rapid.Check(t, func(rt *rapid.T) {
		adv := rapid.Bool().Draw(rt, "adv")
		dis := rapid.Bool().Draw(rt, "dis")
		n := dice.D20(adv, dis, src)
		assert.GreaterOrEqual(rt, n, 1)
		assert.LessOrEqual(rt, n, 20)
	})
}

func TestSeededSource_Reproducible(t *testing.T) {
	a, b := dice.NewSeededSource(7), dice.NewSeededSource(7)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Intn(20), b.Intn(20))
	}
}

func TestCryptoSource_Intn_InRange(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
	assert.Panics(t, func() { src.Intn(0) })
}

func TestRoller_LogsRolls(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := dice.NewLoggedRoller(&dice.FixedSource{Values: []int{5, 5}}, zap.New(core))
	assert.Equal(t, []int{6, 6}, r.Dice(2, 6))
	res, err := r.RollExpr("1d4+1")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total())
	assert.Equal(t, 2, logs.Len())
}
