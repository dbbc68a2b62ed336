package timing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/skirmish/internal/game/timing"
)

func TestParseUseTime_Special(t *testing.T) {
	for in, want := range map[string]timing.Kind{
		"action":       timing.Action,
		"bonus-action": timing.BonusAction,
		"Bonus Action": timing.BonusAction,
		"reaction":     timing.Reaction,
		"free":         timing.Free,
	} {
		u, err := timing.ParseUseTime(in, 0)
		require.NoError(t, err, in)
		assert.Equal(t, want, u.Kind, in)
		assert.True(t, u.Special(), in)
		assert.Equal(t, 1, u.Turns(), in)
	}
}

func TestParseUseTime_Timed(t *testing.T) {
	u, err := timing.ParseUseTime("minute", 1)
	require.NoError(t, err)
	assert.False(t, u.Special())
	assert.Equal(t, 10, u.Turns())
	assert.Equal(t, "action", u.Resource())

	u, err = timing.ParseUseTime("rounds", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, u.Turns())
}

func TestParseUseTime_Unknown(t *testing.T) {
	_, err := timing.ParseUseTime("eventually", 1)
	assert.Error(t, err)
}

func TestDuration_Rounds(t *testing.T) {
	assert.Equal(t, 10, timing.Duration{Amount: 1, Unit: timing.Minutes}.Rounds())
	assert.Equal(t, 600, timing.Duration{Amount: 1, Unit: timing.Hours}.Rounds())
	assert.Equal(t, timing.Indefinite, timing.Duration{Amount: -1}.Rounds())
}

func TestUseTime_Resource(t *testing.T) {
	assert.Equal(t, "bonus_action", timing.UseTime{Kind: timing.BonusAction}.Resource())
	assert.Equal(t, "reaction", timing.UseTime{Kind: timing.Reaction}.Resource())
	assert.Equal(t, "free_interaction", timing.UseTime{Kind: timing.Free}.Resource())
}
