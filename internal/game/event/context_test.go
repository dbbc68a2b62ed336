package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cory-johannsen/skirmish/internal/game/event"
	"github.com/cory-johannsen/skirmish/internal/game/modifier"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

func TestRollContext_UpdateRaisesFlagsAndAddsBonus(t *testing.T) {
	c := event.NewRollContext("a", "b", "melee", 0, modifier.Roll{Bonus: 2})
	before := c.Fields()
	assert.Equal(t, scripting.Ref{ID: "a"}, before["source"])
	after := c.Fields()
	after["disadvantage"] = true
	after["bonus"] = 5.0
	c.Update(before, after)
	m := c.Modifiers()
	assert.True(t, m.Disadvantage)
	assert.Equal(t, 5, m.Bonus)
	assert.True(t, c.Proceed())

	c.AddRoll(modifier.Roll{AutoFail: true})
	assert.True(t, c.Modifiers().AutoFail)
}

func TestRollContext_ProceedFalseHalts(t *testing.T) {
	c := event.NewRollContext("a", "", "dex", 12, modifier.Roll{})
	before := c.Fields()
	after := c.Fields()
	after["proceed"] = false
	c.Update(before, after)
	assert.False(t, c.Proceed())

	// proceed cannot be restored
	c.Update(after, before)
	assert.False(t, c.Proceed())
}

func TestDamageRollContext_RewritesDieFaces(t *testing.T) {
	c := event.NewDamageRollContext("a", "b", false, []event.RolledPool{
		{Type: "slashing", Sides: 6, Dice: []int{1, 2}},
		{Type: "fire", Sides: 4, Dice: []int{3}, Modifier: 1},
	})
	before := c.Fields()
	after := c.Fields()
	pool := after["pools"].([]any)[0].(map[string]any)
	pool["dice"] = []any{6.0, 2.0}
	c.Update(before, after)

	pools := c.Pools()
	assert.Equal(t, []int{6, 2}, pools[0].Dice)
	assert.Equal(t, 8, pools[0].Total())
	assert.Equal(t, 4, pools[1].Total())

	c.SetDie(1, 0, 4)
	c.SetDie(9, 0, 4)
	assert.Equal(t, 5, c.Pools()[1].Total())
}

func TestRollResultContext_AgainstDelta(t *testing.T) {
	c := &event.RollResultContext{Source: "a", Target: "b", Natural: 12, Total: 17, Against: 15}
	before := c.Fields()
	after := c.Fields()
	after["against"] = 20.0
	c.Update(before, after)
	total, against := c.Snapshot()
	assert.Equal(t, 17, total)
	assert.Equal(t, 20, against)
}

func TestDamageContext_Total(t *testing.T) {
	c := event.NewDamageContext("a", "b", map[string]int{"fire": 4, "cold": 3})
	assert.Equal(t, 7, c.Total())
	before := c.Fields()
	after := c.Fields()
	after["amount"] = -3.0
	c.Update(before, after)
	assert.Equal(t, 0, c.Total())
}

func TestTrigger_Valid(t *testing.T) {
	assert.True(t, event.AttackHit.Valid())
	assert.False(t, event.Trigger("lunch").Valid())
}
