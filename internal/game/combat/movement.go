package combat

import (
	"context"
	"fmt"

	"github.com/cory-johannsen/skirmish/internal/game/effect"
	"github.com/cory-johannsen/skirmish/internal/game/event"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
	"github.com/cory-johannsen/skirmish/internal/game/modifier"
)

// Move moves id to the cell to in one straight step, paying for it from
// the movement left this turn. movement_cost hooks scale the price, and
// movement reactions may change it or stop the move.
func (enc *Encounter) Move(ctx context.Context, id string, to grid.Point) (Outcome, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	speed, err := enc.Speed(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if speed == 0 {
		return fail(fmt.Sprintf("%s cannot move", e.Stats.Name)), nil
	}
	from, ok := enc.grid.Position(id)
	if !ok {
		return fail(fmt.Sprintf("%s is not on the grid", e.Stats.Name)), nil
	}
	cost, ok := enc.grid.MovementCost(from, to, e.Stats.Size)
	if !ok {
		return fail(fmt.Sprintf("%s cannot move to %s", e.Stats.Name, to)), nil
	}
	scale, err := enc.fold(ctx, e, effect.HookMovementCost)
	if err != nil {
		return Outcome{}, err
	}
	cost = modifier.Int(scale.ApplyFloor(float64(cost)))

	mc := &event.MovementContext{
		Source: id,
		From:   [2]int{from.X, from.Y},
		To:     [2]int{to.X, to.Y},
		Cost:   cost,
	}
	enc.fire(ctx, event.Movement, mc)
	if !mc.Proceed() {
		return fail(fmt.Sprintf("%s's movement was stopped", e.Stats.Name)), nil
	}
	cost = max(mc.StepCost(), 0)
	if !e.spendMovement(cost) {
		return fail(fmt.Sprintf("%s needs %d ft of movement but has %d ft left", e.Stats.Name, cost, e.Movement())), nil
	}
	enc.grid.Place(id, to)
	return succeed(fmt.Sprintf("%s moves to %s (%d ft, %d ft left)", e.Stats.Name, to, cost, e.Movement())), nil
}
