package combat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/event"
)

// CurrentTurn returns the entity whose turn it is.
//
// Postcondition: Returns nil only when the encounter is empty.
func (enc *Encounter) CurrentTurn() *Entity {
	enc.mu.RLock()
	defer enc.mu.RUnlock()
	if len(enc.order) == 0 {
		return nil
	}
	return enc.entities[enc.order[enc.turn]]
}

// StartTurn refreshes the current entity's resources and movement and
// fires turn_start.
func (enc *Encounter) StartTurn(ctx context.Context) (*Entity, error) {
	e := enc.CurrentTurn()
	if e == nil {
		return nil, skerr.InvalidArgumentf("encounter %s has no participants", enc.ID)
	}
	enc.mu.Lock()
	if enc.round == 0 {
		enc.round = 1
	}
	round := enc.round
	enc.mu.Unlock()

	e.Resources.Reset()
	speed, err := enc.Speed(ctx, e.ID)
	if err != nil {
		return e, err
	}
	e.mu.Lock()
	e.movement = speed
	e.mu.Unlock()

	enc.logger.Info("turn started", zap.String("entity", e.ID), zap.Int("round", round))
	enc.fire(ctx, event.TurnStart, event.NewSourceContext(e.ID))
	return e, nil
}

// EndTurn ticks the current entity's effects and concentration, fires
// turn_end and passes the turn on. Passing the turn back to the first
// entity starts a new round.
//
// Failing effect hooks do not stop the turn from passing; they are
// returned joined.
func (enc *Encounter) EndTurn(ctx context.Context) error {
	e := enc.CurrentTurn()
	if e == nil {
		return skerr.InvalidArgumentf("encounter %s has no participants", enc.ID)
	}
	var errs []error
	if err := e.Effects.Tick(ctx); err != nil {
		errs = append(errs, err)
	}
	enc.fire(ctx, event.TurnEnd, event.NewSourceContext(e.ID))

	enc.mu.Lock()
	if len(enc.order) > 0 {
		enc.turn = (enc.turn + 1) % len(enc.order)
		if enc.turn == 0 {
			enc.round++
		}
	}
	enc.mu.Unlock()
	if err := errors.Join(errs...); err != nil {
		enc.logger.Warn("turn end hooks failed", zap.String("entity", e.ID), zap.Error(err))
		return err
	}
	return nil
}
