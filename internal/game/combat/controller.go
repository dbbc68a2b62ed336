package combat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/event"
	"github.com/cory-johannsen/skirmish/internal/game/resource"
)

// ReactionPolicy decides whether an entity spends its reaction on an
// ability when the ability's trigger fires.
type ReactionPolicy interface {
	UseReaction(ctx context.Context, entityID, ability string, ev event.ReactionEvent) bool
}

// ReactionPolicyFunc adapts a function to ReactionPolicy.
type ReactionPolicyFunc func(ctx context.Context, entityID, ability string, ev event.ReactionEvent) bool

func (f ReactionPolicyFunc) UseReaction(ctx context.Context, entityID, ability string, ev event.ReactionEvent) bool {
	return f(ctx, entityID, ability, ev)
}

var (
	// AlwaysReact uses every reaction it is offered.
	AlwaysReact ReactionPolicy = ReactionPolicyFunc(func(context.Context, string, string, event.ReactionEvent) bool { return true })
	// NeverReact declines every reaction ability. Effect reactions still run.
	NeverReact ReactionPolicy = ReactionPolicyFunc(func(context.Context, string, string, event.ReactionEvent) bool { return false })
)

// controller reacts on behalf of one entity: first its effects' reaction
// hooks, then any reaction ability whose trigger matches while a reaction
// is left.
type controller struct {
	enc *Encounter
	id  string
}

func (c *controller) ID() string { return c.id }

func (c *controller) React(ctx context.Context, ev event.ReactionEvent) error {
	e, ok := c.enc.Entity(c.id)
	if !ok {
		return nil
	}
	var errs []error

	before := ev.Context.Fields()
	after, ran, err := e.Effects.React(ctx, string(ev.Trigger), before)
	if ran > 0 {
		ev.Context.Update(before, after)
	}
	if err != nil {
		errs = append(errs, err)
	}

	if e.IsDown() || e.Effects.Restricted(string(resource.Reaction)) {
		return errors.Join(errs...)
	}
	for _, path := range e.Abilities.Reactions(ev.Trigger) {
		if !e.Resources.Has(resource.Reaction) {
			break
		}
		if !c.enc.deps.Policy.UseReaction(ctx, c.id, path, ev) {
			continue
		}
		before := ev.Context.Fields()
		after, ran, err := e.Abilities.React(ctx, path, before)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ran {
			ev.Context.Update(before, after)
			c.enc.logger.Info("reaction used",
				zap.String("entity", c.id),
				zap.String("ability", path),
				zap.String("trigger", string(ev.Trigger)),
			)
		}
	}
	return errors.Join(errs...)
}
