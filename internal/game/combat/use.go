package combat

import (
	"context"
	"fmt"
	"strings"

	"github.com/cory-johannsen/skirmish/internal/game/ability"
	"github.com/cory-johannsen/skirmish/internal/game/event"
)

// UseAbility runs an ability of id. An effect that restricts a resource
// the ability or one of its queued modifiers costs refuses the use before
// any script runs. A completed use fires ability_used.
func (enc *Encounter) UseAbility(ctx context.Context, id string, req ability.Request) (Outcome, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	path := abilityPath(req.Name)
	if out, refused := restricted(e, path); refused {
		return out, nil
	}
	for _, m := range req.Modifiers {
		if out, refused := restricted(e, abilityPath(m.Name)); refused {
			return out, nil
		}
	}
	res, err := e.Abilities.Run(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	if res.Success && !res.Deferred {
		sc := event.NewSourceContext(id)
		sc.Ability = path
		enc.fire(ctx, event.AbilityUsed, sc)
	}
	return Outcome{Success: res.Success, Message: res.Message}, nil
}

func abilityPath(name string) string {
	return strings.TrimPrefix(strings.TrimPrefix(name, ability.ContinuePrefix), ability.NewUsePrefix)
}

// restricted refuses path when an active effect forbids the resource it
// costs. Unknown names are left for the ability index to report.
func restricted(e *Entity, path string) (Outcome, bool) {
	a, ok := e.Abilities.Lookup(path)
	if !ok {
		return Outcome{}, false
	}
	kind, costs := a.Cost()
	if !costs || !e.Effects.Restricted(string(kind)) {
		return Outcome{}, false
	}
	return fail(fmt.Sprintf("%s cannot use %s: no %s can be taken", e.Stats.Name, path, strings.ReplaceAll(string(kind), "_", " "))), true
}
