package combat

import (
	"context"
	"fmt"
	"strings"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/ability"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
	"github.com/cory-johannsen/skirmish/internal/game/resource"
)

// ActionType identifies what an actor does.
// The zero value (ActionUnknown) is intentionally invalid.
type ActionType int

const (
	ActionUnknown      ActionType = iota // zero value; intentionally invalid
	ActionAttack                         // costs the action
	ActionAbility                        // costs what the ability declares
	ActionMove                           // costs movement
	ActionCheck                          // ability check
	ActionSkill                          // skill check
	ActionSave                           // saving throw
	ActionDamage                         // direct damage, no attack roll
	ActionHeal                           // direct healing
	ActionAddEffect                      // apply a catalog condition
	ActionRemoveEffect                   // end an effect
	ActionStartTurn                      // begin the current entity's turn
	ActionEndTurn                        // end the current entity's turn
)

var actionNames = map[ActionType]string{
	ActionAttack:       "attack",
	ActionAbility:      "ability",
	ActionMove:         "move",
	ActionCheck:        "check",
	ActionSkill:        "skill",
	ActionSave:         "save",
	ActionDamage:       "damage",
	ActionHeal:         "heal",
	ActionAddEffect:    "add_effect",
	ActionRemoveEffect: "remove_effect",
	ActionStartTurn:    "start_turn",
	ActionEndTurn:      "end_turn",
}

// String returns the human-readable name of the ActionType.
func (a ActionType) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return "unknown"
}

// ParseActionType is the inverse of String.
func ParseActionType(s string) (ActionType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, n := range actionNames {
		if n == s {
			return t, nil
		}
	}
	return ActionUnknown, skerr.InvalidArgumentf("unknown action %q", s)
}

// turnBound reports whether the action may only be taken on the actor's
// own turn.
func (a ActionType) turnBound() bool {
	switch a {
	case ActionAttack, ActionAbility, ActionMove:
		return true
	}
	return false
}

// Action is one request against an encounter. Which fields matter depends
// on Type.
type Action struct {
	Type   ActionType
	Actor  string
	Target string

	// Kind is the attack kind.
	Kind   string
	Damage string

	// Name is the ability path, the ability or skill of a check or save, or
	// the effect name.
	Name      string
	Args      []any
	Modifiers []ability.ModifierCall

	DC       int
	Amount   int
	Duration int
	To       grid.Point
}

// RoundEvent records what happened when one action was resolved.
type RoundEvent struct {
	Round     int
	Action    ActionType
	ActorID   string
	ActorName string
	Outcome   Outcome
}

// Narrative renders the event for a log.
func (ev RoundEvent) Narrative() string {
	verdict := "ok"
	if !ev.Outcome.Success {
		verdict = "failed"
	}
	return fmt.Sprintf("[round %d] %s %s (%s): %s", ev.Round, ev.ActorName, ev.Action, verdict, ev.Outcome.Message)
}

// Perform resolves one action. Actions are serialized per encounter;
// different encounters never block each other.
//
// Precondition: a.Type must not be ActionUnknown.
// Postcondition: on success the event is appended to the encounter's log.
// A refused action is reported in the Outcome, never as an error.
func (enc *Encounter) Perform(ctx context.Context, a Action) (RoundEvent, error) {
	enc.action.Lock()
	defer enc.action.Unlock()

	ev := RoundEvent{Round: enc.Round(), Action: a.Type, ActorID: a.Actor}
	if a.Type == ActionStartTurn || a.Type == ActionEndTurn {
		if cur := enc.CurrentTurn(); cur != nil {
			ev.ActorID = cur.ID
		}
	}
	if e, ok := enc.Entity(ev.ActorID); ok {
		ev.ActorName = e.Stats.Name
	}

	out, err := enc.dispatch(ctx, a)
	if err != nil {
		return ev, err
	}
	ev.Outcome = out
	enc.mu.Lock()
	enc.log = append(enc.log, ev)
	enc.mu.Unlock()
	return ev, nil
}

func (enc *Encounter) dispatch(ctx context.Context, a Action) (Outcome, error) {
	if a.Type.turnBound() && enc.Round() > 0 {
		if cur := enc.CurrentTurn(); cur != nil && cur.ID != a.Actor {
			return fail(fmt.Sprintf("it is not %s's turn", a.Actor)), nil
		}
	}
	switch a.Type {
	case ActionAttack:
		e, err := enc.lookup(a.Actor)
		if err != nil {
			return Outcome{}, err
		}
		if e.Effects.Restricted(string(resource.Action)) {
			return fail(fmt.Sprintf("%s cannot take actions", e.Stats.Name)), nil
		}
		if err := e.Resources.Spend(resource.Action); err != nil {
			if skerr.IsResourceExhausted(err) {
				return fail(err.Error()), nil
			}
			return Outcome{}, err
		}
		kind := a.Kind
		if kind == "" {
			kind = Melee
		}
		return enc.Attack(ctx, a.Actor, a.Target, kind, a.Damage)
	case ActionAbility:
		return enc.UseAbility(ctx, a.Actor, ability.Request{Name: a.Name, Args: a.Args, Modifiers: a.Modifiers})
	case ActionMove:
		return enc.Move(ctx, a.Actor, a.To)
	case ActionCheck:
		return enc.AbilityCheck(ctx, a.Actor, a.Name, a.DC)
	case ActionSkill:
		return enc.SkillCheck(ctx, a.Actor, a.Name, a.DC)
	case ActionSave:
		return enc.SavingThrow(ctx, a.Actor, a.Name, a.DC)
	case ActionDamage:
		return enc.Damage(ctx, a.Actor, a.Target, a.Damage, false)
	case ActionHeal:
		return enc.Heal(ctx, a.Target, a.Amount)
	case ActionAddEffect:
		return enc.AddEffect(ctx, a.Target, a.Name, a.Duration, a.Actor, "")
	case ActionRemoveEffect:
		return enc.RemoveEffect(ctx, a.Target, a.Name)
	case ActionStartTurn:
		e, err := enc.StartTurn(ctx)
		if err != nil {
			return Outcome{}, err
		}
		return succeed(fmt.Sprintf("%s's turn begins", e.Stats.Name)), nil
	case ActionEndTurn:
		cur := enc.CurrentTurn()
		if cur == nil {
			return fail("no one is taking a turn"), nil
		}
		if err := enc.EndTurn(ctx); err != nil {
			return Outcome{}, err
		}
		return succeed(fmt.Sprintf("%s's turn ends", cur.Stats.Name)), nil
	}
	return Outcome{}, skerr.InvalidArgumentf("invalid action type: %s is not a valid action", a.Type)
}

// Log returns the events resolved so far.
func (enc *Encounter) Log() []RoundEvent {
	enc.mu.RLock()
	defer enc.mu.RUnlock()
	return append([]RoundEvent(nil), enc.log...)
}
