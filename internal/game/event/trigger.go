// Package event carries reaction events between combat participants. A
// handler publishes a batch of events on the Bus; every subscribed
// controller reacts to every event concurrently, and Fire returns once all
// of them have finished.
package event

// Trigger is the kind of a reaction event.
type Trigger string

const (
	BeforeAttack   Trigger = "before_attack"
	AttackHit      Trigger = "attack_hit"
	AttackMiss     Trigger = "attack_miss"
	AttackCritical Trigger = "attack_critical"
	BeforeCheck    Trigger = "before_check"
	CheckSuccess   Trigger = "check_success"
	CheckFailure   Trigger = "check_failure"
	BeforeSave     Trigger = "before_save"
	SaveSuccess    Trigger = "save_success"
	SaveFailure    Trigger = "save_failure"
	DamageRoll     Trigger = "damage_roll"
	TakeDamage     Trigger = "take_damage"
	AbilityUsed    Trigger = "ability_used"
	TurnStart      Trigger = "turn_start"
	TurnEnd        Trigger = "turn_end"
	Movement       Trigger = "movement"
)

// Triggers lists every trigger kind.
var Triggers = []Trigger{
	BeforeAttack, AttackHit, AttackMiss, AttackCritical,
	BeforeCheck, CheckSuccess, CheckFailure,
	BeforeSave, SaveSuccess, SaveFailure,
	DamageRoll, TakeDamage, AbilityUsed, TurnStart, TurnEnd, Movement,
}

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	for _, k := range Triggers {
		if k == t {
			return true
		}
	}
	return false
}

// ReactionEvent is one trigger with its context.
type ReactionEvent struct {
	Trigger Trigger
	Context Context
}

// CompositeEvent is a batch of events dispatched in one round.
type CompositeEvent struct {
	Events []ReactionEvent
}

// Batcher is anything the Bus can fire.
type Batcher interface {
	Batch() CompositeEvent
}

// Batch wraps a single event into a one-element batch.
func (e ReactionEvent) Batch() CompositeEvent {
	return CompositeEvent{Events: []ReactionEvent{e}}
}

// Batch returns c unchanged.
func (c CompositeEvent) Batch() CompositeEvent {
	return c
}

// Proceed reports whether every context in the batch still proceeds.
func (c CompositeEvent) Proceed() bool {
	for _, e := range c.Events {
		if e.Context != nil && !e.Context.Proceed() {
			return false
		}
	}
	return true
}
