// Package timing models ability use-times and effect durations.
package timing

import (
	"fmt"
	"strings"
)

// RoundsPerMinute is the number of six-second combat rounds in a minute.
const RoundsPerMinute = 10

// Unit is the unit of a Duration or a timed UseTime.
type Unit string

const (
	Rounds  Unit = "rounds"
	Minutes Unit = "minutes"
	Hours   Unit = "hours"
)

// ParseUnit accepts singular and plural spellings.
func ParseUnit(s string) (Unit, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s") {
	case "", "round", "turn":
		return Rounds, nil
	case "minute":
		return Minutes, nil
	case "hour":
		return Hours, nil
	}
	return "", fmt.Errorf("timing: unknown unit %q", s)
}

func (u Unit) rounds(n int) int {
	switch u {
	case Minutes:
		return n * RoundsPerMinute
	case Hours:
		return n * RoundsPerMinute * 60
	}
	return n
}

// Indefinite marks an effect that never expires by ticking.
const Indefinite = -1

// Duration is a span of game time.
type Duration struct {
	Amount int
	Unit   Unit
}

// Rounds converts d to rounds. Negative amounts mean Indefinite.
func (d Duration) Rounds() int {
	if d.Amount < 0 {
		return Indefinite
	}
	return d.Unit.rounds(d.Amount)
}

func (d Duration) String() string {
	if d.Amount < 0 {
		return "indefinite"
	}
	return fmt.Sprintf("%d %s", d.Amount, d.Unit)
}

// Kind classifies how an ability is paid for.
type Kind string

const (
	Action      Kind = "action"
	BonusAction Kind = "bonus_action"
	Reaction    Kind = "reaction"
	Free        Kind = "free"
	Timed       Kind = "timed"
)

// UseTime is the action-economy cost of an ability. Action, BonusAction,
// Reaction and Free are special use-times that resolve immediately; a Timed
// use-time needs a number of consecutive turns of preparation.
type UseTime struct {
	Kind   Kind
	Amount int
	Unit   Unit
}

// ParseUseTime builds a UseTime from its script spelling, e.g. "action",
// "bonus_action", or a timed unit such as "minutes" with an amount.
func ParseUseTime(kind string, amount int) (UseTime, error) {
	k := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(kind)), "-", "_")
	k = strings.ReplaceAll(k, " ", "_")
	if k == "" {
		return UseTime{}, fmt.Errorf("timing: empty use time")
	}
	switch Kind(k) {
	case Action, BonusAction, Reaction, Free:
		return UseTime{Kind: Kind(k)}, nil
	case "free_interaction", "free_object_interaction":
		return UseTime{Kind: Free}, nil
	}
	unit, err := ParseUnit(k)
	if err != nil {
		return UseTime{}, fmt.Errorf("timing: unknown use time %q", kind)
	}
	if amount < 1 {
		amount = 1
	}
	return UseTime{Kind: Timed, Amount: amount, Unit: unit}, nil
}

// Special reports whether u resolves in a single turn.
func (u UseTime) Special() bool {
	return u.Kind != Timed
}

// Turns is the preparation counter for a timed use-time. Special use-times
// take one turn.
func (u UseTime) Turns() int {
	if u.Special() {
		return 1
	}
	return u.Unit.rounds(u.Amount)
}

// Resource names the turn resource spent each turn the ability is used or
// prepared. Timed abilities occupy the action.
func (u UseTime) Resource() string {
	switch u.Kind {
	case BonusAction:
		return "bonus_action"
	case Reaction:
		return "reaction"
	case Free:
		return "free_interaction"
	}
	return "action"
}

func (u UseTime) String() string {
	if u.Special() {
		return string(u.Kind)
	}
	return fmt.Sprintf("%d %s", u.Amount, u.Unit)
}
