package combat

import (
	"sort"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

//go:generate mockgen -destination=mocks/mock_dice.go -package=mocks github.com/cory-johannsen/skirmish/internal/game/combat Dice

// Dice is the randomness the handlers consume. *dice.Roller satisfies it.
type Dice interface {
	D20(advantage, disadvantage bool) int
	Dice(count, sides int) []int
}

// exprRoller serves script roll() calls from the encounter's Dice so that
// a scripted roll and a handler roll come from the same source.
type exprRoller struct {
	d Dice
}

func (r exprRoller) RollExpr(text string) (dice.RollResult, error) {
	expr, err := dice.Parse(text)
	if err != nil {
		return dice.RollResult{}, err
	}
	faces := []int{}
	if expr.Count > 0 {
		faces = r.d.Dice(expr.Count, expr.Sides)
	}
	if expr.KeepHighest > 0 && expr.KeepHighest < len(faces) {
		sorted := append([]int(nil), faces...)
		sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
		faces = sorted[:expr.KeepHighest]
	}
	return dice.RollResult{Expression: expr.Raw, Dice: faces, Modifier: expr.Modifier}, nil
}
