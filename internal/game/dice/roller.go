package dice

import "sort"

// Roll evaluates an Expression using the given Source and returns a RollResult.
//
// Precondition: expr must come from Parse; src must be non-nil.
// Postcondition: len(result.Dice) == expr.Count when KeepHighest == 0, or
// expr.KeepHighest otherwise.
func Roll(expr Expression, src Source) (RollResult, error) {
	rolled := Dice(expr.Count, expr.Sides, src)

	kept := rolled
	if expr.KeepHighest > 0 {
		sorted := make([]int, len(rolled))
		copy(sorted, rolled)
		sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
		kept = sorted[:expr.KeepHighest]
	}

	return RollResult{
		Expression: expr.Raw,
		Dice:       kept,
		Modifier:   expr.Modifier,
	}, nil
}

// Dice rolls count dice of the given sides and returns each face.
func Dice(count, sides int, src Source) []int {
	if count <= 0 || sides <= 0 {
		return []int{}
	}
	out := make([]int, count)
	for i := range out {
		out[i] = src.Intn(sides) + 1
	}
	return out
}

// D20 rolls a d20, keeping the higher of two rolls with advantage and the
// lower with disadvantage. Advantage and disadvantage together cancel.
func D20(advantage, disadvantage bool, src Source) int {
	first := src.Intn(20) + 1
	if advantage == disadvantage {
		return first
	}
	second := src.Intn(20) + 1
	if advantage {
		return max(first, second)
	}
	return min(first, second)
}

// RollExpr parses expr and rolls it using src in a single call.
func RollExpr(expr string, src Source) (RollResult, error) {
	e, err := Parse(expr)
	if err != nil {
		return RollResult{}, err
	}
	return Roll(e, src)
}

// MustParse parses expr and panics on error. Useful for package-level constants.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic("dice: MustParse failed for expression " + expr + ": " + err.Error())
	}
	return e
}
