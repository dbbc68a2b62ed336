package dice

import "go.uber.org/zap"

// Roller wraps a Source and logger to provide logged dice rolling.
// All rolls are logged at debug level.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs each roll to logger.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	if src == nil || logger == nil {
		panic("dice: NewLoggedRoller requires a source and a logger")
	}
	return &Roller{src: src, logger: logger}
}

// Roll evaluates expr and logs the result at debug level.
func (r *Roller) Roll(expr Expression) (RollResult, error) {
	result, err := Roll(expr, r.src)
	if err != nil {
		return RollResult{}, err
	}
	r.logger.Debug("dice roll",
		zap.String("expression", result.Expression),
		zap.Ints("dice", result.Dice),
		zap.Int("modifier", result.Modifier),
		zap.Int("total", result.Total()),
	)
	return result, nil
}

// RollExpr parses expr and rolls it, logging the result.
func (r *Roller) RollExpr(expr string) (RollResult, error) {
	e, err := Parse(expr)
	if err != nil {
		return RollResult{}, err
	}
	return r.Roll(e)
}

// D20 rolls a d20 with the given advantage state.
func (r *Roller) D20(advantage, disadvantage bool) int {
	n := D20(advantage, disadvantage, r.src)
	r.logger.Debug("d20 roll",
		zap.Bool("advantage", advantage),
		zap.Bool("disadvantage", disadvantage),
		zap.Int("natural", n),
	)
	return n
}

// Dice rolls count dice with the given number of sides.
func (r *Roller) Dice(count, sides int) []int {
	faces := Dice(count, sides, r.src)
	r.logger.Debug("dice pool roll",
		zap.Int("count", count),
		zap.Int("sides", sides),
		zap.Ints("dice", faces),
	)
	return faces
}
