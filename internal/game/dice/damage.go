package dice

import (
	"fmt"
	"regexp"
	"strings"
)

// Untyped is the damage type given to a pool that names none.
const Untyped = "untyped"

// Pool is one typed component of a damage string.
type Pool struct {
	Expr Expression
	Type string
}

var exprToken = regexp.MustCompile(`(?i)^[+-]?(?:\d*d\d+(?:kh\d+)?|\d+)(?:[+-]\d+)?$`)

// ParseDamage parses a composite damage string into typed pools. Pools are
// separated by commas, "and", or a "+" that follows a named type:
//
//	"2d6 slashing"
//	"1d8 + 3 piercing + 2d6 fire"
//	"1d8+3 piercing, 1d6 poison"
//
// A pool without a type is Untyped.
func ParseDamage(text string) ([]Pool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("dice: empty damage string")
	}
	tokens := strings.Fields(strings.ReplaceAll(text, ",", " , "))

	var (
		pools     []Pool
		exprParts []string
		typeParts []string
	)
	flush := func() error {
		if len(exprParts) == 0 {
			if len(typeParts) > 0 {
				return fmt.Errorf("dice: damage %q: type %q has no amount", text, strings.Join(typeParts, " "))
			}
			return nil
		}
		expr, err := Parse(strings.Join(exprParts, ""))
		if err != nil {
			return fmt.Errorf("dice: damage %q: %w", text, err)
		}
		typ := Untyped
		if len(typeParts) > 0 {
			typ = strings.ToLower(strings.Join(typeParts, " "))
		}
		pools = append(pools, Pool{Expr: expr, Type: typ})
		exprParts, typeParts = nil, nil
		return nil
	}

	for _, tok := range tokens {
		switch {
		case tok == "," || strings.EqualFold(tok, "and"):
			if err := flush(); err != nil {
				return nil, err
			}
		case tok == "+" || tok == "-":
			if len(typeParts) > 0 {
				if tok == "-" {
					return nil, fmt.Errorf("dice: damage %q: cannot subtract a pool", text)
				}
				if err := flush(); err != nil {
					return nil, err
				}
				continue
			}
			exprParts = append(exprParts, tok)
		case exprToken.MatchString(tok):
			if len(typeParts) > 0 {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			exprParts = append(exprParts, tok)
		default:
			typeParts = append(typeParts, tok)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, fmt.Errorf("dice: damage %q has no pools", text)
	}
	return pools, nil
}

// FormatDamage renders pools in the canonical "expr type + expr type" form.
func FormatDamage(pools []Pool) string {
	parts := make([]string, len(pools))
	for i, p := range pools {
		parts[i] = p.Expr.Raw + " " + p.Type
	}
	return strings.Join(parts, " + ")
}
