// Package modifier aggregates the numeric and roll contributions produced by
// rule scripts. Every fold is order-independent: callers may gather records
// from self and target in any order and merge the aggregates freely.
package modifier

import (
	"fmt"
	"math"
)

// Op is the operation a Value contributes.
type Op string

const (
	OpAdd      Op = "add"
	OpMultiply Op = "multiply"
	OpSet      Op = "set"
)

// Valid reports whether o is a known operation.
func (o Op) Valid() bool {
	switch o {
	case OpAdd, OpMultiply, OpSet:
		return true
	}
	return false
}

// Value is one numeric modifier record. Values are immutable once produced.
type Value struct {
	Op     Op
	Amount float64
}

// Add returns an additive record.
func Add(n float64) Value { return Value{Op: OpAdd, Amount: n} }

// Multiply returns a multiplicative record.
func Multiply(n float64) Value { return Value{Op: OpMultiply, Amount: n} }

// Set returns an absolute record.
func Set(n float64) Value { return Value{Op: OpSet, Amount: n} }

func (v Value) String() string {
	return fmt.Sprintf("%s(%g)", v.Op, v.Amount)
}

// Values is the aggregate of any number of Value records.
//
// The zero Values is the identity: no addition, a factor of one, and no set
// clamp. Values compose with Merge, which is associative and commutative.
type Values struct {
	add    float64
	mul    float64
	hasMul bool
	setMin float64
	setMax float64
	hasSet bool
}

// FoldValues aggregates records: adds are summed, multiplies are
// multiplied, and sets keep both their minimum and maximum.
func FoldValues(records ...Value) Values {
	var out Values
	for _, r := range records {
		out = out.With(r)
	}
	return out
}

// With returns v with one more record folded in. Unknown operations are ignored.
func (v Values) With(r Value) Values {
	switch r.Op {
	case OpAdd:
		v.add += r.Amount
	case OpMultiply:
		if v.hasMul {
			v.mul *= r.Amount
		} else {
			v.mul, v.hasMul = r.Amount, true
		}
	case OpSet:
		if !v.hasSet {
			v.setMin, v.setMax, v.hasSet = r.Amount, r.Amount, true
		} else {
			v.setMin = math.Min(v.setMin, r.Amount)
			v.setMax = math.Max(v.setMax, r.Amount)
		}
	}
	return v
}

// Merge combines two aggregates.
func (v Values) Merge(o Values) Values {
	out := v
	out.add += o.add
	if o.hasMul {
		out = out.With(Multiply(o.mul))
	}
	if o.hasSet {
		out = out.With(Set(o.setMin)).With(Set(o.setMax))
	}
	return out
}

// Sum is the total of all add records.
func (v Values) Sum() float64 { return v.add }

// Factor is the product of all multiply records, or 1 when there are none.
func (v Values) Factor() float64 {
	if !v.hasMul {
		return 1
	}
	return v.mul
}

// SetRange returns the smallest and largest set record and whether any exist.
func (v Values) SetRange() (lo, hi float64, ok bool) {
	return v.setMin, v.setMax, v.hasSet
}

// IsZero reports whether v is the identity.
func (v Values) IsZero() bool {
	return v.add == 0 && !v.hasMul && !v.hasSet
}

// Apply returns base multiplied by the factor and then increased by the sum.
// Set records are not consulted; see ApplyFloor and ApplyCeiling.
func (v Values) Apply(base float64) float64 {
	return base*v.Factor() + v.add
}

// ApplyFloor applies v to base and then raises the result to at least the
// largest set record.
func (v Values) ApplyFloor(base float64) float64 {
	out := v.Apply(base)
	if v.hasSet {
		out = math.Max(out, v.setMax)
	}
	return out
}

// ApplyCeiling applies v to base and then lowers the result to at most the
// smallest set record.
func (v Values) ApplyCeiling(base float64) float64 {
	out := v.Apply(base)
	if v.hasSet {
		out = math.Min(out, v.setMin)
	}
	return out
}

// Int floors f toward negative infinity and converts it to int.
func Int(f float64) int {
	return int(math.Floor(f))
}
