package modifier

// Roll is one roll-modifier record, or the aggregate of many. The zero Roll
// changes nothing.
type Roll struct {
	Advantage    bool
	Disadvantage bool
	AutoSucceed  bool
	AutoFail     bool
	Bonus        int
	// Critical adjusts the natural result needed for a critical, starting at 20.
	Critical Values
}

// DefaultCriticalThreshold is the natural d20 result that scores a critical
// when no modifier applies.
const DefaultCriticalThreshold = 20

// FoldRolls ORs every flag, sums bonuses and folds the critical adjustments.
func FoldRolls(records ...Roll) Roll {
	var out Roll
	for _, r := range records {
		out = out.Merge(r)
	}
	return out
}

// Merge combines two roll aggregates.
func (r Roll) Merge(o Roll) Roll {
	return Roll{
		Advantage:    r.Advantage || o.Advantage,
		Disadvantage: r.Disadvantage || o.Disadvantage,
		AutoSucceed:  r.AutoSucceed || o.AutoSucceed,
		AutoFail:     r.AutoFail || o.AutoFail,
		Bonus:        r.Bonus + o.Bonus,
		Critical:     r.Critical.Merge(o.Critical),
	}
}

// CriticalThreshold returns the lowest natural roll that counts as a
// critical. Set records act as a ceiling, so the most generous set wins. The
// result is clamped to [1, 20].
func (r Roll) CriticalThreshold() int {
	return r.ThresholdFrom(DefaultCriticalThreshold)
}

// ThresholdFrom is CriticalThreshold starting from base instead of 20.
func (r Roll) ThresholdFrom(base int) int {
	t := Int(r.Critical.ApplyCeiling(float64(base)))
	switch {
	case t < 1:
		return 1
	case t > DefaultCriticalThreshold:
		return DefaultCriticalThreshold
	}
	return t
}
