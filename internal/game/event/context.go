package event

import (
	"sync"

	"github.com/cory-johannsen/skirmish/internal/game/modifier"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Context is the mutable payload of an event. Reaction handlers run
// concurrently, so every implementation is safe for concurrent use.
//
// Fields returns a snapshot suitable for handing to a script. Update applies
// the difference between a snapshot and the script's edited copy; additive
// fields are applied as deltas so concurrent edits compose.
type Context interface {
	Proceed() bool
	Halt()
	Fields() map[string]any
	Update(before, after map[string]any)
}

// RollModifiable is implemented by contexts that accept roll modifiers.
type RollModifiable interface {
	AddRoll(r modifier.Roll)
}

type flow struct {
	mu     sync.Mutex
	halted bool
}

// Proceed reports whether downstream processing should continue.
func (f *flow) Proceed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.halted
}

// Halt clears the proceed flag. It cannot be set again.
func (f *flow) Halt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halted = true
}

// fields must be called with f.mu held.
func (f *flow) fields(m map[string]any) map[string]any {
	m["proceed"] = !f.halted
	return m
}

// update must be called with f.mu held.
func (f *flow) update(after map[string]any) {
	if p, ok := after["proceed"].(bool); ok && !p {
		f.halted = true
	}
}

// SourceContext carries only the acting entity.
type SourceContext struct {
	flow
	Source string
	// Ability names the ability used, for AbilityUsed.
	Ability string
}

func NewSourceContext(source string) *SourceContext {
	return &SourceContext{Source: source}
}

func (c *SourceContext) Fields() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fields(map[string]any{"source": ref(c.Source), "ability": c.Ability})
}

func (c *SourceContext) Update(_, after map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(after)
}

// TargetedContext carries a source and a target.
type TargetedContext struct {
	flow
	Source string
	Target string
}

func NewTargetedContext(source, target string) *TargetedContext {
	return &TargetedContext{Source: source, Target: target}
}

func (c *TargetedContext) Fields() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fields(map[string]any{"source": ref(c.Source), "target": ref(c.Target)})
}

func (c *TargetedContext) Update(_, after map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(after)
}

// RollContext carries the parameters of a roll that has not happened yet.
// Handlers may inject further roll modifiers.
type RollContext struct {
	flow
	Source string
	Target string // empty for checks and saves
	Kind   string // attack kind, ability or skill
	DC     int
	mods   modifier.Roll
}

func NewRollContext(source, target, kind string, dc int, mods modifier.Roll) *RollContext {
	return &RollContext{Source: source, Target: target, Kind: kind, DC: dc, mods: mods}
}

// Modifiers returns the aggregate after every handler's contribution.
func (c *RollContext) Modifiers() modifier.Roll {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mods
}

func (c *RollContext) AddRoll(r modifier.Roll) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mods = c.mods.Merge(r)
}

func (c *RollContext) Fields() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fields(map[string]any{
		"source":       ref(c.Source),
		"target":       ref(c.Target),
		"kind":         c.Kind,
		"dc":           c.DC,
		"advantage":    c.mods.Advantage,
		"disadvantage": c.mods.Disadvantage,
		"auto_succeed": c.mods.AutoSucceed,
		"auto_fail":    c.mods.AutoFail,
		"bonus":        c.mods.Bonus,
	})
}

func (c *RollContext) Update(before, after map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(after)
	c.mods = c.mods.Merge(modifier.Roll{
		Advantage:    raised(before, after, "advantage"),
		Disadvantage: raised(before, after, "disadvantage"),
		AutoSucceed:  raised(before, after, "auto_succeed"),
		AutoFail:     raised(before, after, "auto_fail"),
		Bonus:        delta(before, after, "bonus"),
	})
}

// RollResultContext carries a completed roll. Against is the number the
// total was compared with (armor class or DC); handlers may raise it, as a
// shield spell does, or adjust the total.
type RollResultContext struct {
	flow
	Source   string
	Target   string
	Kind     string
	Natural  int
	Total    int
	Against  int
	Critical bool
}

func (c *RollResultContext) Fields() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fields(map[string]any{
		"source":   ref(c.Source),
		"target":   ref(c.Target),
		"kind":     c.Kind,
		"natural":  c.Natural,
		"total":    c.Total,
		"against":  c.Against,
		"critical": c.Critical,
	})
}

func (c *RollResultContext) Update(before, after map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(after)
	c.Total += delta(before, after, "total")
	c.Against += delta(before, after, "against")
}

// Snapshot returns the total and the number it is compared with.
func (c *RollResultContext) Snapshot() (total, against int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Total, c.Against
}

// RolledPool is one typed damage pool after rolling, before totals.
type RolledPool struct {
	Type     string
	Sides    int
	Dice     []int
	Modifier int
}

// Total sums the dice and the modifier, never below zero.
func (p RolledPool) Total() int {
	t := p.Modifier
	for _, d := range p.Dice {
		t += d
	}
	return max(t, 0)
}

// DamageRollContext carries rolled damage dice. Handlers may rewrite
// individual die faces before totals are computed.
type DamageRollContext struct {
	flow
	Source   string
	Target   string
	Critical bool
	pools    []RolledPool
}

func NewDamageRollContext(source, target string, critical bool, pools []RolledPool) *DamageRollContext {
	return &DamageRollContext{Source: source, Target: target, Critical: critical, pools: pools}
}

// Pools returns a copy of the current pools.
func (c *DamageRollContext) Pools() []RolledPool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RolledPool, len(c.pools))
	for i, p := range c.pools {
		p.Dice = append([]int(nil), p.Dice...)
		out[i] = p
	}
	return out
}

// SetDie replaces one die face. Out-of-range indexes are ignored.
func (c *DamageRollContext) SetDie(pool, die, face int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pool < 0 || pool >= len(c.pools) || die < 0 || die >= len(c.pools[pool].Dice) {
		return
	}
	c.pools[pool].Dice[die] = face
}

func (c *DamageRollContext) Fields() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	pools := make([]any, len(c.pools))
	for i, p := range c.pools {
		faces := make([]any, len(p.Dice))
		for j, d := range p.Dice {
			faces[j] = d
		}
		pools[i] = map[string]any{"type": p.Type, "sides": p.Sides, "dice": faces, "modifier": p.Modifier}
	}
	return c.fields(map[string]any{
		"source":   ref(c.Source),
		"target":   ref(c.Target),
		"critical": c.Critical,
		"pools":    pools,
	})
}

// Update applies rewritten die faces. Pools are matched by index.
func (c *DamageRollContext) Update(before, after map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(after)
	bp, _ := before["pools"].([]any)
	ap, _ := after["pools"].([]any)
	for i := 0; i < len(c.pools) && i < len(bp) && i < len(ap); i++ {
		bd := diceOf(bp[i])
		ad := diceOf(ap[i])
		for j := 0; j < len(c.pools[i].Dice) && j < len(bd) && j < len(ad); j++ {
			if ad[j] != bd[j] {
				c.pools[i].Dice[j] = ad[j]
			}
		}
	}
}

func diceOf(pool any) []int {
	m, _ := pool.(map[string]any)
	raw, _ := m["dice"].([]any)
	out := make([]int, len(raw))
	for i, v := range raw {
		out[i], _ = scripting.AsInt(v)
	}
	return out
}

// DamageContext carries mitigated damage about to be applied. Handlers may
// adjust Amount; it never drops below zero.
type DamageContext struct {
	flow
	Source string
	Target string
	Amount int
	ByType map[string]int
}

func NewDamageContext(source, target string, byType map[string]int) *DamageContext {
	total := 0
	for _, n := range byType {
		total += n
	}
	return &DamageContext{Source: source, Target: target, Amount: total, ByType: byType}
}

// Total returns the amount to apply.
func (c *DamageContext) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return max(c.Amount, 0)
}

func (c *DamageContext) Fields() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make(map[string]any, len(c.ByType))
	for k, v := range c.ByType {
		types[k] = v
	}
	return c.fields(map[string]any{
		"source": ref(c.Source),
		"target": ref(c.Target),
		"amount": c.Amount,
		"types":  types,
	})
}

func (c *DamageContext) Update(before, after map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(after)
	c.Amount += delta(before, after, "amount")
}

// MovementContext carries one step of movement.
type MovementContext struct {
	flow
	Source string
	From   [2]int
	To     [2]int
	Cost   int
}

func (c *MovementContext) Fields() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fields(map[string]any{
		"source": ref(c.Source),
		"from":   []any{c.From[0], c.From[1]},
		"to":     []any{c.To[0], c.To[1]},
		"cost":   c.Cost,
	})
}

func (c *MovementContext) Update(before, after map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(after)
	c.Cost += delta(before, after, "cost")
}

// StepCost returns the current cost of the step.
func (c *MovementContext) StepCost() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Cost
}

func ref(id string) any {
	if id == "" {
		return nil
	}
	return scripting.Ref{ID: id}
}

func raised(before, after map[string]any, key string) bool {
	b, _ := before[key].(bool)
	a, _ := after[key].(bool)
	return a && !b
}

func delta(before, after map[string]any, key string) int {
	b, _ := scripting.AsInt(before[key])
	a, _ := scripting.AsInt(after[key])
	return a - b
}
