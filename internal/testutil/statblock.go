package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Arena is an in-memory scripting.Arena of fake statblocks placed on a
// square grid.
type Arena struct {
	mu     sync.Mutex
	blocks map[string]*Statblock
	pos    map[string][2]int
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{blocks: make(map[string]*Statblock), pos: make(map[string][2]int)}
}

// Add creates a statblock with 20 hp and AC 12 at the origin.
func (a *Arena) Add(id string) *Statblock {
	a.mu.Lock()
	defer a.mu.Unlock()
	sb := &Statblock{
		ident:     id,
		arena:     a,
		HPValue:   20,
		MaxHPVal:  20,
		AC:        12,
		SpeedVal:  30,
		Effects:   map[string]bool{},
		Resources: map[string]bool{"action": true, "bonus_action": true, "reaction": true, "free_interaction": true},
	}
	a.blocks[id] = sb
	a.pos[id] = [2]int{}
	return sb
}

// Place moves id to cell (x, y).
func (a *Arena) Place(id string, x, y int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pos[id] = [2]int{x, y}
}

// Statblock implements scripting.Arena.
func (a *Arena) Statblock(id string) (scripting.Statblock, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sb, ok := a.blocks[id]
	return sb, ok
}

func (a *Arena) distance(from, to string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pos[from]
	q, ok2 := a.pos[to]
	if !ok || !ok2 {
		return 0, fmt.Errorf("testutil: %q or %q is not placed", from, to)
	}
	dx, dy := abs(p[0]-q[0]), abs(p[1]-q[1])
	return 5 * max(dx, dy), nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Statblock is a scriptable fake entity. Mutating operations are recorded
// in Calls and always succeed.
type Statblock struct {
	ident string
	arena *Arena

	mu        sync.Mutex
	HPValue   int
	MaxHPVal  int
	AC        int
	SpeedVal  int
	Effects   map[string]bool
	Resources map[string]bool
	Calls     []string
}

func (s *Statblock) record(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, fmt.Sprintf(format, args...))
}

// Recorded returns a copy of the recorded calls.
func (s *Statblock) Recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Calls...)
}

func (s *Statblock) ID() string            { return s.ident }
func (s *Statblock) Name() string          { return s.ident }
func (s *Statblock) Level() int            { return 1 }
func (s *Statblock) Size() string          { return "medium" }
func (s *Statblock) ProficiencyBonus() int { return 2 }
func (s *Statblock) TempHP() int           { return 0 }
func (s *Statblock) IsConcentrating() bool { return false }

func (s *Statblock) HP() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.HPValue
}

func (s *Statblock) MaxHP(context.Context) (int, error)      { return s.MaxHPVal, nil }
func (s *Statblock) ArmorClass(context.Context) (int, error) { return s.AC, nil }
func (s *Statblock) Speed(context.Context) (int, error)      { return s.SpeedVal, nil }

func (s *Statblock) AbilityScore(context.Context, string) (int, error)    { return 10, nil }
func (s *Statblock) AbilityModifier(context.Context, string) (int, error) { return 0, nil }

func (s *Statblock) HasEffect(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Effects[name]
}

func (s *Statblock) HasResource(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Resources[kind]
}

func (s *Statblock) DistanceTo(other string) (int, error) {
	return s.arena.distance(s.ident, other)
}

func (s *Statblock) TakeDamage(_ context.Context, o scripting.Origin, damage string) (bool, string, error) {
	s.record("take_damage %s by %s", damage, o.Owner)
	if n, err := strconv.Atoi(damage); err == nil {
		s.mu.Lock()
		s.HPValue -= n
		s.mu.Unlock()
	}
	return true, "took " + damage, nil
}

func (s *Statblock) Heal(_ context.Context, o scripting.Origin, amount int) (bool, string, error) {
	s.record("heal %d by %s", amount, o.Owner)
	s.mu.Lock()
	s.HPValue = min(s.MaxHPVal, s.HPValue+amount)
	s.mu.Unlock()
	return true, "healed", nil
}

func (s *Statblock) AbilityCheck(_ context.Context, _ scripting.Origin, ability string, dc int) (bool, string, error) {
	s.record("ability_check %s %d", ability, dc)
	return true, "passed", nil
}

func (s *Statblock) SkillCheck(_ context.Context, _ scripting.Origin, skill string, dc int) (bool, string, error) {
	s.record("skill_check %s %d", skill, dc)
	return true, "passed", nil
}

func (s *Statblock) SavingThrow(_ context.Context, _ scripting.Origin, ability string, dc int) (bool, string, error) {
	s.record("saving_throw %s %d", ability, dc)
	return true, "saved", nil
}

func (s *Statblock) Attack(_ context.Context, _ scripting.Origin, target, kind, damage string) (bool, string, error) {
	s.record("attack %s %s %s", target, kind, damage)
	return true, "hit", nil
}

func (s *Statblock) AddEffect(_ context.Context, o scripting.Origin, name string, rounds int) (bool, string, error) {
	s.record("add_effect %s %d use=%s", name, rounds, o.UseID)
	s.mu.Lock()
	s.Effects[name] = true
	s.mu.Unlock()
	return true, "added " + name, nil
}

func (s *Statblock) RemoveEffect(_ context.Context, _ scripting.Origin, name string) (bool, string, error) {
	s.record("remove_effect %s", name)
	s.mu.Lock()
	delete(s.Effects, name)
	s.mu.Unlock()
	return true, "removed " + name, nil
}
