package scripting

import (
	"context"
	"slices"
	"strings"

	lua "github.com/yuin/gopher-lua"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/timing"
)

// Caps is the capability set granted to the proxies of one script call.
type Caps uint8

const (
	// ReadOnly exposes queries only. Modifier hooks run with ReadOnly so that
	// aggregating a roll can never change game state.
	ReadOnly Caps = iota
	// Full adds the mutating handler operations.
	Full
)

func (c Caps) String() string {
	if c == Full {
		return "full"
	}
	return "read_only"
}

// Origin identifies the script call behind a mutating proxy operation.
type Origin struct {
	Owner  string // entity whose script is running
	Script string
	UseID  string // ability use id, empty outside an ability use
}

// Statblock is the engine-side view of one entity that proxies dispatch to.
// Mutating operations report a (success, message) outcome; a non-nil error
// aborts the calling script.
type Statblock interface {
	ID() string
	Name() string
	Level() int
	Size() string
	HP() int
	MaxHP(ctx context.Context) (int, error)
	TempHP() int
	ArmorClass(ctx context.Context) (int, error)
	Speed(ctx context.Context) (int, error)
	AbilityScore(ctx context.Context, ability string) (int, error)
	AbilityModifier(ctx context.Context, ability string) (int, error)
	ProficiencyBonus() int
	HasEffect(name string) bool
	IsConcentrating() bool
	HasResource(kind string) bool
	DistanceTo(otherID string) (int, error)

	TakeDamage(ctx context.Context, origin Origin, damage string) (bool, string, error)
	Heal(ctx context.Context, origin Origin, amount int) (bool, string, error)
	AbilityCheck(ctx context.Context, origin Origin, ability string, dc int) (bool, string, error)
	SkillCheck(ctx context.Context, origin Origin, skill string, dc int) (bool, string, error)
	SavingThrow(ctx context.Context, origin Origin, ability string, dc int) (bool, string, error)
	Attack(ctx context.Context, origin Origin, targetID, kind, damage string) (bool, string, error)
	AddEffect(ctx context.Context, origin Origin, name string, duration int) (bool, string, error)
	RemoveEffect(ctx context.Context, origin Origin, name string) (bool, string, error)
}

// Arena resolves entity ids to their canonical Statblock. Proxies hold ids,
// never Statblocks, so every proxy for an id observes the same live state.
type Arena interface {
	Statblock(id string) (Statblock, bool)
}

// proxyRef is the userdata payload behind a proxy.
type proxyRef struct {
	id string
}

type method struct {
	mutates bool
	call    func(c *Context, sb Statblock, L *lua.LState) int
}

// methods is the closed set of operations a script may call on a proxy.
var methods = map[string]method{
	"id":   {call: func(_ *Context, sb Statblock, L *lua.LState) int { return pushString(L, sb.ID()) }},
	"name": {call: func(_ *Context, sb Statblock, L *lua.LState) int { return pushString(L, sb.Name()) }},
	"size": {call: func(_ *Context, sb Statblock, L *lua.LState) int { return pushString(L, sb.Size()) }},
	"level": {call: func(_ *Context, sb Statblock, L *lua.LState) int {
		return pushInt(L, sb.Level())
	}},
	"hp":      {call: func(_ *Context, sb Statblock, L *lua.LState) int { return pushInt(L, sb.HP()) }},
	"temp_hp": {call: func(_ *Context, sb Statblock, L *lua.LState) int { return pushInt(L, sb.TempHP()) }},
	"max_hp": {call: func(c *Context, sb Statblock, L *lua.LState) int {
		n, err := sb.MaxHP(c.ctx)
		return c.pushIntErr(n, err)
	}},
	"armor_class": {call: func(c *Context, sb Statblock, L *lua.LState) int {
		n, err := sb.ArmorClass(c.ctx)
		return c.pushIntErr(n, err)
	}},
	"speed": {call: func(c *Context, sb Statblock, L *lua.LState) int {
		n, err := sb.Speed(c.ctx)
		return c.pushIntErr(n, err)
	}},
	"ability_score": {call: func(c *Context, sb Statblock, L *lua.LState) int {
		n, err := sb.AbilityScore(c.ctx, L.CheckString(2))
		return c.pushIntErr(n, err)
	}},
	"ability_modifier": {call: func(c *Context, sb Statblock, L *lua.LState) int {
		n, err := sb.AbilityModifier(c.ctx, L.CheckString(2))
		return c.pushIntErr(n, err)
	}},
	"proficiency_bonus": {call: func(_ *Context, sb Statblock, L *lua.LState) int {
		return pushInt(L, sb.ProficiencyBonus())
	}},
	"has_effect": {call: func(_ *Context, sb Statblock, L *lua.LState) int {
		L.Push(lua.LBool(sb.HasEffect(L.CheckString(2))))
		return 1
	}},
	"has_condition": {call: func(_ *Context, sb Statblock, L *lua.LState) int {
		L.Push(lua.LBool(sb.HasEffect(L.CheckString(2))))
		return 1
	}},
	"is_concentrating": {call: func(_ *Context, sb Statblock, L *lua.LState) int {
		L.Push(lua.LBool(sb.IsConcentrating()))
		return 1
	}},
	"has_resource": {call: func(_ *Context, sb Statblock, L *lua.LState) int {
		L.Push(lua.LBool(sb.HasResource(L.CheckString(2))))
		return 1
	}},
	"distance_to": {call: func(c *Context, sb Statblock, L *lua.LState) int {
		other := c.checkProxy(2)
		n, err := sb.DistanceTo(other)
		return c.pushIntErr(n, err)
	}},

	"take_damage": {mutates: true, call: func(c *Context, sb Statblock, L *lua.LState) int {
		ok, msg, err := sb.TakeDamage(c.ctx, c.origin(), L.CheckString(2))
		return c.pushOutcome(ok, msg, err)
	}},
	"heal": {mutates: true, call: func(c *Context, sb Statblock, L *lua.LState) int {
		ok, msg, err := sb.Heal(c.ctx, c.origin(), L.CheckInt(2))
		return c.pushOutcome(ok, msg, err)
	}},
	"ability_check": {mutates: true, call: func(c *Context, sb Statblock, L *lua.LState) int {
		ok, msg, err := sb.AbilityCheck(c.ctx, c.origin(), L.CheckString(2), L.CheckInt(3))
		return c.pushOutcome(ok, msg, err)
	}},
	"skill_check": {mutates: true, call: func(c *Context, sb Statblock, L *lua.LState) int {
		ok, msg, err := sb.SkillCheck(c.ctx, c.origin(), L.CheckString(2), L.CheckInt(3))
		return c.pushOutcome(ok, msg, err)
	}},
	"saving_throw": {mutates: true, call: func(c *Context, sb Statblock, L *lua.LState) int {
		ok, msg, err := sb.SavingThrow(c.ctx, c.origin(), L.CheckString(2), L.CheckInt(3))
		return c.pushOutcome(ok, msg, err)
	}},
	"attack": {mutates: true, call: func(c *Context, sb Statblock, L *lua.LState) int {
		target := c.checkProxy(2)
		ok, msg, err := sb.Attack(c.ctx, c.origin(), target, L.OptString(3, "melee"), L.OptString(4, ""))
		return c.pushOutcome(ok, msg, err)
	}},
	"add_effect": {mutates: true, call: func(c *Context, sb Statblock, L *lua.LState) int {
		rounds := timing.Indefinite
		switch d := L.Get(3).(type) {
		case lua.LNumber:
			rounds = int(d)
		case *lua.LUserData:
			if dur, ok := d.Value.(timing.Duration); ok {
				rounds = dur.Rounds()
			}
		}
		ok, msg, err := sb.AddEffect(c.ctx, c.origin(), L.CheckString(2), rounds)
		return c.pushOutcome(ok, msg, err)
	}},
	"remove_effect": {mutates: true, call: func(c *Context, sb Statblock, L *lua.LState) int {
		ok, msg, err := sb.RemoveEffect(c.ctx, c.origin(), L.CheckString(2))
		return c.pushOutcome(ok, msg, err)
	}},
}

// Capabilities lists the method names available under caps, sorted.
func Capabilities(caps Caps) []string {
	var out []string
	for name, m := range methods {
		if !m.mutates || caps == Full {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

func pushString(L *lua.LState, s string) int {
	L.Push(lua.LString(s))
	return 1
}

func pushInt(L *lua.LState, n int) int {
	L.Push(lua.LNumber(n))
	return 1
}

func (c *Context) pushIntErr(n int, err error) int {
	if err != nil {
		c.raise(err)
		return 0
	}
	return pushInt(c.L, n)
}

func (c *Context) pushOutcome(ok bool, msg string, err error) int {
	if err != nil {
		c.raise(err)
		return 0
	}
	c.L.Push(lua.LBool(ok))
	c.L.Push(lua.LString(msg))
	return 2
}

// raise aborts the running script, remembering err so Call can return it
// with its original code.
func (c *Context) raise(err error) {
	c.fault = err
	c.L.RaiseError("%s", err.Error())
}

func (c *Context) origin() Origin {
	return Origin{Owner: c.binding.Owner, Script: c.entry.String(), UseID: c.binding.UseID}
}

func (c *Context) checkProxy(n int) string {
	ud, ok := c.L.Get(n).(*lua.LUserData)
	if ok {
		if ref, ok := ud.Value.(*proxyRef); ok {
			return ref.id
		}
	}
	c.L.ArgError(n, "entity expected")
	return ""
}

// proxy returns the userdata for id, creating it on first use. Within one
// state the same userdata is returned for the same id, and all proxies share
// one metatable, so == between proxies compares entity ids.
func (c *Context) proxy(id string) lua.LValue {
	if id == "" {
		return lua.LNil
	}
	if ud, ok := c.proxies[id]; ok {
		return ud
	}
	if c.proxyMT == nil {
		c.proxyMT = c.newProxyMetatable()
	}
	ud := c.L.NewUserData()
	ud.Value = &proxyRef{id: id}
	ud.Metatable = c.proxyMT
	if c.proxies == nil {
		c.proxies = make(map[string]*lua.LUserData)
	}
	c.proxies[id] = ud
	return ud
}

func (c *Context) newProxyMetatable() *lua.LTable {
	L := c.L
	mt := L.NewTable()
	bound := make(map[string]*lua.LFunction)

	mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(2)
		m, ok := methods[key]
		if !ok || (m.mutates && c.binding.Caps != Full) {
			c.raise(skerr.ScriptRuntimef("capability %q is not available; %s scripts may call %s",
				key, c.binding.Caps, strings.Join(Capabilities(c.binding.Caps), ", ")).
				WithMeta("capability", key).
				WithMeta("caps", c.binding.Caps.String()))
			return 0
		}
		fn, ok := bound[key]
		if !ok {
			fn = L.NewFunction(func(L *lua.LState) int {
				id := c.checkProxy(1)
				if c.rt == nil || c.rt.arena == nil {
					c.raise(skerr.ScriptRuntimef("entity %q is not reachable while loading", id))
					return 0
				}
				sb, ok := c.rt.arena.Statblock(id)
				if !ok {
					c.raise(skerr.NotFoundf("entity %q is not in the arena", id))
					return 0
				}
				return m.call(c, sb, L)
			})
			bound[key] = fn
		}
		L.Push(fn)
		return 1
	}))
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		c.raise(skerr.ScriptRuntimef("entity fields are read-only"))
		return 0
	}))
	mt.RawSetString("__eq", L.NewFunction(func(L *lua.LState) int {
		a, aok := L.Get(1).(*lua.LUserData)
		b, bok := L.Get(2).(*lua.LUserData)
		if !aok || !bok {
			L.Push(lua.LFalse)
			return 1
		}
		ra, aok := a.Value.(*proxyRef)
		rb, bok := b.Value.(*proxyRef)
		L.Push(lua.LBool(aok && bok && ra.id == rb.id))
		return 1
	}))
	mt.RawSetString("__tostring", L.NewFunction(func(L *lua.LState) int {
		id := c.checkProxy(1)
		name := id
		if c.rt != nil && c.rt.arena != nil {
			if sb, ok := c.rt.arena.Statblock(id); ok {
				name = sb.Name()
			}
		}
		L.Push(lua.LString(name))
		return 1
	}))
	return mt
}
