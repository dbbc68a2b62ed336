package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/modifier"
	"github.com/cory-johannsen/skirmish/internal/game/timing"
)

// registerBuilders installs the value constructors available to every rule
// script, plus the engine table.
//
//	RollResult{advantage=, disadvantage=, bonus=, auto_succeed=, auto_fail=, critical=}
//	AddValue(n)  MultiplyValue(n)  SetValue(n)  SpeedModifier(n [, op])
//	Duration(n [, unit])  UseTime(kind [, amount])
//	roll(expr)  engine.log(msg)  engine.roll(expr)
//
// Constructors are capitalized so they never collide with the lower-case
// metadata globals (use_time, duration) that scripts declare.
func (c *Context) registerBuilders() {
	L := c.L
	c.valueMT = L.NewTable()
	c.valueMT.RawSetString("__tostring", L.NewFunction(func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		L.Push(lua.LString(fmt.Sprint(ud.Value)))
		return 1
	}))

	for name, fn := range map[string]lua.LGFunction{
		"RollResult":    c.luaRollResult,
		"AddValue":      c.valueBuilder(modifier.OpAdd),
		"MultiplyValue": c.valueBuilder(modifier.OpMultiply),
		"SetValue":      c.valueBuilder(modifier.OpSet),
		"SpeedModifier": c.luaSpeedModifier,
		"Duration":      c.luaDuration,
		"UseTime":       c.luaUseTime,
		"roll":          c.luaRoll,
	} {
		L.SetGlobal(name, L.NewFunction(fn))
	}

	engine := L.NewTable()
	L.SetFuncs(engine, map[string]lua.LGFunction{
		"log":  c.luaLog,
		"roll": c.luaRoll,
	})
	L.SetGlobal("engine", engine)
}

func (c *Context) newValue(v any) *lua.LUserData {
	ud := c.L.NewUserData()
	ud.Value = v
	ud.Metatable = c.valueMT
	return ud
}

func (c *Context) valueBuilder(op modifier.Op) lua.LGFunction {
	return func(L *lua.LState) int {
		n := L.CheckNumber(1)
		L.Push(c.newValue(modifier.Value{Op: op, Amount: float64(n)}))
		return 1
	}
}

func (c *Context) luaSpeedModifier(L *lua.LState) int {
	n := L.CheckNumber(1)
	op := modifier.Op(L.OptString(2, string(modifier.OpAdd)))
	if !op.Valid() {
		L.ArgError(2, fmt.Sprintf("unknown operation %q", op))
		return 0
	}
	L.Push(c.newValue(modifier.Value{Op: op, Amount: float64(n)}))
	return 1
}

func (c *Context) luaRollResult(L *lua.LState) int {
	tbl := L.OptTable(1, L.NewTable())
	r := modifier.Roll{
		Advantage:    lua.LVAsBool(tbl.RawGetString("advantage")),
		Disadvantage: lua.LVAsBool(tbl.RawGetString("disadvantage")),
		AutoSucceed:  lua.LVAsBool(tbl.RawGetString("auto_succeed")),
		AutoFail:     lua.LVAsBool(tbl.RawGetString("auto_fail")),
		Bonus:        int(lua.LVAsNumber(tbl.RawGetString("bonus"))),
	}
	switch crit := tbl.RawGetString("critical").(type) {
	case lua.LNumber:
		r.Critical = modifier.FoldValues(modifier.Add(float64(crit)))
	case *lua.LUserData:
		v, ok := crit.Value.(modifier.Value)
		if !ok {
			L.ArgError(1, "critical must be a value built by AddValue, MultiplyValue or SetValue")
			return 0
		}
		r.Critical = modifier.FoldValues(v)
	case *lua.LTable:
		for i := 1; i <= crit.Len(); i++ {
			ud, ok := crit.RawGetInt(i).(*lua.LUserData)
			if !ok {
				L.ArgError(1, "critical list must contain values")
				return 0
			}
			v, ok := ud.Value.(modifier.Value)
			if !ok {
				L.ArgError(1, "critical list must contain values")
				return 0
			}
			r.Critical = r.Critical.With(v)
		}
	}
	L.Push(c.newValue(r))
	return 1
}

func (c *Context) luaDuration(L *lua.LState) int {
	n := L.CheckInt(1)
	unit, err := timing.ParseUnit(L.OptString(2, string(timing.Rounds)))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	L.Push(c.newValue(timing.Duration{Amount: n, Unit: unit}))
	return 1
}

func (c *Context) luaUseTime(L *lua.LState) int {
	u, err := timing.ParseUseTime(L.CheckString(1), L.OptInt(2, 1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	L.Push(c.newValue(u))
	return 1
}

func (c *Context) luaRoll(L *lua.LState) int {
	expr := L.CheckString(1)
	if c.rt == nil || c.rt.roller == nil {
		L.RaiseError("roll(%q) is not available while a script is loading", expr)
		return 0
	}
	res, err := c.rt.roller.RollExpr(expr)
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	L.Push(lua.LNumber(res.Total()))
	return 1
}

func (c *Context) luaLog(L *lua.LState) int {
	msg := L.CheckString(1)
	if c.rt != nil {
		c.rt.logger.Info("script log",
			zap.String("script", c.entry.String()),
			zap.String("owner", c.binding.Owner),
			zap.String("message", msg),
		)
	}
	return 0
}
