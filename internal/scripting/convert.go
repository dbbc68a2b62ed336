package scripting

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/skirmish/internal/game/modifier"
	"github.com/cory-johannsen/skirmish/internal/game/timing"
)

// Ref is an entity reference crossing the script boundary. Go code passes a
// Ref to hand a script the proxy for that entity; proxies returned by a
// script come back as Refs.
type Ref struct {
	ID string
}

// FromLua converts a Lua value into plain Go data:
//
//	nil, bool, float64, string
//	[]any for sequences, map[string]any for other tables
//	Ref for entity proxies
//	modifier.Value, modifier.Roll, timing.Duration, timing.UseTime for builder results
//
// Functions convert to nil.
func FromLua(v lua.LValue) any {
	return fromLua(v, 0)
}

func fromLua(v lua.LValue, depth int) any {
	switch tv := v.(type) {
	case lua.LBool:
		return bool(tv)
	case lua.LNumber:
		return float64(tv)
	case lua.LString:
		return string(tv)
	case *lua.LUserData:
		if ref, ok := tv.Value.(*proxyRef); ok {
			return Ref{ID: ref.id}
		}
		return tv.Value
	case *lua.LTable:
		if depth > 16 {
			return nil
		}
		return tableFromLua(tv, depth)
	}
	return nil
}

func tableFromLua(tbl *lua.LTable, depth int) any {
	n := tbl.Len()
	isList := n > 0
	if isList {
		count := 0
		tbl.ForEach(func(lua.LValue, lua.LValue) { count++ })
		isList = count == n
	}
	if isList {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, fromLua(tbl.RawGetInt(i), depth+1))
		}
		return out
	}
	out := make(map[string]any)
	tbl.ForEach(func(k, v lua.LValue) {
		if _, isFn := v.(*lua.LFunction); isFn {
			return
		}
		out[keyString(k)] = fromLua(v, depth+1)
	})
	return out
}

func keyString(k lua.LValue) string {
	if n, ok := k.(lua.LNumber); ok && float64(n) == math.Trunc(float64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return k.String()
}

// toLua converts Go data into a Lua value owned by c's state.
func (c *Context) toLua(v any) lua.LValue {
	L := c.L
	switch tv := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return tv
	case bool:
		return lua.LBool(tv)
	case int:
		return lua.LNumber(tv)
	case int64:
		return lua.LNumber(tv)
	case int32:
		return lua.LNumber(tv)
	case float64:
		return lua.LNumber(tv)
	case float32:
		return lua.LNumber(tv)
	case string:
		return lua.LString(tv)
	case Ref:
		return c.proxy(tv.ID)
	case modifier.Value, modifier.Roll, timing.Duration, timing.UseTime:
		return c.newValue(tv)
	case []string:
		tbl := L.NewTable()
		for _, s := range tv {
			tbl.Append(lua.LString(s))
		}
		return tbl
	case []int:
		tbl := L.NewTable()
		for _, n := range tv {
			tbl.Append(lua.LNumber(n))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for _, e := range tv {
			tbl.Append(c.toLua(e))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tbl.RawSetString(k, c.toLua(tv[k]))
		}
		return tbl
	case map[string]int:
		tbl := L.NewTable()
		for k, n := range tv {
			tbl.RawSetString(k, lua.LNumber(n))
		}
		return tbl
	case fmt.Stringer:
		return lua.LString(tv.String())
	}
	return lua.LString(fmt.Sprint(v))
}

// AsInt converts a number produced by FromLua (or decoded from JSON) to int.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(math.Floor(n)), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// AsString returns v when it is a string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsStrings converts a Lua sequence of strings. A single string becomes a
// one-element slice.
func AsStrings(v any) []string {
	switch tv := v.(type) {
	case string:
		return []string{tv}
	case []any:
		out := make([]string, 0, len(tv))
		for _, e := range tv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return tv
	case map[string]any:
		// A table used as a set: {blinded = true}.
		out := make([]string, 0, len(tv))
		for k, e := range tv {
			if b, ok := e.(bool); ok && b {
				out = append(out, k)
			}
		}
		sort.Strings(out)
		return out
	}
	return nil
}

// Truthy applies Lua truthiness to a converted value.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// Encode converts script-facing data into a tree of JSON-friendly values.
// Refs become {"$ref": id} and builder values are tagged with "$type".
func Encode(v any) any {
	switch tv := v.(type) {
	case Ref:
		return map[string]any{"$ref": tv.ID}
	case modifier.Value:
		return map[string]any{"$type": "value", "op": string(tv.Op), "amount": tv.Amount}
	case timing.Duration:
		return map[string]any{"$type": "duration", "amount": tv.Amount, "unit": string(tv.Unit)}
	case timing.UseTime:
		return map[string]any{"$type": "use_time", "kind": string(tv.Kind), "amount": tv.Amount, "unit": string(tv.Unit)}
	case []any:
		if tv == nil {
			return nil
		}
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = Encode(e)
		}
		return out
	case map[string]any:
		if tv == nil {
			return nil
		}
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = Encode(e)
		}
		return out
	}
	return v
}

// Decode reverses Encode.
func Decode(v any) any {
	switch tv := v.(type) {
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = Decode(e)
		}
		return out
	case map[string]any:
		if id, ok := tv["$ref"].(string); ok && len(tv) == 1 {
			return Ref{ID: id}
		}
		switch tv["$type"] {
		case "value":
			amount, _ := tv["amount"].(float64)
			op, _ := tv["op"].(string)
			return modifier.Value{Op: modifier.Op(op), Amount: amount}
		case "duration":
			n, _ := AsInt(tv["amount"])
			unit, _ := tv["unit"].(string)
			return timing.Duration{Amount: n, Unit: timing.Unit(unit)}
		case "use_time":
			n, _ := AsInt(tv["amount"])
			kind, _ := tv["kind"].(string)
			unit, _ := tv["unit"].(string)
			return timing.UseTime{Kind: timing.Kind(kind), Amount: n, Unit: timing.Unit(unit)}
		}
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = Decode(e)
		}
		return out
	}
	return v
}

// DecodeMap decodes v when it is a map, returning nil otherwise.
func DecodeMap(v any) map[string]any {
	m, ok := Decode(v).(map[string]any)
	if !ok {
		return nil
	}
	return m
}
