package scripting

import (
	"context"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
)

// maxEntryDepth bounds how deeply nested tables are searched for sub-entries.
const maxEntryDepth = 4

// Hook is a script-defined function discovered at compile time.
type Hook struct {
	Name   string
	Params []string
}

// EntryMeta is what compilation learned about one addressable entry of a
// script: the root chunk or a nested table that defines functions.
type EntryMeta struct {
	Path     string
	Hooks    map[string]Hook
	Values   map[string]any
	Order    []string // hook names in declaration order
	Children []string // child entry paths in declaration order
}

// Script is a compiled rule script. A Script is immutable and may be shared
// by any number of concurrently running Contexts.
type Script struct {
	Name    string
	Source  string
	proto   *lua.FunctionProto
	entries map[string]*EntryMeta
}

// Compile parses src, compiles it, and runs it once in a discovery state to
// learn the hooks and declared values of every entry. Compilation failures
// and malformed declarations are authoring errors.
func Compile(name, src string) (*Script, error) {
	return compile(name, src, DefaultInstructionLimit)
}

func compile(name, src string, instLimit int) (*Script, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, skerr.WrapWithCode(err, skerr.CodeAuthoring, fmt.Sprintf("script %q does not parse", name))
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, skerr.WrapWithCode(err, skerr.CodeAuthoring, fmt.Sprintf("script %q does not compile", name))
	}
	s := &Script{Name: name, Source: src, proto: proto, entries: make(map[string]*EntryMeta)}
	if err := s.discover(instLimit); err != nil {
		return nil, err
	}
	return s, nil
}

// discover executes the chunk with the globals table intercepted so every
// top-level definition is recorded in declaration order.
func (s *Script) discover(instLimit int) error {
	L, cancel := NewSandboxedState(context.Background(), instLimit)
	defer cancel()
	defer L.Close()

	c := &Context{L: L, entry: Entry{Script: s}}
	c.registerBuilders()

	var declared []string
	seen := make(map[string]bool)
	mt := L.NewTable()
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		key := L.CheckAny(2)
		if name, ok := key.(lua.LString); ok && !seen[string(name)] {
			seen[string(name)] = true
			declared = append(declared, string(name))
		}
		tbl.RawSet(key, L.CheckAny(3))
		return 0
	}))
	L.SetMetatable(L.G.Global, mt)

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, 0, nil); err != nil {
		return skerr.WrapWithCode(err, skerr.CodeAuthoring, fmt.Sprintf("script %q fails while loading", s.Name))
	}

	root := newEntryMeta("")
	s.entries[""] = root
	for _, name := range declared {
		v := L.G.Global.RawGetString(name)
		if v == lua.LNil {
			continue
		}
		s.describe(root, name, v, 1)
	}

	for path, meta := range s.entries {
		_, run := meta.Hooks["run"]
		_, modify := meta.Hooks["modify"]
		if run && modify {
			return skerr.Authoringf("script %q entry %q defines both run and modify", s.Name, displayPath(s.Name, path))
		}
	}
	return nil
}

func (s *Script) describe(parent *EntryMeta, key string, v lua.LValue, depth int) {
	switch tv := v.(type) {
	case *lua.LFunction:
		if tv.IsG {
			return
		}
		parent.Hooks[key] = Hook{Name: key, Params: paramNames(tv)}
		parent.Order = append(parent.Order, key)
	case *lua.LTable:
		if key != "state" && depth <= maxEntryDepth && definesFunctions(tv, depth) {
			path := joinPath(parent.Path, key)
			child := newEntryMeta(path)
			s.entries[path] = child
			parent.Children = append(parent.Children, path)
			eachField(tv, func(k string, fv lua.LValue) {
				s.describe(child, k, fv, depth+1)
			})
			return
		}
		parent.Values[key] = FromLua(v)
	default:
		parent.Values[key] = FromLua(v)
	}
}

func newEntryMeta(path string) *EntryMeta {
	return &EntryMeta{Path: path, Hooks: make(map[string]Hook), Values: make(map[string]any)}
}

func definesFunctions(tbl *lua.LTable, depth int) bool {
	found := false
	eachField(tbl, func(_ string, v lua.LValue) {
		if found {
			return
		}
		switch tv := v.(type) {
		case *lua.LFunction:
			found = !tv.IsG
		case *lua.LTable:
			found = depth < maxEntryDepth && definesFunctions(tv, depth+1)
		}
	})
	return found
}

// eachField visits the string-keyed fields of tbl in insertion order.
func eachField(tbl *lua.LTable, fn func(string, lua.LValue)) {
	for k, v := tbl.Next(lua.LNil); k != lua.LNil; k, v = tbl.Next(k) {
		if ks, ok := k.(lua.LString); ok {
			fn(string(ks), v)
		}
	}
}

func paramNames(fn *lua.LFunction) []string {
	if fn.Proto == nil {
		return nil
	}
	n := int(fn.Proto.NumParameters)
	params := make([]string, 0, n+1)
	for i := 0; i < n && i < len(fn.Proto.DbgLocals); i++ {
		params = append(params, fn.Proto.DbgLocals[i].Name)
	}
	if fn.Proto.IsVarArg != 0 {
		params = append(params, "...")
	}
	return params
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func displayPath(script, path string) string {
	if path == "" {
		return script
	}
	return path
}

// Root returns the entry for the chunk itself.
func (s *Script) Root() Entry {
	return Entry{Script: s}
}

// Entry returns the entry at a dotted path.
func (s *Script) Entry(path string) (Entry, bool) {
	if _, ok := s.entries[path]; !ok {
		return Entry{}, false
	}
	return Entry{Script: s, Path: path}, true
}

// Entry addresses one entry of a compiled script.
type Entry struct {
	Script *Script
	Path   string
}

// Valid reports whether e refers to a compiled entry.
func (e Entry) Valid() bool {
	return e.Script != nil && e.Script.entries[e.Path] != nil
}

// Meta returns the compile-time description of e.
func (e Entry) Meta() *EntryMeta {
	if e.Script == nil {
		return nil
	}
	return e.Script.entries[e.Path]
}

// Name is the last path segment, or the script name for the root.
func (e Entry) Name() string {
	if e.Path == "" {
		if e.Script == nil {
			return ""
		}
		return e.Script.Name
	}
	if i := strings.LastIndex(e.Path, "."); i >= 0 {
		return e.Path[i+1:]
	}
	return e.Path
}

// Has reports whether e defines hook.
func (e Entry) Has(hook string) bool {
	m := e.Meta()
	if m == nil {
		return false
	}
	_, ok := m.Hooks[hook]
	return ok
}

// Hook returns the named hook description.
func (e Entry) Hook(name string) (Hook, bool) {
	m := e.Meta()
	if m == nil {
		return Hook{}, false
	}
	h, ok := m.Hooks[name]
	return h, ok
}

// Value returns a declared non-function value.
func (e Entry) Value(key string) (any, bool) {
	m := e.Meta()
	if m == nil {
		return nil, false
	}
	v, ok := m.Values[key]
	return v, ok
}

// Children returns the nested entries of e in declaration order.
func (e Entry) Children() []Entry {
	m := e.Meta()
	if m == nil {
		return nil
	}
	out := make([]Entry, 0, len(m.Children))
	for _, p := range m.Children {
		out = append(out, Entry{Script: e.Script, Path: p})
	}
	return out
}

func (e Entry) String() string {
	if e.Script == nil {
		return "<nil>"
	}
	if e.Path == "" {
		return e.Script.Name
	}
	return e.Script.Name + ":" + e.Path
}
