package scripting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// Roller evaluates dice expressions for the roll builder.
type Roller interface {
	RollExpr(expr string) (dice.RollResult, error)
}

// Runtime opens script Contexts against one Arena. A Runtime holds no
// per-call state and is safe for concurrent use.
type Runtime struct {
	arena  Arena
	roller Roller
	logger *zap.Logger
	limit  int
}

// NewRuntime creates a Runtime.
//
// Precondition: arena and logger must be non-nil. roller may be nil, in which
// case scripts calling roll() fail.
func NewRuntime(arena Arena, roller Roller, logger *zap.Logger, instLimit int) *Runtime {
	if arena == nil || logger == nil {
		panic("scripting: NewRuntime requires an arena and a logger")
	}
	return &Runtime{arena: arena, roller: roller, logger: logger, limit: instLimit}
}

// Binding describes who a Context runs for.
type Binding struct {
	// Owner is bound to the statblock global.
	Owner string
	Caps  Caps
	// UseID tags effects applied during an ability use.
	UseID string
	// Env becomes the state global. When nil the chunk's own state, if any,
	// is kept.
	Env map[string]any
	// Globals are set after the chunk has run, overriding its defaults.
	Globals map[string]any
}

// Context is one live evaluation of a script entry. A Context is confined to
// the goroutine that opened it and must be closed.
type Context struct {
	rt      *Runtime
	ctx     context.Context
	L       *lua.LState
	cancel  context.CancelFunc
	entry   Entry
	binding Binding
	table   *lua.LTable
	proxies map[string]*lua.LUserData
	proxyMT *lua.LTable
	valueMT *lua.LTable
	fault   error
}

// Open builds a fresh sandboxed state for entry: builders are registered,
// statblock is bound to the owner proxy, the chunk is run, and then the
// binding's globals and env are installed.
func (rt *Runtime) Open(ctx context.Context, entry Entry, b Binding) (*Context, error) {
	if !entry.Valid() {
		return nil, skerr.NotFoundf("script entry %s does not exist", entry)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	L, cancel := NewSandboxedState(ctx, rt.limit)
	c := &Context{rt: rt, ctx: ctx, L: L, cancel: cancel, entry: entry, binding: b}
	c.registerBuilders()
	L.SetGlobal("statblock", c.proxy(b.Owner))

	L.Push(L.NewFunctionFromProto(entry.Script.proto))
	if err := L.PCall(0, 0, nil); err != nil {
		c.Close()
		return nil, c.runtimeError("<load>", err)
	}
	for k, v := range b.Globals {
		L.SetGlobal(k, c.toLua(v))
	}
	if b.Env != nil {
		L.SetGlobal("state", c.toLua(b.Env))
	}

	c.table = L.G.Global
	if entry.Path != "" {
		for _, seg := range strings.Split(entry.Path, ".") {
			next, ok := c.table.RawGetString(seg).(*lua.LTable)
			if !ok {
				c.Close()
				return nil, skerr.Authoringf("script %q no longer defines entry %q", entry.Script.Name, entry.Path)
			}
			c.table = next
		}
	}
	return c, nil
}

// Close releases the Lua state.
func (c *Context) Close() {
	if c.L == nil {
		return
	}
	c.cancel()
	c.L.Close()
	c.L = nil
}

// Entry returns the entry c evaluates.
func (c *Context) Entry() Entry { return c.entry }

// Has reports whether the entry currently defines hook as a function.
func (c *Context) Has(hook string) bool {
	_, ok := c.table.RawGetString(hook).(*lua.LFunction)
	return ok
}

// Call invokes hook with args converted to Lua and returns every result
// converted back to Go. Calling an undefined hook is a not-found error.
func (c *Context) Call(hook string, args ...any) ([]any, error) {
	fn, ok := c.table.RawGetString(hook).(*lua.LFunction)
	if !ok {
		return nil, skerr.NotFoundf("script %s does not define %q", c.entry, hook)
	}
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = c.toLua(a)
	}
	base := c.L.GetTop()
	c.fault = nil
	if err := c.L.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet, Protect: true}, largs...); err != nil {
		err = c.runtimeError(hook, err)
		c.rt.logger.Debug("script hook failed",
			zap.String("script", c.entry.String()),
			zap.String("hook", hook),
			zap.String("owner", c.binding.Owner),
			zap.Error(err),
		)
		return nil, err
	}
	n := c.L.GetTop() - base
	out := make([]any, n)
	for i := 0; i < n; i++ {
		out[i] = FromLua(c.L.Get(base + 1 + i))
	}
	c.L.Pop(n)
	c.rt.logger.Debug("script hook",
		zap.String("script", c.entry.String()),
		zap.String("hook", hook),
		zap.String("owner", c.binding.Owner),
		zap.Int("results", n),
	)
	return out, nil
}

// CallTable is Call for hooks that receive one mutable table, such as an
// event context. The table's contents after the call are returned alongside
// the hook's results.
func (c *Context) CallTable(hook string, fields map[string]any) ([]any, map[string]any, error) {
	tbl, ok := c.toLua(fields).(*lua.LTable)
	if !ok {
		return nil, nil, skerr.InvalidArgumentf("fields did not convert to a table")
	}
	out, err := c.Call(hook, tbl)
	if err != nil {
		return nil, nil, err
	}
	after, _ := FromLua(tbl).(map[string]any)
	if after == nil {
		after = map[string]any{}
	}
	return out, after, nil
}

// Global reads a global after calls have run, converted to Go.
func (c *Context) Global(name string) any {
	return FromLua(c.L.GetGlobal(name))
}

// Env returns the state global as a map, or nil when it is not a table.
func (c *Context) Env() map[string]any {
	switch v := c.Global("state").(type) {
	case map[string]any:
		return v
	case []any:
		// An empty table converts as a map; a sequence is stored by index.
		out := make(map[string]any, len(v))
		for i, e := range v {
			out[fmt.Sprint(i+1)] = e
		}
		return out
	}
	return nil
}

func (c *Context) runtimeError(hook string, err error) error {
	where := fmt.Sprintf("script %s hook %q", c.entry, hook)
	if c.fault != nil {
		return skerr.Wrap(c.fault, where)
	}
	if errors.Is(c.ctx.Err(), context.Canceled) || errors.Is(c.ctx.Err(), context.DeadlineExceeded) {
		return skerr.WrapWithCode(c.ctx.Err(), skerr.CodeScriptRuntime, where+" was cancelled")
	}
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Error(), "context canceled") {
		return skerr.WrapWithCode(err, skerr.CodeScriptRuntime, where+" exceeded its instruction limit")
	}
	return skerr.WrapWithCode(err, skerr.CodeScriptRuntime, where)
}

// Invoke opens entry, calls hook when it is defined, reads back the env and
// closes the context. ran is false when the entry does not define hook.
func (rt *Runtime) Invoke(ctx context.Context, entry Entry, b Binding, hook string, args ...any) (out []any, env map[string]any, ran bool, err error) {
	if !entry.Has(hook) {
		return nil, nil, false, nil
	}
	c, err := rt.Open(ctx, entry, b)
	if err != nil {
		return nil, nil, false, err
	}
	defer c.Close()
	out, err = c.Call(hook, args...)
	if err != nil {
		return nil, nil, true, err
	}
	return out, c.Env(), true, nil
}
