package scripting_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/modifier"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

type fakeStatblock struct {
	mu      sync.Mutex
	id      string
	hp      int
	effects map[string]bool
	log     []string
}

func (f *fakeStatblock) ID() string                                        { return f.id }
func (f *fakeStatblock) Name() string                                      { return "Fake " + f.id }
func (f *fakeStatblock) Level() int                                        { return 3 }
func (f *fakeStatblock) Size() string                                      { return "medium" }
func (f *fakeStatblock) HP() int                                           { f.mu.Lock(); defer f.mu.Unlock(); return f.hp }
func (f *fakeStatblock) MaxHP(context.Context) (int, error)                { return 30, nil }
func (f *fakeStatblock) TempHP() int                                       { return 0 }
func (f *fakeStatblock) ArmorClass(context.Context) (int, error)           { return 15, nil }
func (f *fakeStatblock) Speed(context.Context) (int, error)                { return 30, nil }
func (f *fakeStatblock) ProficiencyBonus() int                             { return 2 }
func (f *fakeStatblock) HasEffect(name string) bool                        { return f.effects[name] }
func (f *fakeStatblock) IsConcentrating() bool                             { return false }
func (f *fakeStatblock) HasResource(kind string) bool                      { return kind == "action" }
func (f *fakeStatblock) DistanceTo(other string) (int, error)              { return 5, nil }
func (f *fakeStatblock) AbilityScore(context.Context, string) (int, error) { return 14, nil }
func (f *fakeStatblock) AbilityModifier(_ context.Context, ability string) (int, error) {
	if ability == "cha" {
		return 0, skerr.InvalidArgumentf("unknown ability %q", ability)
	}
	return 2, nil
}

func (f *fakeStatblock) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, s)
}

func (f *fakeStatblock) TakeDamage(_ context.Context, o scripting.Origin, dmg string) (bool, string, error) {
	f.record(fmt.Sprintf("damage %s from %s use %s", dmg, o.Owner, o.UseID))
	f.mu.Lock()
	f.hp -= 5
	f.mu.Unlock()
	return true, "took " + dmg, nil
}
func (f *fakeStatblock) Heal(_ context.Context, _ scripting.Origin, n int) (bool, string, error) {
	f.record(fmt.Sprintf("heal %d", n))
	return true, "healed", nil
}
func (f *fakeStatblock) AbilityCheck(context.Context, scripting.Origin, string, int) (bool, string, error) {
	return true, "passed", nil
}
func (f *fakeStatblock) SkillCheck(context.Context, scripting.Origin, string, int) (bool, string, error) {
	return false, "failed", nil
}
func (f *fakeStatblock) SavingThrow(context.Context, scripting.Origin, string, int) (bool, string, error) {
	return true, "saved", nil
}
func (f *fakeStatblock) Attack(_ context.Context, _ scripting.Origin, target, kind, dmg string) (bool, string, error) {
	f.record(fmt.Sprintf("attack %s %s %s", target, kind, dmg))
	return true, "hit", nil
}
func (f *fakeStatblock) AddEffect(_ context.Context, o scripting.Origin, name string, rounds int) (bool, string, error) {
	f.record(fmt.Sprintf("add %s %d %s", name, rounds, o.UseID))
	return true, "added", nil
}
func (f *fakeStatblock) RemoveEffect(context.Context, scripting.Origin, string) (bool, string, error) {
	return false, "absent", nil
}

type fakeArena map[string]*fakeStatblock

func (a fakeArena) Statblock(id string) (scripting.Statblock, bool) {
	sb, ok := a[id]
	if !ok {
		return nil, false
	}
	return sb, true
}

func newTestRuntime(t *testing.T, limit int) (*scripting.Runtime, fakeArena) {
	t.Helper()
	arena := fakeArena{
		"hero":  {id: "hero", hp: 30, effects: map[string]bool{"bless": true}},
		"ghoul": {id: "ghoul", hp: 22, effects: map[string]bool{}},
	}
	roller := dice.NewLoggedRoller(&dice.FixedSource{Values: []int{5}}, zap.NewNop())
	return scripting.NewRuntime(arena, roller, zap.NewNop(), limit), arena
}

func mustCompile(t *testing.T, name, src string) *scripting.Script {
	t.Helper()
	s, err := scripting.Compile(name, src)
	require.NoError(t, err)
	return s
}

func TestRuntime_CallReturnsResults(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "sum", `function run(a, b) return a + b, "done" end`)
	out, _, ran, err := rt.Invoke(context.Background(), s.Root(), scripting.Binding{Owner: "hero"}, "run", 3, 4)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []any{7.0, "done"}, out)
}

func TestRuntime_InvokeMissingHookDoesNotRun(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "empty", `x = 1`)
	out, env, ran, err := rt.Invoke(context.Background(), s.Root(), scripting.Binding{}, "run")
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Nil(t, out)
	assert.Nil(t, env)
}

func TestRuntime_ProxyIdentity(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "eq", `
		function same(a, b) return a == b, statblock == a end
	`)
	ctx := context.Background()
	c, err := rt.Open(ctx, s.Root(), scripting.Binding{Owner: "hero"})
	require.NoError(t, err)
	defer c.Close()

	out, err := c.Call("same", scripting.Ref{ID: "hero"}, scripting.Ref{ID: "hero"})
	require.NoError(t, err)
	assert.Equal(t, []any{true, true}, out)

	out, err = c.Call("same", scripting.Ref{ID: "hero"}, scripting.Ref{ID: "ghoul"})
	require.NoError(t, err)
	assert.Equal(t, []any{false, true}, out)
}

func TestRuntime_ProxyReturnsAsRef(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "who", `function pick(a) return a end`)
	c, err := rt.Open(context.Background(), s.Root(), scripting.Binding{Owner: "hero"})
	require.NoError(t, err)
	defer c.Close()
	out, err := c.Call("pick", scripting.Ref{ID: "ghoul"})
	require.NoError(t, err)
	assert.Equal(t, []any{scripting.Ref{ID: "ghoul"}}, out)
}

func TestRuntime_ReadOnlyCapsRejectMutation(t *testing.T) {
	rt, arena := newTestRuntime(t, 0)
	s := mustCompile(t, "sneaky", `
		function attack_roll(target)
			target:take_damage("5 fire")
			return RollResult{}
		end
	`)
	_, _, _, err := rt.Invoke(context.Background(), s.Root(), scripting.Binding{Owner: "hero", Caps: scripting.ReadOnly},
		"attack_roll", scripting.Ref{ID: "ghoul"})
	require.Error(t, err)
	assert.True(t, skerr.IsScriptRuntime(err))
	assert.Contains(t, err.Error(), `capability "take_damage" is not available`)
	assert.Contains(t, err.Error(), "read_only scripts may call ability_modifier, ability_score")
	assert.Empty(t, arena["ghoul"].log)
}

func TestRuntime_UnknownCapability(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "typo", `function run() return statblock:fly() end`)
	_, _, _, err := rt.Invoke(context.Background(), s.Root(), scripting.Binding{Owner: "hero", Caps: scripting.Full}, "run")
	require.Error(t, err)
	assert.True(t, skerr.IsScriptRuntime(err))
}

func TestCapabilities(t *testing.T) {
	ro := scripting.Capabilities(scripting.ReadOnly)
	full := scripting.Capabilities(scripting.Full)
	assert.True(t, slices.IsSorted(ro))
	assert.Contains(t, ro, "distance_to")
	assert.NotContains(t, ro, "take_damage")
	assert.Contains(t, full, "take_damage")
	assert.Subset(t, full, ro)
}

func TestRuntime_FullCapsDispatchToStatblock(t *testing.T) {
	rt, arena := newTestRuntime(t, 0)
	s := mustCompile(t, "smite", `
		function run(target)
			local ok, msg = target:take_damage("2d8 radiant")
			target:add_effect("frightened", Duration(1, "minutes"))
			return msg .. " " .. tostring(ok) .. " " .. target:hp()
		end
	`)
	out, _, _, err := rt.Invoke(context.Background(), s.Root(),
		scripting.Binding{Owner: "hero", Caps: scripting.Full, UseID: "use-1"}, "run", scripting.Ref{ID: "ghoul"})
	require.NoError(t, err)
	assert.Equal(t, []any{"took 2d8 radiant true 17"}, out)
	assert.Equal(t, []string{"damage 2d8 radiant from hero use use-1", "add frightened 10 use-1"}, arena["ghoul"].log)
}

func TestRuntime_QueriesReadLiveState(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "q", `
		function ask(other)
			return statblock:name(), statblock:armor_class(), statblock:has_effect("bless"),
				statblock:distance_to(other), statblock:ability_modifier("str"), tostring(other)
		end
	`)
	out, _, _, err := rt.Invoke(context.Background(), s.Root(), scripting.Binding{Owner: "hero"}, "ask", scripting.Ref{ID: "ghoul"})
	require.NoError(t, err)
	assert.Equal(t, []any{"Fake hero", 15.0, true, 5.0, 2.0, "Fake ghoul"}, out)
}

func TestRuntime_StatblockErrorKeepsCode(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "cha", `function run() return statblock:ability_modifier("cha") end`)
	_, _, _, err := rt.Invoke(context.Background(), s.Root(), scripting.Binding{Owner: "hero"}, "run")
	require.Error(t, err)
	assert.True(t, skerr.IsInvalidArgument(err))
}

func TestRuntime_MissingEntity(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "ghost", `function run(x) return x:hp() end`)
	_, _, _, err := rt.Invoke(context.Background(), s.Root(), scripting.Binding{Owner: "hero"}, "run", scripting.Ref{ID: "nobody"})
	require.Error(t, err)
	assert.True(t, skerr.IsNotFound(err))
}

func TestRuntime_EnvRoundTrip(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "counter", `
		state = {uses = 0}
		function run() state.uses = state.uses + 1; return state.uses end
	`)
	ctx := context.Background()
	out, env, _, err := rt.Invoke(ctx, s.Root(), scripting.Binding{Owner: "hero"}, "run")
	require.NoError(t, err)
	assert.Equal(t, []any{1.0}, out)

	out, env, _, err = rt.Invoke(ctx, s.Root(), scripting.Binding{Owner: "hero", Env: env}, "run")
	require.NoError(t, err)
	assert.Equal(t, []any{2.0}, out)
	assert.Equal(t, map[string]any{"uses": 2.0}, env)
}

func TestRuntime_GlobalsOverrideDefaults(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "charm", `
		source = nil
		modifications = {}
		function attack_roll(target)
			if target == source then return RollResult{auto_fail = true} end
			return RollResult{bonus = modifications.bonus or 0}
		end
	`)
	ctx := context.Background()
	b := scripting.Binding{Owner: "hero", Globals: map[string]any{"source": scripting.Ref{ID: "ghoul"}}}
	out, _, _, err := rt.Invoke(ctx, s.Root(), b, "attack_roll", scripting.Ref{ID: "ghoul"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, modifier.Roll{AutoFail: true}, out[0])

	b.Globals["modifications"] = map[string]any{"bonus": 3}
	out, _, _, err = rt.Invoke(ctx, s.Root(), b, "attack_roll", scripting.Ref{ID: "hero"})
	require.NoError(t, err)
	assert.Equal(t, []any{modifier.Roll{Bonus: 3}}, out)
}

func TestRuntime_CallTableReadsBackMutations(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "shield", `
		function on_reaction(event)
			event.bonus = (event.bonus or 0) + 5
			event.proceed = false
		end
	`)
	c, err := rt.Open(context.Background(), s.Root(), scripting.Binding{Owner: "hero"})
	require.NoError(t, err)
	defer c.Close()
	_, after, err := c.CallTable("on_reaction", map[string]any{"bonus": 1, "proceed": true})
	require.NoError(t, err)
	assert.Equal(t, 6.0, after["bonus"])
	assert.Equal(t, false, after["proceed"])
}

func TestRuntime_InstructionLimit(t *testing.T) {
	rt, _ := newTestRuntime(t, 500)
	s := mustCompile(t, "spin", `function run() while true do end end`)
	_, _, _, err := rt.Invoke(context.Background(), s.Root(), scripting.Binding{}, "run")
	require.Error(t, err)
	assert.True(t, skerr.IsScriptRuntime(err))
}

func TestRuntime_ScriptErrorIsRuntime(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "oops", `function run() error("boom") end`)
	_, _, _, err := rt.Invoke(context.Background(), s.Root(), scripting.Binding{}, "run")
	require.Error(t, err)
	assert.True(t, skerr.IsScriptRuntime(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestRuntime_RollBuilder(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "dice", `function run() return roll("2d6+1") end`)
	out, _, _, err := rt.Invoke(context.Background(), s.Root(), scripting.Binding{}, "run")
	require.NoError(t, err)
	assert.Equal(t, []any{13.0}, out)
}

func TestRuntime_NestedEntry(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "book", `
		book = { page = { run = function() return "nested" end } }
	`)
	e, ok := s.Entry("book.page")
	require.True(t, ok)
	out, _, _, err := rt.Invoke(context.Background(), e, scripting.Binding{}, "run")
	require.NoError(t, err)
	assert.Equal(t, []any{"nested"}, out)
}

func TestRuntime_ConcurrentContexts(t *testing.T) {
	rt, _ := newTestRuntime(t, 0)
	s := mustCompile(t, "par", `function run(n) return n * 2 end`)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, _, _, err := rt.Invoke(context.Background(), s.Root(), scripting.Binding{Owner: "hero"}, "run", i)
			assert.NoError(t, err)
			assert.Equal(t, []any{float64(i * 2)}, out)
		}(i)
	}
	wg.Wait()
}
