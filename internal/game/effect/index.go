package effect

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/ability"
	"github.com/cory-johannsen/skirmish/internal/game/timing"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// maxDerivedDepth bounds conditions that derive further conditions.
const maxDerivedDepth = 4

// maxHookDepth bounds effect hooks that query stats which run effect hooks.
const maxHookDepth = 8

// Catalog resolves condition names to templates.
type Catalog interface {
	Condition(name string) (Template, bool)
}

// Granter receives the abilities an effect grants. *ability.Index
// satisfies it.
type Granter interface {
	Grant(source string, abilities ...*ability.Ability) error
	Revoke(source string) int
}

// Compiler compiles scripts on import.
type Compiler interface {
	Compile(name, src string) (*scripting.Script, error)
}

// Deps are the collaborators an Index calls out to.
type Deps struct {
	Runtime   *scripting.Runtime
	Catalog   Catalog
	Abilities Granter
	Compiler  Compiler
	Logger    *zap.Logger
	// EndUse removes the effects of an ability use when concentration on it
	// ends. Nil removes them from this index only; an encounter installs
	// one that sweeps every participant.
	EndUse func(ctx context.Context, useID string) (int, error)
}

// Index owns the active effects of one entity in insertion order, derived
// conditions directly after their parent.
//
// Index is safe for concurrent use. No lock is held while a script runs.
type Index struct {
	owner  string
	deps   Deps
	logger *zap.Logger
	conc   *Concentration

	mu      sync.Mutex
	effects map[string]*Effect
	order   []string
}

// NewIndex creates an empty Index for owner.
//
// Precondition: deps.Runtime and deps.Logger must be non-nil.
func NewIndex(owner string, deps Deps) *Index {
	if deps.Runtime == nil || deps.Logger == nil {
		panic("effect: NewIndex requires a runtime and a logger")
	}
	x := &Index{
		owner:   owner,
		deps:    deps,
		logger:  deps.Logger.With(zap.String("owner", owner)),
		effects: make(map[string]*Effect),
	}
	x.conc = &Concentration{end: x.RemoveByUseID}
	if deps.EndUse != nil {
		x.conc.end = deps.EndUse
	}
	return x
}

// Concentration returns the owner's concentration tracker.
func (x *Index) Concentration() *Concentration { return x.conc }

// Add applies e for duration rounds; a zero duration keeps the duration the
// script declares. Declared conditions are instantiated from the catalog as
// derived children, abilities from get_abilities are granted, and on_apply
// runs once for the effect and for each child.
//
// Adding a name that is already active refreshes its duration to the longer
// of the two, records the new source and runs no hooks.
func (x *Index) Add(ctx context.Context, e *Effect, duration int) error {
	if duration != 0 {
		e.Remaining = duration
	}
	if e.Source != "" && !slices.Contains(e.Sources, e.Source) {
		e.Sources = append(e.Sources, e.Source)
	}

	x.mu.Lock()
	if existing, ok := x.effects[e.Name]; ok {
		if existing.Remaining != timing.Indefinite && (e.Remaining == timing.Indefinite || e.Remaining > existing.Remaining) {
			existing.Remaining = e.Remaining
		}
		for _, src := range e.Sources {
			if !slices.Contains(existing.Sources, src) {
				existing.Sources = append(existing.Sources, src)
			}
		}
		if existing.Source == "" {
			existing.Source = e.Source
		}
		x.mu.Unlock()
		x.logger.Debug("effect refreshed", zap.String("effect", e.Name), zap.Int("remaining", e.Remaining))
		return nil
	}
	x.mu.Unlock()

	added := []*Effect{e}
	derived, err := x.derive(e, 1)
	if err != nil {
		return err
	}
	added = append(added, derived...)

	x.mu.Lock()
	for _, a := range added {
		x.effects[a.Name] = a
		x.order = append(x.order, a.Name)
	}
	x.mu.Unlock()

	if err := x.grant(ctx, e); err != nil {
		x.mu.Lock()
		x.detachLocked(e.Name)
		x.mu.Unlock()
		return err
	}

	var errs []error
	for _, a := range added {
		if err := x.runHook(ctx, a, OnApply); err != nil {
			errs = append(errs, err)
		}
	}
	x.logger.Debug("effect added",
		zap.String("effect", e.Name),
		zap.Int("remaining", e.Remaining),
		zap.Strings("conditions", e.Conditions),
	)
	return errors.Join(errs...)
}

func (x *Index) derive(parent *Effect, depth int) ([]*Effect, error) {
	if len(parent.Conditions) == 0 {
		return nil, nil
	}
	if depth > maxDerivedDepth {
		return nil, skerr.Authoringf("effect %q derives conditions deeper than %d", parent.Name, maxDerivedDepth)
	}
	if x.deps.Catalog == nil {
		return nil, skerr.Authoringf("effect %q declares conditions but no catalog is installed", parent.Name)
	}
	var out []*Effect
	for _, name := range parent.Conditions {
		t, ok := x.deps.Catalog.Condition(name)
		if !ok {
			return nil, skerr.Authoringf("effect %q declares unknown condition %q", parent.Name, name)
		}
		child, err := FromTemplate(t)
		if err != nil {
			return nil, err
		}
		child.Name = derivedName(parent.Name, name)
		child.Parent = parent.Name
		child.Remaining = timing.Indefinite
		child.Source = parent.Source
		child.Sources = slices.Clone(parent.Sources)
		child.UseID = parent.UseID
		out = append(out, child)
		grand, err := x.derive(child, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, grand...)
	}
	return out, nil
}

func (x *Index) grant(ctx context.Context, e *Effect) error {
	if x.deps.Abilities == nil || !e.Entry.Has(HookGetAbilities) {
		return nil
	}
	out, _, _, err := x.deps.Runtime.Invoke(ctx, e.Entry, x.binding(e, e.Env, scripting.ReadOnly), HookGetAbilities)
	if err != nil {
		return skerr.Wrapf(err, "effect %q", e.Name)
	}
	if len(out) == 0 {
		return nil
	}
	var granted []*ability.Ability
	for _, name := range scripting.AsStrings(out[0]) {
		entry, ok := e.Entry.Script.Entry(name)
		if !ok {
			return skerr.Authoringf("effect %q grants %q, which its script does not define", e.Name, name)
		}
		a, err := ability.FromEntry(name, entry)
		if err != nil {
			return err
		}
		granted = append(granted, a)
	}
	return x.deps.Abilities.Grant(e.Name, granted...)
}

// Remove ends the named effect, its derived conditions with it. Derived
// conditions cannot be removed on their own.
func (x *Index) Remove(ctx context.Context, name string) error {
	x.mu.Lock()
	e, ok := x.effects[name]
	if !ok {
		x.mu.Unlock()
		return skerr.NotFoundf("effect %q is not active", name)
	}
	if e.Derived() {
		x.mu.Unlock()
		return skerr.InvalidArgumentf("condition %q is derived from %q and can only be removed with it", name, e.Parent).
			WithMeta("parent", e.Parent)
	}
	removed := x.detachLocked(name)
	x.mu.Unlock()
	return x.finish(ctx, removed, OnRemoval)
}

// RemoveByUseID removes every effect created by one ability use and reports
// how many were removed.
func (x *Index) RemoveByUseID(ctx context.Context, useID string) (int, error) {
	if useID == "" {
		return 0, nil
	}
	x.mu.Lock()
	var groups [][]*Effect
	for _, name := range slices.Clone(x.order) {
		if e, ok := x.effects[name]; ok && !e.Derived() && e.UseID == useID {
			groups = append(groups, x.detachLocked(name))
		}
	}
	x.mu.Unlock()
	var errs []error
	for _, g := range groups {
		errs = append(errs, x.finish(ctx, g, OnRemoval))
	}
	return len(groups), errors.Join(errs...)
}

// detachLocked removes name and every effect derived from it, returning
// the parent first.
func (x *Index) detachLocked(name string) []*Effect {
	var out []*Effect
	prefix := name + Separator
	x.order = slices.DeleteFunc(x.order, func(n string) bool {
		if n == name || strings.HasPrefix(n, prefix) {
			out = append(out, x.effects[n])
			delete(x.effects, n)
			return true
		}
		return false
	})
	return out
}

// finish runs the end-of-life hooks of a detached group: on_removal for
// the derived children, last to first, then hook for the parent.
func (x *Index) finish(ctx context.Context, group []*Effect, hook string) error {
	if len(group) == 0 {
		return nil
	}
	var errs []error
	for i := len(group) - 1; i >= 1; i-- {
		errs = append(errs, x.runHook(ctx, group[i], OnRemoval))
	}
	parent := group[0]
	errs = append(errs, x.runHook(ctx, parent, hook))
	if x.deps.Abilities != nil {
		x.deps.Abilities.Revoke(parent.Name)
	}
	x.logger.Debug("effect ended", zap.String("effect", parent.Name), zap.String("hook", hook), zap.Int("derived", len(group)-1))
	return errors.Join(errs...)
}

// Tick advances every timed effect by one round. Effects reaching zero run
// on_expire and are removed; every effect still active then runs on_tick.
// The concentration tracker ticks last.
func (x *Index) Tick(ctx context.Context) error {
	x.mu.Lock()
	var expired [][]*Effect
	for _, name := range slices.Clone(x.order) {
		e, ok := x.effects[name]
		if !ok || e.Derived() || e.Remaining == timing.Indefinite {
			continue
		}
		if e.Remaining > 0 {
			e.Remaining--
		}
		if e.Remaining <= 0 {
			expired = append(expired, x.detachLocked(name))
		}
	}
	x.mu.Unlock()

	var errs []error
	for _, g := range expired {
		errs = append(errs, x.finish(ctx, g, OnExpire))
	}
	for _, v := range x.snapshot(OnTick, false) {
		errs = append(errs, x.runHook(ctx, v.effect, OnTick))
	}
	errs = append(errs, x.conc.Tick(ctx))
	return errors.Join(errs...)
}

type view struct {
	effect *Effect
	env    map[string]any
}

// snapshot lists the effects defining hook in order. With distinct set, a
// condition reached through more than one parent is listed once.
func (x *Index) snapshot(hook string, distinct bool) []view {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []view
	seen := make(map[string]bool)
	for _, name := range x.order {
		e := x.effects[name]
		if distinct {
			base := e.BaseName()
			if seen[base] {
				continue
			}
			seen[base] = true
		}
		if e.Entry.Has(hook) {
			out = append(out, view{effect: e, env: e.Env})
		}
	}
	return out
}

type depthKey struct{}

func enter(ctx context.Context) (context.Context, error) {
	d, _ := ctx.Value(depthKey{}).(int)
	if d >= maxHookDepth {
		return nil, skerr.ScriptRuntimef("effect hooks nested deeper than %d", maxHookDepth)
	}
	return context.WithValue(ctx, depthKey{}, d+1), nil
}

// Results calls hook on every active effect that defines it, in insertion
// order, each in a fresh read-only context, and returns the first value each
// call produced. Effects that return nothing are skipped.
func (x *Index) Results(ctx context.Context, hook string, args ...any) ([]any, error) {
	ctx, err := enter(ctx)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, v := range x.snapshot(hook, true) {
		res, _, _, err := x.deps.Runtime.Invoke(ctx, v.effect.Entry, x.binding(v.effect, v.env, scripting.ReadOnly), hook, args...)
		if err != nil {
			return nil, skerr.Wrapf(err, "effect %q", v.effect.Name)
		}
		if len(res) > 0 && res[0] != nil {
			out = append(out, res[0])
		}
	}
	return out, nil
}

// React passes fields through the reaction hook for trigger of every effect
// that defines one, each seeing the previous one's edits, and returns the
// final fields with the number of effects that ran.
func (x *Index) React(ctx context.Context, trigger string, fields map[string]any) (map[string]any, int, error) {
	hook := ReactionHook(trigger)
	ran := 0
	for _, v := range x.snapshot(hook, true) {
		c, err := x.deps.Runtime.Open(ctx, v.effect.Entry, x.binding(v.effect, v.env, scripting.Full))
		if err != nil {
			return fields, ran, err
		}
		_, after, err := c.CallTable(hook, fields)
		env := c.Env()
		c.Close()
		if err != nil {
			return fields, ran, skerr.Wrapf(err, "effect %q", v.effect.Name)
		}
		x.setEnv(v.effect, env)
		fields = after
		ran++
	}
	return fields, ran, nil
}

func (x *Index) runHook(ctx context.Context, e *Effect, hook string) error {
	if !e.Entry.Has(hook) {
		return nil
	}
	x.mu.Lock()
	env := e.Env
	x.mu.Unlock()
	_, after, _, err := x.deps.Runtime.Invoke(ctx, e.Entry, x.binding(e, env, scripting.Full), hook)
	if err != nil {
		return skerr.Wrapf(err, "effect %q %s", e.Name, hook)
	}
	x.setEnv(e, after)
	return nil
}

func (x *Index) binding(e *Effect, env map[string]any, caps scripting.Caps) scripting.Binding {
	globals := map[string]any{"effect_name": e.Name, "remaining": e.Remaining}
	x.mu.Lock()
	if e.Source != "" {
		globals["source"] = scripting.Ref{ID: e.Source}
	}
	sources := make([]any, 0, len(e.Sources))
	for _, src := range e.Sources {
		sources = append(sources, scripting.Ref{ID: src})
	}
	x.mu.Unlock()
	globals["sources"] = sources
	return scripting.Binding{Owner: x.owner, Caps: caps, UseID: e.UseID, Env: env, Globals: globals}
}

func (x *Index) setEnv(e *Effect, env map[string]any) {
	if env == nil {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	e.Env = env
}

// Has reports whether name is active, either as an effect name or as the
// base name of a derived condition.
func (x *Index) Has(name string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.effects[name]; ok {
		return true
	}
	for _, e := range x.effects {
		if e.BaseName() == name {
			return true
		}
	}
	return false
}

// Get returns a copy of the named effect.
func (x *Index) Get(name string) (Effect, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.effects[name]
	if !ok {
		return Effect{}, false
	}
	out := *e
	out.Sources = slices.Clone(e.Sources)
	return out, true
}

// Names lists the active effect names in order.
func (x *Index) Names() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return slices.Clone(x.order)
}

// Restricted reports whether any active effect forbids spending the named
// turn resource.
func (x *Index) Restricted(kind string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range x.effects {
		if e.Restricts(kind) {
			return true
		}
	}
	return false
}
