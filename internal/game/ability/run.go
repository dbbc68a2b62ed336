package ability

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/resource"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// ModifierCall queues a modifier ability onto a Run.
type ModifierCall struct {
	Name string
	Args []any
}

// Request asks an Index to run an ability. Name may carry a control prefix.
type Request struct {
	Name      string
	Args      []any
	Modifiers []ModifierCall
}

// Result is the outcome of Run. A refused use (validation or a missing
// resource) is an unsuccessful Result, not an error.
type Result struct {
	Success   bool
	Message   string
	UseID     string
	Deferred  bool
	Remaining int
}

type control int

const (
	bare control = iota
	continueUse
	newUse
)

func parseName(name string) (string, control) {
	if p, ok := strings.CutPrefix(name, ContinuePrefix); ok {
		return p, continueUse
	}
	if p, ok := strings.CutPrefix(name, NewUsePrefix); ok {
		return p, newUse
	}
	return name, bare
}

type queued struct {
	path    string
	ability *Ability
	args    []any
}

// Run resolves req.Name, validates the ability and every queued modifier,
// spends their resources as one group and then executes, or starts a
// preparation when the ability takes more than one turn.
func (x *Index) Run(ctx context.Context, req Request) (Result, error) {
	path, flag := parseName(req.Name)
	base, ok := x.Lookup(path)
	if !ok {
		return Result{}, skerr.NotFoundf("ability %q does not exist", path)
	}
	switch {
	case base.Kind == Composite:
		return Result{}, skerr.Authoringf("ability %q is a composite; name one of its sub-abilities", path)
	case base.IsModifier():
		return Result{}, skerr.Authoringf("modifier ability %q cannot be run on its own", path)
	case flag != bare && base.UseTime.Special():
		return Result{}, skerr.Authoringf("ability %q has use time %s and takes no control flag", path, base.UseTime)
	}

	if flag == continueUse {
		return x.continueRun(ctx, path, base, req)
	}

	x.mu.Lock()
	preparing := x.active != nil && x.active.Name == path
	x.mu.Unlock()
	if preparing && flag == bare {
		return Result{}, skerr.Authoringf("ability %q is being prepared; use %s%s or %s%s", path, ContinuePrefix, path, NewUsePrefix, path)
	}

	mods, err := x.resolveModifiers(path, req.Modifiers)
	if err != nil {
		return Result{}, err
	}
	if res, ok, err := x.validate(ctx, path, base, req.Args, mods); err != nil || !ok {
		return res, err
	}

	kinds := make([]resource.Kind, 0, len(mods)+1)
	if k, ok := base.Cost(); ok {
		kinds = append(kinds, k)
	}
	for _, m := range mods {
		if k, ok := m.ability.Cost(); ok {
			kinds = append(kinds, k)
		}
	}
	if res, ok, err := x.spend(kinds...); err != nil || !ok {
		return res, err
	}

	useID := uuid.NewString()
	if turns := base.UseTime.Turns(); turns > 1 {
		var calls []ModifierCall
		for _, m := range mods {
			calls = append(calls, ModifierCall{Name: m.path, Args: m.args})
		}
		x.mu.Lock()
		if x.active != nil {
			x.logger.Debug("preparation abandoned", zap.String("ability", x.active.Name), zap.Int("remaining", x.active.Remaining))
		}
		x.active = &ActiveUse{Name: path, Remaining: turns, Args: req.Args, Modifiers: calls, UseID: useID}
		x.mu.Unlock()
		x.logger.Debug("preparation started", zap.String("ability", path), zap.Int("turns", turns))
		return Result{
			Success:   true,
			Message:   fmt.Sprintf("%s: preparing, %d turns remaining", path, turns),
			UseID:     useID,
			Deferred:  true,
			Remaining: turns,
		}, nil
	}
	return x.execute(ctx, path, base, req.Args, mods, useID)
}

// continueRun advances the preparation of path by one turn and executes it
// once the counter reaches one. Validation is not repeated.
func (x *Index) continueRun(ctx context.Context, path string, base *Ability, req Request) (Result, error) {
	if len(req.Modifiers) > 0 {
		return Result{}, skerr.Authoringf("modifiers cannot be queued while continuing %q", path)
	}
	x.mu.Lock()
	matches := x.active != nil && x.active.Name == path
	x.mu.Unlock()
	if !matches {
		return Result{}, skerr.Authoringf("ability %q is not being prepared", path)
	}

	k, _ := base.Cost()
	if res, ok, err := x.spend(k); err != nil || !ok {
		return res, err
	}

	x.mu.Lock()
	if x.active == nil || x.active.Name != path {
		x.mu.Unlock()
		return Result{}, skerr.Authoringf("ability %q is not being prepared", path)
	}
	x.active.Remaining--
	use := *x.active
	if use.Remaining <= 1 {
		x.active = nil
	}
	x.mu.Unlock()

	if use.Remaining > 1 {
		return Result{
			Success:   true,
			Message:   fmt.Sprintf("%s: preparing, %d turns remaining", path, use.Remaining),
			UseID:     use.UseID,
			Deferred:  true,
			Remaining: use.Remaining,
		}, nil
	}
	mods, err := x.resolveModifiers(path, use.Modifiers)
	if err != nil {
		return Result{}, err
	}
	return x.execute(ctx, path, base, use.Args, mods, use.UseID)
}

func (x *Index) resolveModifiers(path string, calls []ModifierCall) ([]queued, error) {
	out := make([]queued, 0, len(calls))
	for _, call := range calls {
		name, _ := parseName(call.Name)
		m, ok := x.Lookup(name)
		if !ok {
			return nil, skerr.NotFoundf("modifier %q does not exist", name)
		}
		if !m.IsModifier() {
			return nil, skerr.Authoringf("ability %q is not a modifier", name)
		}
		if !m.Modifiable(path) {
			return nil, skerr.Authoringf("modifier %q cannot modify %q", name, path)
		}
		out = append(out, queued{path: name, ability: m, args: call.Args})
	}
	return out, nil
}

// validate runs the base validate hook and then each modifier's in queue
// order. The first refusal wins. Validation runs read-only and its env
// changes are discarded.
func (x *Index) validate(ctx context.Context, path string, base *Ability, args []any, mods []queued) (Result, bool, error) {
	ok, reason, err := x.check(ctx, path, path, base, args)
	if err != nil || !ok {
		return Result{Message: reason}, false, err
	}
	for _, m := range mods {
		ok, reason, err := x.check(ctx, path, m.path, m.ability, m.args)
		if err != nil || !ok {
			return Result{Message: reason}, false, err
		}
	}
	return Result{}, true, nil
}

func (x *Index) check(ctx context.Context, target, path string, a *Ability, args []any) (bool, string, error) {
	b := scripting.Binding{
		Owner:   x.owner,
		Caps:    scripting.ReadOnly,
		Env:     x.env(a),
		Globals: map[string]any{"target_ability": target},
	}
	out, _, ran, err := x.deps.Runtime.Invoke(ctx, a.Entry, b, "validate", args...)
	if err != nil {
		return false, "", err
	}
	if !ran || len(out) == 0 || scripting.Truthy(out[0]) {
		return true, "", nil
	}
	reason := fmt.Sprintf("%s cannot be used now", path)
	if len(out) > 1 {
		if s, ok := out[1].(string); ok && s != "" {
			reason = s
		}
	}
	x.logger.Debug("ability refused", zap.String("ability", path), zap.String("reason", reason))
	return false, reason, nil
}

// spend consumes kinds as one group. Running out is reported as an
// unsuccessful Result naming the resource.
func (x *Index) spend(kinds ...resource.Kind) (Result, bool, error) {
	if x.deps.Resources == nil || len(kinds) == 0 {
		return Result{}, true, nil
	}
	if err := x.deps.Resources.Spend(kinds...); err != nil {
		if skerr.IsResourceExhausted(err) {
			return Result{Message: err.Error()}, false, nil
		}
		return Result{}, false, err
	}
	return Result{}, true, nil
}

func (x *Index) binding(a *Ability, useID, target string, modifications map[string]any) scripting.Binding {
	mods := maps.Clone(modifications)
	if mods == nil {
		mods = map[string]any{}
	}
	return scripting.Binding{
		Owner: x.owner,
		Caps:  scripting.Full,
		UseID: useID,
		Env:   x.env(a),
		Globals: map[string]any{
			"target_ability": target,
			"modifications":  mods,
		},
	}
}

// execute runs every queued modifier's modify hook and then the base run
// hook. A modifier returns (message, overrides); the overrides are visible
// to later modifiers and to the base through the modifications global.
// Concentration starts only once the scripts have run without error, so a
// failed use leaves any prior concentration in place.
func (x *Index) execute(ctx context.Context, path string, base *Ability, args []any, mods []queued, useID string) (Result, error) {
	modifications := map[string]any{}
	var msgs []string
	for _, m := range mods {
		out, env, _, err := x.deps.Runtime.Invoke(ctx, m.ability.Entry, x.binding(m.ability, useID, path, modifications), "modify", m.args...)
		if err != nil {
			return Result{UseID: useID}, skerr.Wrapf(err, "modifier %q", m.path)
		}
		x.setEnv(m.ability, env)
		if len(out) > 0 {
			if s, ok := out[0].(string); ok && s != "" {
				msgs = append(msgs, s)
			}
		}
		if len(out) > 1 {
			if o, ok := out[1].(map[string]any); ok {
				maps.Copy(modifications, o)
			}
		}
	}

	out, env, _, err := x.deps.Runtime.Invoke(ctx, base.Entry, x.binding(base, useID, path, modifications), "run", args...)
	if err != nil {
		return Result{UseID: useID}, err
	}
	x.setEnv(base, env)

	if base.Concentration && x.deps.Concentration != nil {
		if err := x.deps.Concentration.Start(ctx, useID, base.Duration.Rounds()); err != nil {
			return Result{UseID: useID}, err
		}
	}

	success := true
	if len(out) > 0 {
		switch v := out[0].(type) {
		case bool:
			success = v
			if len(out) > 1 {
				if s, ok := out[1].(string); ok && s != "" {
					msgs = append(msgs, s)
				}
			}
		case string:
			if v != "" {
				msgs = append(msgs, v)
			}
		}
	}
	x.logger.Debug("ability executed",
		zap.String("ability", path),
		zap.String("use_id", useID),
		zap.Int("modifiers", len(mods)),
		zap.Bool("success", success),
	)
	return Result{Success: success, Message: strings.Join(msgs, "\n"), UseID: useID}, nil
}

// React runs the reaction ability at path with an event's fields as its
// only argument and returns the edited fields. The reaction resource is
// spent first; when it is gone the reaction does not run and ran is false.
func (x *Index) React(ctx context.Context, path string, fields map[string]any) (after map[string]any, ran bool, err error) {
	a, ok := x.Lookup(path)
	if !ok {
		return nil, false, skerr.NotFoundf("ability %q does not exist", path)
	}
	if a.Kind != Reaction {
		return nil, false, skerr.InvalidArgumentf("ability %q is not a reaction", path)
	}
	k, _ := a.Cost()
	if _, ok, err := x.spend(k); err != nil || !ok {
		return nil, false, err
	}

	c, err := x.deps.Runtime.Open(ctx, a.Entry, x.binding(a, uuid.NewString(), path, nil))
	if err != nil {
		return nil, false, err
	}
	defer c.Close()
	_, after, err = c.CallTable("run", fields)
	if err != nil {
		return nil, true, err
	}
	x.setEnv(a, c.Env())
	x.logger.Debug("reaction used", zap.String("ability", path))
	return after, true, nil
}
