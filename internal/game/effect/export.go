package effect

import (
	"context"
	"fmt"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Export returns the index and its concentration tracker as a plain
// key-value tree.
func (x *Index) Export() map[string]any {
	x.mu.Lock()
	effects := make([]any, 0, len(x.order))
	for _, name := range x.order {
		e := x.effects[name]
		effects = append(effects, map[string]any{
			"name":             e.Name,
			"script":           e.Entry.Script.Name,
			"script_source":    e.Entry.Script.Source,
			"remaining":        e.Remaining,
			"applied_by":       e.Source,
			"sources":          toAny(e.Sources),
			"use_id":           e.UseID,
			"parent":           e.Parent,
			"conditions":       toAny(e.Conditions),
			"restrict_actions": toAny(e.RestrictActions),
			"env":              scripting.Encode(e.Env),
		})
	}
	x.mu.Unlock()
	return map[string]any{
		"effects":               effects,
		"concentration_tracker": x.conc.Export(),
	}
}

// Import replaces the index with an exported tree. No lifecycle hooks run;
// abilities granted by the imported effects are granted again.
func (x *Index) Import(data map[string]any) error {
	if x.deps.Compiler == nil {
		return skerr.InvalidArgumentf("effect index for %q has no compiler to import with", x.owner)
	}
	list, _ := data["effects"].([]any)
	imported := make([]*Effect, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("effect: effects[%d] is %T, not a map", i, item)
		}
		e, err := x.importEffect(m)
		if err != nil {
			return fmt.Errorf("effect: effects[%d]: %w", i, err)
		}
		imported = append(imported, e)
	}

	x.mu.Lock()
	var previous []string
	for _, name := range x.order {
		if !x.effects[name].Derived() {
			previous = append(previous, name)
		}
	}
	x.effects = make(map[string]*Effect, len(imported))
	x.order = x.order[:0]
	for _, e := range imported {
		x.effects[e.Name] = e
		x.order = append(x.order, e.Name)
	}
	x.mu.Unlock()

	if x.deps.Abilities != nil {
		for _, name := range previous {
			x.deps.Abilities.Revoke(name)
		}
	}
	for _, e := range imported {
		if e.Derived() {
			continue
		}
		if err := x.grant(context.Background(), e); err != nil {
			return err
		}
	}
	conc, _ := data["concentration_tracker"].(map[string]any)
	x.conc.Import(conc)
	return nil
}

func (x *Index) importEffect(m map[string]any) (*Effect, error) {
	scriptName, _ := m["script"].(string)
	src, _ := m["script_source"].(string)
	s, err := x.deps.Compiler.Compile(scriptName, src)
	if err != nil {
		return nil, err
	}
	e := &Effect{Entry: s.Root()}
	e.Name, _ = m["name"].(string)
	e.Remaining, _ = scripting.AsInt(m["remaining"])
	e.Source, _ = m["applied_by"].(string)
	e.Sources = scripting.AsStrings(m["sources"])
	e.UseID, _ = m["use_id"].(string)
	e.Parent, _ = m["parent"].(string)
	e.Conditions = scripting.AsStrings(m["conditions"])
	e.RestrictActions = scripting.AsStrings(m["restrict_actions"])
	e.Env = scripting.DecodeMap(m["env"])
	if e.Name == "" {
		return nil, skerr.InvalidArgumentf("exported effect has no name")
	}
	return e, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
