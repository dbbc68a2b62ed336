package ability

import (
	"fmt"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Export returns the index as a plain key-value tree. Abilities granted by
// effects are left out; the effect index grants them again on import.
func (x *Index) Export() map[string]any {
	x.mu.Lock()
	defer x.mu.Unlock()
	abilities := make([]any, 0, len(x.order))
	for _, name := range x.order {
		a := x.roots[name]
		if a.GrantedBy != "" {
			continue
		}
		envs := map[string]any{}
		a.walk("", func(path string, d *Ability) {
			if d.Env != nil {
				envs[relative(name, path)] = scripting.Encode(d.Env)
			}
		})
		abilities = append(abilities, map[string]any{
			"name":   name,
			"script": a.Entry.Script.Name,
			"source": a.Entry.Script.Source,
			"entry":  a.Entry.Path,
			"env":    envs,
		})
	}
	out := map[string]any{"abilities": abilities, "active_use": nil}
	if x.active != nil {
		mods := make([]any, len(x.active.Modifiers))
		for i, m := range x.active.Modifiers {
			mods[i] = map[string]any{"name": m.Name, "args": scripting.Encode(m.Args)}
		}
		out["active_use"] = map[string]any{
			"name":      x.active.Name,
			"remaining": x.active.Remaining,
			"use_id":    x.active.UseID,
			"args":      scripting.Encode(x.active.Args),
			"modifiers": mods,
		}
	}
	return out
}

// Import replaces the index's own abilities and active use with an exported
// tree, recompiling each script. Granted abilities are kept.
func (x *Index) Import(data map[string]any) error {
	if x.deps.Compiler == nil {
		return skerr.InvalidArgumentf("ability index for %q has no compiler to import with", x.owner)
	}
	list, _ := data["abilities"].([]any)
	imported := make([]*Ability, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("ability: abilities[%d] is %T, not a map", i, item)
		}
		a, err := x.importAbility(m)
		if err != nil {
			return fmt.Errorf("ability: abilities[%d]: %w", i, err)
		}
		imported = append(imported, a)
	}

	var active *ActiveUse
	if m, ok := data["active_use"].(map[string]any); ok {
		active = &ActiveUse{}
		active.Name, _ = m["name"].(string)
		active.UseID, _ = m["use_id"].(string)
		active.Remaining, _ = scripting.AsInt(m["remaining"])
		if args, _ := scripting.Decode(m["args"]).([]any); len(args) > 0 {
			active.Args = args
		}
		mods, _ := m["modifiers"].([]any)
		for _, raw := range mods {
			mm, _ := raw.(map[string]any)
			name, _ := mm["name"].(string)
			args, _ := scripting.Decode(mm["args"]).([]any)
			if len(args) == 0 {
				args = nil
			}
			active.Modifiers = append(active.Modifiers, ModifierCall{Name: name, Args: args})
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	granted := make(map[string]*Ability)
	var grantedOrder []string
	for _, name := range x.order {
		if a := x.roots[name]; a.GrantedBy != "" {
			granted[name] = a
			grantedOrder = append(grantedOrder, name)
		}
	}
	x.roots = granted
	x.order = grantedOrder
	for _, a := range imported {
		if err := x.addLocked(a); err != nil {
			return err
		}
	}
	x.active = active
	return nil
}

func (x *Index) importAbility(m map[string]any) (*Ability, error) {
	name, _ := m["name"].(string)
	scriptName, _ := m["script"].(string)
	src, _ := m["source"].(string)
	entryPath, _ := m["entry"].(string)
	s, err := x.deps.Compiler.Compile(scriptName, src)
	if err != nil {
		return nil, err
	}
	e, ok := s.Entry(entryPath)
	if !ok {
		return nil, skerr.NotFoundf("script %q has no entry %q", scriptName, entryPath)
	}
	a, err := FromEntry(name, e)
	if err != nil {
		return nil, err
	}
	envs, _ := m["env"].(map[string]any)
	a.walk("", func(path string, d *Ability) {
		if env := scripting.DecodeMap(envs[relative(a.Name, path)]); env != nil {
			d.Env = env
		}
	})
	return a, nil
}

// relative strips the root name from a walked path; the root itself is "".
func relative(root, path string) string {
	if path == root {
		return ""
	}
	return path[len(root)+1:]
}
