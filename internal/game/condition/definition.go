// Package condition loads the catalog of standard conditions. Each
// condition is a YAML definition whose rules are an inline Lua script.
package condition

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/skirmish/internal/game/effect"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

//go:embed catalog/*.yaml
var builtin embed.FS

// Standard lists the built-in condition ids.
var Standard = []string{
	"blinded", "charmed", "deafened", "frightened", "grappled", "incapacitated", "invisible",
	"paralyzed", "poisoned", "prone", "restrained", "stunned", "unconscious",
}

// ConditionDef is the static definition of a condition, loaded from YAML.
type ConditionDef struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	RestrictActions []string `yaml:"restrict_actions"`
	Lua             string   `yaml:"lua"`

	script *scripting.Script
}

// Script returns the compiled rules, nil until the definition is loaded.
func (d *ConditionDef) Script() *scripting.Script { return d.script }

// Template returns the effect template for d.
func (d *ConditionDef) Template() effect.Template {
	return effect.Template{Name: d.ID, Script: d.script, RestrictActions: d.RestrictActions}
}

// Registry holds all known ConditionDefs keyed by ID.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*ConditionDef
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*ConditionDef)}
}

// Register adds def to the registry, overwriting any existing entry with the same ID.
// Precondition: def must not be nil and def.ID must not be empty.
func (r *Registry) Register(def *ConditionDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
}

// Get returns the ConditionDef for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*ConditionDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[id]
	return d, ok
}

// Condition resolves id to an effect template.
func (r *Registry) Condition(id string) (effect.Template, bool) {
	d, ok := r.Get(id)
	if !ok || d.script == nil {
		return effect.Template{}, false
	}
	return d.Template(), true
}

// New builds a fresh effect for condition id.
func (r *Registry) New(id string) (*effect.Effect, error) {
	t, ok := r.Condition(id)
	if !ok {
		return nil, fmt.Errorf("condition: unknown condition %q", id)
	}
	return effect.FromTemplate(t)
}

// All returns a snapshot slice of all registered ConditionDefs sorted by ID.
func (r *Registry) All() []*ConditionDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ConditionDef, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadFS reads every *.yaml file in dir of fsys, compiles its Lua through
// mgr and registers it, replacing definitions with the same ID. It returns
// the number of definitions loaded.
func (r *Registry) LoadFS(fsys fs.FS, dir string, mgr *scripting.Manager) (int, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("reading condition dir %q: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		p := path.Join(dir, e.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return n, fmt.Errorf("reading %q: %w", p, err)
		}
		var def ConditionDef
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return n, fmt.Errorf("parsing %q: %w", p, err)
		}
		if def.ID == "" {
			return n, fmt.Errorf("parsing %q: missing id", p)
		}
		def.script, err = mgr.Compile("condition/"+def.ID, def.Lua)
		if err != nil {
			return n, fmt.Errorf("compiling %q: %w", p, err)
		}
		r.Register(&def)
		n++
	}
	return n, nil
}

// LoadDirectory reads every *.yaml file in dir into the registry.
// Precondition: dir must be a readable directory.
func (r *Registry) LoadDirectory(dir string, mgr *scripting.Manager) (int, error) {
	return r.LoadFS(os.DirFS(dir), ".", mgr)
}

// Load returns a Registry holding the built-in catalog, overridden by the
// definitions in overrideDir when it is not empty.
func Load(mgr *scripting.Manager, overrideDir string) (*Registry, error) {
	reg := NewRegistry()
	if _, err := reg.LoadFS(builtin, "catalog", mgr); err != nil {
		return nil, err
	}
	if overrideDir != "" {
		if _, err := reg.LoadDirectory(overrideDir, mgr); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
