// Package ability holds the abilities an entity can use: simple abilities,
// composites of named sub-abilities, modifier abilities that chain onto a
// base ability, and reactions bound to an event trigger.
package ability

import (
	"fmt"
	"maps"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/event"
	"github.com/cory-johannsen/skirmish/internal/game/resource"
	"github.com/cory-johannsen/skirmish/internal/game/timing"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Kind is the structural variant of an ability.
type Kind int

const (
	Simple Kind = iota
	Composite
	Sub
	Reaction
)

func (k Kind) String() string {
	switch k {
	case Composite:
		return "composite"
	case Sub:
		return "sub"
	case Reaction:
		return "reaction"
	}
	return "simple"
}

// Ability is one named ability. Composite abilities own their children;
// every other kind has exactly one of a run or a modify entry point.
type Ability struct {
	Name          string
	Kind          Kind
	Entry         scripting.Entry
	UseTime       timing.UseTime
	Concentration bool
	Duration      timing.Duration
	Modifies      []string
	Trigger       event.Trigger
	GrantedBy     string
	Env           map[string]any

	children map[string]*Ability
	order    []string
	// declaredUseTime is false when the script relies on the default.
	declaredUseTime bool
}

// FromScript builds the ability a script defines, named after the script.
func FromScript(s *scripting.Script) (*Ability, error) {
	return FromEntry(s.Name, s.Root())
}

// FromEntry builds an ability from a compiled entry. An entry with a run or
// modify hook is a simple, sub or reaction ability; an entry that only nests
// further entries is a composite.
func FromEntry(name string, e scripting.Entry) (*Ability, error) {
	return fromEntry(name, e, e.Path != "")
}

func fromEntry(name string, e scripting.Entry, nested bool) (*Ability, error) {
	a := &Ability{Name: name, Entry: e, UseTime: timing.UseTime{Kind: timing.Action}}
	if st, ok := e.Value("state"); ok {
		if m, ok := st.(map[string]any); ok {
			a.Env = maps.Clone(m)
		}
	}

	switch {
	case e.Has("run") || e.Has("modify"):
		if err := a.readMeta(e); err != nil {
			return nil, err
		}
		if nested && a.Kind == Simple {
			a.Kind = Sub
		}
		if e.Has("modify") && len(a.Modifies) == 0 {
			return nil, skerr.Authoringf("ability %q defines modify but lists no abilities it modifies", name)
		}
		return a, nil

	case len(e.Children()) > 0:
		a.Kind = Composite
		a.children = make(map[string]*Ability)
		for _, ce := range e.Children() {
			child, err := fromEntry(ce.Name(), ce, true)
			if err != nil {
				return nil, skerr.Wrapf(err, "composite %q", name)
			}
			a.children[child.Name] = child
			a.order = append(a.order, child.Name)
		}
		return a, nil
	}
	return nil, skerr.Authoringf("ability %q defines neither run nor modify", name)
}

func (a *Ability) readMeta(e scripting.Entry) error {
	if v, ok := e.Value("trigger"); ok {
		s, _ := v.(string)
		t := event.Trigger(s)
		if !t.Valid() {
			return skerr.Authoringf("ability %q has unknown trigger %v", a.Name, v)
		}
		a.Kind = Reaction
		a.Trigger = t
		a.UseTime = timing.UseTime{Kind: timing.Reaction}
	}
	if v, ok := e.Value("use_time"); ok {
		a.declaredUseTime = true
		switch ut := v.(type) {
		case timing.UseTime:
			a.UseTime = ut
		case string:
			parsed, err := timing.ParseUseTime(ut, 1)
			if err != nil {
				return skerr.WrapWithCode(err, skerr.CodeAuthoring, fmt.Sprintf("ability %q", a.Name))
			}
			a.UseTime = parsed
		default:
			return skerr.Authoringf("ability %q has invalid use_time %v", a.Name, v)
		}
	}
	if v, ok := e.Value("concentration"); ok {
		a.Concentration = scripting.Truthy(v)
	}
	if v, ok := e.Value("duration"); ok {
		switch d := v.(type) {
		case timing.Duration:
			a.Duration = d
		default:
			n, ok := scripting.AsInt(v)
			if !ok {
				return skerr.Authoringf("ability %q has invalid duration %v", a.Name, v)
			}
			a.Duration = timing.Duration{Amount: n, Unit: timing.Rounds}
		}
	} else if a.Concentration {
		a.Duration = timing.Duration{Amount: 1, Unit: timing.Minutes}
	}
	if v, ok := e.Value("modifies"); ok {
		a.Modifies = scripting.AsStrings(v)
	}
	return nil
}

// IsModifier reports whether a chains onto other abilities instead of
// running on its own.
func (a *Ability) IsModifier() bool {
	return a.Kind != Composite && a.Entry.Has("modify")
}

// Cost returns the turn resource one use consumes. Modifiers that declare no
// use_time ride along with the ability they modify for free.
func (a *Ability) Cost() (resource.Kind, bool) {
	if a.IsModifier() && !a.declaredUseTime {
		return "", false
	}
	return resource.Kind(a.UseTime.Resource()), true
}

// Modifiable reports whether a lists name among the abilities it modifies.
// Both the full dotted path and the last segment match.
func (a *Ability) Modifiable(path string) bool {
	for _, m := range a.Modifies {
		if m == path || m == lastSegment(path) {
			return true
		}
	}
	return false
}

// Params returns the parameter names of the entry point.
func (a *Ability) Params() []string {
	for _, hook := range []string{"run", "modify"} {
		if h, ok := a.Entry.Hook(hook); ok {
			return h.Params
		}
	}
	return nil
}

// Child returns the named direct child of a composite.
func (a *Ability) Child(name string) (*Ability, bool) {
	c, ok := a.children[name]
	return c, ok
}

// Children returns the direct children of a composite in declaration order.
func (a *Ability) Children() []*Ability {
	out := make([]*Ability, 0, len(a.order))
	for _, n := range a.order {
		out = append(out, a.children[n])
	}
	return out
}

func (a *Ability) removeChild(name string) bool {
	if _, ok := a.children[name]; !ok {
		return false
	}
	delete(a.children, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return true
}

// walk visits a and its descendants depth-first with their dotted paths.
func (a *Ability) walk(prefix string, fn func(path string, a *Ability)) {
	path := joinName(prefix, a.Name)
	fn(path, a)
	for _, c := range a.Children() {
		c.walk(path, fn)
	}
}

func joinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return path
}
