package ability

import (
	"context"
	"iter"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/event"
	"github.com/cory-johannsen/skirmish/internal/game/resource"
	"github.com/cory-johannsen/skirmish/internal/game/timing"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Control flag prefixes for re-invoking an ability that is being prepared.
const (
	ContinuePrefix = "^continue."
	NewUsePrefix   = "^new_use."
)

// Spender consumes turn resources as a group.
type Spender interface {
	Spend(kinds ...resource.Kind) error
}

// Concentrator starts concentration on an ability use.
type Concentrator interface {
	Start(ctx context.Context, useID string, rounds int) error
}

// Compiler compiles scripts on import. *scripting.Manager satisfies it.
type Compiler interface {
	Compile(name, src string) (*scripting.Script, error)
}

// Deps are the collaborators an Index calls out to.
type Deps struct {
	Runtime       *scripting.Runtime
	Resources     Spender
	Concentration Concentrator
	Compiler      Compiler
	Logger        *zap.Logger
}

// ActiveUse is the single ability an entity is preparing.
type ActiveUse struct {
	Name      string
	Remaining int
	Args      []any
	Modifiers []ModifierCall
	UseID     string
}

// Header is one addressable entry in an ability listing.
type Header struct {
	Name    string
	Params  []string
	UseTime timing.UseTime
	Kind    Kind
}

// Index owns every ability of one entity: its own abilities in insertion
// order plus those granted by effects.
//
// Index is safe for concurrent use. No lock is held while a script runs.
type Index struct {
	owner  string
	deps   Deps
	logger *zap.Logger

	mu     sync.Mutex
	roots  map[string]*Ability
	order  []string
	active *ActiveUse
}

// NewIndex creates an empty Index for owner.
//
// Precondition: deps.Runtime and deps.Logger must be non-nil.
func NewIndex(owner string, deps Deps) *Index {
	if deps.Runtime == nil || deps.Logger == nil {
		panic("ability: NewIndex requires a runtime and a logger")
	}
	return &Index{
		owner:  owner,
		deps:   deps,
		logger: deps.Logger.With(zap.String("owner", owner)),
		roots:  make(map[string]*Ability),
	}
}

// Owner returns the id of the entity the index belongs to.
func (x *Index) Owner() string { return x.owner }

// Add registers a top-level ability.
func (x *Index) Add(a *Ability) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.addLocked(a)
}

func (x *Index) addLocked(a *Ability) error {
	if a == nil || a.Name == "" {
		return skerr.InvalidArgumentf("ability must have a name")
	}
	if strings.ContainsAny(a.Name, ".^") {
		return skerr.Authoringf("ability name %q may not contain '.' or '^'", a.Name)
	}
	if _, ok := x.roots[a.Name]; ok {
		return skerr.AlreadyExistsf("ability %q already exists", a.Name)
	}
	x.roots[a.Name] = a
	x.order = append(x.order, a.Name)
	return nil
}

// Remove deletes the ability at path. Removing a sub-ability detaches it
// from its composite parent.
func (x *Index) Remove(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.removeLocked(path) {
		return skerr.NotFoundf("ability %q does not exist", path)
	}
	return nil
}

func (x *Index) removeLocked(path string) bool {
	segs := strings.Split(path, ".")
	if len(segs) == 1 {
		if _, ok := x.roots[path]; !ok {
			return false
		}
		delete(x.roots, path)
		x.order = slices.DeleteFunc(x.order, func(n string) bool { return n == path })
	} else {
		parent, ok := x.lookupLocked(strings.Join(segs[:len(segs)-1], "."))
		if !ok || !parent.removeChild(segs[len(segs)-1]) {
			return false
		}
	}
	if x.active != nil && (x.active.Name == path || strings.HasPrefix(x.active.Name, path+".")) {
		x.active = nil
	}
	return true
}

// Lookup resolves a dotted path through nested composites.
func (x *Index) Lookup(path string) (*Ability, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lookupLocked(path)
}

func (x *Index) lookupLocked(path string) (*Ability, bool) {
	segs := strings.Split(path, ".")
	a, ok := x.roots[segs[0]]
	for _, seg := range segs[1:] {
		if !ok {
			return nil, false
		}
		a, ok = a.Child(seg)
	}
	return a, ok
}

// Active returns a copy of the use being prepared, if any.
func (x *Index) Active() (ActiveUse, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.active == nil {
		return ActiveUse{}, false
	}
	return *x.active, true
}

// Headers lists every runnable ability as a dotted path, composites
// flattened. A nil filter accepts everything. The ability being prepared is
// listed under both control prefixes instead of its bare name.
//
// The listing is computed when iteration starts; ranging over the same
// sequence twice yields the same headers if nothing changed in between.
func (x *Index) Headers(filter func(Header) bool) iter.Seq[Header] {
	return func(yield func(Header) bool) {
		for _, h := range x.headers() {
			if filter != nil && !filter(h) {
				continue
			}
			if !yield(h) {
				return
			}
		}
	}
}

func (x *Index) headers() []Header {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []Header
	for _, name := range x.order {
		x.roots[name].walk("", func(path string, a *Ability) {
			if a.Kind == Composite {
				return
			}
			h := Header{Name: path, Params: a.Params(), UseTime: a.UseTime, Kind: a.Kind}
			if x.active != nil && x.active.Name == path {
				cont, fresh := h, h
				cont.Name = ContinuePrefix + path
				fresh.Name = NewUsePrefix + path
				out = append(out, cont, fresh)
				return
			}
			out = append(out, h)
		})
	}
	return out
}

// Grant adds abilities on behalf of an effect. They are removed together by
// Revoke(source).
func (x *Index) Grant(source string, abilities ...*Ability) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, a := range abilities {
		if _, ok := x.roots[a.Name]; ok {
			return skerr.AlreadyExistsf("ability %q granted by %q already exists", a.Name, source)
		}
	}
	for _, a := range abilities {
		a.GrantedBy = source
		if err := x.addLocked(a); err != nil {
			return err
		}
	}
	x.logger.Debug("abilities granted", zap.String("source", source), zap.Int("count", len(abilities)))
	return nil
}

// Revoke removes every ability granted by source and reports how many were
// removed.
func (x *Index) Revoke(source string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	var names []string
	for _, name := range x.order {
		if x.roots[name].GrantedBy == source {
			names = append(names, name)
		}
	}
	for _, name := range names {
		x.removeLocked(name)
	}
	if len(names) > 0 {
		x.logger.Debug("abilities revoked", zap.String("source", source), zap.Strings("abilities", names))
	}
	return len(names)
}

// Reactions lists the paths of reaction abilities bound to trigger.
func (x *Index) Reactions(trigger event.Trigger) []string {
	var out []string
	for h := range x.Headers(func(h Header) bool { return h.Kind == Reaction }) {
		if a, ok := x.Lookup(h.Name); ok && a.Trigger == trigger {
			out = append(out, h.Name)
		}
	}
	return out
}

func (x *Index) setEnv(a *Ability, env map[string]any) {
	if env == nil {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	a.Env = env
}

func (x *Index) env(a *Ability) map[string]any {
	x.mu.Lock()
	defer x.mu.Unlock()
	return a.Env
}
