package combat

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/ability"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
	"github.com/cory-johannsen/skirmish/internal/game/event"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
	"github.com/cory-johannsen/skirmish/internal/game/modifier"
	"github.com/cory-johannsen/skirmish/internal/game/resource"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Positioner places entities and prices their movement. *grid.Grid
// satisfies it.
type Positioner interface {
	Place(id string, p grid.Point)
	Remove(id string)
	Position(id string) (grid.Point, bool)
	Distance(a, b string) (int, error)
	MovementCost(from, to grid.Point, size string) (int, bool)
}

// Config tunes encounters.
type Config struct {
	// InstructionLimit bounds every script call.
	InstructionLimit int
	// ReactionConcurrency bounds the reaction handlers running at once; 0 is
	// unbounded.
	ReactionConcurrency int
	// CriticalThreshold is the natural roll that scores a critical before
	// effects adjust it.
	CriticalThreshold int
}

// Deps are the collaborators shared by every encounter of an Engine.
type Deps struct {
	Dice    Dice
	Scripts *scripting.Manager
	Catalog effect.Catalog
	// Policy decides whether reaction abilities fire. Nil means always.
	Policy ReactionPolicy
	Logger *zap.Logger
	Config Config
}

// Encounter is one fight: its participants in initiative order, their
// positions, and the bus their reactions travel on.
//
// Actions are serialized by Perform. Handler methods assume the caller
// already holds that turn; they are re-entered freely by scripts and
// reactions during an action.
type Encounter struct {
	ID string

	deps   Deps
	logger *zap.Logger
	bus    *event.Bus
	rt     *scripting.Runtime
	grid   Positioner

	action sync.Mutex

	mu       sync.RWMutex
	entities map[string]*Entity
	order    []string
	turn     int
	round    int
	log      []RoundEvent
}

// NewEncounter creates an empty encounter on g.
//
// Precondition: deps.Dice, deps.Scripts and deps.Logger must be non-nil.
func NewEncounter(id string, g Positioner, deps Deps) *Encounter {
	if deps.Dice == nil || deps.Scripts == nil || deps.Logger == nil {
		panic("combat: NewEncounter requires dice, a script manager and a logger")
	}
	if g == nil {
		g = grid.New()
	}
	if deps.Policy == nil {
		deps.Policy = AlwaysReact
	}
	if deps.Config.CriticalThreshold == 0 {
		deps.Config.CriticalThreshold = modifier.DefaultCriticalThreshold
	}
	logger := deps.Logger.With(zap.String("encounter", id))
	enc := &Encounter{
		ID:       id,
		deps:     deps,
		logger:   logger,
		bus:      event.NewBus(logger, deps.Config.ReactionConcurrency),
		grid:     g,
		entities: make(map[string]*Entity),
	}
	enc.rt = scripting.NewRuntime(enc, exprRoller{d: deps.Dice}, logger, deps.Config.InstructionLimit)
	return enc
}

// Bus returns the encounter's reaction bus.
func (enc *Encounter) Bus() *event.Bus { return enc.bus }

// Grid returns the encounter's positioner.
func (enc *Encounter) Grid() Positioner { return enc.grid }

// Round returns the current round, 0 before the first turn.
func (enc *Encounter) Round() int {
	enc.mu.RLock()
	defer enc.mu.RUnlock()
	return enc.round
}

// entityConcentration lets an entity's ability index start concentration
// on the effect index built after it.
type entityConcentration struct {
	e *Entity
}

func (c entityConcentration) Start(ctx context.Context, useID string, rounds int) error {
	return c.e.Effects.Concentration().Start(ctx, useID, rounds)
}

// Join adds a participant at p with full hit points and resources and
// subscribes its reaction controller.
//
// Precondition: id must be non-empty.
// Postcondition: the entity is at the end of the turn order until
// RollInitiative sorts it.
func (enc *Encounter) Join(id string, stats Stats, p grid.Point) (*Entity, error) {
	if id == "" {
		return nil, skerr.InvalidArgumentf("entity id is empty")
	}
	if stats.Name == "" {
		stats.Name = id
	}
	if stats.Size == "" {
		stats.Size = "medium"
	}
	if stats.Level < 1 {
		stats.Level = 1
	}

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if _, ok := enc.entities[id]; ok {
		return nil, skerr.AlreadyExistsf("entity %q is already in encounter %s", id, enc.ID)
	}

	e := &Entity{
		ID:        id,
		Stats:     stats,
		Resources: resource.New(),
		hp:        stats.MaxHP,
		movement:  stats.Speed,
	}
	e.Abilities = ability.NewIndex(id, ability.Deps{
		Runtime:       enc.rt,
		Resources:     e.Resources,
		Concentration: entityConcentration{e: e},
		Compiler:      enc.deps.Scripts,
		Logger:        enc.logger,
	})
	e.Effects = effect.NewIndex(id, effect.Deps{
		Runtime:   enc.rt,
		Catalog:   enc.deps.Catalog,
		Abilities: e.Abilities,
		Compiler:  enc.deps.Scripts,
		Logger:    enc.logger,
		EndUse:    enc.endUse,
	})
	if err := enc.bus.Subscribe(&controller{enc: enc, id: id}); err != nil {
		return nil, err
	}
	enc.entities[id] = e
	enc.order = append(enc.order, id)
	enc.grid.Place(id, p)
	enc.logger.Info("entity joined", zap.String("entity", id), zap.String("name", stats.Name), zap.Stringer("at", p))
	return e, nil
}

// endUse removes the effects of an ability use from every participant.
func (enc *Encounter) endUse(ctx context.Context, useID string) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, e := range enc.Entities() {
		n, err := e.Effects.RemoveByUseID(ctx, useID)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Leave removes a participant.
func (enc *Encounter) Leave(id string) error {
	enc.mu.Lock()
	defer enc.mu.Unlock()
	if _, ok := enc.entities[id]; !ok {
		return skerr.NotFoundf("entity %q is not in encounter %s", id, enc.ID)
	}
	delete(enc.entities, id)
	for i, o := range enc.order {
		if o == id {
			enc.order = append(enc.order[:i], enc.order[i+1:]...)
			if i < enc.turn {
				enc.turn--
			}
			break
		}
	}
	if len(enc.order) > 0 {
		enc.turn %= len(enc.order)
	} else {
		enc.turn = 0
	}
	enc.grid.Remove(id)
	return enc.bus.Unsubscribe(id)
}

// Entity returns the participant with id.
func (enc *Encounter) Entity(id string) (*Entity, bool) {
	enc.mu.RLock()
	defer enc.mu.RUnlock()
	e, ok := enc.entities[id]
	return e, ok
}

// Entities returns the participants in turn order.
func (enc *Encounter) Entities() []*Entity {
	enc.mu.RLock()
	defer enc.mu.RUnlock()
	out := make([]*Entity, 0, len(enc.order))
	for _, id := range enc.order {
		out = append(out, enc.entities[id])
	}
	return out
}

func (enc *Encounter) lookup(id string) (*Entity, error) {
	e, ok := enc.Entity(id)
	if !ok {
		return nil, skerr.NotFoundf("entity %q is not in encounter %s", id, enc.ID)
	}
	return e, nil
}

// Statblock implements scripting.Arena.
func (enc *Encounter) Statblock(id string) (scripting.Statblock, bool) {
	e, ok := enc.Entity(id)
	if !ok {
		return nil, false
	}
	return &statblock{enc: enc, e: e}, true
}

// AddEffect applies the catalog condition name to id for duration rounds;
// 0 keeps the condition's own duration.
func (enc *Encounter) AddEffect(ctx context.Context, id, name string, duration int, source, useID string) (Outcome, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	if enc.deps.Catalog == nil {
		return Outcome{}, skerr.NotFoundf("no condition catalog is installed")
	}
	tmpl, ok := enc.deps.Catalog.Condition(name)
	if !ok {
		return Outcome{}, skerr.NotFoundf("unknown condition %q", name)
	}
	eff, err := effect.FromTemplate(tmpl)
	if err != nil {
		return Outcome{}, err
	}
	eff.Source = source
	eff.UseID = useID
	if err := e.Effects.Add(ctx, eff, duration); err != nil {
		return Outcome{}, err
	}
	return succeed(e.Stats.Name + " is " + name), nil
}

// RemoveEffect ends the effect name on id.
func (enc *Encounter) RemoveEffect(ctx context.Context, id, name string) (Outcome, error) {
	e, err := enc.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.Effects.Remove(ctx, name); err != nil {
		if skerr.IsNotFound(err) || skerr.IsInvalidArgument(err) {
			return fail(err.Error()), nil
		}
		return Outcome{}, err
	}
	return succeed(e.Stats.Name + " is no longer " + name), nil
}
