package combat

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
)

// Engine manages all active encounters, keyed by encounter ID. Each
// encounter has its own bus and lock, so no encounter blocks another.
// All methods are safe for concurrent use.
type Engine struct {
	deps Deps

	mu         sync.RWMutex
	encounters map[string]*Encounter
}

// NewEngine creates an empty Engine whose encounters share deps.
//
// Precondition: deps.Dice, deps.Scripts and deps.Logger must be non-nil.
// Postcondition: Returns a non-nil Engine ready for use.
func NewEngine(deps Deps) *Engine {
	if deps.Dice == nil || deps.Scripts == nil || deps.Logger == nil {
		panic("combat: NewEngine requires dice, a script manager and a logger")
	}
	return &Engine{deps: deps, encounters: make(map[string]*Encounter)}
}

// Start begins a new encounter on g with a fresh id. A nil g gets an empty
// grid.
func (en *Engine) Start(g Positioner) *Encounter {
	enc, _ := en.StartWithID(uuid.NewString(), g)
	return enc
}

// StartWithID begins a new encounter with a caller-chosen id, as when
// restoring a snapshot.
//
// Postcondition: Returns the new Encounter or an error if id is already active.
func (en *Engine) StartWithID(id string, g Positioner) (*Encounter, error) {
	en.mu.Lock()
	defer en.mu.Unlock()
	if _, exists := en.encounters[id]; exists {
		return nil, skerr.AlreadyExistsf("encounter %q is already active", id)
	}
	enc := NewEncounter(id, g, en.deps)
	en.encounters[id] = enc
	en.deps.Logger.Info("encounter started", zap.String("encounter", id))
	return enc, nil
}

// Get returns the active encounter with id.
//
// Postcondition: Returns (encounter, true) if found, or (nil, false) otherwise.
func (en *Engine) Get(id string) (*Encounter, bool) {
	en.mu.RLock()
	defer en.mu.RUnlock()
	enc, ok := en.encounters[id]
	return enc, ok
}

// End removes the encounter with id.
func (en *Engine) End(id string) error {
	en.mu.Lock()
	defer en.mu.Unlock()
	if _, ok := en.encounters[id]; !ok {
		return skerr.NotFoundf("encounter %q is not active", id)
	}
	delete(en.encounters, id)
	en.deps.Logger.Info("encounter ended", zap.String("encounter", id))
	return nil
}

// IDs lists the active encounters in lexical order.
func (en *Engine) IDs() []string {
	en.mu.RLock()
	defer en.mu.RUnlock()
	out := make([]string, 0, len(en.encounters))
	for id := range en.encounters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
