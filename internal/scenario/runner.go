package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/ability"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Store persists encounter snapshots. The Postgres repository and the
// Redis cache both satisfy it.
type Store interface {
	Save(ctx context.Context, id string, data map[string]any) error
}

// EventLog records resolved actions.
type EventLog interface {
	AppendEvents(ctx context.Context, id string, events []combat.RoundEvent) error
}

// Report is the result of one run.
type Report struct {
	EncounterID string
	Events      []combat.RoundEvent
	Snapshot    map[string]any
}

// Runner plays scenarios through an engine.
type Runner struct {
	engine  *combat.Engine
	scripts *scripting.Manager
	logger  *zap.Logger
	stores  []Store
	events  EventLog
}

// NewRunner creates a Runner. Snapshots go to every store after each
// completed turn and at the end of the run.
//
// Precondition: engine, scripts and logger must be non-nil.
func NewRunner(engine *combat.Engine, scripts *scripting.Manager, logger *zap.Logger, stores ...Store) *Runner {
	if engine == nil || scripts == nil || logger == nil {
		panic("scenario: NewRunner requires an engine, a script manager and a logger")
	}
	return &Runner{engine: engine, scripts: scripts, logger: logger, stores: stores}
}

// WithEventLog makes the runner append the action log to l at the end of
// each run.
func (r *Runner) WithEventLog(l EventLog) *Runner {
	r.events = l
	return r
}

// Setup starts the scenario's encounter: the grid, the abilities, the
// entities and their starting effects. Initiative is rolled when asked.
func (r *Runner) Setup(ctx context.Context, sc *Scenario) (*combat.Encounter, error) {
	for _, a := range sc.Abilities {
		src, err := sc.source(a)
		if err != nil {
			return nil, err
		}
		if _, err := r.scripts.Compile(a.Name, src); err != nil {
			return nil, fmt.Errorf("scenario: ability %q: %w", a.Name, err)
		}
	}

	g := grid.New()
	g.Block(sc.Blocked...)
	g.Difficult(sc.Difficult...)
	enc, err := r.engine.StartWithID(sc.Encounter, g)
	if err != nil {
		return nil, err
	}

	for _, spec := range sc.Entities {
		e, err := enc.Join(spec.ID, spec.Stats, spec.Position)
		if err != nil {
			return nil, err
		}
		if spec.TempHP > 0 {
			e.SetTempHP(spec.TempHP)
		}
		for _, name := range spec.Abilities {
			s, ok := r.scripts.Get(name)
			if !ok {
				return nil, fmt.Errorf("scenario: entity %q: ability script %q is not loaded", spec.ID, name)
			}
			a, err := ability.FromScript(s)
			if err != nil {
				return nil, err
			}
			if err := e.Abilities.Add(a); err != nil {
				return nil, err
			}
		}
		for _, ef := range spec.Effects {
			out, err := enc.AddEffect(ctx, spec.ID, ef.Name, ef.Duration, ef.Source, "")
			if err != nil {
				return nil, err
			}
			if !out.Success {
				return nil, fmt.Errorf("scenario: entity %q: %s", spec.ID, out.Message)
			}
		}
	}

	if sc.Initiative {
		if err := enc.RollInitiative(ctx); err != nil {
			return nil, err
		}
	}
	r.logger.Info("scenario ready",
		zap.String("encounter", enc.ID),
		zap.Int("entities", len(sc.Entities)),
		zap.Int("actions", len(sc.Actions)),
	)
	return enc, nil
}

// Run sets the scenario up and plays every action, writing each event's
// narrative to w.
func (r *Runner) Run(ctx context.Context, sc *Scenario, w io.Writer) (*Report, error) {
	enc, err := r.Setup(ctx, sc)
	if err != nil {
		return nil, err
	}
	return r.Play(ctx, enc, sc.Actions, w)
}

// Play performs actions on an existing encounter, as when resuming from a
// snapshot. A script failure stops the run; refused actions do not.
func (r *Runner) Play(ctx context.Context, enc *combat.Encounter, actions []ActionSpec, w io.Writer) (*Report, error) {
	start := len(enc.Log())
	for i, spec := range actions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := spec.Action()
		if err != nil {
			return nil, err
		}
		ev, err := enc.Perform(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("scenario: action %d (%s): %w", i, spec.Type, err)
		}
		if _, err := fmt.Fprintln(w, ev.Narrative()); err != nil {
			return nil, err
		}
		if a.Type == combat.ActionEndTurn {
			if err := r.persist(ctx, enc.ID, enc.Export()); err != nil {
				return nil, err
			}
		}
	}

	rep := &Report{
		EncounterID: enc.ID,
		Events:      enc.Log()[start:],
		Snapshot:    enc.Export(),
	}
	if err := r.persist(ctx, enc.ID, rep.Snapshot); err != nil {
		return nil, err
	}
	if r.events != nil {
		if err := r.events.AppendEvents(ctx, enc.ID, rep.Events); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

// Restore starts encounter id from a snapshot.
func (r *Runner) Restore(ctx context.Context, id string, data map[string]any) (*combat.Encounter, error) {
	enc, err := r.engine.StartWithID(id, nil)
	if err != nil {
		return nil, err
	}
	if err := enc.Import(ctx, data); err != nil {
		_ = r.engine.End(id)
		return nil, err
	}
	r.logger.Info("encounter restored", zap.String("encounter", id), zap.Int("round", enc.Round()))
	return enc, nil
}

func (r *Runner) persist(ctx context.Context, id string, data map[string]any) error {
	var errs []error
	for _, s := range r.stores {
		if err := s.Save(ctx, id, data); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("scenario: persisting %s: %w", id, err)
	}
	r.logger.Debug("snapshot persisted", zap.String("encounter", id), zap.Int("stores", len(r.stores)))
	return nil
}
