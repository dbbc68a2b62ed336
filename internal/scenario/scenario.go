// Package scenario loads scripted encounters from YAML and plays them
// through a combat engine.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/ability"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// AbilitySpec names a Lua ability script, given inline or as a file
// relative to the scenario.
type AbilitySpec struct {
	Name   string `yaml:"name"`
	File   string `yaml:"file"`
	Source string `yaml:"source"`
}

// EffectSpec applies a catalog condition at setup.
type EffectSpec struct {
	Name     string `yaml:"name"`
	Duration int    `yaml:"duration"`
	Source   string `yaml:"source"`
}

// EntitySpec is one participant.
type EntitySpec struct {
	ID        string       `yaml:"id"`
	Stats     combat.Stats `yaml:"stats"`
	Position  grid.Point   `yaml:"position"`
	TempHP    int          `yaml:"temp_hp"`
	Abilities []string     `yaml:"abilities"`
	Effects   []EffectSpec `yaml:"effects"`
}

// ModifierSpec queues a modifier ability onto an ability action.
type ModifierSpec struct {
	Name string `yaml:"name"`
	Args []any  `yaml:"args"`
}

// ActionSpec is one scripted step. String arguments starting with "@" are
// entity references.
type ActionSpec struct {
	Type      string         `yaml:"type"`
	Actor     string         `yaml:"actor"`
	Target    string         `yaml:"target"`
	Kind      string         `yaml:"kind"`
	Damage    string         `yaml:"damage"`
	Name      string         `yaml:"name"`
	Args      []any          `yaml:"args"`
	Modifiers []ModifierSpec `yaml:"modifiers"`
	DC        int            `yaml:"dc"`
	Amount    int            `yaml:"amount"`
	Duration  int            `yaml:"duration"`
	To        grid.Point     `yaml:"to"`
}

// Scenario is a complete scripted encounter.
type Scenario struct {
	Encounter  string        `yaml:"encounter"`
	Seed       uint64        `yaml:"seed"`
	Initiative bool          `yaml:"initiative"`
	Blocked    []grid.Point  `yaml:"blocked"`
	Difficult  []grid.Point  `yaml:"difficult"`
	Abilities  []AbilitySpec `yaml:"abilities"`
	Entities   []EntitySpec  `yaml:"entities"`
	Actions    []ActionSpec  `yaml:"actions"`

	// dir resolves ability files.
	dir string
}

// Load reads and validates the scenario at path.
//
// Postcondition: Returns a valid Scenario or a non-nil error.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: reading %s: %w", path, err)
	}
	sc, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	sc.dir = filepath.Dir(path)
	return sc, nil
}

// Parse decodes and validates a scenario document. Unknown keys are
// rejected.
func Parse(b []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, skerr.WrapWithCode(err, skerr.CodeInvalidArgument, "decoding scenario")
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks that ids are unique and that every action names a known
// type and a known actor.
func (sc *Scenario) Validate() error {
	var errs []string
	if sc.Encounter == "" {
		errs = append(errs, "encounter must not be empty")
	}
	ids := make(map[string]bool, len(sc.Entities))
	for i, e := range sc.Entities {
		switch {
		case e.ID == "":
			errs = append(errs, fmt.Sprintf("entity %d has no id", i))
		case ids[e.ID]:
			errs = append(errs, fmt.Sprintf("entity %q is declared twice", e.ID))
		}
		ids[e.ID] = true
	}
	for i, a := range sc.Abilities {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("ability %d has no name", i))
		}
		if (a.File == "") == (a.Source == "") {
			errs = append(errs, fmt.Sprintf("ability %q needs exactly one of file or source", a.Name))
		}
	}
	for i, a := range sc.Actions {
		t, err := combat.ParseActionType(a.Type)
		if err != nil {
			errs = append(errs, fmt.Sprintf("action %d: %v", i, err))
			continue
		}
		if t == combat.ActionStartTurn || t == combat.ActionEndTurn {
			continue
		}
		if !ids[a.Actor] {
			errs = append(errs, fmt.Sprintf("action %d: unknown actor %q", i, a.Actor))
		}
		if a.Target != "" && !ids[a.Target] {
			errs = append(errs, fmt.Sprintf("action %d: unknown target %q", i, a.Target))
		}
	}
	if len(errs) > 0 {
		return skerr.InvalidArgumentf("invalid scenario: %s", strings.Join(errs, "; "))
	}
	return nil
}

// source returns the Lua text of a.
func (sc *Scenario) source(a AbilitySpec) (string, error) {
	if a.Source != "" {
		return a.Source, nil
	}
	p := a.File
	if !filepath.IsAbs(p) {
		p = filepath.Join(sc.dir, p)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("scenario: reading ability %q: %w", a.Name, err)
	}
	return string(b), nil
}

// Action converts a step into an engine action.
func (a ActionSpec) Action() (combat.Action, error) {
	t, err := combat.ParseActionType(a.Type)
	if err != nil {
		return combat.Action{}, err
	}
	mods := make([]ability.ModifierCall, 0, len(a.Modifiers))
	for _, m := range a.Modifiers {
		mods = append(mods, ability.ModifierCall{Name: m.Name, Args: args(m.Args)})
	}
	return combat.Action{
		Type:      t,
		Actor:     a.Actor,
		Target:    a.Target,
		Kind:      a.Kind,
		Damage:    a.Damage,
		Name:      a.Name,
		Args:      args(a.Args),
		Modifiers: mods,
		DC:        a.DC,
		Amount:    a.Amount,
		Duration:  a.Duration,
		To:        a.To,
	}, nil
}

// args turns "@id" strings into entity references and YAML integers into
// the float64 numbers scripts see.
func args(in []any) []any {
	if len(in) == 0 {
		return nil
	}
	out := make([]any, len(in))
	for i, v := range in {
		switch tv := v.(type) {
		case string:
			if id, ok := strings.CutPrefix(tv, "@"); ok && id != "" {
				out[i] = scripting.Ref{ID: id}
				continue
			}
			out[i] = tv
		case int:
			out[i] = float64(tv)
		default:
			out[i] = v
		}
	}
	return out
}
