package combat

import (
	"context"
	"encoding/json"
	"fmt"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Export returns the encounter as a plain tree of JSON-friendly values.
// It waits for any action in progress.
func (enc *Encounter) Export() map[string]any {
	enc.action.Lock()
	defer enc.action.Unlock()

	entities := enc.Entities()
	list := make([]any, 0, len(entities))
	for _, e := range entities {
		pos, _ := enc.grid.Position(e.ID)
		e.mu.Lock()
		m := map[string]any{
			"id":         e.ID,
			"stats":      encodeStats(e.Stats),
			"hp":         e.hp,
			"temp_hp":    e.tempHP,
			"movement":   e.movement,
			"initiative": e.initiative,
			"position":   map[string]any{"x": pos.X, "y": pos.Y},
		}
		e.mu.Unlock()
		m["resources"] = e.Resources.Export()
		m["abilities"] = e.Abilities.Export()
		m["effects"] = e.Effects.Export()
		list = append(list, m)
	}

	enc.mu.RLock()
	defer enc.mu.RUnlock()
	return map[string]any{
		"id":           enc.ID,
		"round":        enc.round,
		"current_turn": enc.turn,
		"entities":     list,
	}
}

// Import restores an exported encounter into this empty one. Entities
// keep the exported turn order; scripts are recompiled through the
// engine's script manager.
func (enc *Encounter) Import(ctx context.Context, data map[string]any) error {
	enc.action.Lock()
	defer enc.action.Unlock()
	if len(enc.Entities()) > 0 {
		return skerr.InvalidArgumentf("encounter %s is not empty", enc.ID)
	}

	raw, _ := data["entities"].([]any)
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return skerr.InvalidArgumentf("entity %d is not an object", i)
		}
		if err := enc.importEntity(m); err != nil {
			return fmt.Errorf("combat: import entity %d: %w", i, err)
		}
	}

	round, _ := scripting.AsInt(data["round"])
	turn, _ := scripting.AsInt(data["current_turn"])
	enc.mu.Lock()
	defer enc.mu.Unlock()
	enc.round = round
	if turn < 0 || (len(enc.order) > 0 && turn >= len(enc.order)) {
		return skerr.InvalidArgumentf("current_turn %d is out of range", turn)
	}
	enc.turn = turn
	return nil
}

func (enc *Encounter) importEntity(m map[string]any) error {
	id, _ := m["id"].(string)
	stats, err := decodeStats(m["stats"])
	if err != nil {
		return err
	}
	pm, _ := m["position"].(map[string]any)
	x, _ := scripting.AsInt(pm["x"])
	y, _ := scripting.AsInt(pm["y"])
	e, err := enc.Join(id, stats, grid.Point{X: x, Y: y})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.hp, _ = scripting.AsInt(m["hp"])
	e.tempHP, _ = scripting.AsInt(m["temp_hp"])
	e.movement, _ = scripting.AsInt(m["movement"])
	e.initiative, _ = scripting.AsInt(m["initiative"])
	e.mu.Unlock()

	if r, ok := m["resources"].(map[string]any); ok {
		if err := e.Resources.Import(r); err != nil {
			return err
		}
	}
	// Abilities first: importing effects re-grants their abilities.
	if a, ok := m["abilities"].(map[string]any); ok {
		if err := e.Abilities.Import(a); err != nil {
			return err
		}
	}
	if ef, ok := m["effects"].(map[string]any); ok {
		if err := e.Effects.Import(ef); err != nil {
			return err
		}
	}
	return nil
}

func encodeStats(s Stats) map[string]any {
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func decodeStats(v any) (Stats, error) {
	var s Stats
	b, err := json.Marshal(v)
	if err != nil {
		return s, fmt.Errorf("combat: encode stats: %w", err)
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, skerr.WrapWithCode(err, skerr.CodeInvalidArgument, "stats")
	}
	return s, nil
}
