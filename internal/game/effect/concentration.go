package effect

import (
	"context"
	"sync"

	"github.com/cory-johannsen/skirmish/internal/game/timing"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Concentration is an entity's single concentration slot. Ending
// concentration removes every effect created by the concentrated use.
//
// Only the owner's handlers mutate it; other entities may read it.
type Concentration struct {
	end func(ctx context.Context, useID string) (int, error)

	mu        sync.Mutex
	useID     string
	remaining int
}

// Start concentrates on useID for rounds rounds, ending any prior
// concentration first.
func (c *Concentration) Start(ctx context.Context, useID string, rounds int) error {
	if err := c.End(ctx); err != nil {
		return err
	}
	if rounds == 0 {
		rounds = timing.Indefinite
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.useID, c.remaining = useID, rounds
	return nil
}

// End breaks concentration. It is a no-op when not concentrating.
func (c *Concentration) End(ctx context.Context) error {
	c.mu.Lock()
	useID := c.useID
	c.useID, c.remaining = "", 0
	c.mu.Unlock()
	if useID == "" || c.end == nil {
		return nil
	}
	_, err := c.end(ctx, useID)
	return err
}

// Tick counts down one round and ends concentration when time runs out.
func (c *Concentration) Tick(ctx context.Context) error {
	c.mu.Lock()
	if c.useID == "" || c.remaining == timing.Indefinite {
		c.mu.Unlock()
		return nil
	}
	c.remaining--
	done := c.remaining <= 0
	c.mu.Unlock()
	if done {
		return c.End(ctx)
	}
	return nil
}

// Active returns the concentrated use and its remaining rounds.
func (c *Concentration) Active() (useID string, remaining int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.useID, c.remaining, c.useID != ""
}

// IsConcentrating reports whether the slot is taken.
func (c *Concentration) IsConcentrating() bool {
	_, _, ok := c.Active()
	return ok
}

// Export returns the slot as a plain tree, nil when empty.
func (c *Concentration) Export() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.useID == "" {
		return nil
	}
	return map[string]any{"use_id": c.useID, "remaining": c.remaining}
}

// Import restores an exported slot without running any removal.
func (c *Concentration) Import(data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.useID, _ = data["use_id"].(string)
	c.remaining, _ = scripting.AsInt(data["remaining"])
}
