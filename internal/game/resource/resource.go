// Package resource implements the per-turn action economy.
package resource

import (
	"fmt"
	"sync"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
)

// Kind names one turn resource.
type Kind string

const (
	Action          Kind = "action"
	BonusAction     Kind = "bonus_action"
	Reaction        Kind = "reaction"
	FreeInteraction Kind = "free_interaction"
)

// Kinds lists every resource in a stable order.
var Kinds = []Kind{Action, BonusAction, Reaction, FreeInteraction}

// ParseKind accepts the canonical names.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", skerr.InvalidArgumentf("unknown turn resource %q", s)
}

// TurnResources is the set of resources an entity may spend this turn.
// The zero value has everything spent; call Reset at the start of a turn.
//
// TurnResources is safe for concurrent use.
type TurnResources struct {
	mu        sync.Mutex
	available map[Kind]bool
}

// New returns a full set of resources.
func New() *TurnResources {
	r := &TurnResources{}
	r.Reset()
	return r
}

// Reset makes every resource available again.
func (r *TurnResources) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = make(map[Kind]bool, len(Kinds))
	for _, k := range Kinds {
		r.available[k] = true
	}
}

// Has reports whether k is still available.
func (r *TurnResources) Has(k Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available[k]
}

// Spend consumes every listed resource or none of them. A kind listed twice
// needs to be available twice, which can never succeed. The error names the
// first missing resource.
func (r *TurnResources) Spend(kinds ...Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	need := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		if !r.available[k] || need[k] {
			return skerr.ResourceExhausted(string(k))
		}
		need[k] = true
	}
	for k := range need {
		r.available[k] = false
	}
	return nil
}

// Restore makes k available again, for refunds.
func (r *TurnResources) Restore(k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.available == nil {
		r.available = make(map[Kind]bool, len(Kinds))
	}
	r.available[k] = true
}

// Export returns the resources as a plain key-value tree.
func (r *TurnResources) Export() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(Kinds))
	for _, k := range Kinds {
		out[string(k)] = r.available[k]
	}
	return out
}

// Import replaces the resources with an exported tree.
func (r *TurnResources) Import(data map[string]any) error {
	available := make(map[Kind]bool, len(Kinds))
	for key, v := range data {
		k, err := ParseKind(key)
		if err != nil {
			return err
		}
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("resource: %q must be a bool, got %T", key, v)
		}
		available[k] = b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = available
	return nil
}
