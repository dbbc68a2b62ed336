package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
)

// Controller reacts to events on behalf of one subscriber, typically one
// combat participant.
type Controller interface {
	ID() string
	React(ctx context.Context, ev ReactionEvent) error
}

// Bus fans events out to every subscribed controller.
//
// Bus is safe for concurrent use. Controllers may fire further events from
// within React; each Fire call gathers its own handlers.
type Bus struct {
	mu          sync.RWMutex
	controllers map[string]Controller
	order       []string
	limit       int
	logger      *zap.Logger
}

// NewBus creates a Bus. concurrency bounds the number of handlers running at
// once within one Fire; 0 means unbounded.
//
// Precondition: logger must be non-nil.
func NewBus(logger *zap.Logger, concurrency int) *Bus {
	if logger == nil {
		panic("event: NewBus requires a logger")
	}
	return &Bus{
		controllers: make(map[string]Controller),
		limit:       concurrency,
		logger:      logger,
	}
}

// Subscribe registers c. Subscribing a second controller with the same id is
// an error.
func (b *Bus) Subscribe(c Controller) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.controllers[c.ID()]; ok {
		return skerr.AlreadyExistsf("controller %q is already subscribed", c.ID())
	}
	b.controllers[c.ID()] = c
	b.order = append(b.order, c.ID())
	return nil
}

// Unsubscribe removes the controller with id.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.controllers[id]; !ok {
		return skerr.NotFoundf("controller %q is not subscribed", id)
	}
	delete(b.controllers, id)
	for i, o := range b.order {
		if o == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// Subscribers returns the subscribed controller ids in subscription order.
func (b *Bus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Fire dispatches every event of the batch to every controller concurrently
// and waits for all of them. A failing or panicking handler never stops its
// siblings; all failures are logged and returned joined once the batch has
// completed.
func (b *Bus) Fire(ctx context.Context, batch Batcher) error {
	events := batch.Batch().Events
	b.mu.RLock()
	subs := make([]Controller, 0, len(b.order))
	for _, id := range b.order {
		subs = append(subs, b.controllers[id])
	}
	b.mu.RUnlock()
	if len(events) == 0 || len(subs) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	var g errgroup.Group
	if b.limit > 0 {
		g.SetLimit(b.limit)
	}
	for _, ev := range events {
		for _, c := range subs {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						record(fmt.Errorf("event: controller %q panicked on %s: %v", c.ID(), ev.Trigger, r))
					}
				}()
				if err := c.React(ctx, ev); err != nil {
					record(fmt.Errorf("event: controller %q on %s: %w", c.ID(), ev.Trigger, err))
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	b.logger.Debug("event batch dispatched",
		zap.Int("events", len(events)),
		zap.Int("controllers", len(subs)),
		zap.Int("failures", len(errs)),
	)
	for _, err := range errs {
		b.logger.Warn("reaction handler failed", zap.Error(err))
	}
	return errors.Join(errs...)
}
