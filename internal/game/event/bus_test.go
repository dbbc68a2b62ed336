package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/event"
	"github.com/cory-johannsen/skirmish/internal/game/modifier"
)

type funcController struct {
	id string
	fn func(ctx context.Context, ev event.ReactionEvent) error
}

func (f *funcController) ID() string { return f.id }
func (f *funcController) React(ctx context.Context, ev event.ReactionEvent) error {
	return f.fn(ctx, ev)
}

func newTestBus(t *testing.T, limit int) (*event.Bus, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return event.NewBus(zap.New(core), limit), logs
}

func TestBus_SubscribeRejectsDuplicate(t *testing.T) {
	bus, _ := newTestBus(t, 0)
	c := &funcController{id: "a", fn: func(context.Context, event.ReactionEvent) error { return nil }}
	require.NoError(t, bus.Subscribe(c))
	err := bus.Subscribe(c)
	assert.True(t, skerr.IsAlreadyExists(err))
	require.NoError(t, bus.Unsubscribe("a"))
	assert.True(t, skerr.IsNotFound(bus.Unsubscribe("a")))
	assert.Empty(t, bus.Subscribers())
}

func TestBus_FireReachesEveryControllerForEveryEvent(t *testing.T) {
	bus, _ := newTestBus(t, 0)
	var mu sync.Mutex
	seen := map[string]int{}
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Subscribe(&funcController{id: id, fn: func(_ context.Context, ev event.ReactionEvent) error {
			mu.Lock()
			defer mu.Unlock()
			seen[id+":"+string(ev.Trigger)]++
			return nil
		}}))
	}
	batch := event.CompositeEvent{Events: []event.ReactionEvent{
		{Trigger: event.TurnStart, Context: event.NewSourceContext("a")},
		{Trigger: event.Movement, Context: &event.MovementContext{Source: "a"}},
	}}
	require.NoError(t, bus.Fire(context.Background(), batch))
	assert.Len(t, seen, 6)
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}

func TestBus_FireWaitsForAllHandlers(t *testing.T) {
	bus, _ := newTestBus(t, 2)
	var done atomic.Int32
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, bus.Subscribe(&funcController{id: id, fn: func(context.Context, event.ReactionEvent) error {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
			return nil
		}}))
	}
	require.NoError(t, bus.Fire(context.Background(), event.ReactionEvent{Trigger: event.TurnEnd, Context: event.NewSourceContext("a")}))
	assert.Equal(t, int32(4), done.Load())
}

func TestBus_FailingHandlerDoesNotStopSiblings(t *testing.T) {
	bus, logs := newTestBus(t, 0)
	var ran atomic.Int32
	boom := errors.New("boom")
	require.NoError(t, bus.Subscribe(&funcController{id: "bad", fn: func(context.Context, event.ReactionEvent) error {
		return boom
	}}))
	require.NoError(t, bus.Subscribe(&funcController{id: "panics", fn: func(context.Context, event.ReactionEvent) error {
		panic("kaboom")
	}}))
	require.NoError(t, bus.Subscribe(&funcController{id: "good", fn: func(context.Context, event.ReactionEvent) error {
		ran.Add(1)
		return nil
	}}))

	err := bus.Fire(context.Background(), event.ReactionEvent{Trigger: event.AttackHit, Context: event.NewTargetedContext("a", "b")})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, 2, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestBus_HaltClearsProceed(t *testing.T) {
	bus, _ := newTestBus(t, 0)
	require.NoError(t, bus.Subscribe(&funcController{id: "veto", fn: func(_ context.Context, ev event.ReactionEvent) error {
		ev.Context.Halt()
		return nil
	}}))
	ev := event.ReactionEvent{Trigger: event.BeforeAttack, Context: event.NewRollContext("a", "b", "melee", 0, modifier.Roll{})}
	require.NoError(t, bus.Fire(context.Background(), ev))
	assert.False(t, ev.Context.Proceed())
	assert.False(t, ev.Batch().Proceed())
}

func TestBus_FireWithoutSubscribers(t *testing.T) {
	bus, _ := newTestBus(t, 0)
	assert.NoError(t, bus.Fire(context.Background(), event.CompositeEvent{}))
	assert.NoError(t, bus.Fire(context.Background(), event.ReactionEvent{Trigger: event.TurnStart}))
}

func TestProperty_ConcurrentRollUpdatesCompose(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		bonuses := rapid.SliceOfN(rapid.IntRange(-3, 5), 1, 8).Draw(rt, "bonuses")
		bus, _ := newTestBus(t, 0)
		for i, bonus := range bonuses {
			require.NoError(rt, bus.Subscribe(&funcController{id: string(rune('a' + i)), fn: func(_ context.Context, ev event.ReactionEvent) error {
				before := ev.Context.Fields()
				after := ev.Context.Fields()
				after["bonus"] = float64(after["bonus"].(int) + bonus)
				ev.Context.Update(before, after)
				return nil
			}}))
		}
		ctx := event.NewRollContext("a", "", "str", 10, modifier.Roll{Bonus: 1})
		require.NoError(rt, bus.Fire(context.Background(), event.ReactionEvent{Trigger: event.BeforeCheck, Context: ctx}))
		want := 1
		for _, b := range bonuses {
			want += b
		}
		assert.Equal(rt, want, ctx.Modifiers().Bonus)
	})
}
