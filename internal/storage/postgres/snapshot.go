package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Snapshot is one stored encounter export.
type Snapshot struct {
	EncounterID string
	Round       int
	Data        map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SnapshotRepository stores the latest export of each encounter as JSONB,
// along with the encounter's action log.
type SnapshotRepository struct {
	db *pgxpool.Pool
}

// NewSnapshotRepository creates a SnapshotRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewSnapshotRepository(db *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save stores data as the latest snapshot of encounter id, replacing any
// earlier one. The round column is taken from data["round"].
//
// Precondition: id must be non-empty; data must be JSON-encodable.
// Postcondition: Load(id) returns data until the next Save.
func (r *SnapshotRepository) Save(ctx context.Context, id string, data map[string]any) error {
	if id == "" {
		return skerr.InvalidArgumentf("snapshot needs an encounter id")
	}
	round, _ := scripting.AsInt(data["round"])
	_, err := r.db.Exec(ctx, `
		INSERT INTO encounter_snapshots (encounter_id, round, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (encounter_id) DO UPDATE
		SET round = EXCLUDED.round, data = EXCLUDED.data, updated_at = NOW()`,
		id, round, data,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", id, err)
	}
	return nil
}

// Load returns the latest snapshot of encounter id.
//
// Postcondition: Returns the snapshot, or a NotFound error if none exists.
func (r *SnapshotRepository) Load(ctx context.Context, id string) (*Snapshot, error) {
	var s Snapshot
	err := r.db.QueryRow(ctx, `
		SELECT encounter_id, round, data, created_at, updated_at
		FROM encounter_snapshots WHERE encounter_id = $1`,
		id,
	).Scan(&s.EncounterID, &s.Round, &s.Data, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, skerr.NotFoundf("no snapshot for encounter %q", id)
		}
		return nil, fmt.Errorf("loading snapshot %s: %w", id, err)
	}
	return &s, nil
}

// List returns every stored snapshot without its data, most recently
// updated first.
func (r *SnapshotRepository) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT encounter_id, round, created_at, updated_at
		FROM encounter_snapshots ORDER BY updated_at DESC, encounter_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.EncounterID, &s.Round, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes the snapshot and the action log of encounter id.
//
// Postcondition: Returns a NotFound error if no snapshot existed.
func (r *SnapshotRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM encounter_snapshots WHERE encounter_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return skerr.NotFoundf("no snapshot for encounter %q", id)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM encounter_events WHERE encounter_id = $1`, id); err != nil {
		return fmt.Errorf("deleting events of %s: %w", id, err)
	}
	return tx.Commit(ctx)
}

// AppendEvents adds events to the action log of encounter id in order.
func (r *SnapshotRepository) AppendEvents(ctx context.Context, id string, events []combat.RoundEvent) error {
	if len(events) == 0 {
		return nil
	}
	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"encounter_events"},
		[]string{"encounter_id", "round", "action", "actor_id", "success", "message"},
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			ev := events[i]
			return []any{id, ev.Round, ev.Action.String(), ev.ActorID, ev.Outcome.Success, ev.Outcome.Message}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("appending events of %s: %w", id, err)
	}
	return nil
}

// Events returns the action log of encounter id in insertion order. Actor
// names are not stored and come back empty.
func (r *SnapshotRepository) Events(ctx context.Context, id string) ([]combat.RoundEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT round, action, actor_id, success, message
		FROM encounter_events WHERE encounter_id = $1 ORDER BY id ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing events of %s: %w", id, err)
	}
	defer rows.Close()

	var out []combat.RoundEvent
	for rows.Next() {
		var (
			ev     combat.RoundEvent
			action string
		)
		if err := rows.Scan(&ev.Round, &action, &ev.ActorID, &ev.Outcome.Success, &ev.Outcome.Message); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if ev.Action, err = combat.ParseActionType(action); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
