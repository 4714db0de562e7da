package sqlite

import (
	"database/sql"
	"strings"

	"github.com/mesh-intelligence/stride/pkg/types"
)

var habitSpec = tableSpec{
	name:    types.TableHabits,
	columns: []string{"title", "frequency", "streak_count", "last_completed_date", "created_at"},
	values: func(e types.Entity) ([]any, error) {
		h := e.(*types.Habit)
		return []any{h.Title, h.Frequency, h.StreakCount, formatNullTime(h.LastCompletedDate), formatTime(h.CreatedAt)}, nil
	},
	hydrate: hydrateHabit,
	check: func(e types.Entity) error {
		h, ok := e.(*types.Habit)
		if !ok {
			return types.ErrInvalidData
		}
		if strings.TrimSpace(h.Title) == "" {
			return types.ErrInvalidName
		}
		return nil
	},
}

func hydrateHabit(env types.Envelope, row scanner) (types.Entity, error) {
	h := &types.Habit{Envelope: env}
	var (
		lastCompleted sql.NullString
		createdAt     string
	)
	if err := row.Scan(&h.Title, &h.Frequency, &h.StreakCount, &lastCompleted, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if h.LastCompletedDate, err = parseNullTime(lastCompleted); err != nil {
		return nil, err
	}
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return h, nil
}

// GetHabit returns the habit with the given local id.
func (tx *Tx) GetHabit(localID int64) (*types.Habit, error) {
	e, err := tx.get(&habitSpec, localID)
	if err != nil {
		return nil, err
	}
	return e.(*types.Habit), nil
}

// CreateHabit inserts h. Frequency defaults to daily.
func (tx *Tx) CreateHabit(h *types.Habit, origin types.Origin) error {
	if h.Frequency == "" {
		h.Frequency = types.FrequencyDaily
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = tx.now
	}
	return tx.create(h, origin)
}

// SaveHabit writes every field of an existing habit.
func (tx *Tx) SaveHabit(h *types.Habit, origin types.Origin) error {
	return tx.save(h, origin)
}

// ListHabits returns live habits ordered by creation.
func (tx *Tx) ListHabits() ([]*types.Habit, error) {
	entities, err := tx.list(&habitSpec, "deleted_at IS NULL ORDER BY created_at, local_id")
	if err != nil {
		return nil, err
	}
	out := make([]*types.Habit, len(entities))
	for i, e := range entities {
		out[i] = e.(*types.Habit)
	}
	return out, nil
}
