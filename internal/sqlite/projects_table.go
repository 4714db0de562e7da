package sqlite

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/stride/pkg/types"
)

var projectSpec = tableSpec{
	name:    types.TableProjects,
	columns: []string{"title", "goal", "color", "created_at"},
	values: func(e types.Entity) ([]any, error) {
		p := e.(*types.Project)
		return []any{p.Title, p.Goal, p.Color, formatTime(p.CreatedAt)}, nil
	},
	hydrate: hydrateProject,
	check: func(e types.Entity) error {
		p, ok := e.(*types.Project)
		if !ok {
			return types.ErrInvalidData
		}
		if strings.TrimSpace(p.Title) == "" {
			return types.ErrInvalidName
		}
		return nil
	},
}

func hydrateProject(env types.Envelope, row scanner) (types.Entity, error) {
	p := &types.Project{Envelope: env}
	var createdAt string
	if err := row.Scan(&p.Title, &p.Goal, &p.Color, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject returns the project with the given local id.
func (tx *Tx) GetProject(localID int64) (*types.Project, error) {
	e, err := tx.get(&projectSpec, localID)
	if err != nil {
		return nil, err
	}
	return e.(*types.Project), nil
}

// CreateProject inserts p.
func (tx *Tx) CreateProject(p *types.Project, origin types.Origin) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = tx.now
	}
	return tx.create(p, origin)
}

// SaveProject writes every field of an existing project.
func (tx *Tx) SaveProject(p *types.Project, origin types.Origin) error {
	return tx.save(p, origin)
}

// ListProjects returns live projects ordered by creation.
func (tx *Tx) ListProjects() ([]*types.Project, error) {
	entities, err := tx.list(&projectSpec, "deleted_at IS NULL ORDER BY created_at, local_id")
	if err != nil {
		return nil, err
	}
	out := make([]*types.Project, len(entities))
	for i, e := range entities {
		out[i] = e.(*types.Project)
	}
	return out, nil
}

// DeleteProject tombstones the project and every live task that belongs to
// it. It returns the number of tasks tombstoned.
func (tx *Tx) DeleteProject(localID int64) (int, error) {
	p, err := tx.GetProject(localID)
	if err != nil {
		return 0, err
	}
	if _, err := tx.SoftDelete(types.TableProjects, localID); err != nil {
		return 0, err
	}
	now := formatTime(tx.now)
	res, err := tx.exec(
		"UPDATE tasks SET deleted_at = ?, updated_at = ?, synced_at = 0 WHERE project_uuid = ? AND deleted_at IS NULL",
		now, now, p.UUID,
	)
	if err != nil {
		return 0, fmt.Errorf("tombstoning tasks of project %s: %w", p.UUID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
