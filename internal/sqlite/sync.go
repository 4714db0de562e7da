package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// SoftDelete tombstones a row: deleted_at and updated_at become the
// transaction time and the row is marked dirty. Deleting an already
// tombstoned row returns it unchanged.
func (tx *Tx) SoftDelete(table string, localID int64) (types.Entity, error) {
	s, err := specFor(table)
	if err != nil {
		return nil, err
	}
	e, err := tx.get(s, localID)
	if err != nil {
		return nil, err
	}
	env := e.Meta()
	if env.Tombstoned() {
		return e, nil
	}
	now := tx.now
	if _, err := tx.exec(
		"UPDATE "+s.name+" SET deleted_at = ?, updated_at = ?, synced_at = 0 WHERE local_id = ?",
		formatTime(now), formatTime(now), localID,
	); err != nil {
		return nil, fmt.Errorf("tombstoning %s %d: %w", s.name, localID, err)
	}
	env.DeletedAt = &now
	env.UpdatedAt = now
	env.SyncedAt = 0
	return e, nil
}

// Cursor returns the pull cursor stored for table, or "" when none.
func (tx *Tx) Cursor(table string) (string, error) {
	var c string
	err := tx.queryRow("SELECT cursor FROM sync_cursors WHERE table_name = ?", table).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading cursor for %s: %w", table, err)
	}
	return c, nil
}

// SetCursor stores the pull cursor for table.
func (tx *Tx) SetCursor(table, cursor string) error {
	_, err := tx.exec(
		`INSERT INTO sync_cursors (table_name, cursor) VALUES (?, ?)
		 ON CONFLICT(table_name) DO UPDATE SET cursor = excluded.cursor`,
		table, cursor,
	)
	if err != nil {
		return fmt.Errorf("writing cursor for %s: %w", table, err)
	}
	return nil
}

// FetchDirty returns up to limit rows of table that have unpushed changes,
// tombstones included, oldest first.
func (b *Backend) FetchDirty(ctx context.Context, table string, limit int) ([]types.Entity, error) {
	s, err := specFor(table)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	var out []types.Entity
	err = b.View(ctx, func(tx *Tx) error {
		out, err = tx.list(s, "synced_at = 0 ORDER BY local_id LIMIT ?", limit)
		return err
	})
	return out, err
}

// MarkSynced records a remote acknowledgement of e. The row is only marked
// when its updated_at still equals the pushed value, so an edit made while
// the push was in flight stays dirty. It reports whether the row was marked.
func (b *Backend) MarkSynced(ctx context.Context, e types.Entity, at time.Time) (bool, error) {
	s, err := specFor(e.TableName())
	if err != nil {
		return false, err
	}
	env := e.Meta()
	var marked bool
	err = b.Update(ctx, func(tx *Tx) error {
		res, err := tx.exec(
			"UPDATE "+s.name+" SET synced_at = ? WHERE local_id = ? AND updated_at = ?",
			at.UnixMilli(), env.LocalID, formatTime(env.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("marking %s %d synced: %w", s.name, env.LocalID, err)
		}
		n, err := res.RowsAffected()
		marked = n > 0
		return err
	})
	return marked, err
}

// Purge hard-deletes a tombstoned row after the remote acknowledged the
// deletion. Live rows are never purged.
func (b *Backend) Purge(ctx context.Context, table string, localID int64) error {
	s, err := specFor(table)
	if err != nil {
		return err
	}
	return b.Update(ctx, func(tx *Tx) error {
		if _, err := tx.exec("DELETE FROM "+s.name+" WHERE local_id = ? AND deleted_at IS NOT NULL", localID); err != nil {
			return fmt.Errorf("purging %s %d: %w", s.name, localID, err)
		}
		return nil
	})
}

// ApplyRemote applies one pulled page and advances the table cursor in a
// single transaction, so a crash never leaves the cursor ahead of the data.
//
// Records are matched by uuid. A remote tombstone removes the local row
// outright, discarding any unpushed local edit. A row tombstoned locally and
// not yet pushed is left alone so the deletion still reaches the remote.
// Anything else is inserted or overwritten and marked synced. It returns the
// number of local rows changed.
func (b *Backend) ApplyRemote(ctx context.Context, table string, page []types.Entity, cursor string) (int, error) {
	s, err := specFor(table)
	if err != nil {
		return 0, err
	}
	applied := 0
	err = b.Update(ctx, func(tx *Tx) error {
		applied = 0
		syncedAt := tx.now.UnixMilli()
		for _, e := range page {
			if e.TableName() != s.name {
				return fmt.Errorf("%w: %s record in %s page", types.ErrInvalidData, e.TableName(), s.name)
			}
			env := e.Meta()
			existing, err := tx.uuidState(s.name, env.UUID)
			if err != nil {
				return err
			}

			if env.Tombstoned() {
				if existing == nil {
					continue
				}
				if _, err := tx.exec("DELETE FROM "+s.name+" WHERE local_id = ?", existing.LocalID); err != nil {
					return fmt.Errorf("removing %s %s: %w", s.name, env.UUID, err)
				}
				applied++
				continue
			}

			env.SyncedAt = syncedAt
			if existing == nil {
				env.LocalID = 0
				if err := tx.create(e, types.OriginRemote); err != nil {
					if isValidationErr(err) {
						continue
					}
					return err
				}
				applied++
				continue
			}
			if existing.Tombstoned() && existing.Dirty() {
				continue
			}
			env.LocalID = existing.LocalID
			if err := tx.save(e, types.OriginRemote); err != nil {
				if isValidationErr(err) {
					continue
				}
				return err
			}
			applied++
		}
		if cursor != "" {
			return tx.SetCursor(s.name, cursor)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// Cursor returns the stored pull cursor for table.
func (b *Backend) Cursor(ctx context.Context, table string) (string, error) {
	var c string
	err := b.View(ctx, func(tx *Tx) error {
		var err error
		c, err = tx.Cursor(table)
		return err
	})
	return c, err
}

// SoftDelete tombstones one row and returns it.
func (b *Backend) SoftDelete(ctx context.Context, table string, localID int64) (types.Entity, error) {
	var e types.Entity
	err := b.Update(ctx, func(tx *Tx) error {
		var err error
		e, err = tx.SoftDelete(table, localID)
		return err
	})
	return e, err
}

// DeleteProject tombstones a project and its tasks in one transaction.
func (b *Backend) DeleteProject(ctx context.Context, localID int64) (int, error) {
	var n int
	err := b.Update(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.DeleteProject(localID)
		return err
	})
	return n, err
}

// isValidationErr reports whether err rejects the record's content. Such
// remote records are skipped so one malformed row cannot stall a pull.
func isValidationErr(err error) bool {
	return errors.Is(err, types.ErrInvalidData) ||
		errors.Is(err, types.ErrInvalidName) ||
		errors.Is(err, types.ErrInvalidStatus) ||
		errors.Is(err, types.ErrInvalidKind) ||
		errors.Is(err, types.ErrInvalidID)
}

// uuidState returns the envelope of the row carrying id, or nil when absent.
func (tx *Tx) uuidState(table, id string) (*types.Envelope, error) {
	var localID int64
	err := tx.queryRow("SELECT local_id FROM "+table+" WHERE uuid = ?", id).Scan(&localID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s %s: %w", table, id, err)
	}
	return tx.envelope(table, localID)
}
