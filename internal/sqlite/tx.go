package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Tx is a store transaction. It is only valid inside the View or Update
// callback that received it.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
	now time.Time
}

// Compile-time interface check: Tx must implement TaskTx.
var _ types.TaskTx = (*Tx)(nil)

// Now returns the timestamp used for every write in this transaction.
func (tx *Tx) Now() time.Time { return tx.now }

func (tx *Tx) exec(query string, args ...any) (sql.Result, error) {
	return tx.tx.ExecContext(tx.ctx, query, args...)
}

func (tx *Tx) query(query string, args ...any) (*sql.Rows, error) {
	return tx.tx.QueryContext(tx.ctx, query, args...)
}

func (tx *Tx) queryRow(query string, args ...any) *sql.Row {
	return tx.tx.QueryRowContext(tx.ctx, query, args...)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// tableSpec maps one entity type onto its table. columns excludes the
// envelope columns, which every table shares.
type tableSpec struct {
	name    string
	columns []string
	values  func(types.Entity) ([]any, error)
	hydrate func(env types.Envelope, row scanner) (types.Entity, error)
	check   func(types.Entity) error
}

const envelopeColumns = "local_id, uuid, updated_at, synced_at, deleted_at"

// specFor returns the table mapping for name.
func specFor(name string) (*tableSpec, error) {
	switch name {
	case types.TableTasks:
		return &taskSpec, nil
	case types.TableProjects:
		return &projectSpec, nil
	case types.TableNotes:
		return &noteSpec, nil
	case types.TableHabits:
		return &habitSpec, nil
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrTableNotFound, name)
	}
}

func (s *tableSpec) selectSQL() string {
	return "SELECT " + envelopeColumns + ", " + strings.Join(s.columns, ", ") + " FROM " + s.name
}

// scanRow reads the envelope columns followed by the table's data columns.
func (s *tableSpec) scanRow(row scanner) (types.Entity, error) {
	var (
		env       types.Envelope
		updatedAt string
		deletedAt sql.NullString
	)
	rest := &restScanner{}
	if err := row.Scan(append([]any{&env.LocalID, &env.UUID, &updatedAt, &env.SyncedAt, &deletedAt}, rest.targets(len(s.columns))...)...); err != nil {
		return nil, err
	}
	var err error
	if env.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if env.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, err
	}
	return s.hydrate(env, rest)
}

// restScanner captures the data columns of a row so hydrate functions can
// scan them into typed fields after the envelope has been consumed.
type restScanner struct {
	vals []any
}

func (r *restScanner) targets(n int) []any {
	r.vals = make([]any, n)
	out := make([]any, n)
	for i := range r.vals {
		out[i] = &r.vals[i]
	}
	return out
}

// Scan assigns the captured values to dest using database/sql conversion
// rules for the types the hydrate functions use.
func (r *restScanner) Scan(dest ...any) error {
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: expected %d destinations, got %d", len(r.vals), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, r.vals[i]); err != nil {
			return fmt.Errorf("scan column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, src any) error {
	switch d := dest.(type) {
	case *string:
		switch v := src.(type) {
		case string:
			*d = v
		case []byte:
			*d = string(v)
		case nil:
			*d = ""
		default:
			*d = fmt.Sprint(v)
		}
	case *sql.NullString:
		switch v := src.(type) {
		case nil:
			*d = sql.NullString{}
		case string:
			*d = sql.NullString{String: v, Valid: true}
		case []byte:
			*d = sql.NullString{String: string(v), Valid: true}
		default:
			return fmt.Errorf("unsupported %T for NullString", src)
		}
	case *int64:
		v, err := toInt64(src)
		if err != nil {
			return err
		}
		*d = v
	case *int:
		v, err := toInt64(src)
		if err != nil {
			return err
		}
		*d = int(v)
	case *bool:
		v, err := toInt64(src)
		if err != nil {
			return err
		}
		*d = v != 0
	default:
		return fmt.Errorf("unsupported destination %T", dest)
	}
	return nil
}

func toInt64(src any) (int64, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case nil:
		return 0, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported %T for integer", src)
	}
}

// get loads one entity by local id, including tombstoned rows.
func (tx *Tx) get(s *tableSpec, localID int64) (types.Entity, error) {
	if localID <= 0 {
		return nil, types.ErrInvalidID
	}
	e, err := s.scanRow(tx.queryRow(s.selectSQL()+" WHERE local_id = ?", localID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s %d: %w", s.name, localID, err)
	}
	return e, nil
}

// getByUUID loads one entity by uuid, including tombstoned rows.
func (tx *Tx) getByUUID(s *tableSpec, id string) (types.Entity, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	e, err := s.scanRow(tx.queryRow(s.selectSQL()+" WHERE uuid = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", s.name, id, err)
	}
	return e, nil
}

// list runs a filtered select and hydrates every row.
func (tx *Tx) list(s *tableSpec, where string, args ...any) ([]types.Entity, error) {
	query := s.selectSQL()
	if where != "" {
		query += " WHERE " + where
	}
	rows, err := tx.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.name, err)
	}
	defer rows.Close()

	var out []types.Entity
	for rows.Next() {
		e, err := s.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", s.name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// create inserts e after the interceptor stamps it.
func (tx *Tx) create(e types.Entity, origin types.Origin) error {
	s, err := specFor(e.TableName())
	if err != nil {
		return err
	}
	if err := s.check(e); err != nil {
		return err
	}
	env := e.Meta()
	if err := stampCreate(env, origin, tx.now); err != nil {
		return err
	}

	vals, err := s.values(e)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", s.name, err)
	}
	cols := append([]string{"uuid", "updated_at", "synced_at", "deleted_at"}, s.columns...)
	args := append([]any{env.UUID, formatTime(env.UpdatedAt), env.SyncedAt, formatNullTime(env.DeletedAt)}, vals...)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.name, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := tx.exec(query, args...)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", s.name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading %s id: %w", s.name, err)
	}
	env.LocalID = id
	return nil
}

// save updates an existing row after the interceptor stamps it.
func (tx *Tx) save(e types.Entity, origin types.Origin) error {
	s, err := specFor(e.TableName())
	if err != nil {
		return err
	}
	if err := s.check(e); err != nil {
		return err
	}
	env := e.Meta()
	stored, err := tx.envelope(s.name, env.LocalID)
	if err != nil {
		return err
	}
	if err := stampUpdate(env, stored, origin, tx.now); err != nil {
		return err
	}

	sets := []string{"uuid = ?", "updated_at = ?", "synced_at = ?", "deleted_at = ?"}
	for _, c := range s.columns {
		sets = append(sets, c+" = ?")
	}
	vals, err := s.values(e)
	if err != nil {
		return fmt.Errorf("encoding %s %d: %w", s.name, env.LocalID, err)
	}
	args := append([]any{env.UUID, formatTime(env.UpdatedAt), env.SyncedAt, formatNullTime(env.DeletedAt)}, vals...)
	args = append(args, env.LocalID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE local_id = ?", s.name, strings.Join(sets, ", "))
	if _, err := tx.exec(query, args...); err != nil {
		return fmt.Errorf("updating %s %d: %w", s.name, env.LocalID, err)
	}
	return nil
}

// envelope loads only the sync columns of a row.
func (tx *Tx) envelope(table string, localID int64) (*types.Envelope, error) {
	if localID <= 0 {
		return nil, types.ErrInvalidID
	}
	var (
		env       = types.Envelope{LocalID: localID}
		updatedAt string
		deletedAt sql.NullString
	)
	err := tx.queryRow(
		"SELECT uuid, updated_at, synced_at, deleted_at FROM "+table+" WHERE local_id = ?", localID,
	).Scan(&env.UUID, &updatedAt, &env.SyncedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s %d: %w", table, localID, err)
	}
	if env.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if env.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, err
	}
	return &env, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may carry RFC 3339 text.
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
		}
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
