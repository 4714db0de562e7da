// Package remote defines the remote repository the sync engine talks to and
// provides in-memory, SQLite and HTTP implementations of it.
//
// A repository stores one document per (table, uuid). Every upsert stamps a
// server updated_at that is strictly greater than any previous stamp, so a
// client paging with "updated_at > cursor" never skips a row.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// TimeLayout formats server timestamps. It is fixed width in UTC so stamps
// also order correctly as text.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Well-known record keys.
const (
	KeyUUID      = "uuid"
	KeyUserID    = "user_id"
	KeyUpdatedAt = "updated_at"
	KeyDeletedAt = "deleted_at"
)

// Record is one remote row with snake_case keys.
type Record map[string]any

// UUID returns the record's uuid, or "".
func (r Record) UUID() string {
	s, _ := r[KeyUUID].(string)
	return s
}

// UserID returns the owning user, or "".
func (r Record) UserID() string {
	s, _ := r[KeyUserID].(string)
	return s
}

// UpdatedAt parses the record's updated_at.
func (r Record) UpdatedAt() (time.Time, error) {
	s, _ := r[KeyUpdatedAt].(string)
	if s == "" {
		return time.Time{}, fmt.Errorf("record %s has no updated_at", r.UUID())
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("record %s: parsing updated_at: %w", r.UUID(), err)
	}
	return t, nil
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Query selects records for one user changed after a point in time.
type Query struct {
	UserID       string
	UpdatedAfter time.Time // Exclusive; zero selects everything.
	Limit        int       // Zero or negative means no limit.
}

// Repository is the remote store.
type Repository interface {
	// Upsert inserts or replaces the record with the same uuid.
	Upsert(ctx context.Context, table string, rec Record) error
	// Select returns matching records in ascending updated_at order.
	Select(ctx context.Context, table string, q Query) ([]Record, error)
}

// validate checks the parts of a record every implementation relies on.
func validate(table string, rec Record) error {
	if !types.IsSyncTable(table) {
		return &Error{Code: CodeUndefinedTable, Message: fmt.Sprintf("relation %q does not exist", table)}
	}
	if rec.UUID() == "" {
		return &Error{Code: CodeNotNullViolation, Message: "null value in column \"uuid\" violates not-null constraint"}
	}
	return nil
}

// stamper hands out strictly increasing timestamps.
type stamper struct {
	clock types.Clock
	last  time.Time
}

// next returns a stamp after both the clock and the previous stamp. Stamps
// are truncated to the TimeLayout precision. Callers hold the owning lock.
func (s *stamper) next() time.Time {
	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}
