// Package schedule validates proposed time slots against existing bookings,
// the work-hours policy and the buffer policy.
package schedule

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrInvalidClock is returned when an "HH:MM" value cannot be parsed.
var ErrInvalidClock = errors.New("invalid clock time, expected HH:MM")

// Policy holds the user's scheduling preferences.
type Policy struct {
	WorkHoursEnabled       bool
	WorkStart              string // "HH:MM"
	WorkEnd                string // "HH:MM"
	BufferEnabled          bool
	BufferMinutes          int
	DefaultDurationMinutes int
	Location               *time.Location
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		WorkStart:              "09:00",
		WorkEnd:                "17:00",
		BufferMinutes:          15,
		DefaultDurationMinutes: 60,
		Location:               time.Local,
	}
}

// Validate checks the clock fields.
func (p Policy) Validate() error {
	if _, _, err := parseClock(p.WorkStart); err != nil {
		return fmt.Errorf("work start: %w", err)
	}
	if _, _, err := parseClock(p.WorkEnd); err != nil {
		return fmt.Errorf("work end: %w", err)
	}
	if p.BufferMinutes < 0 {
		return fmt.Errorf("buffer minutes must not be negative")
	}
	return nil
}

// Buffer returns the effective buffer, zero when the buffer policy is off.
func (p Policy) Buffer() time.Duration {
	if !p.BufferEnabled || p.BufferMinutes <= 0 {
		return 0
	}
	return time.Duration(p.BufferMinutes) * time.Minute
}

// DefaultDuration returns the duration assumed for bookings without one.
func (p Policy) DefaultDuration() int {
	if p.DefaultDurationMinutes <= 0 {
		return 60
	}
	return p.DefaultDurationMinutes
}

// Loc returns the policy location, falling back to time.Local.
func (p Policy) Loc() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// WorkHours returns the work window on the calendar day of t.
func (p Policy) WorkHours(t time.Time) (start, end time.Time, err error) {
	if start, err = clockOn(t, p.WorkStart, p.Loc()); err != nil {
		return
	}
	end, err = clockOn(t, p.WorkEnd, p.Loc())
	return
}

// WorkDayOver reports whether work hours are enabled and now is past the end
// of today's work window.
func (p Policy) WorkDayOver(now time.Time) bool {
	if !p.WorkHoursEnabled {
		return false
	}
	end, err := clockOn(now, p.WorkEnd, p.Loc())
	if err != nil {
		return false
	}
	return now.After(end)
}

// Source yields the current policy. Implementations must be safe for
// concurrent use.
type Source interface {
	Policy() Policy
}

// Static is a fixed policy Source.
type Static Policy

// Policy implements Source.
func (s Static) Policy() Policy { return Policy(s) }

// Live is a Source whose policy can be replaced at runtime, e.g. when the
// config file changes.
type Live struct {
	p atomic.Pointer[Policy]
}

// NewLive returns a Live source holding p.
func NewLive(p Policy) *Live {
	l := &Live{}
	l.Set(p)
	return l
}

// Set replaces the current policy.
func (l *Live) Set(p Policy) { l.p.Store(&p) }

// Policy implements Source.
func (l *Live) Policy() Policy {
	if p := l.p.Load(); p != nil {
		return *p
	}
	return DefaultPolicy()
}

func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return t.Hour(), t.Minute(), nil
}

// clockOn returns the instant at clock "HH:MM" on the calendar day of t in loc.
func clockOn(t time.Time, clock string, loc *time.Location) (time.Time, error) {
	h, m, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	t = t.In(loc)
	y, mo, d := t.Date()
	return time.Date(y, mo, d, h, m, 0, 0, loc), nil
}
