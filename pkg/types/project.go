package types

import "time"

// Project groups tasks toward a goal.
type Project struct {
	Envelope

	Title     string // Required, non-empty.
	Goal      string // Optional outcome statement.
	Color     string // Display color token, e.g. "#4f46e5".
	CreatedAt time.Time
}

// TableName implements Entity.
func (p *Project) TableName() string { return TableProjects }
