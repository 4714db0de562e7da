package types

import "time"

// Origin identifies who is writing a record. Local writes pass through the
// change interceptor, which stamps UpdatedAt and marks the record dirty.
// Remote writes come from the sync engine applying pulled data and bypass the
// interceptor so they are never queued for push again.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// Envelope is the sync metadata carried by every syncable entity.
type Envelope struct {
	// LocalID is the store primary key. It never leaves the local store.
	LocalID int64

	// UUID is generated once at creation and is the only key used to
	// resolve conflicts remotely. Immutable.
	UUID string

	// UpdatedAt advances on every local or remote write.
	UpdatedAt time.Time

	// SyncedAt is the unix millisecond timestamp of the last remote
	// acknowledgement. Zero means the record has unpushed changes.
	SyncedAt int64

	// DeletedAt marks the record as deleted pending (or after) remote
	// acknowledgement.
	DeletedAt *time.Time
}

// Meta returns the envelope itself so embedding structs satisfy Entity.
func (e *Envelope) Meta() *Envelope { return e }

// Dirty reports whether the record has changes not yet acknowledged remotely.
func (e *Envelope) Dirty() bool { return e.SyncedAt == 0 }

// Tombstoned reports whether the record carries a deletion marker.
func (e *Envelope) Tombstoned() bool { return e.DeletedAt != nil }

// Entity is implemented by every syncable record type.
type Entity interface {
	TableName() string
	Meta() *Envelope
}
