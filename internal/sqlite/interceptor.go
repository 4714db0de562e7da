package sqlite

import (
	"time"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// stampCreate prepares the envelope of a record about to be inserted. Local
// records get a fresh uuid when they have none, the transaction time as
// updated_at, and are marked dirty. Remote records keep their envelope as
// pulled and must already carry a uuid.
func stampCreate(env *types.Envelope, origin types.Origin, now time.Time) error {
	if origin == types.OriginRemote {
		if env.UUID == "" {
			return types.ErrInvalidID
		}
		return nil
	}
	if env.UUID == "" {
		env.UUID = generateUUID()
	}
	env.UpdatedAt = now
	env.SyncedAt = 0
	env.DeletedAt = nil
	return nil
}

// stampUpdate prepares the envelope of a record about to be updated.
// stored is the envelope currently on disk. Local updates of a tombstoned row
// are refused so a deletion cannot be resurrected by a stale editor.
func stampUpdate(env, stored *types.Envelope, origin types.Origin, now time.Time) error {
	if env.UUID == "" {
		env.UUID = stored.UUID
	}
	if env.UUID != stored.UUID {
		return types.ErrUUIDChanged
	}
	if origin == types.OriginRemote {
		return nil
	}
	if stored.Tombstoned() {
		return types.ErrTombstoned
	}
	env.UpdatedAt = now
	env.SyncedAt = 0
	env.DeletedAt = nil
	return nil
}
