package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/stride/pkg/types"
)

var noteSpec = tableSpec{
	name:    types.TableNotes,
	columns: []string{"content", "kind", "is_audio", "attachment_info", "linked_task_uuid", "created_at"},
	values: func(e types.Entity) ([]any, error) {
		n := e.(*types.Note)
		attachment, err := attachmentJSON(n.Attachment)
		if err != nil {
			return nil, err
		}
		return []any{n.Content, n.Kind, n.IsAudio, attachment, n.LinkedTaskUUID, formatTime(n.CreatedAt)}, nil
	},
	hydrate: hydrateNote,
	check: func(e types.Entity) error {
		n, ok := e.(*types.Note)
		if !ok {
			return types.ErrInvalidData
		}
		if n.Content == "" && n.Attachment == nil {
			return types.ErrInvalidData
		}
		return nil
	},
}

// marshalAttachment is replaced in tests.
var marshalAttachment = json.Marshal

// attachmentJSON encodes the attachment descriptor, or NULL when absent.
func attachmentJSON(a *types.Attachment) (any, error) {
	if a == nil {
		return nil, nil
	}
	b, err := marshalAttachment(a)
	if err != nil {
		return nil, fmt.Errorf("encoding attachment: %w", err)
	}
	return string(b), nil
}

func hydrateNote(env types.Envelope, row scanner) (types.Entity, error) {
	n := &types.Note{Envelope: env}
	var (
		attachment sql.NullString
		createdAt  string
	)
	if err := row.Scan(&n.Content, &n.Kind, &n.IsAudio, &attachment, &n.LinkedTaskUUID, &createdAt); err != nil {
		return nil, err
	}
	if attachment.Valid && attachment.String != "" {
		n.Attachment = &types.Attachment{}
		if err := json.Unmarshal([]byte(attachment.String), n.Attachment); err != nil {
			return nil, fmt.Errorf("decoding attachment of note %s: %w", n.UUID, err)
		}
	}
	var err error
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return n, nil
}

// GetNote returns the note with the given local id.
func (tx *Tx) GetNote(localID int64) (*types.Note, error) {
	e, err := tx.get(&noteSpec, localID)
	if err != nil {
		return nil, err
	}
	return e.(*types.Note), nil
}

// CreateNote inserts n. Kind defaults to note.
func (tx *Tx) CreateNote(n *types.Note, origin types.Origin) error {
	if n.Kind == "" {
		n.Kind = types.NoteKindNote
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = tx.now
	}
	return tx.create(n, origin)
}

// SaveNote writes every field of an existing note.
func (tx *Tx) SaveNote(n *types.Note, origin types.Origin) error {
	return tx.save(n, origin)
}

// ListNotes returns live notes, newest first. A non-empty taskUUID limits the
// result to notes linked to that task.
func (tx *Tx) ListNotes(taskUUID string) ([]*types.Note, error) {
	where := "deleted_at IS NULL"
	var args []any
	if taskUUID != "" {
		where += " AND linked_task_uuid = ?"
		args = append(args, taskUUID)
	}
	entities, err := tx.list(&noteSpec, where+" ORDER BY created_at DESC, local_id DESC", args...)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Note, len(entities))
	for i, e := range entities {
		out[i] = e.(*types.Note)
	}
	return out, nil
}
