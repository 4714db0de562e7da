package types

import "time"

// Note kinds.
const (
	NoteKindIdea = "idea"
	NoteKindNote = "note"
)

// Attachment describes a file stored in the blob store. The bytes never live
// in the entity store; Path locates them remotely.
type Attachment struct {
	Name string `json:"name"`
	Mime string `json:"type"`
	Size int64  `json:"size"`
	Path string `json:"path"`
}

// Note is a captured idea or note, optionally linked to a task.
type Note struct {
	Envelope

	Content        string
	Kind           string      // idea or note.
	IsAudio        bool        // Recorded as a voice memo.
	Attachment     *Attachment // Optional file descriptor.
	LinkedTaskUUID string      // Parent task, empty when unlinked.
	CreatedAt      time.Time
}

// TableName implements Entity.
func (n *Note) TableName() string { return TableNotes }
