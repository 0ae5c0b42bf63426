// Package store defines the host-collection contracts the batch core
// depends on: reading and persisting notes, and writing generated media.
// Implementations wrap whatever object model the host application exposes;
// internal/platform/ankisqlite provides one over an Anki collection file.
package store

import "context"

// Note is one flashcard note's field state. Fields holds the current values;
// FieldOrder preserves the notetype's field ordering for persistence.
type Note struct {
	ID         int64
	Fields     map[string]string
	FieldOrder []string
}

// Get returns the value of the named field, or "" when the note does not
// have it.
func (n *Note) Get(name string) string {
	return n.Fields[name]
}

// Has reports whether the note has the named field.
func (n *Note) Has(name string) bool {
	_, ok := n.Fields[name]
	return ok
}

// Set assigns the named field. Setting a field the note does not have is
// ignored: the notetype defines the schema, not the response mapping.
func (n *Note) Set(name, value string) {
	if _, ok := n.Fields[name]; ok {
		n.Fields[name] = value
	}
}

// Clone returns a deep copy of the note, used for conflict snapshots.
func (n *Note) Clone() *Note {
	fields := make(map[string]string, len(n.Fields))
	for k, v := range n.Fields {
		fields[k] = v
	}
	order := make([]string, len(n.FieldOrder))
	copy(order, n.FieldOrder)
	return &Note{ID: n.ID, Fields: fields, FieldOrder: order}
}

// NoteStore is the note persistence contract. GetNote must reflect the live,
// possibly concurrently edited value so the batch processor can detect
// conflicts at persist time.
type NoteStore interface {
	// GetNote retrieves the current state of a note.
	// Returns ErrNoteNotFound if the note does not exist.
	GetNote(ctx context.Context, id int64) (*Note, error)

	// UpdateNote persists the note's field values.
	UpdateNote(ctx context.Context, note *Note) error
}

// MediaStore is the media persistence contract for generated images and
// audio. WriteData must guarantee a unique stored name per write.
type MediaStore interface {
	// WriteData stores data under a name derived from filenameHint and
	// returns the stored reference name used in field tags.
	WriteData(ctx context.Context, filenameHint string, data []byte) (string, error)

	// TrashFiles removes previously stored media that generated content has
	// replaced. Missing files are not an error.
	TrashFiles(ctx context.Context, names []string) error
}
