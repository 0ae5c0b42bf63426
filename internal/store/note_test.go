package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoteFieldAccess(t *testing.T) {
	note := &Note{
		ID:         42,
		Fields:     map[string]string{"Front": "Baum", "Back": ""},
		FieldOrder: []string{"Front", "Back"},
	}

	assert.Equal(t, "Baum", note.Get("Front"))
	assert.Equal(t, "", note.Get("Missing"), "Unknown fields read as empty")
	assert.True(t, note.Has("Back"), "Empty fields still exist on the note")
	assert.False(t, note.Has("Missing"))

	note.Set("Back", "tree")
	assert.Equal(t, "tree", note.Get("Back"))

	// The notetype defines the schema; writes outside it are dropped.
	note.Set("Missing", "value")
	assert.False(t, note.Has("Missing"))
}

func TestNoteClone(t *testing.T) {
	note := &Note{
		ID:         7,
		Fields:     map[string]string{"Front": "a"},
		FieldOrder: []string{"Front"},
	}

	snapshot := note.Clone()
	note.Set("Front", "edited")

	assert.Equal(t, "a", snapshot.Get("Front"),
		"Clone must be independent of later edits, it backs conflict detection")
	assert.Equal(t, note.ID, snapshot.ID)
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrNoteNotFound))
	assert.True(t, IsNotFoundError(fmt.Errorf("loading: %w", ErrNoteNotFound)))
	assert.False(t, IsNotFoundError(errors.New("boom")))
	assert.False(t, IsNotFoundError(nil))
}
