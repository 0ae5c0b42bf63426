package batch

// Progress is one status notification emitted while a run advances.
type Progress struct {
	// Percent is the overall completion percentage, 0-100.
	Percent int

	// Status is a short human-readable description of the current step.
	Status string
}

// Section identifies which part of the per-note pipeline produced an event.
type Section string

const (
	SectionText  Section = "text"
	SectionImage Section = "image"
	SectionAudio Section = "audio"
)

// Decision is the caller's answer to a conflict notification.
type Decision string

const (
	// DecisionOverwrite writes the generated values over the edited ones.
	DecisionOverwrite Decision = "overwrite"

	// DecisionSkip leaves the note's stored fields unchanged and advances
	// to the next note.
	DecisionSkip Decision = "skip"

	// DecisionAbort halts the run without persisting the current note.
	DecisionAbort Decision = "abort"
)

// FieldConflict describes one field whose live value diverged from the
// snapshot taken before the provider call was issued.
type FieldConflict struct {
	// Original is the value snapshotted when the note was loaded.
	Original string

	// Current is the live value found at persist time.
	Current string

	// Generated is the value the provider produced for the field.
	Generated string
}

// ConflictRequest is the rendezvous between the worker and the caller when a
// concurrent edit is detected. The worker blocks until Resolve is called.
type ConflictRequest struct {
	NoteID  int64
	Section Section
	Fields  map[string]FieldConflict

	decision chan Decision
}

func newConflictRequest(noteID int64, section Section, fields map[string]FieldConflict) *ConflictRequest {
	return &ConflictRequest{
		NoteID:   noteID,
		Section:  section,
		Fields:   fields,
		decision: make(chan Decision, 1),
	}
}

// Resolve supplies the caller's decision and unblocks the worker. Calling it
// more than once has no effect beyond the first decision.
func (r *ConflictRequest) Resolve(d Decision) {
	select {
	case r.decision <- d:
	default:
	}
}
