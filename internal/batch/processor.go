package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
	"github.com/saccohuo/anki-ai-field-generator/internal/mapping"
	"github.com/saccohuo/anki-ai-field-generator/internal/prompt"
	"github.com/saccohuo/anki-ai-field-generator/internal/store"
)

// Options configures one batch run. Client, Notes, and NoteIDs are required;
// the image and speech clients are optional and their stages are skipped
// when absent.
type Options struct {
	Client       llm.Client
	ImageClient  llm.ImageClient
	SpeechClient llm.SpeechClient

	Notes store.NoteStore
	Media store.MediaStore

	NoteIDs []int64

	TextEntries  []mapping.TextEntry
	ImageEntries []mapping.MediaEntry
	AudioEntries []mapping.MediaEntry

	// ImageModel overrides the image client's configured model when set.
	ImageModel string

	// Speech carries the per-run synthesis overrides (model, voice, format).
	Speech llm.SpeechOptions

	// MissingFieldIsError turns a note lacking a template field into a run
	// error instead of a recorded skip.
	MissingFieldIsError bool

	// RetryLimit and RetryDelay parameterize the retry policies for
	// retryable provider failures.
	RetryLimit int
	RetryDelay time.Duration

	Clock  llm.Clock
	Logger *slog.Logger
}

// Processor runs one batch over a fixed note list on a single worker
// goroutine. The caller consumes Progress and Conflicts while the run is
// active and reads the terminal outcome after Done closes. A Processor is
// single-use; construct a new one per run.
type Processor struct {
	opts     Options
	runID    string
	clock    llm.Clock
	logger   *slog.Logger
	policies map[llm.Code]retryPolicy

	progress  chan Progress
	conflicts chan *ConflictRequest
	done      chan struct{}

	startOnce sync.Once

	// Per-note destination-field snapshots backing conflict detection,
	// keyed by note ID and pipeline section. Only the worker touches them.
	snapshots map[int64]map[Section]map[string]string

	// Terminal state; written by the worker before done closes.
	mu        sync.Mutex
	err       error
	cancelled bool
	skipped   []int64
	processed int
}

// New validates the options and builds a Processor.
func New(opts Options) (*Processor, error) {
	if opts.Notes == nil {
		return nil, fmt.Errorf("batch: a note store is required")
	}
	if len(opts.NoteIDs) == 0 {
		return nil, fmt.Errorf("batch: no notes selected")
	}
	textEnabled := opts.Client != nil && len(enabledTextEntries(opts.TextEntries)) > 0
	imageEnabled := opts.ImageClient != nil && len(mapping.Enabled(opts.ImageEntries)) > 0
	audioEnabled := opts.SpeechClient != nil && len(mapping.Enabled(opts.AudioEntries)) > 0
	if !textEnabled && !imageEnabled && !audioEnabled {
		return nil, fmt.Errorf("batch: nothing to generate; no enabled mapping entries")
	}
	if (imageEnabled || audioEnabled) && opts.Media == nil {
		return nil, fmt.Errorf("batch: a media store is required for image or audio generation")
	}
	clock := opts.Clock
	if clock == nil {
		clock = llm.RealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	return &Processor{
		opts:      opts,
		runID:     runID,
		clock:     clock,
		logger:    logger.With("run_id", runID),
		policies:  buildRetryPolicies(opts.RetryLimit, opts.RetryDelay),
		progress:  make(chan Progress, 64),
		conflicts: make(chan *ConflictRequest),
		done:      make(chan struct{}),
		snapshots: make(map[int64]map[Section]map[string]string),
	}, nil
}

// Progress delivers status notifications while the run advances. Slow
// consumers lose intermediate updates rather than stalling the worker.
func (p *Processor) Progress() <-chan Progress { return p.progress }

// Conflicts delivers conflict rendezvous requests. The worker blocks until
// each request is resolved, so an active consumer is required.
func (p *Processor) Conflicts() <-chan *ConflictRequest { return p.conflicts }

// Done closes when the run reaches a terminal state.
func (p *Processor) Done() <-chan struct{} { return p.done }

// Err returns the terminal error, nil for completed and cancelled runs.
// Valid after Done closes.
func (p *Processor) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Cancelled reports whether the run stopped early at a note boundary due to
// context cancellation. Valid after Done closes.
func (p *Processor) Cancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

// Skipped returns the IDs of notes skipped for missing template fields.
// Valid after Done closes.
func (p *Processor) Skipped() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.skipped...)
}

// Processed returns how many notes completed the full pipeline.
func (p *Processor) Processed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}

// Start launches the worker goroutine. Subsequent calls are no-ops.
func (p *Processor) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go p.run(ctx)
	})
}

func (p *Processor) run(ctx context.Context) {
	defer close(p.done)
	p.logger.Info("batch started", "note_count", len(p.opts.NoteIDs))

	total := len(p.opts.NoteIDs)
	for i, noteID := range p.opts.NoteIDs {
		// Cancellation is honored only here, at the note boundary; an
		// in-flight provider call always completes or errors first.
		if ctx.Err() != nil {
			p.finishCancelled()
			return
		}

		basePercent := i * 100 / total
		perNote := 100 / total
		if perNote == 0 {
			perNote = 1
		}

		halted, err := p.processNote(ctx, noteID, basePercent, perNote)
		if err != nil {
			p.finishFailed(err)
			return
		}
		if halted {
			p.finishFailed(llm.NewError(llm.CodeGeneric, "Processing cancelled by user."))
			return
		}

		p.mu.Lock()
		p.processed++
		p.mu.Unlock()
		p.emitProgress(min(100, basePercent+perNote),
			fmt.Sprintf("Completed %d/%d", i+1, total))
	}

	p.emitProgress(100, "Completed")
	p.logger.Info("batch completed", "note_count", total, "skipped", len(p.skipped))
}

// processNote runs the per-note pipeline. It returns halted=true when a
// conflict decision aborted the run, and a non-nil error for every fatal
// failure.
func (p *Processor) processNote(ctx context.Context, noteID int64, basePercent, perNote int) (bool, error) {
	note, err := p.opts.Notes.GetNote(ctx, noteID)
	if store.IsNotFoundError(err) {
		p.recordSkip(noteID, "note no longer exists")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load note %d: %w", noteID, err)
	}

	// A note missing a template field cannot produce a sensible prompt; it
	// is recorded as a skip, never sent to the provider.
	if missing := p.missingRequiredField(note); missing != "" {
		if p.opts.MissingFieldIsError {
			return false, fmt.Errorf("note %d: %w", noteID, &prompt.MissingFieldError{Field: missing})
		}
		p.recordSkip(noteID, fmt.Sprintf("missing field %q", missing))
		return false, nil
	}

	p.ensureSnapshots(note)

	userPrompt := ""
	if p.opts.Client != nil {
		userPrompt, _ = prompt.Fill(p.opts.Client.Config().UserPrompt, note.Fields, false)
	}
	p.emitProgress(basePercent, "Processing: "+truncate(userPrompt, 80))

	textEntries := enabledTextEntries(p.opts.TextEntries)
	if p.opts.Client != nil && len(textEntries) > 0 {
		halted, err := p.textStage(ctx, note, userPrompt, textEntries, basePercent)
		if halted || err != nil {
			return halted, err
		}
	}

	if p.opts.ImageClient != nil {
		p.emitProgress(min(99, basePercent+perNote/2), "Generating image...")
		halted, err := p.imageStage(ctx, note, min(99, basePercent+perNote/2))
		if halted || err != nil {
			return halted, err
		}
	}

	if p.opts.SpeechClient != nil {
		p.emitProgress(min(99, basePercent+perNote*3/4), "Generating audio...")
		halted, err := p.audioStage(ctx, note, min(99, basePercent+perNote*3/4))
		if halted || err != nil {
			return halted, err
		}
	}

	return false, nil
}

// textStage calls the text provider once and maps the response keys into the
// note's destination fields.
func (p *Processor) textStage(
	ctx context.Context,
	note *store.Note,
	userPrompt string,
	entries []mapping.TextEntry,
	progressValue int,
) (bool, error) {
	var response map[string]string
	err := p.runWithRetry(ctx, "Text generation", progressValue, func() error {
		var callErr error
		response, callErr = p.opts.Client.Call(ctx, []string{userPrompt})
		return callErr
	})
	if err != nil {
		return false, formatStageError("Text generation", err)
	}

	generated := make(map[string]string)
	if err := mapping.ApplyText(response, entries, generated); err != nil {
		return false, formatStageError("Text generation", err)
	}
	destinations := make([]string, 0, len(generated))
	for _, entry := range entries {
		if _, ok := generated[entry.Field]; ok {
			destinations = append(destinations, entry.Field)
		}
	}

	latest, conflicts, err := p.checkConflicts(ctx, note, SectionText, destinations, generated)
	if err != nil {
		return false, err
	}
	*note = *latest
	if len(conflicts) > 0 {
		decision := p.awaitDecision(ctx, note.ID, SectionText, conflicts)
		switch decision {
		case DecisionSkip:
			p.updateSnapshot(note, SectionText, destinations)
			return false, nil
		case DecisionAbort:
			return true, nil
		}
	}

	for _, field := range destinations {
		note.Set(field, generated[field])
	}
	if err := p.opts.Notes.UpdateNote(ctx, note); err != nil {
		return false, fmt.Errorf("failed to persist note %d: %w", note.ID, err)
	}
	p.updateSnapshot(note, SectionText, destinations)
	return false, nil
}

// imageStage generates one image per enabled mapping entry whose source
// field has content, writes it to the media store, and replaces the
// destination field with an image reference.
func (p *Processor) imageStage(ctx context.Context, note *store.Note, progressValue int) (bool, error) {
	pending := p.pendingMedia(note, mapping.Enabled(p.opts.ImageEntries), false)
	if len(pending) == 0 {
		return false, nil
	}

	targets := make([]string, 0, len(pending))
	placeholders := make(map[string]string, len(pending))
	for _, entry := range pending {
		targets = append(targets, entry.Target)
		placeholders[entry.Target] = "[new image]"
	}
	latest, conflicts, err := p.checkConflicts(ctx, note, SectionImage, targets, placeholders)
	if err != nil {
		return false, err
	}
	*note = *latest
	if len(conflicts) > 0 {
		decision := p.awaitDecision(ctx, note.ID, SectionImage, conflicts)
		switch decision {
		case DecisionSkip:
			p.updateSnapshot(note, SectionImage, targets)
			return false, nil
		case DecisionAbort:
			return true, nil
		}
	}

	for _, entry := range pending {
		imagePrompt := strings.TrimSpace(note.Get(entry.Source))
		stage := fmt.Sprintf("Image generation (%s -> %s)", entry.Source, entry.Target)

		var data []byte
		err := p.runWithRetry(ctx, stage, progressValue, func() error {
			var genErr error
			data, genErr = p.opts.ImageClient.GenerateImage(ctx, imagePrompt, p.opts.ImageModel)
			return genErr
		})
		if err != nil {
			return false, formatStageError(stage, err)
		}

		hint := fmt.Sprintf("fieldgen_%d_%s_%s.png", note.ID, entry.Target, uuid.NewString()[:8])
		name, err := p.opts.Media.WriteData(ctx, hint, data)
		if err != nil {
			return false, formatStageError(stage,
				llm.WrapError(llm.CodeMediaWriteFailed, "Could not persist the generated image.", err))
		}
		note.Set(entry.Target, fmt.Sprintf("<img src=%q>", name))

		if err := p.opts.Notes.UpdateNote(ctx, note); err != nil {
			return false, fmt.Errorf("failed to persist note %d: %w", note.ID, err)
		}
		p.updateSnapshot(note, SectionImage, []string{entry.Target})
	}
	return false, nil
}

// audioStage synthesizes speech for each enabled mapping entry whose source
// field has speakable content, writes the audio to the media store, and
// replaces the destination field with a sound tag. Audio the new file
// replaces is trashed.
func (p *Processor) audioStage(ctx context.Context, note *store.Note, progressValue int) (bool, error) {
	pending := p.pendingMedia(note, mapping.Enabled(p.opts.AudioEntries), true)
	if len(pending) == 0 {
		return false, nil
	}

	targets := make([]string, 0, len(pending))
	placeholders := make(map[string]string, len(pending))
	for _, entry := range pending {
		targets = append(targets, entry.Target)
		placeholders[entry.Target] = "[new audio tag]"
	}
	latest, conflicts, err := p.checkConflicts(ctx, note, SectionAudio, targets, placeholders)
	if err != nil {
		return false, err
	}
	*note = *latest
	if len(conflicts) > 0 {
		decision := p.awaitDecision(ctx, note.ID, SectionAudio, conflicts)
		switch decision {
		case DecisionSkip:
			p.updateSnapshot(note, SectionAudio, targets)
			return false, nil
		case DecisionAbort:
			return true, nil
		}
	}

	for _, entry := range pending {
		text := prepareSpeechText(note.Get(entry.Source))
		stage := fmt.Sprintf("Speech generation (%s -> %s)", entry.Source, entry.Target)
		replaced := extractAudioFilenames(note.Get(entry.Target))

		var result *llm.SpeechResult
		err := p.runWithRetry(ctx, stage, progressValue, func() error {
			var genErr error
			result, genErr = p.opts.SpeechClient.GenerateSpeech(ctx, text, p.opts.Speech)
			return genErr
		})
		if err != nil {
			return false, formatStageError(stage, err)
		}

		ext := normalizeAudioExtension(result.Format)
		hint := fmt.Sprintf("fieldgen_%d_%s_%s.%s", note.ID, entry.Target, uuid.NewString()[:8], ext)
		name, err := p.opts.Media.WriteData(ctx, hint, result.Data)
		if err != nil {
			return false, formatStageError(stage,
				llm.WrapError(llm.CodeMediaWriteFailed, "Could not persist the generated audio.", err))
		}
		note.Set(entry.Target, "[sound:"+name+"]")

		if err := p.opts.Notes.UpdateNote(ctx, note); err != nil {
			return false, fmt.Errorf("failed to persist note %d: %w", note.ID, err)
		}
		if len(replaced) > 0 {
			if err := p.opts.Media.TrashFiles(ctx, replaced); err != nil {
				p.logger.Warn("failed to trash replaced audio",
					"note_id", note.ID, "files", replaced, "error", err)
			}
		}
		p.updateSnapshot(note, SectionAudio, []string{entry.Target})
	}
	return false, nil
}

// pendingMedia filters media entries down to those actionable on this note:
// both fields exist and the source has content (speakable content for
// audio).
func (p *Processor) pendingMedia(note *store.Note, entries []mapping.MediaEntry, speech bool) []mapping.MediaEntry {
	var pending []mapping.MediaEntry
	for _, entry := range entries {
		if !note.Has(entry.Source) || !note.Has(entry.Target) {
			continue
		}
		value := note.Get(entry.Source)
		if speech {
			value = prepareSpeechText(value)
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		pending = append(pending, entry)
	}
	return pending
}

// checkConflicts re-reads the live note and compares each destination
// field's current value against the snapshot taken when the note was
// loaded. A divergence means someone edited the note while a provider call
// was in flight.
func (p *Processor) checkConflicts(
	ctx context.Context,
	note *store.Note,
	section Section,
	fields []string,
	generated map[string]string,
) (*store.Note, map[string]FieldConflict, error) {
	latest, err := p.opts.Notes.GetNote(ctx, note.ID)
	if store.IsNotFoundError(err) {
		latest = note
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to reload note %d: %w", note.ID, err)
	}

	snapshot := p.snapshots[note.ID][section]
	conflicts := make(map[string]FieldConflict)
	for _, field := range fields {
		original := snapshot[field]
		current := latest.Get(field)
		if current != original {
			conflicts[field] = FieldConflict{
				Original:  original,
				Current:   current,
				Generated: generated[field],
			}
		}
	}
	return latest, conflicts, nil
}

// awaitDecision performs the conflict rendezvous: the request is handed to
// the caller and the worker blocks until Resolve supplies a decision.
// Cancellation while waiting counts as an abort.
func (p *Processor) awaitDecision(
	ctx context.Context,
	noteID int64,
	section Section,
	conflicts map[string]FieldConflict,
) Decision {
	req := newConflictRequest(noteID, section, conflicts)
	p.logger.Warn("conflict detected",
		"note_id", noteID, "section", string(section), "fields", len(conflicts))
	select {
	case p.conflicts <- req:
	case <-ctx.Done():
		return DecisionAbort
	}
	select {
	case decision := <-req.decision:
		switch decision {
		case DecisionOverwrite, DecisionSkip, DecisionAbort:
			return decision
		}
		return DecisionAbort
	case <-ctx.Done():
		return DecisionAbort
	}
}

// ensureSnapshots records the destination-field values of a freshly loaded
// note, once per note.
func (p *Processor) ensureSnapshots(note *store.Note) {
	if _, ok := p.snapshots[note.ID]; ok {
		return
	}
	sections := map[Section][]string{
		SectionText:  {},
		SectionImage: {},
		SectionAudio: {},
	}
	for _, entry := range enabledTextEntries(p.opts.TextEntries) {
		sections[SectionText] = append(sections[SectionText], entry.Field)
	}
	for _, entry := range mapping.Enabled(p.opts.ImageEntries) {
		sections[SectionImage] = append(sections[SectionImage], entry.Target)
	}
	for _, entry := range mapping.Enabled(p.opts.AudioEntries) {
		sections[SectionAudio] = append(sections[SectionAudio], entry.Target)
	}

	snap := make(map[Section]map[string]string, len(sections))
	for section, fields := range sections {
		values := make(map[string]string, len(fields))
		for _, field := range fields {
			values[field] = note.Get(field)
		}
		snap[section] = values
	}
	p.snapshots[note.ID] = snap
}

// updateSnapshot refreshes the stored snapshot for fields the run has
// persisted or deliberately skipped, so later sections of the same note do
// not re-flag them.
func (p *Processor) updateSnapshot(note *store.Note, section Section, fields []string) {
	snap, ok := p.snapshots[note.ID]
	if !ok {
		return
	}
	for _, field := range fields {
		snap[section][field] = note.Get(field)
	}
}

// missingRequiredField returns the first template placeholder the note has
// no field for, or "".
func (p *Processor) missingRequiredField(note *store.Note) string {
	if p.opts.Client == nil {
		return ""
	}
	for _, field := range p.opts.Client.Config().RequiredFields() {
		if !note.Has(field) {
			return field
		}
	}
	return ""
}

func (p *Processor) recordSkip(noteID int64, reason string) {
	p.mu.Lock()
	p.skipped = append(p.skipped, noteID)
	p.mu.Unlock()
	p.logger.Info("note skipped", "note_id", noteID, "reason", reason)
}

func (p *Processor) finishCancelled() {
	p.mu.Lock()
	p.cancelled = true
	p.mu.Unlock()
	p.logger.Info("batch cancelled at note boundary")
}

func (p *Processor) finishFailed(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.logger.Error("batch failed", "error", err)
}

// emitProgress sends a notification without ever blocking the worker.
func (p *Processor) emitProgress(percent int, status string) {
	select {
	case p.progress <- Progress{Percent: percent, Status: status}:
	default:
	}
}

func enabledTextEntries(entries []mapping.TextEntry) []mapping.TextEntry {
	var active []mapping.TextEntry
	for _, entry := range entries {
		if entry.Enabled && entry.Key != "" && entry.Field != "" {
			active = append(active, entry)
		}
	}
	return active
}

// normalizeAudioExtension reduces a format tag or MIME type to a bare file
// extension.
func normalizeAudioExtension(format string) string {
	ext := strings.ToLower(strings.TrimSpace(format))
	if idx := strings.LastIndex(ext, "/"); idx >= 0 {
		ext = ext[idx+1:]
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return "wav"
	}
	return ext
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
