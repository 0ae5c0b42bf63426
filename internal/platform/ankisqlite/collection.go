package ankisqlite

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/saccohuo/anki-ai-field-generator/internal/store"
)

// fieldSeparator joins field values inside the notes.flds column.
const fieldSeparator = "\x1f"

// Collection is a store.NoteStore over an Anki collection database.
type Collection struct {
	db     *sql.DB
	logger *slog.Logger

	// fieldNames caches the ordered field names per notetype; notetype
	// schemas do not change while a batch runs.
	mu         sync.Mutex
	fieldNames map[int64][]string
}

var _ store.NoteStore = (*Collection)(nil)

// Open opens an existing collection database. The file must already exist;
// this package edits collections, it does not create them.
func Open(path string, logger *slog.Logger) (*Collection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("collection file not found: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	return &Collection{
		db:         db,
		logger:     logger,
		fieldNames: make(map[int64][]string),
	}, nil
}

// Close releases the underlying database handle.
func (c *Collection) Close() error {
	return c.db.Close()
}

// GetNote implements store.NoteStore. It always reads the live row, so a
// caller re-fetching a note observes concurrent edits.
func (c *Collection) GetNote(ctx context.Context, id int64) (*store.Note, error) {
	var (
		notetypeID int64
		flds       string
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT mid, flds FROM notes WHERE id = ?", id,
	).Scan(&notetypeID, &flds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load note %d: %w", id, err)
	}

	names, err := c.notetypeFields(ctx, notetypeID)
	if err != nil {
		return nil, err
	}

	values := strings.Split(flds, fieldSeparator)
	fields := make(map[string]string, len(names))
	for i, name := range names {
		if i < len(values) {
			fields[name] = values[i]
		} else {
			fields[name] = ""
		}
	}
	return &store.Note{ID: id, Fields: fields, FieldOrder: names}, nil
}

// UpdateNote implements store.NoteStore. The modification time is bumped and
// the sync sequence number reset so the next sync uploads the change, the
// same bookkeeping Anki itself performs on edit.
func (c *Collection) UpdateNote(ctx context.Context, note *store.Note) error {
	if len(note.FieldOrder) == 0 {
		return fmt.Errorf("note %d has no field order", note.ID)
	}
	values := make([]string, len(note.FieldOrder))
	for i, name := range note.FieldOrder {
		values[i] = note.Fields[name]
	}
	first := values[0]

	result, err := c.db.ExecContext(ctx,
		"UPDATE notes SET flds = ?, sfld = ?, csum = ?, mod = ?, usn = -1 WHERE id = ?",
		strings.Join(values, fieldSeparator),
		stripHTML(first),
		fieldChecksum(first),
		time.Now().Unix(),
		note.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update note %d: %w", note.ID, err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return store.ErrNoteNotFound
	}
	return nil
}

// NoteIDs resolves the notes a batch should process. A non-empty query is
// run verbatim against the collection and must return note IDs in its first
// column; otherwise the explicit ID list is validated against the notes
// table and returned in the given order.
func (c *Collection) NoteIDs(ctx context.Context, explicit []int64, query string) ([]int64, error) {
	if query == "" {
		for _, id := range explicit {
			var exists int
			err := c.db.QueryRowContext(ctx,
				"SELECT 1 FROM notes WHERE id = ?", id).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("note %d: %w", id, store.ErrNoteNotFound)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to check note %d: %w", id, err)
			}
		}
		return explicit, nil
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("note selection query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("note selection query must return note IDs: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("note selection query failed: %w", err)
	}
	return ids, nil
}

// notetypeFields returns the ordered field names of a notetype.
func (c *Collection) notetypeFields(ctx context.Context, notetypeID int64) ([]string, error) {
	c.mu.Lock()
	names, ok := c.fieldNames[notetypeID]
	c.mu.Unlock()
	if ok {
		return names, nil
	}

	rows, err := c.db.QueryContext(ctx,
		"SELECT name FROM fields WHERE ntid = ? ORDER BY ord", notetypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notetype %d fields: %w", notetypeID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to load notetype %d fields: %w", notetypeID, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load notetype %d fields: %w", notetypeID, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("notetype %d has no fields", notetypeID)
	}

	c.mu.Lock()
	c.fieldNames[notetypeID] = names
	c.mu.Unlock()
	return names, nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

func stripHTML(s string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, ""))
}

// fieldChecksum computes the notes.csum value: the first 8 hex digits of the
// SHA1 of the stripped first field, as an integer.
func fieldChecksum(first string) int64 {
	sum := sha1.Sum([]byte(stripHTML(first)))
	n, err := strconv.ParseInt(hex.EncodeToString(sum[:])[:8], 16, 64)
	if err != nil {
		return 0
	}
	return n
}
