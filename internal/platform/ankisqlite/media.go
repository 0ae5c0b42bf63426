package ankisqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/saccohuo/anki-ai-field-generator/internal/store"
)

// trashDirName is where replaced media lands instead of being deleted
// outright, mirroring Anki's own media trash.
const trashDirName = "media.trash"

// MediaDir is a store.MediaStore over a collection.media directory.
type MediaDir struct {
	dir    string
	logger *slog.Logger
}

var _ store.MediaStore = (*MediaDir)(nil)

// NewMediaDir opens (creating if needed) the media directory.
func NewMediaDir(dir string, logger *slog.Logger) (*MediaDir, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrMediaWriteFailed, err)
	}
	return &MediaDir{dir: dir, logger: logger}, nil
}

// WriteData implements store.MediaStore. The stored name is derived from
// filenameHint; when a file of that name already exists a random suffix is
// inserted so every write lands under a unique name.
func (m *MediaDir) WriteData(ctx context.Context, filenameHint string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: no data to write", store.ErrMediaWriteFailed)
	}

	name := sanitizeFilename(filenameHint)
	path := filepath.Join(m.dir, name)
	if _, err := os.Stat(path); err == nil {
		ext := filepath.Ext(name)
		name = strings.TrimSuffix(name, ext) + "_" + uuid.NewString()[:8] + ext
		path = filepath.Join(m.dir, name)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", store.ErrMediaWriteFailed, err)
	}
	m.logger.Debug("media written", "name", name, "bytes", len(data))
	return name, nil
}

// TrashFiles implements store.MediaStore by moving the named files into the
// media trash directory next to the media folder. Missing files are ignored.
func (m *MediaDir) TrashFiles(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	trashDir := filepath.Join(filepath.Dir(m.dir), trashDirName)
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return fmt.Errorf("failed to create media trash: %w", err)
	}
	for _, name := range names {
		src := filepath.Join(m.dir, sanitizeFilename(name))
		dst := filepath.Join(trashDir, sanitizeFilename(name))
		if err := os.Rename(src, dst); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			m.logger.Warn("failed to trash media file", "name", name, "error", err)
		}
	}
	return nil
}

// sanitizeFilename keeps stored names inside the media directory: path
// separators are stripped and an empty hint gets a generated name.
func sanitizeFilename(hint string) string {
	name := filepath.Base(strings.TrimSpace(hint))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "media_" + uuid.NewString()[:8]
	}
	return name
}
