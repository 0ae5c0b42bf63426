// Package mapping applies a provider's structured response to a note's
// fields. Text entries link a response key to a destination field; image and
// audio entries link a source field (whose current value becomes the
// generation prompt) to a destination field that receives a media reference.
package mapping

import (
	"fmt"
	"strings"

	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
)

// mediaSeparator splits the source and target halves of a serialized media
// entry, matching the persisted "Front -> Picture::1" form.
const mediaSeparator = "->"

// TextEntry links one response key to one destination note field.
type TextEntry struct {
	Key     string `mapstructure:"key" json:"key"`
	Field   string `mapstructure:"field" json:"field"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

// MediaEntry links a source field, whose value is used as the generation
// prompt or speech text, to a destination field that receives the media
// reference.
type MediaEntry struct {
	Source  string `mapstructure:"source" json:"source"`
	Target  string `mapstructure:"target" json:"target"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

// ApplyText copies response values into fields for every enabled entry.
// Entry order does not affect the outcome since each entry writes its own
// destination; when two entries target the same field the last one wins.
// A referenced key missing from the response is a provider contract
// violation and returns a bad_request error.
func ApplyText(response map[string]string, entries []TextEntry, fields map[string]string) error {
	for _, entry := range entries {
		if !entry.Enabled || entry.Key == "" || entry.Field == "" {
			continue
		}
		value, ok := response[entry.Key]
		if !ok {
			return llm.NewError(llm.CodeBadRequest,
				fmt.Sprintf("The provider response is missing the configured key %q.", entry.Key))
		}
		fields[entry.Field] = value
	}
	return nil
}

// Enabled filters a media entry list down to the usable enabled entries.
func Enabled(entries []MediaEntry) []MediaEntry {
	var active []MediaEntry
	for _, entry := range entries {
		if entry.Enabled && entry.Source != "" && entry.Target != "" {
			active = append(active, entry)
		}
	}
	return active
}

// DecodeMediaEntry parses the serialized "source -> target::flag" form used
// by existing add-on configurations. The ::flag suffix is optional and
// defaults to enabled; ok is false when the string does not name both halves.
func DecodeMediaEntry(s string) (entry MediaEntry, ok bool) {
	base := s
	enabled := true
	if idx := strings.LastIndex(s, "::"); idx >= 0 {
		flag := strings.ToLower(strings.TrimSpace(s[idx+2:]))
		base = s[:idx]
		enabled = flag != "0" && flag != "false"
	}
	before, after, found := strings.Cut(base, mediaSeparator)
	if !found {
		return MediaEntry{}, false
	}
	entry = MediaEntry{
		Source:  strings.TrimSpace(before),
		Target:  strings.TrimSpace(after),
		Enabled: enabled,
	}
	if entry.Source == "" || entry.Target == "" {
		return MediaEntry{}, false
	}
	return entry, true
}
