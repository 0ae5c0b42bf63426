package batch

import (
	"html"
	"regexp"
	"strings"
)

// Note fields are HTML and may already carry sound tags and cloze markers;
// none of that should be read aloud.
var (
	soundTagPattern   = regexp.MustCompile(`\[sound:[^\]]+\]`)
	clozePattern      = regexp.MustCompile(`\{\{c\d+::(.*?)(::.*?)?\}\}`)
	lineBreakPattern  = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockTagPattern   = regexp.MustCompile(`(?i)</?(div|p|span)[^>]*>`)
	anyTagPattern     = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// prepareSpeechText reduces a note field's HTML value to the plain text a
// speech model should synthesize: sound tags and markup are dropped, cloze
// deletions keep their answer text, entities are unescaped, and whitespace
// is collapsed.
func prepareSpeechText(value string) string {
	if value == "" {
		return ""
	}
	text := soundTagPattern.ReplaceAllString(value, " ")
	text = clozePattern.ReplaceAllString(text, "$1")
	text = lineBreakPattern.ReplaceAllString(text, " ")
	text = blockTagPattern.ReplaceAllString(text, " ")
	text = anyTagPattern.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var audioFilenamePattern = regexp.MustCompile(`\[sound:([^\]]+)\]`)

// extractAudioFilenames returns the media filenames referenced by sound tags
// in a field value, in order of appearance.
func extractAudioFilenames(fieldValue string) []string {
	if fieldValue == "" {
		return nil
	}
	matches := audioFilenamePattern.FindAllStringSubmatch(fieldValue, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}
