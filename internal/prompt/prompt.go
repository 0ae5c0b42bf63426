// Package prompt turns user-authored templates and note field maps into
// provider prompts. Templates use {name} placeholders; the syntax is fixed by
// the configuration format users already have, so the package scans braces
// directly rather than adapting a template engine with different delimiters.
package prompt

import (
	"fmt"
	"strings"
)

// MissingFieldError reports a placeholder that has no corresponding note
// field when the caller asked for missing fields to be treated as errors.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("note does not have field %q", e.Field)
}

// Fill replaces every {name} placeholder in template with fields[name].
// Unknown names substitute the empty string unless missingIsError is set, in
// which case a *MissingFieldError identifies the first missing field.
// Braces without a terminating counterpart are kept as literal text, and
// empty braces {} are substituted with nothing.
func Fill(template string, fields map[string]string, missingIsError bool) (string, error) {
	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); {
		c := template[i]
		if c != '{' {
			b.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(template[i+1:], '}')
		if end < 0 {
			// Unterminated placeholder; keep the rest verbatim.
			b.WriteString(template[i:])
			break
		}
		name := template[i+1 : i+1+end]
		i += end + 2
		if name == "" {
			continue
		}
		value, ok := fields[name]
		if !ok && missingIsError {
			return "", &MissingFieldError{Field: name}
		}
		b.WriteString(value)
	}
	return b.String(), nil
}

// RequiredFields returns the distinct non-empty placeholder names in
// template, in order of first appearance.
func RequiredFields(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for i := 0; i < len(template); {
		if template[i] != '{' {
			i++
			continue
		}
		end := strings.IndexByte(template[i+1:], '}')
		if end < 0 {
			break
		}
		name := template[i+1 : i+1+end]
		i += end + 2
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
