package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
)

func TestApplyText(t *testing.T) {
	response := map[string]string{
		"translation": "tree",
		"example":     "Der Baum ist groß.",
	}
	entries := []TextEntry{
		{Key: "translation", Field: "Back", Enabled: true},
		{Key: "example", Field: "Example", Enabled: true},
		{Key: "translation", Field: "Ignored", Enabled: false},
	}
	fields := map[string]string{"Front": "Baum", "Back": "old"}

	require.NoError(t, ApplyText(response, entries, fields))

	assert.Equal(t, "tree", fields["Back"])
	assert.Equal(t, "Der Baum ist groß.", fields["Example"])
	assert.Equal(t, "Baum", fields["Front"], "Unmapped fields stay untouched")
	assert.NotContains(t, fields, "Ignored", "Disabled entries do not write")
}

func TestApplyTextMissingKey(t *testing.T) {
	entries := []TextEntry{{Key: "translation", Field: "Back", Enabled: true}}

	err := ApplyText(map[string]string{"other": "x"}, entries, map[string]string{})
	require.Error(t, err)
	assert.Equal(t, llm.CodeBadRequest, llm.CodeOf(err),
		"A configured key absent from the response is a provider contract violation")
}

func TestApplyTextLastWriteWins(t *testing.T) {
	response := map[string]string{"a": "first", "b": "second"}
	entries := []TextEntry{
		{Key: "a", Field: "Back", Enabled: true},
		{Key: "b", Field: "Back", Enabled: true},
	}
	fields := map[string]string{}

	require.NoError(t, ApplyText(response, entries, fields))
	assert.Equal(t, "second", fields["Back"])
}

func TestEnabled(t *testing.T) {
	entries := []MediaEntry{
		{Source: "Front", Target: "Picture", Enabled: true},
		{Source: "Front", Target: "Audio", Enabled: false},
		{Source: "", Target: "Picture", Enabled: true},
		{Source: "Front", Target: "", Enabled: true},
	}

	active := Enabled(entries)
	require.Len(t, active, 1)
	assert.Equal(t, "Picture", active[0].Target)
}

func TestDecodeMediaEntry(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  MediaEntry
		ok    bool
	}{
		{
			name:  "plain entry defaults to enabled",
			input: "Front -> Picture",
			want:  MediaEntry{Source: "Front", Target: "Picture", Enabled: true},
			ok:    true,
		},
		{
			name:  "explicit enabled flag",
			input: "Front -> Picture::1",
			want:  MediaEntry{Source: "Front", Target: "Picture", Enabled: true},
			ok:    true,
		},
		{
			name:  "disabled flag",
			input: "Front -> Picture::0",
			want:  MediaEntry{Source: "Front", Target: "Picture", Enabled: false},
			ok:    true,
		},
		{
			name:  "false flag",
			input: "Sentence -> Audio::false",
			want:  MediaEntry{Source: "Sentence", Target: "Audio", Enabled: false},
			ok:    true,
		},
		{name: "missing separator", input: "Front Picture", ok: false},
		{name: "missing target", input: "Front -> ", ok: false},
		{name: "empty string", input: "", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entry, ok := DecodeMediaEntry(tc.input)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, entry)
			}
		})
	}
}
