package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrepareSpeechText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "plain text", input: "Der Baum ist groß.", want: "Der Baum ist groß."},
		{
			name:  "sound tags removed",
			input: "[sound:old.mp3]Der Baum",
			want:  "Der Baum",
		},
		{
			name:  "cloze keeps the answer",
			input: "Der {{c1::Baum::noun}} ist groß.",
			want:  "Der Baum ist groß.",
		},
		{
			name:  "line breaks become spaces",
			input: "erste Zeile<br>zweite Zeile<BR/>dritte",
			want:  "erste Zeile zweite Zeile dritte",
		},
		{
			name:  "block tags stripped",
			input: `<div class="front"><p>Der Baum</p></div>`,
			want:  "Der Baum",
		},
		{
			name:  "inline tags stripped",
			input: "Der <b>Baum</b> ist <i>groß</i>.",
			want:  "Der Baum ist groß.",
		},
		{
			name:  "entities unescaped",
			input: "Der Baum&nbsp;ist &amp; bleibt gro&szlig;.",
			want:  "Der Baum ist & bleibt groß.",
		},
		{
			name:  "whitespace collapsed",
			input: "  Der \n\t Baum  ",
			want:  "Der Baum",
		},
		{
			name:  "only markup yields empty",
			input: "[sound:a.mp3]<br><div></div>",
			want:  "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, prepareSpeechText(tc.input))
		})
	}
}

func TestExtractAudioFilenames(t *testing.T) {
	assert.Nil(t, extractAudioFilenames(""))
	assert.Empty(t, extractAudioFilenames("no tags here"))
	assert.Equal(t, []string{"a.mp3"}, extractAudioFilenames("[sound:a.mp3]"))
	assert.Equal(t, []string{"a.mp3", "b.wav"},
		extractAudioFilenames("x[sound:a.mp3]y[sound:b.wav]z"),
		"Filenames come back in order of appearance")
}
