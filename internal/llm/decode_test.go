package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeyValues(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    map[string]string
		wantErr bool
	}{
		{
			name:    "string values",
			payload: `{"translation": "tree", "example": "Der Baum ist groß."}`,
			want:    map[string]string{"translation": "tree", "example": "Der Baum ist groß."},
		},
		{
			name:    "scalar values are stringified",
			payload: `{"count": 3, "plural": true, "note": null}`,
			want:    map[string]string{"count": "3", "plural": "true", "note": ""},
		},
		{
			name:    "nested object is a contract violation",
			payload: `{"translation": {"en": "tree"}}`,
			wantErr: true,
		},
		{
			name:    "array is a contract violation",
			payload: `{"translation": ["tree"]}`,
			wantErr: true,
		},
		{
			name:    "not a JSON object",
			payload: `"just text"`,
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			payload: `{"translation": `,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeKeyValues([]byte(tc.payload))
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, CodeBadRequest, CodeOf(err),
					"Malformed payloads are bad_request errors")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
