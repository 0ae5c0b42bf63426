package gemini

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPCMAsWAVHeader(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	wav := wrapPCMAsWAV(pcm)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, []byte("RIFF"), wav[0:4])
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, []byte("WAVE"), wav[8:12])
	assert.Equal(t, []byte("fmt "), wav[12:16])
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[20:22]), "PCM format tag")
	assert.Equal(t, uint16(pcmChannels), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(pcmSampleRate), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(pcmSampleRate*pcmChannels*pcmSampleWidth),
		binary.LittleEndian.Uint32(wav[28:32]), "byte rate")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]), "bits per sample")
	assert.Equal(t, []byte("data"), wav[36:40])
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
}

func TestWrapPCMAsWAVEmptyInput(t *testing.T) {
	assert.Empty(t, wrapPCMAsWAV(nil), "No header is fabricated for empty samples")
}

func TestLooksLikeWAV(t *testing.T) {
	assert.True(t, looksLikeWAV(wrapPCMAsWAV([]byte{0x00, 0x01})))
	assert.False(t, looksLikeWAV([]byte("RIFF")), "Truncated header is not a container")
	assert.False(t, looksLikeWAV([]byte("ID3\x03mp3 data....")))
	assert.False(t, looksLikeWAV(nil))
}

func TestInferAudioFormat(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		data     []byte
		want     string
	}{
		{name: "pcm mime", mimeType: "audio/pcm", want: "pcm"},
		{name: "pcm with codec params", mimeType: "audio/L16;codec=pcm;rate=24000", want: "pcm"},
		{name: "linear16", mimeType: "audio/linear16", want: "pcm"},
		{name: "wav", mimeType: "audio/wav", want: "wav"},
		{name: "x-wave", mimeType: "audio/x-wave", want: "wav"},
		{name: "mp3", mimeType: "audio/mp3", want: "mp3"},
		{name: "mpeg", mimeType: "audio/mpeg", want: "mp3"},
		{name: "ogg opus", mimeType: "audio/ogg;codecs=opus", want: "ogg"},
		{name: "aac", mimeType: "audio/aac", want: "aac"},
		{name: "unknown mime", mimeType: "application/octet-stream", want: ""},
		{name: "no mime but wav magic", data: wrapPCMAsWAV([]byte{0x00}), want: "wav"},
		{name: "no mime no magic", data: []byte{0x00, 0x01}, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, inferAudioFormat(tc.mimeType, tc.data))
		})
	}
}

func TestFinalizeAudio(t *testing.T) {
	wav := wrapPCMAsWAV([]byte{0x01, 0x02})

	t.Run("wav passthrough", func(t *testing.T) {
		data, format := finalizeAudio(wav, "audio/wav")
		assert.Equal(t, wav, data)
		assert.Equal(t, "wav", format)
	})

	t.Run("pcm wrapped", func(t *testing.T) {
		data, format := finalizeAudio([]byte{0x01, 0x02}, "audio/pcm")
		assert.Equal(t, "wav", format)
		assert.True(t, looksLikeWAV(data))
	})

	t.Run("mp3 passthrough", func(t *testing.T) {
		data, format := finalizeAudio([]byte("mp3"), "audio/mpeg")
		assert.Equal(t, []byte("mp3"), data)
		assert.Equal(t, "mp3", format)
	})

	t.Run("unknown mime with wav magic passes through", func(t *testing.T) {
		data, format := finalizeAudio(wav, "application/octet-stream")
		assert.Equal(t, wav, data)
		assert.Equal(t, "wav", format)
	})

	t.Run("unknown payload is wrapped", func(t *testing.T) {
		data, format := finalizeAudio([]byte{0x07, 0x08}, "")
		assert.Equal(t, "wav", format)
		assert.True(t, looksLikeWAV(data))
	})
}
