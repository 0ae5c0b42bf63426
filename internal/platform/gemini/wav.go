package gemini

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// Gemini's speech endpoint returns raw PCM for most models, which has no
// header and is not playable as a file. These parameters match the fixed
// output format documented for the TTS models.
const (
	pcmSampleRate  = 24000
	pcmSampleWidth = 2 // bytes per sample (16-bit)
	pcmChannels    = 1
)

// looksLikeWAV sniffs the RIFF/WAVE container magic.
func looksLikeWAV(data []byte) bool {
	return len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}

// wrapPCMAsWAV prepends a canonical 44-byte WAV header to raw 16-bit mono
// 24 kHz PCM samples.
func wrapPCMAsWAV(pcm []byte) []byte {
	if len(pcm) == 0 {
		return pcm
	}
	const headerSize = 44
	byteRate := pcmSampleRate * pcmChannels * pcmSampleWidth
	blockAlign := pcmChannels * pcmSampleWidth

	buf := make([]byte, 0, headerSize+len(pcm))
	w := bytes.NewBuffer(buf)
	w.WriteString("RIFF")
	_ = binary.Write(w, binary.LittleEndian, uint32(36+len(pcm)))
	w.WriteString("WAVE")
	w.WriteString("fmt ")
	_ = binary.Write(w, binary.LittleEndian, uint32(16))             // fmt chunk size
	_ = binary.Write(w, binary.LittleEndian, uint16(1))              // PCM
	_ = binary.Write(w, binary.LittleEndian, uint16(pcmChannels))    //
	_ = binary.Write(w, binary.LittleEndian, uint32(pcmSampleRate))  //
	_ = binary.Write(w, binary.LittleEndian, uint32(byteRate))       //
	_ = binary.Write(w, binary.LittleEndian, uint16(blockAlign))     //
	_ = binary.Write(w, binary.LittleEndian, uint16(8*pcmSampleWidth))
	w.WriteString("data")
	_ = binary.Write(w, binary.LittleEndian, uint32(len(pcm)))
	w.Write(pcm)
	return w.Bytes()
}

// inferAudioFormat classifies the payload from its MIME type, falling back
// to container sniffing. It returns "" when the format cannot be determined.
func inferAudioFormat(mimeType string, data []byte) string {
	normalized := strings.ToLower(strings.TrimSpace(mimeType))
	if normalized == "" {
		if looksLikeWAV(data) {
			return "wav"
		}
		return ""
	}
	switch {
	case strings.Contains(normalized, "wav") || strings.Contains(normalized, "wave"):
		return "wav"
	case strings.Contains(normalized, "ogg") || strings.Contains(normalized, "opus"):
		return "ogg"
	case strings.Contains(normalized, "mp3") || strings.Contains(normalized, "mpeg"):
		return "mp3"
	case strings.Contains(normalized, "aac"):
		return "aac"
	case strings.Contains(normalized, "pcm") ||
		strings.Contains(normalized, "linear16") ||
		strings.Contains(normalized, "s16"):
		return "pcm"
	}
	return ""
}

// finalizeAudio normalizes a Gemini audio payload into a self-describing
// container and reports its format tag. WAV and compressed containers pass
// through; raw PCM (or anything unrecognized) is wrapped into WAV, because
// playback downstream assumes a real file header.
func finalizeAudio(raw []byte, mimeType string) ([]byte, string) {
	switch format := inferAudioFormat(mimeType, raw); format {
	case "wav":
		return raw, "wav"
	case "mp3", "ogg", "aac":
		return raw, format
	case "pcm":
		return wrapPCMAsWAV(raw), "wav"
	}
	if looksLikeWAV(raw) {
		return raw, "wav"
	}
	return wrapPCMAsWAV(raw), "wav"
}
