package openai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saccohuo/anki-ai-field-generator/internal/fakeprovider"
	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
)

const speechRoute = "/v1/audio/speech"

func newTestSpeechClient(server *fakeprovider.Server) *SpeechClient {
	return NewSpeechClient(llm.SpeechConfig{
		APIKey:   "sk-test",
		Endpoint: server.URL + speechRoute,
	}, nil, nil)
}

func TestGenerateSpeechHappyPath(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(speechRoute, fakeprovider.RawBody("audio/mpeg", []byte("mp3-bytes")))

	client := newTestSpeechClient(server)
	result, err := client.GenerateSpeech(context.Background(), "Der Baum", llm.SpeechOptions{})

	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), result.Data,
		"The response body is the audio container, returned as-is")
	assert.Equal(t, "mp3", result.Format, "The requested format defaults to mp3")

	body := server.LastCall().Body
	assert.Equal(t, defaultSpeechModel, body["model"])
	assert.Equal(t, defaultSpeechVoice, body["voice"])
	assert.Equal(t, "Der Baum", body["input"])
	assert.Equal(t, "mp3", body["format"])
}

func TestGenerateSpeechOverrides(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(speechRoute, fakeprovider.RawBody("audio/wav", []byte("wav-bytes")))

	client := newTestSpeechClient(server)
	result, err := client.GenerateSpeech(context.Background(), "text", llm.SpeechOptions{
		Model:  "tts-1-hd",
		Voice:  "nova",
		Format: "WAV",
	})

	require.NoError(t, err)
	assert.Equal(t, "wav", result.Format, "The format tag is lowercased")

	body := server.LastCall().Body
	assert.Equal(t, "tts-1-hd", body["model"])
	assert.Equal(t, "nova", body["voice"])
}

func TestGenerateSpeechEmptyText(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()

	client := newTestSpeechClient(server)
	_, err := client.GenerateSpeech(context.Background(), "   ", llm.SpeechOptions{})

	require.Error(t, err)
	assert.Equal(t, llm.CodeInvalidInput, llm.CodeOf(err))
	assert.Zero(t, server.CallCount())
}

func TestGenerateSpeechMissingCredentials(t *testing.T) {
	client := NewSpeechClient(llm.SpeechConfig{}, nil, nil)

	_, err := client.GenerateSpeech(context.Background(), "text", llm.SpeechOptions{})
	require.Error(t, err)
	assert.Equal(t, llm.CodeMissingCredentials, llm.CodeOf(err))
}

func TestGenerateSpeechEmptyBody(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(speechRoute, fakeprovider.RawBody("audio/mpeg", nil))

	client := newTestSpeechClient(server)
	_, err := client.GenerateSpeech(context.Background(), "text", llm.SpeechOptions{})

	require.Error(t, err)
	assert.Equal(t, llm.CodeAudioMissingData, llm.CodeOf(err))
}

func TestGenerateSpeechUnauthorized(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(speechRoute, fakeprovider.APIError(401, "bad key"))

	client := newTestSpeechClient(server)
	_, err := client.GenerateSpeech(context.Background(), "text", llm.SpeechOptions{})

	require.Error(t, err)
	assert.Equal(t, llm.CodeUnauthorized, llm.CodeOf(err))
}
