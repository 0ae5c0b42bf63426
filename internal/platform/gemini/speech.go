package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
)

const (
	defaultSpeechModel = "gemini-2.5-flash-preview-tts"
	defaultSpeechVoice = "Kore"
	speechTimeout      = 60 * time.Second
)

// SpeechClient generates audio through generateContent with the AUDIO
// response modality. Whatever codec the API returns is normalized into a
// consistently playable container before being handed back (see wav.go).
type SpeechClient struct {
	cfg    llm.SpeechConfig
	doer   llm.Doer
	logger *slog.Logger
}

var _ llm.SpeechClient = (*SpeechClient)(nil)

// NewSpeechClient creates a Gemini speech client.
func NewSpeechClient(cfg llm.SpeechConfig, doer llm.Doer, logger *slog.Logger) *SpeechClient {
	if doer == nil {
		doer = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeechClient{cfg: cfg, doer: doer, logger: logger}
}

// GenerateSpeech implements llm.SpeechClient.
func (c *SpeechClient) GenerateSpeech(
	ctx context.Context,
	text string,
	opts llm.SpeechOptions,
) (*llm.SpeechResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, llm.NewError(llm.CodeInvalidInput, "Cannot synthesize empty text.")
	}
	apiKey := strings.TrimSpace(c.cfg.APIKey)
	if apiKey == "" {
		return nil, llm.NewError(llm.CodeMissingCredentials,
			"Set the speech API key before generating audio.")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = strings.TrimSpace(c.cfg.Model)
	}
	if model == "" {
		model = defaultSpeechModel
	}
	voice := strings.TrimSpace(opts.Voice)
	if voice == "" {
		voice = strings.TrimSpace(c.cfg.Voice)
	}
	if voice == "" {
		voice = defaultSpeechVoice
	}

	generationConfig := map[string]any{
		"responseModalities": []string{"AUDIO"},
		"speechConfig": map[string]any{
			"voiceConfig": map[string]any{
				"prebuiltVoiceConfig": map[string]string{"voiceName": voice},
			},
		},
	}
	body := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": text}}},
		},
		"generationConfig": generationConfig,
	}

	endpoint := generateContentURL(c.cfg.Endpoint, model)
	query := url.Values{"key": []string{apiKey}}
	respBody, status, _, err := llm.PostJSON(ctx, c.doer, endpoint, query, nil, body, speechTimeout)
	if err != nil {
		return nil, llm.WrapError(llm.CodeConnection,
			"ConnectionError, could not access the Google Gemini speech service.", err)
	}

	switch {
	case status == http.StatusUnauthorized:
		return nil, llm.NewError(llm.CodeUnauthorized,
			`Received an "Unauthorized" response; your speech API key is probably invalid.`)
	case status == http.StatusTooManyRequests:
		return nil, llm.NewError(llm.CodeRateLimit,
			`Received a "429 Too Many Requests" response from the Gemini speech endpoint.`)
	case status == http.StatusBadRequest:
		return nil, llm.NewError(llm.CodeBadRequest,
			fmt.Sprintf("Request rejected by the Gemini speech endpoint. Adjust the model, "+
				"voice, or input text.\nGemini response: %s", respBody))
	case status < 200 || status > 299:
		return nil, llm.NewError(llm.CodeGeneric,
			fmt.Sprintf("Speech request failed: %d %s\n%s", status, http.StatusText(status), respBody))
	}

	var envelope contentEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil || len(envelope.Candidates) == 0 {
		return nil, llm.WrapError(llm.CodeAudioMissingData,
			"Gemini speech response is missing audio content.", err)
	}
	for _, part := range envelope.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, llm.WrapError(llm.CodeAudioMissingData,
				"Failed to decode Gemini audio data.", err)
		}
		data, format := finalizeAudio(raw, part.InlineData.MimeType)
		return &llm.SpeechResult{Data: data, Format: format}, nil
	}
	return nil, llm.NewError(llm.CodeAudioMissingData,
		"Gemini speech response did not include inline audio data.")
}
