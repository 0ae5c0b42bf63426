package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
)

const (
	defaultSpeechEndpoint = "https://api.openai.com/v1/audio/speech"
	defaultSpeechModel    = "gpt-4o-mini-tts"
	defaultSpeechVoice    = "alloy"
	defaultSpeechFormat   = "mp3"
	speechTimeout         = 60 * time.Second
)

// SpeechClient generates audio through the audio/speech endpoint. The
// response body is the raw audio container in the requested format.
type SpeechClient struct {
	cfg    llm.SpeechConfig
	doer   llm.Doer
	logger *slog.Logger
}

var _ llm.SpeechClient = (*SpeechClient)(nil)

// NewSpeechClient creates an OpenAI speech client.
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
	if !c.cfg.HasCredentials() {
		return nil, llm.NewError(llm.CodeMissingCredentials,
			"Set the speech API key before generating audio.")
	}

	model := firstNonEmpty(opts.Model, c.cfg.Model, defaultSpeechModel)
	voice := firstNonEmpty(opts.Voice, c.cfg.Voice, defaultSpeechVoice)
	format := strings.ToLower(firstNonEmpty(opts.Format, c.cfg.Format, defaultSpeechFormat))

	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultSpeechEndpoint
	}
	body := map[string]string{
		"model":  model,
		"input":  text,
		"voice":  voice,
		"format": format,
	}
	respBody, status, _, err := llm.PostJSON(ctx, c.doer, endpoint, nil, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, body, speechTimeout)
	if err != nil {
		return nil, llm.WrapError(llm.CodeConnection,
			"ConnectionError, could not access the OpenAI speech service.", err)
	}

	switch {
	case status == http.StatusUnauthorized:
		return nil, llm.NewError(llm.CodeUnauthorized,
			`Received an "Unauthorized" response; your speech API key is probably invalid.`)
	case status == http.StatusTooManyRequests:
		return nil, llm.NewError(llm.CodeRateLimit,
			`Received a "429 Too Many Requests" response from the speech endpoint.`)
	case status == http.StatusBadRequest:
		return nil, llm.NewError(llm.CodeBadRequest,
			"Request rejected by speech endpoint. Adjust the model, voice, or input text.")
	case status < 200 || status > 299:
		return nil, llm.NewError(llm.CodeGeneric,
			fmt.Sprintf("Speech request failed: %d %s\n%s", status, http.StatusText(status), respBody))
	}

	if len(respBody) == 0 {
		return nil, llm.NewError(llm.CodeAudioMissingData,
			"Speech provider returned no audio data.")
	}
	return &llm.SpeechResult{Data: respBody, Format: format}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
