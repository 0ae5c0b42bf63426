// Package gemini implements the text, image, and speech clients for Google's
// generateContent API. Unlike the other adapters, the text client retries
// rate-limited requests internally with exponential backoff, because Gemini's
// free tier throttles aggressively enough that surfacing every 429 would make
// batches unusable.
package gemini

import (
	"context"
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
	serviceName     = "Google Gemini"
	defaultBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	requestTimeout  = 30 * time.Second
	maxOutputTokens = 1024

	// maxRetries bounds the internal 429 retry loop; the backoff doubles per
	// attempt starting from baseBackoff.
	maxRetries  = 5
	baseBackoff = 4 * time.Second
)

// Client calls the generateContent endpoint with a JSON response schema and
// parses the first candidate's text part.
type Client struct {
	cfg      llm.PromptConfig
	doer     llm.Doer
	throttle *llm.Throttle
	clock    llm.Clock
	logger   *slog.Logger
}

var _ llm.Client = (*Client)(nil)

// NewClient creates a Gemini client. A nil doer defaults to
// http.DefaultClient; a nil logger defaults to slog.Default().
func NewClient(cfg llm.PromptConfig, doer llm.Doer, logger *slog.Logger) *Client {
	return newClient(cfg, doer, logger, llm.RealClock())
}

// NewClientWithClock creates a Gemini client on the given clock so the
// backoff loop is testable without real timers.
func NewClientWithClock(cfg llm.PromptConfig, doer llm.Doer, logger *slog.Logger, clock llm.Clock) *Client {
	return newClient(cfg, doer, logger, clock)
}

func newClient(cfg llm.PromptConfig, doer llm.Doer, logger *slog.Logger, clock llm.Clock) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		doer:     doer,
		throttle: llm.NewThrottleWithClock(clock),
		clock:    clock,
		logger:   logger,
	}
}

// Config returns the prompt configuration the client was built with.
func (c *Client) Config() llm.PromptConfig { return c.cfg }

// Throttle exposes the client's pacing state for tests.
func (c *Client) Throttle() *llm.Throttle { return c.throttle }

type contentEnvelope struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
				// InlineData carries binary payloads for image and audio
				// modalities.
				InlineData *inlineData `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// generateContentURL resolves the endpoint for a model, honoring a
// user-configured base override. Overrides may point at the API root or at a
// .../models base; a full :generateContent URL is used verbatim.
func generateContentURL(override, model string) string {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	base := strings.TrimSpace(override)
	if base == "" {
		return fmt.Sprintf("%s/models/%s:generateContent", defaultBaseURL, model)
	}
	if strings.HasSuffix(base, ":generateContent") {
		return base
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/models") {
		return fmt.Sprintf("%s/%s:generateContent", base, model)
	}
	return fmt.Sprintf("%s/models/%s:generateContent", base, model)
}

// Call implements llm.Client. On 429 it retries internally up to maxRetries
// attempts with exponential backoff, raising rate_limit only after the
// attempts are exhausted.
func (c *Client) Call(ctx context.Context, prompts []string) (map[string]string, error) {
	if len(prompts) == 0 {
		return nil, llm.NewError(llm.CodeInvalidInput, "Empty list of prompts given")
	}

	userInput := strings.Join(prompts, "\n\n")
	generationConfig := llm.GeminiGenerationConfig(c.cfg.ResponseKeys)
	generationConfig["maxOutputTokens"] = maxOutputTokens
	body := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": userInput}}},
		},
		"generationConfig": generationConfig,
	}
	if c.cfg.SystemPrompt != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": c.cfg.SystemPrompt}},
		}
	}

	endpoint := generateContentURL(c.cfg.Endpoint, c.cfg.Model)
	query := url.Values{"key": []string{c.cfg.APIKey}}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, llm.WrapError(llm.CodeGeneric, "Request cancelled while rate limited.", err)
		}

		respBody, status, _, err := llm.PostJSON(ctx, c.doer, endpoint, query, nil, body, requestTimeout)
		if err != nil {
			return nil, llm.WrapError(llm.CodeConnection,
				fmt.Sprintf("ConnectionError, could not access the %s service.\n"+
					"Are you sure you have an internet connection?", serviceName), err)
		}

		switch {
		case status >= 200 && status <= 299:
			c.throttle.Reset()
			return parseContentText(respBody)
		case status == http.StatusUnauthorized:
			return nil, llm.NewError(llm.CodeUnauthorized,
				`Received an "Unauthorized" response; your API key is probably invalid.`)
		case status == http.StatusTooManyRequests:
			retryAfter := baseBackoff * (1 << attempt)
			c.throttle.Throttled(retryAfter, 500*time.Millisecond)
			c.logger.Warn("provider rate limited, backing off",
				"service", serviceName,
				"attempt", attempt+1,
				"max_attempts", maxRetries,
				"retry_after", retryAfter)
			if attempt == maxRetries-1 {
				return nil, &llm.Error{
					Code: llm.CodeRateLimit,
					Message: fmt.Sprintf(`Received a "429 Client Error: Too Many Requests" response. `+
						"And did not succeed after %d retries. The Gemini error is: %d %s\n%s",
						maxRetries, status, http.StatusText(status), respBody),
					RetryAfter: retryAfter,
				}
			}
		case status == http.StatusBadRequest:
			return nil, llm.NewError(llm.CodeBadRequest,
				fmt.Sprintf("Bad Request (400): %s\nThis might be due to invalid model name, "+
					"malformed request, or unsupported features.", llm.ExtractAPIErrorMessage(respBody)))
		default:
			return nil, llm.NewError(llm.CodeGeneric,
				fmt.Sprintf("Error: %d %s\n%s", status, http.StatusText(status), respBody))
		}
	}

	return nil, llm.NewError(llm.CodeGeneric, "Code is unreachable.")
}

// parseContentText extracts candidates[0].content.parts[0].text and decodes
// it as the structured key/value object.
func parseContentText(body []byte) (map[string]string, error) {
	var envelope contentEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Candidates) == 0 {
		return nil, llm.WrapError(llm.CodeBadRequest,
			"Gemini API response is missing 'candidates'.", err)
	}
	parts := envelope.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return nil, llm.NewError(llm.CodeBadRequest,
			"Gemini API response candidate is missing 'content' or 'parts'.")
	}
	result, err := llm.DecodeKeyValues([]byte(parts[0].Text))
	if err != nil {
		return nil, llm.WrapError(llm.CodeBadRequest,
			fmt.Sprintf("Failed to parse JSON from Gemini response. Raw content: %s", parts[0].Text), err)
	}
	return result, nil
}
