// Package openai implements the text and speech clients for OpenAI's HTTP
// API (chat completions with strict JSON-schema output, and audio/speech).
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
)

const (
	serviceName     = "OpenAI"
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	requestTimeout  = 30 * time.Second

	// successJitter paces the request after a completed call so a burst of
	// notes does not immediately re-trip the provider's per-minute limits.
	successJitter = 500 * time.Millisecond

	// defaultRetryAfter applies when a 429 response has no Retry-After header.
	defaultRetryAfter = 20 * time.Second
)

// Client calls the chat-completions endpoint and parses the strict-schema
// JSON content of the first choice.
type Client struct {
	cfg      llm.PromptConfig
	doer     llm.Doer
	throttle *llm.Throttle
	logger   *slog.Logger
}

var _ llm.Client = (*Client)(nil)

// NewClient creates an OpenAI client. A nil doer defaults to
// http.DefaultClient; a nil logger defaults to slog.Default().
func NewClient(cfg llm.PromptConfig, doer llm.Doer, logger *slog.Logger) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		doer:     doer,
		throttle: llm.NewThrottle(),
		logger:   logger,
	}
}

// Config returns the prompt configuration the client was built with.
func (c *Client) Config() llm.PromptConfig { return c.cfg }

// Throttle exposes the client's pacing state for tests.
func (c *Client) Throttle() *llm.Throttle { return c.throttle }

type chatEnvelope struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Call implements llm.Client.
func (c *Client) Call(ctx context.Context, prompts []string) (map[string]string, error) {
	if len(prompts) == 0 {
		return nil, llm.NewError(llm.CodeInvalidInput, "Empty list of prompts given")
	}

	// Multiple prompts are joined so batched processing stays possible;
	// batch-of-one is the common case.
	userInput := strings.Join(prompts, "\n\n")
	messages := []map[string]string{
		{"role": "user", "content": userInput},
	}
	// Reasoning models reject the system role.
	if !strings.HasPrefix(c.cfg.Model, "o") {
		messages = append([]map[string]string{
			{"role": "system", "content": c.cfg.SystemPrompt},
		}, messages...)
	}
	body := map[string]any{
		"model":           c.cfg.Model,
		"messages":        messages,
		"response_format": llm.OpenAIResponseFormat(c.cfg.ResponseKeys),
	}

	if err := c.throttle.Wait(ctx); err != nil {
		return nil, llm.WrapError(llm.CodeGeneric, "Request cancelled while rate limited.", err)
	}

	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	respBody, status, header, err := llm.PostJSON(ctx, c.doer, endpoint, nil, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, body, requestTimeout)
	if err != nil {
		return nil, llm.WrapError(llm.CodeConnection,
			fmt.Sprintf("ConnectionError, could not access the %s service.\n"+
				"Are you sure you have an internet connection?", serviceName), err)
	}

	switch {
	case status == http.StatusUnauthorized:
		return nil, llm.NewError(llm.CodeUnauthorized,
			`Received an "Unauthorized" response; your API key is probably invalid.`)
	case status == http.StatusTooManyRequests:
		retryAfter := llm.ParseRetryAfter(header.Get("Retry-After"), defaultRetryAfter)
		c.throttle.Throttled(retryAfter, time.Second)
		c.logger.Warn("provider rate limited",
			"service", serviceName, "retry_after", retryAfter)
		return nil, &llm.Error{
			Code: llm.CodeRateLimit,
			Message: fmt.Sprintf(`Received a "429 Client Error: Too Many Requests" response. `+
				"On the lowest tier, you are rate limited to 3 requests per minute. "+
				"We will start sending one request every %d seconds.", int(retryAfter.Seconds())),
			RetryAfter: retryAfter,
		}
	case status == http.StatusBadRequest:
		return nil, llm.NewError(llm.CodeBadRequest,
			fmt.Sprintf("Bad Request (400): %s", llm.ExtractAPIErrorMessage(respBody)))
	case status < 200 || status > 299:
		return nil, llm.NewError(llm.CodeGeneric,
			fmt.Sprintf("Error: %d %s\n%s", status, http.StatusText(status), respBody))
	}

	c.throttle.Success(successJitter)
	return parseChatContent(respBody)
}

// parseChatContent extracts choices[0].message.content and decodes it as the
// structured key/value object.
func parseChatContent(body []byte) (map[string]string, error) {
	var envelope chatEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Choices) == 0 {
		return nil, llm.WrapError(llm.CodeBadRequest,
			"Unexpected response shape: no choices in the provider response.", err)
	}
	return llm.DecodeKeyValues([]byte(envelope.Choices[0].Message.Content))
}
