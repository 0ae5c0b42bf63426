// Package anthropic implements the text client for Anthropic's messages API.
// Structured output is obtained by forcing a single tool call whose input
// schema matches the configured response keys, so the tool input already is
// the structured object and no text parsing is needed.
package anthropic

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
	serviceName     = "Anthropic"
	defaultEndpoint = "https://api.anthropic.com/v1/messages"
	apiVersion      = "2023-06-01"
	maxTokens       = 1024
	requestTimeout  = 30 * time.Second

	successJitter     = 50 * time.Millisecond
	defaultRetryAfter = 20 * time.Second
)

// Client calls the messages endpoint with a forced tool choice.
type Client struct {
	cfg      llm.PromptConfig
	doer     llm.Doer
	throttle *llm.Throttle
	logger   *slog.Logger
}

var _ llm.Client = (*Client)(nil)

// NewClient creates an Anthropic client. A nil doer defaults to
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

type messagesEnvelope struct {
	Content []struct {
		Input json.RawMessage `json:"input"`
	} `json:"content"`
}

// Call implements llm.Client.
func (c *Client) Call(ctx context.Context, prompts []string) (map[string]string, error) {
	if len(prompts) == 0 {
		return nil, llm.NewError(llm.CodeInvalidInput, "Empty list of prompts given")
	}

	userInput := strings.Join(prompts, "\n\n")
	body := map[string]any{
		"model": c.cfg.Model,
		"tools": llm.AnthropicTools(c.cfg.ResponseKeys),
		// Name must match the tool built by llm.AnthropicTools.
		"tool_choice": map[string]string{"type": "tool", "name": "response"},
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]string{
					{"type": "text", "text": userInput},
				},
			},
		},
		"system":     c.cfg.SystemPrompt,
		"max_tokens": maxTokens,
	}

	if err := c.throttle.Wait(ctx); err != nil {
		return nil, llm.WrapError(llm.CodeGeneric, "Request cancelled while rate limited.", err)
	}

	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	respBody, status, header, err := llm.PostJSON(ctx, c.doer, endpoint, nil, map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": apiVersion,
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
		c.throttle.Throttled(retryAfter, successJitter)
		c.logger.Warn("provider rate limited",
			"service", serviceName, "retry_after", retryAfter)
		return nil, &llm.Error{
			Code: llm.CodeRateLimit,
			Message: fmt.Sprintf(`Received a "429 Client Error: Too Many Requests" response. `+
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
	return parseToolInput(respBody)
}

// parseToolInput extracts content[0].input, which the forced tool choice
// guarantees is the structured key/value object.
func parseToolInput(body []byte) (map[string]string, error) {
	var envelope messagesEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Content) == 0 {
		return nil, llm.WrapError(llm.CodeBadRequest,
			"Unexpected response shape: no tool content in the provider response.", err)
	}
	return llm.DecodeKeyValues(envelope.Content[0].Input)
}
