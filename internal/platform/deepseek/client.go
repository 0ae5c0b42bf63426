// Package deepseek implements the text client for DeepSeek's
// OpenAI-compatible chat-completions API. Structured output uses the
// json_object response format rather than a strict schema, which DeepSeek
// does not support.
package deepseek

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
	serviceName     = "DeepSeek"
	defaultEndpoint = "https://api.deepseek.com/chat/completions"
	requestTimeout  = 30 * time.Second
)

// Client calls the chat-completions endpoint and parses the JSON content of
// the first choice.
type Client struct {
	cfg    llm.PromptConfig
	doer   llm.Doer
	logger *slog.Logger
}

var _ llm.Client = (*Client)(nil)

// NewClient creates a DeepSeek client. A nil doer defaults to
// http.DefaultClient; a nil logger defaults to slog.Default().
func NewClient(cfg llm.PromptConfig, doer llm.Doer, logger *slog.Logger) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, doer: doer, logger: logger}
}

// Config returns the prompt configuration the client was built with.
func (c *Client) Config() llm.PromptConfig { return c.cfg }

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

	userInput := strings.Join(prompts, "\n\n")
	body := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": c.cfg.SystemPrompt},
			{"role": "user", "content": userInput},
		},
		"response_format": map[string]string{"type": "json_object"},
	}

	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	respBody, status, _, err := llm.PostJSON(ctx, c.doer, endpoint, nil, map[string]string{
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
		return nil, llm.NewError(llm.CodeRateLimit,
			`Received a "429 Client Error: Too Many Requests" response; `+
				"you might be rate limited to 3 requests per minute.")
	case status == http.StatusBadRequest:
		return nil, llm.NewError(llm.CodeBadRequest,
			fmt.Sprintf("Bad Request (400): %s", llm.ExtractAPIErrorMessage(respBody)))
	case status < 200 || status > 299:
		return nil, llm.NewError(llm.CodeGeneric,
			fmt.Sprintf("Error: %d %s\n%s", status, http.StatusText(status), respBody))
	}

	var envelope chatEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil || len(envelope.Choices) == 0 {
		return nil, llm.WrapError(llm.CodeBadRequest,
			"Unexpected response shape: no choices in the provider response.", err)
	}
	return llm.DecodeKeyValues([]byte(envelope.Choices[0].Message.Content))
}
