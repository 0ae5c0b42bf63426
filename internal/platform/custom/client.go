// Package custom implements a generic text client for user-specified LLM
// endpoints. The endpoint may speak the OpenAI chat-completions envelope or
// return a bare JSON object matching the configured response keys directly.
package custom

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

// requestTimeout is longer than the hosted providers' since custom endpoints
// are often self-hosted models with slow first-token latency.
const requestTimeout = 60 * time.Second

// Client posts prompts to a user-configured endpoint.
type Client struct {
	cfg    llm.PromptConfig
	doer   llm.Doer
	logger *slog.Logger
}

var _ llm.Client = (*Client)(nil)

// NewClient creates a custom-endpoint client. A nil doer defaults to
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

// Call implements llm.Client.
func (c *Client) Call(ctx context.Context, prompts []string) (map[string]string, error) {
	if len(prompts) == 0 {
		return nil, llm.NewError(llm.CodeInvalidInput, "Empty list of prompts given")
	}

	endpoint := strings.TrimSpace(c.cfg.Endpoint)
	if endpoint == "" {
		return nil, llm.NewError(llm.CodeInvalidInput,
			"Custom endpoint is missing. Please update the settings and try again.")
	}

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}

	var messages []map[string]string
	if c.cfg.SystemPrompt != "" {
		messages = append(messages, map[string]string{
			"role": "system", "content": c.cfg.SystemPrompt,
		})
	}
	for _, p := range prompts {
		messages = append(messages, map[string]string{"role": "user", "content": p})
	}
	body := map[string]any{"messages": messages}
	if c.cfg.Model != "" {
		body["model"] = c.cfg.Model
	}

	respBody, status, _, err := llm.PostJSON(ctx, c.doer, endpoint, nil, headers, body, requestTimeout)
	if err != nil {
		return nil, llm.WrapError(llm.CodeConnection,
			"Could not reach the custom endpoint. Verify the URL and network access.", err)
	}
	if status >= 400 {
		return nil, llm.NewError(llm.CodeBadRequest,
			fmt.Sprintf("Custom endpoint returned an error: %d %s\n%s",
				status, http.StatusText(status), respBody))
	}

	return parseFlexibleResponse(respBody)
}

// parseFlexibleResponse accepts either an OpenAI-shaped envelope, whose first
// choice's message content is parsed as JSON, or a bare JSON object mapping
// the configured keys to values.
func parseFlexibleResponse(body []byte) (map[string]string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, llm.WrapError(llm.CodeBadRequest,
			"Custom endpoint did not return valid JSON. Ensure the response body "+
				"is a JSON object that matches your configured keys.", err)
	}

	if _, hasChoices := probe["choices"]; hasChoices {
		var envelope struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Choices) == 0 {
			return nil, llm.WrapError(llm.CodeBadRequest,
				"Unexpected OpenAI-style response shape returned by the custom endpoint.", err)
		}
		result, err := llm.DecodeKeyValues([]byte(envelope.Choices[0].Message.Content))
		if err != nil {
			return nil, llm.WrapError(llm.CodeBadRequest,
				"Could not parse JSON from the message content returned by the endpoint.", err)
		}
		return result, nil
	}

	return llm.DecodeKeyValues(body)
}
