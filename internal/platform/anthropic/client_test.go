package anthropic

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saccohuo/anki-ai-field-generator/internal/fakeprovider"
	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
)

const messagesRoute = "/v1/messages"

func newTestClient(server *fakeprovider.Server) *Client {
	return NewClient(llm.PromptConfig{
		APIKey:       "sk-ant-test",
		Endpoint:     server.URL + messagesRoute,
		Model:        "claude-sonnet-4-20250514",
		SystemPrompt: "You are a translator.",
		UserPrompt:   "Translate {word}.",
		ResponseKeys: []string{"translation", "example"},
	}, nil, nil)
}

func TestCallHappyPath(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(messagesRoute, fakeprovider.ToolUse(map[string]any{
		"translation": "tree",
		"example":     "Der Baum ist groß.",
	}))

	client := newTestClient(server)
	result, err := client.Call(context.Background(), []string{"Translate Baum."})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"translation": "tree",
		"example":     "Der Baum ist groß.",
	}, result, "The tool input already is the structured object")

	call := server.LastCall()
	assert.Equal(t, "sk-ant-test", call.Header.Get("x-api-key"),
		"Anthropic auth is a custom header, not a bearer token")
	assert.Equal(t, apiVersion, call.Header.Get("anthropic-version"))
	assert.Empty(t, call.Header.Get("Authorization"))

	toolChoice, ok := call.Body["tool_choice"].(map[string]any)
	require.True(t, ok, "The tool choice must be forced")
	assert.Equal(t, "tool", toolChoice["type"])
	assert.Equal(t, "response", toolChoice["name"])

	tools := call.Body["tools"].([]any)
	require.Len(t, tools, 1)
	schema := tools[0].(map[string]any)["input_schema"].(map[string]any)
	assert.ElementsMatch(t, []any{"translation", "example"}, schema["required"].([]any))
	assert.Equal(t, "You are a translator.", call.Body["system"])
	assert.Equal(t, float64(maxTokens), call.Body["max_tokens"])
}

func TestCallEmptyPrompts(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()

	client := newTestClient(server)
	_, err := client.Call(context.Background(), []string{})

	require.Error(t, err)
	assert.Equal(t, llm.CodeInvalidInput, llm.CodeOf(err))
	assert.Zero(t, server.CallCount())
}

func TestCallErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode llm.Code
	}{
		{name: "401 unauthorized", status: 401, wantCode: llm.CodeUnauthorized},
		{name: "400 bad request", status: 400, wantCode: llm.CodeBadRequest},
		{name: "529 overloaded", status: 529, wantCode: llm.CodeGeneric},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := fakeprovider.New()
			defer server.Close()
			server.Handle(messagesRoute, fakeprovider.APIError(tc.status, "nope"))

			client := newTestClient(server)
			_, err := client.Call(context.Background(), []string{"x"})

			require.Error(t, err)
			assert.Equal(t, tc.wantCode, llm.CodeOf(err))
		})
	}
}

func TestCallRateLimit(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(messagesRoute, fakeprovider.RateLimited(30))

	client := newTestClient(server)
	_, err := client.Call(context.Background(), []string{"x"})

	require.Error(t, err)
	var provErr *llm.Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, llm.CodeRateLimit, provErr.Code)
	assert.Equal(t, 30*time.Second, provErr.RetryAfter)
	assert.Equal(t, 30*time.Second, client.Throttle().RetryAfter())
	assert.Equal(t, 1, server.CallCount(), "No internal retry on 429")
}

func TestCallMissingToolContent(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(messagesRoute, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content": []}`))
	})

	client := newTestClient(server)
	_, err := client.Call(context.Background(), []string{"x"})

	require.Error(t, err)
	assert.Equal(t, llm.CodeBadRequest, llm.CodeOf(err))
}
