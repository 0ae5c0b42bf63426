package gemini

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saccohuo/anki-ai-field-generator/internal/fakeprovider"
	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
)

const contentRoute = "/models/{model}"

// fakeClock advances instantly instead of sleeping, so the backoff loop is
// observable without real timers.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
		c.slept = append(c.slept, d)
	}
	return nil
}

func (c *fakeClock) sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

func newTestClient(server *fakeprovider.Server, clock llm.Clock) *Client {
	cfg := llm.PromptConfig{
		APIKey:       "gm-test",
		Endpoint:     server.URL,
		Model:        "gemini-2.0-flash",
		SystemPrompt: "You are a translator.",
		UserPrompt:   "Translate {word}.",
		ResponseKeys: []string{"translation"},
	}
	if clock == nil {
		return NewClient(cfg, nil, nil)
	}
	return NewClientWithClock(cfg, nil, nil, clock)
}

func TestGenerateContentURL(t *testing.T) {
	tests := []struct {
		name     string
		override string
		model    string
		want     string
	}{
		{
			name:  "default base",
			model: "gemini-2.0-flash",
			want:  defaultBaseURL + "/models/gemini-2.0-flash:generateContent",
		},
		{
			name:     "api root override",
			override: "https://proxy.example/v1beta",
			model:    "gemini-2.0-flash",
			want:     "https://proxy.example/v1beta/models/gemini-2.0-flash:generateContent",
		},
		{
			name:     "models base override",
			override: "https://proxy.example/v1beta/models/",
			model:    "gemini-2.0-flash",
			want:     "https://proxy.example/v1beta/models/gemini-2.0-flash:generateContent",
		},
		{
			name:     "full URL used verbatim",
			override: "https://proxy.example/custom:generateContent",
			model:    "ignored",
			want:     "https://proxy.example/custom:generateContent",
		},
		{
			name:  "models/ model prefix stripped",
			model: "models/gemini-2.0-flash",
			want:  defaultBaseURL + "/models/gemini-2.0-flash:generateContent",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, generateContentURL(tc.override, tc.model))
		})
	}
}

func TestCallHappyPath(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(contentRoute, fakeprovider.GenerateContentText(`{"translation":"tree"}`))

	client := newTestClient(server, nil)
	result, err := client.Call(context.Background(), []string{"Translate Baum."})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"translation": "tree"}, result)

	call := server.LastCall()
	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", call.Path)
	assert.Equal(t, "gm-test", call.Query.Get("key"),
		"Gemini auth is the API key as a query parameter")
	require.Contains(t, call.Body, "generationConfig")
	genConfig := call.Body["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", genConfig["responseMimeType"])
	require.Contains(t, call.Body, "systemInstruction")
}

func TestCallRetriesRateLimitThenSucceeds(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(contentRoute, fakeprovider.Sequence(
		fakeprovider.RateLimited(0),
		fakeprovider.GenerateContentText(`{"translation":"tree"}`),
	))

	clock := newFakeClock()
	client := newTestClient(server, clock)
	result, err := client.Call(context.Background(), []string{"x"})

	require.NoError(t, err, "One 429 must be absorbed by the internal retry loop")
	assert.Equal(t, "tree", result["translation"])
	assert.Equal(t, 2, server.CallCount())

	sleeps := clock.sleeps()
	require.Len(t, sleeps, 1)
	assert.Equal(t, baseBackoff+500*time.Millisecond, sleeps[0],
		"First backoff is the base delay")
}

func TestCallRateLimitExhaustsRetries(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(contentRoute, fakeprovider.RateLimited(0))

	clock := newFakeClock()
	client := newTestClient(server, clock)
	_, err := client.Call(context.Background(), []string{"x"})

	require.Error(t, err)
	assert.Equal(t, llm.CodeRateLimit, llm.CodeOf(err))
	assert.Equal(t, maxRetries, server.CallCount(),
		"Exactly the documented number of attempts before surfacing rate_limit")

	sleeps := clock.sleeps()
	require.Len(t, sleeps, maxRetries-1)
	for i := 1; i < len(sleeps); i++ {
		assert.Equal(t, 2*(sleeps[i-1]-500*time.Millisecond)+500*time.Millisecond, sleeps[i],
			"Backoff doubles per attempt")
	}
}

func TestCallErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode llm.Code
	}{
		{name: "401 unauthorized", status: 401, wantCode: llm.CodeUnauthorized},
		{name: "400 bad request", status: 400, wantCode: llm.CodeBadRequest},
		{name: "503 generic", status: 503, wantCode: llm.CodeGeneric},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := fakeprovider.New()
			defer server.Close()
			server.Handle(contentRoute, fakeprovider.APIError(tc.status, "nope"))

			client := newTestClient(server, newFakeClock())
			_, err := client.Call(context.Background(), []string{"x"})

			require.Error(t, err)
			assert.Equal(t, tc.wantCode, llm.CodeOf(err))
			assert.Equal(t, 1, server.CallCount(),
				"Only 429 is retried internally")
		})
	}
}

func TestCallBadRequestExtractsMessage(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(contentRoute, fakeprovider.APIError(400, "Invalid model name"))

	client := newTestClient(server, nil)
	_, err := client.Call(context.Background(), []string{"x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid model name")
}

func TestCallEmptyPrompts(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()

	client := newTestClient(server, nil)
	_, err := client.Call(context.Background(), nil)

	require.Error(t, err)
	assert.Equal(t, llm.CodeInvalidInput, llm.CodeOf(err))
}

func TestCallMissingCandidates(t *testing.T) {
	server := fakeprovider.New()
	defer server.Close()
	server.Handle(contentRoute, fakeprovider.GenerateContentText(""))

	client := newTestClient(server, nil)
	_, err := client.Call(context.Background(), []string{"x"})

	require.Error(t, err)
	assert.Equal(t, llm.CodeBadRequest, llm.CodeOf(err))
}
