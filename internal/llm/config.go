package llm

import (
	"github.com/saccohuo/anki-ai-field-generator/internal/prompt"
)

// PromptConfig is the immutable per-run snapshot of everything a provider
// client needs to build a request and interpret its response. It is
// constructed once per batch run from the loaded configuration and never
// mutated afterwards, so notes already in flight always see consistent
// settings.
type PromptConfig struct {
	APIKey string

	// Endpoint overrides the provider's default URL when non-empty.
	Endpoint string

	Model        string
	SystemPrompt string

	// UserPrompt is the template filled with note fields; placeholders use
	// {name} syntax.
	UserPrompt string

	// ResponseKeys are the JSON keys the provider is expected to return,
	// in configuration order.
	ResponseKeys []string
}

// RequiredFields returns the distinct placeholder names in the user prompt,
// in order of first appearance. A note lacking any of these fields cannot be
// processed.
func (c PromptConfig) RequiredFields() []string {
	return prompt.RequiredFields(c.UserPrompt)
}

// SpeechConfig is the immutable per-run snapshot for speech synthesis.
type SpeechConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Voice    string

	// Format is the requested audio container/extension, for example "mp3"
	// or "wav".
	Format string
}

// HasCredentials reports whether an API key is configured.
func (c SpeechConfig) HasCredentials() bool {
	return c.APIKey != ""
}
