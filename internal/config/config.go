package config

import (
	"strings"
	"time"

	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
	"github.com/saccohuo/anki-ai-field-generator/internal/mapping"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Provider   ProviderConfig   `mapstructure:"provider" validate:"required"`
	Text       TextConfig       `mapstructure:"text"`
	Image      ImageConfig      `mapstructure:"image"`
	Audio      AudioConfig      `mapstructure:"audio"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Collection CollectionConfig `mapstructure:"collection" validate:"required"`
}

// LoggerConfig contains the logging settings.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// ProviderConfig contains the text-generation provider settings: which
// provider to use, how to authenticate, and the prompt configuration.
type ProviderConfig struct {
	Name   string `mapstructure:"name"   validate:"required,oneof=openai claude gemini deepseek custom"`
	APIKey string `mapstructure:"api_key"`

	// Endpoint overrides the provider's default URL when set. Required for
	// the custom provider.
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`

	Model        string   `mapstructure:"model"`
	SystemPrompt string   `mapstructure:"system_prompt"`
	UserPrompt   string   `mapstructure:"user_prompt" validate:"required"`
	ResponseKeys []string `mapstructure:"response_keys"`

	// MissingFieldIsError turns a note lacking a template field into a run
	// error instead of a silent skip.
	MissingFieldIsError bool `mapstructure:"missing_field_is_error"`
}

// TextConfig maps response keys to destination note fields.
type TextConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Entries []mapping.TextEntry `mapstructure:"entries" validate:"dive"`
}

// ImageConfig contains the image-generation settings. The provider selection
// is symmetric with text generation; an empty provider defaults to Gemini.
type ImageConfig struct {
	Enabled  bool                 `mapstructure:"enabled"`
	Provider string               `mapstructure:"provider" validate:"omitempty,oneof=openai claude gemini deepseek custom"`
	APIKey   string               `mapstructure:"api_key"`
	Endpoint string               `mapstructure:"endpoint" validate:"omitempty,url"`
	Model    string               `mapstructure:"model"`
	Entries  []mapping.MediaEntry `mapstructure:"entries" validate:"dive"`
}

// AudioConfig contains the speech-synthesis settings.
type AudioConfig struct {
	Enabled  bool                 `mapstructure:"enabled"`
	Provider string               `mapstructure:"provider" validate:"omitempty,oneof=openai gemini"`
	APIKey   string               `mapstructure:"api_key"`
	Endpoint string               `mapstructure:"endpoint" validate:"omitempty,url"`
	Model    string               `mapstructure:"model"`
	Voice    string               `mapstructure:"voice"`
	Format   string               `mapstructure:"format" validate:"omitempty,oneof=wav mp3 ogg aac opus flac pcm"`
	Entries  []mapping.MediaEntry `mapstructure:"entries" validate:"dive"`
}

// RetryConfig bounds how often retryable provider failures (connection loss,
// rate limits, missing media data) are reattempted before a run halts.
type RetryConfig struct {
	Limit        int     `mapstructure:"limit" validate:"omitempty,gte=1"`
	DelaySeconds float64 `mapstructure:"delay_seconds" validate:"omitempty,gt=0"`
}

// Delay returns the configured wait between retry attempts as a duration.
func (c RetryConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// CollectionConfig locates the Anki collection and the notes to process.
// Either NoteIDs or Query must select at least one note.
type CollectionConfig struct {
	Path string `mapstructure:"path" validate:"required"`

	// MediaDir is the collection.media directory; derived from Path when
	// empty.
	MediaDir string `mapstructure:"media_dir"`

	NoteIDs []int64 `mapstructure:"note_ids"`

	// Query is an optional SQL query against the collection returning the
	// note IDs to process, used instead of an explicit NoteIDs list.
	Query string `mapstructure:"query"`
}

// PromptConfig converts the provider settings into the immutable per-run
// snapshot the client adapters consume. The snapshot is taken once when a
// batch starts; later configuration edits never affect notes in flight.
func (c *Config) PromptConfig() llm.PromptConfig {
	return llm.PromptConfig{
		APIKey:       c.Provider.APIKey,
		Endpoint:     c.Provider.Endpoint,
		Model:        c.Provider.Model,
		SystemPrompt: c.Provider.SystemPrompt,
		UserPrompt:   c.Provider.UserPrompt,
		ResponseKeys: append([]string(nil), c.Provider.ResponseKeys...),
	}
}

// ImagePromptConfig builds the snapshot for the image-generation client.
// Credentials fall back to the text provider's when unset.
func (c *Config) ImagePromptConfig() llm.PromptConfig {
	apiKey := c.Image.APIKey
	if apiKey == "" {
		apiKey = c.Provider.APIKey
	}
	return llm.PromptConfig{
		APIKey:   apiKey,
		Endpoint: c.Image.Endpoint,
		Model:    c.Image.Model,
	}
}

// SpeechConfig builds the snapshot for the speech client. Credentials fall
// back to the text provider's when unset.
func (c *Config) SpeechConfig() llm.SpeechConfig {
	apiKey := c.Audio.APIKey
	if apiKey == "" {
		apiKey = c.Provider.APIKey
	}
	format := strings.ToLower(strings.TrimSpace(c.Audio.Format))
	return llm.SpeechConfig{
		APIKey:   apiKey,
		Endpoint: c.Audio.Endpoint,
		Model:    c.Audio.Model,
		Voice:    c.Audio.Voice,
		Format:   format,
	}
}
