package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfigFile writes a YAML config to a temp directory and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fieldgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
provider:
  name: openai
  api_key: sk-test
  model: gpt-4o
  system_prompt: You are a translator.
  user_prompt: "Translate {word} into English."
  response_keys: [translation]
text:
  entries:
    - key: translation
      field: Back
      enabled: true
collection:
  path: /tmp/collection.anki2
  note_ids: [1]
`

// TestLoadDefaults verifies that unspecified settings fall back to the
// documented defaults.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalConfig))

	require.NoError(t, err, "Load() should succeed for a minimal valid config")
	require.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.Logger.Level, "Default log level should be 'info'")
	assert.Equal(t, 50, cfg.Retry.Limit, "Default retry limit should be 50")
	assert.Equal(t, 5*time.Second, cfg.Retry.Delay(), "Default retry delay should be 5s")
	assert.Equal(t, "wav", cfg.Audio.Format, "Default audio format should be wav")
	assert.True(t, cfg.Text.Enabled, "Text generation should default to enabled")
}

// TestLoadEnvironmentOverride verifies that FIELDGEN_-prefixed environment
// variables take precedence over file values.
func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("FIELDGEN_LOGGER_LEVEL", "debug")
	t.Setenv("FIELDGEN_PROVIDER_API_KEY", "sk-from-env")

	cfg, err := Load(writeConfigFile(t, minimalConfig))

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "sk-from-env", cfg.Provider.APIKey,
		"Environment variables should override file values")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err, "An explicitly named config file must exist")
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "unknown provider name",
			mutate:  func(cfg *Config) { cfg.Provider.Name = "mistral" },
			wantErr: "invalid configuration",
		},
		{
			name:    "missing user prompt",
			mutate:  func(cfg *Config) { cfg.Provider.UserPrompt = "" },
			wantErr: "invalid configuration",
		},
		{
			name: "custom provider requires an endpoint",
			mutate: func(cfg *Config) {
				cfg.Provider.Name = "custom"
				cfg.Provider.Endpoint = ""
			},
			wantErr: "provider.endpoint is required",
		},
		{
			name: "no note selection",
			mutate: func(cfg *Config) {
				cfg.Collection.NoteIDs = nil
				cfg.Collection.Query = ""
			},
			wantErr: "collection.note_ids or collection.query",
		},
		{
			name: "text entries without response keys",
			mutate: func(cfg *Config) {
				cfg.Provider.ResponseKeys = nil
			},
			wantErr: "provider.response_keys is required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfigFile(t, minimalConfig))
			require.NoError(t, err)

			tc.mutate(cfg)
			err = Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

// TestPromptConfigSnapshot verifies that the per-run snapshot is detached
// from the loaded configuration.
func TestPromptConfigSnapshot(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalConfig))
	require.NoError(t, err)

	snapshot := cfg.PromptConfig()
	cfg.Provider.ResponseKeys[0] = "mutated"

	assert.Equal(t, []string{"translation"}, snapshot.ResponseKeys,
		"Mutating the config after snapshotting must not affect a run in flight")
	assert.Equal(t, []string{"word"}, snapshot.RequiredFields())
}

func TestSpeechConfigFallsBackToProviderKey(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalConfig))
	require.NoError(t, err)

	speech := cfg.SpeechConfig()
	assert.Equal(t, "sk-test", speech.APIKey,
		"Audio credentials should fall back to the text provider's key")
	assert.Equal(t, "wav", speech.Format)
}
