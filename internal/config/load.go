package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional YAML file and FIELDGEN_-prefixed
// environment variables, with environment variables taking precedence.
// An empty path searches for fieldgen.yaml in the working directory.
// Returns a populated Config or an error when loading or validation fails.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("logger.level", "info")
	v.SetDefault("text.enabled", true)
	v.SetDefault("retry.limit", 50)
	v.SetDefault("retry.delay_seconds", 5.0)
	v.SetDefault("audio.format", "wav")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fieldgen")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FIELDGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine: everything can come from
		// the environment. An explicitly named file must exist.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct tags plus the
// cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Provider.Name == "custom" && cfg.Provider.Endpoint == "" {
		return fmt.Errorf("invalid configuration: provider.endpoint is required for the custom provider")
	}
	if len(cfg.Collection.NoteIDs) == 0 && cfg.Collection.Query == "" {
		return fmt.Errorf("invalid configuration: collection.note_ids or collection.query must select notes")
	}
	if cfg.Text.Enabled && len(cfg.Text.Entries) > 0 && len(cfg.Provider.ResponseKeys) == 0 {
		return fmt.Errorf("invalid configuration: provider.response_keys is required when text mapping entries are set")
	}
	return nil
}
