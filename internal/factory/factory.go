// Package factory constructs the correct provider client implementations
// from a provider-name string. It is the only package that knows about every
// adapter; the batch core works purely against the llm interfaces.
package factory

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
	"github.com/saccohuo/anki-ai-field-generator/internal/platform/anthropic"
	"github.com/saccohuo/anki-ai-field-generator/internal/platform/custom"
	"github.com/saccohuo/anki-ai-field-generator/internal/platform/deepseek"
	"github.com/saccohuo/anki-ai-field-generator/internal/platform/gemini"
	"github.com/saccohuo/anki-ai-field-generator/internal/platform/openai"
)

// Valid provider names accepted by NewClient.
var ValidProviders = []string{"openai", "claude", "gemini", "deepseek", "custom"}

// NewClient returns the text-generation client for the named provider.
func NewClient(provider string, cfg llm.PromptConfig, doer llm.Doer, logger *slog.Logger) (llm.Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return openai.NewClient(cfg, doer, logger), nil
	case "claude", "anthropic":
		return anthropic.NewClient(cfg, doer, logger), nil
	case "gemini":
		return gemini.NewClient(cfg, doer, logger), nil
	case "deepseek":
		return deepseek.NewClient(cfg, doer, logger), nil
	case "custom":
		return custom.NewClient(cfg, doer, logger), nil
	}
	return nil, fmt.Errorf("no LLM client implemented for %q", provider)
}

// NewImageClient returns the image-generation client for the named provider.
// The surface is symmetric with NewClient, but only Gemini currently exposes
// an image API; other names are an explicit error rather than a silent
// fallback. An empty name defaults to Gemini.
func NewImageClient(provider string, cfg llm.PromptConfig, doer llm.Doer, logger *slog.Logger) (llm.ImageClient, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "gemini":
		if cfg.Model == "" {
			cfg.Model = gemini.DefaultImageModel
		}
		return gemini.NewClient(cfg, doer, logger), nil
	case "openai", "claude", "anthropic", "deepseek", "custom":
		return nil, llm.NewError(llm.CodeInvalidInput,
			fmt.Sprintf("Image provider %q is not supported yet.", provider))
	}
	return nil, fmt.Errorf("no image client implemented for %q", provider)
}

// NewSpeechClient returns the speech client matching the configuration.
// Provider selection follows the endpoint and model hints when no explicit
// provider name is given: googleapis endpoints and gemini-prefixed models
// choose the Gemini client, anything OpenAI-flavored (or unspecified)
// chooses the OpenAI client. A configuration without credentials returns
// nil with no error, meaning speech generation is not set up.
func NewSpeechClient(provider string, cfg llm.SpeechConfig, doer llm.Doer, logger *slog.Logger) (llm.SpeechClient, error) {
	if !cfg.HasCredentials() {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gemini":
		return gemini.NewSpeechClient(cfg, doer, logger), nil
	case "openai":
		return openai.NewSpeechClient(cfg, doer, logger), nil
	case "":
		// Fall through to the endpoint/model heuristics below.
	default:
		return nil, fmt.Errorf("no speech client implemented for %q", provider)
	}

	endpointHint := strings.ToLower(cfg.Endpoint)
	modelHint := strings.ToLower(cfg.Model)
	if strings.Contains(endpointHint, "generativelanguage") ||
		strings.Contains(endpointHint, "googleapis") ||
		strings.HasPrefix(modelHint, "gemini") {
		return gemini.NewSpeechClient(cfg, doer, logger), nil
	}
	if strings.Contains(endpointHint, "openai") ||
		strings.HasPrefix(modelHint, "gpt") ||
		strings.HasPrefix(modelHint, "o1") ||
		endpointHint == "" {
		return openai.NewSpeechClient(cfg, doer, logger), nil
	}
	return nil, nil
}
