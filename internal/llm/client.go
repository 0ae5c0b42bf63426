package llm

import (
	"context"
	"net/http"
)

// Doer is the minimal HTTP transport contract the adapters depend on.
// *http.Client satisfies it; tests substitute recorded transports.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the contract for a text-generation provider adapter.
// One implementation exists per provider, selected at construction time by
// the provider name.
type Client interface {
	// Call sends the prompts to the provider in a single request and returns
	// the structured key/value response. The prompts slice must be non-empty;
	// multiple prompts are joined with a blank-line separator.
	//
	// Errors are always *Error values carrying a taxonomy code: connection
	// failures, 401 unauthorized, 429 rate_limit, 400 bad_request (including
	// unparseable response payloads), and generic for any other non-2xx.
	Call(ctx context.Context, prompts []string) (map[string]string, error)

	// Config returns the prompt configuration the client was built with.
	Config() PromptConfig
}

// SpeechOptions carries the optional per-call overrides for speech synthesis.
// Zero values fall back to the client's configured defaults.
type SpeechOptions struct {
	Model  string
	Voice  string
	Format string
}

// SpeechResult is the outcome of one synthesis call. Format is the file
// extension of the returned container (for example "wav" or "mp3"), so the
// caller can name the media file it writes.
type SpeechResult struct {
	Data   []byte
	Format string
}

// SpeechClient is the contract for a text-to-speech provider adapter.
type SpeechClient interface {
	// GenerateSpeech converts text to audio bytes in a self-describing
	// container. Empty text is an invalid_input error; a missing API key is
	// missing_credentials; a response without decodable audio is
	// audio_missing_data.
	GenerateSpeech(ctx context.Context, text string, opts SpeechOptions) (*SpeechResult, error)
}

// ImageClient is the contract for an image-generation provider adapter.
type ImageClient interface {
	// GenerateImage converts a text prompt into image bytes. An empty prompt
	// is an invalid_input error; a response without inline image data is
	// image_missing_data.
	GenerateImage(ctx context.Context, prompt string, model string) ([]byte, error)
}
