package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
)

const (
	// DefaultImageModel is used when no image model is configured.
	DefaultImageModel = "gemini-2.5-flash-image"

	imageTimeout = 60 * time.Second
)

// permissiveSafetySettings disables content blocking on image generation;
// flashcard prompts routinely trip overly cautious default filters.
var permissiveSafetySettings = []map[string]string{
	{"category": "HARM_CATEGORY_DANGEROUS_CONTENT", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_HARASSMENT", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_HATE_SPEECH", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_SEXUALLY_EXPLICIT", "threshold": "BLOCK_NONE"},
}

var _ llm.ImageClient = (*Client)(nil)

// GenerateImage implements llm.ImageClient using generateContent with the
// IMAGE response modality. The returned bytes are the decoded inline image
// payload (PNG for current models).
func (c *Client) GenerateImage(ctx context.Context, prompt string, model string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, llm.NewError(llm.CodeInvalidInput, "Image prompt is empty.")
	}
	if c.cfg.APIKey == "" {
		return nil, llm.NewError(llm.CodeMissingCredentials,
			"Gemini API key is required for image generation.")
	}

	imageModel := strings.TrimSpace(model)
	if imageModel == "" {
		imageModel = c.cfg.Model
	}
	if imageModel == "" {
		imageModel = DefaultImageModel
	}

	endpoint := generateContentURL(c.cfg.Endpoint, imageModel)
	query := url.Values{"key": []string{c.cfg.APIKey}}
	body := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{"responseModalities": []string{"IMAGE"}},
		"safetySettings":   permissiveSafetySettings,
	}

	respBody, status, _, err := llm.PostJSON(ctx, c.doer, endpoint, query, nil, body, imageTimeout)
	if err != nil {
		return nil, llm.WrapError(llm.CodeConnection,
			"Could not connect to Gemini image generation service.", err)
	}

	switch {
	case status == http.StatusUnauthorized:
		return nil, llm.NewError(llm.CodeUnauthorized,
			fmt.Sprintf("Gemini image generation returned Unauthorized; check your API key.\n%s", respBody))
	case status == http.StatusTooManyRequests:
		return nil, llm.NewError(llm.CodeRateLimit,
			fmt.Sprintf("Gemini image generation hit a rate limit. Please try again later.\n%s", respBody))
	case status >= 400 && status <= 499:
		return nil, llm.NewError(llm.CodeBadRequest,
			fmt.Sprintf("Gemini image generation failed with %d: %s.\n%s",
				status, http.StatusText(status), respBody))
	case status < 200 || status > 299:
		return nil, llm.NewError(llm.CodeGeneric,
			fmt.Sprintf("Gemini image generation failed with %d: %s.\n%s",
				status, http.StatusText(status), respBody))
	}

	var envelope contentEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil || len(envelope.Candidates) == 0 {
		return nil, llm.WrapError(llm.CodeImageMissingData,
			"Gemini image generation response did not include image data.", err)
	}
	for _, part := range envelope.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, llm.WrapError(llm.CodeImageDecode,
				"Failed to decode Gemini image data.", err)
		}
		return decoded, nil
	}
	return nil, llm.NewError(llm.CodeImageMissingData,
		"Gemini image generation response did not include inline image data.")
}
