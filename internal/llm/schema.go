package llm

// Response schema builders. Each provider accepts a different envelope for
// "return a JSON object with exactly these string keys"; these helpers build
// the documented wire shapes from the configured response keys.

// keysAsProperties converts response keys into a JSON-schema properties map
// where every key is a string property.
func keysAsProperties(keys []string) map[string]any {
	props := make(map[string]any, len(keys))
	for _, key := range keys {
		props[key] = map[string]any{"type": "string"}
	}
	return props
}

// OpenAIResponseFormat builds the chat-completions response_format parameter
// requesting strict JSON-schema output.
func OpenAIResponseFormat(keys []string) map[string]any {
	return map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   "response",
			"strict": true,
			"schema": map[string]any{
				"type":                 "object",
				"properties":           keysAsProperties(keys),
				"required":             keys,
				"additionalProperties": false,
			},
		},
	}
}

// GeminiGenerationConfig builds the generateContent generationConfig object
// with a response schema hint.
func GeminiGenerationConfig(keys []string) map[string]any {
	return map[string]any{
		"responseMimeType": "application/json",
		"responseSchema": map[string]any{
			"type":       "object",
			"properties": keysAsProperties(keys),
			"required":   keys,
		},
	}
}

// AnthropicTools builds the single forced tool whose input schema matches the
// response keys. Tool use forces schema compliance, so the tool input is the
// structured result with no text parsing needed. The tool name must match the
// tool_choice sent with the request.
func AnthropicTools(keys []string) []map[string]any {
	return []map[string]any{
		{
			"name":        "response",
			"description": "Response to the user's request using well-structured JSON.",
			"input_schema": map[string]any{
				"type":       "object",
				"properties": keysAsProperties(keys),
				"required":   keys,
			},
		},
	}
}
