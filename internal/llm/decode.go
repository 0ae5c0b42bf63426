package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DecodeKeyValues parses a provider's structured payload into the key/value
// response map. The configured schemas declare string properties, so values
// are expected to be strings; scalar values from loosely conforming endpoints
// are stringified, while nested arrays or objects are a contract violation.
func DecodeKeyValues(data []byte) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, WrapError(CodeBadRequest,
			"Could not parse a JSON object from the provider response.", err)
	}
	return coerceKeyValues(raw)
}

func coerceKeyValues(raw map[string]json.RawMessage) (map[string]string, error) {
	result := make(map[string]string, len(raw))
	for key, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			result[key] = s
			continue
		}
		var n float64
		if err := json.Unmarshal(value, &n); err == nil {
			result[key] = strconv.FormatFloat(n, 'f', -1, 64)
			continue
		}
		var b bool
		if err := json.Unmarshal(value, &b); err == nil {
			result[key] = strconv.FormatBool(b)
			continue
		}
		if string(value) == "null" {
			result[key] = ""
			continue
		}
		return nil, NewError(CodeBadRequest,
			fmt.Sprintf("Response key %q holds a nested value instead of a string.", key))
	}
	return result, nil
}
