package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ParseRetryAfter interprets a Retry-After header value as a whole number of
// seconds, falling back when the header is missing or not numeric. HTTP-date
// values are not produced by the supported providers.
func ParseRetryAfter(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// PostJSON sends one JSON POST through the transport and returns the response
// body, status code, and headers. Query parameters are appended to the
// endpoint when given. Transport-level failures, including timeouts, are
// returned as-is for the caller to classify as connection errors.
func PostJSON(
	ctx context.Context,
	doer Doer,
	endpoint string,
	query url.Values,
	headers map[string]string,
	body any,
	timeout time.Duration,
) ([]byte, int, http.Header, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, nil, err
	}
	if len(query) > 0 {
		sep := "?"
		if u, parseErr := url.Parse(endpoint); parseErr == nil && u.RawQuery != "" {
			sep = "&"
		}
		endpoint += sep + query.Encode()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := doer.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, err
	}
	return respBody, resp.StatusCode, resp.Header, nil
}

// ExtractAPIErrorMessage pulls error.message out of the {"error":{"message"}}
// body shape shared by the OpenAI and Gemini APIs, falling back to the raw
// body text.
func ExtractAPIErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return string(body)
}
