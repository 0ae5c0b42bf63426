// Package fakeprovider hosts in-process stub provider endpoints for adapter
// tests: a chi-routed httptest server that records every request it receives
// and replies with canned provider wire shapes.
package fakeprovider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Call is one recorded inbound request.
type Call struct {
	Path   string
	Query  url.Values
	Header http.Header
	Body   map[string]any
}

// Server is a stub provider API. Register handlers with Handle, point a
// client's endpoint override at URL(), and inspect Calls afterwards.
type Server struct {
	*httptest.Server
	router chi.Router

	mu    sync.Mutex
	calls []Call
}

// New starts a stub server; it is shut down automatically via the returned
// server's Close, which callers should defer.
func New() *Server {
	router := chi.NewRouter()
	s := &Server{router: router}
	s.Server = httptest.NewServer(router)
	return s
}

// Handle registers a POST handler for the given chi route pattern. The
// request is recorded before the handler runs.
func (s *Server) Handle(pattern string, handler http.HandlerFunc) {
	s.router.Post(pattern, func(w http.ResponseWriter, r *http.Request) {
		call := Call{
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
		}
		_ = json.NewDecoder(r.Body).Decode(&call.Body)
		s.mu.Lock()
		s.calls = append(s.calls, call)
		s.mu.Unlock()
		handler(w, r)
	})
}

// Calls returns the recorded requests in arrival order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// LastCall returns the most recent recorded request, or a zero Call.
func (s *Server) LastCall() Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return Call{}
	}
	return s.calls[len(s.calls)-1]
}

// CallCount returns how many requests the server has received.
func (s *Server) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ChatCompletion writes an OpenAI-style chat-completions envelope whose
// first choice's message content is the given string.
func ChatCompletion(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}
}

// ToolUse writes an Anthropic-style messages envelope whose first content
// block is a tool_use with the given input object.
func ToolUse(input map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"content": []map[string]any{
				{"type": "tool_use", "name": "response", "input": input},
			},
		})
	}
}

// GenerateContentText writes a Gemini-style generateContent envelope whose
// first candidate part is the given text.
func GenerateContentText(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{
					"parts": []map[string]any{{"text": text}},
				}},
			},
		})
	}
}

// GenerateContentInline writes a Gemini-style generateContent envelope whose
// first candidate part carries base64 inline data of the given MIME type.
func GenerateContentInline(mimeType, base64Data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{
							"mimeType": mimeType,
							"data":     base64Data,
						}},
					},
				}},
			},
		})
	}
}

// RawBody writes raw bytes with the given content type, as the OpenAI speech
// endpoint does.
func RawBody(contentType string, data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}

// APIError writes the {"error":{"message":...}} body shared by the OpenAI
// and Gemini APIs with the given status.
func APIError(status int, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, map[string]any{
			"error": map[string]any{"message": message, "code": status},
		})
	}
}

// RateLimited writes a 429 with an optional Retry-After header value in
// seconds.
func RateLimited(retryAfterSeconds int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if retryAfterSeconds > 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds))
		}
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{"message": "rate limited", "code": 429},
		})
	}
}

// Sequence serves the given handlers in order, repeating the last one once
// the sequence is exhausted. Used to script a 429-then-success exchange.
func Sequence(handlers ...http.HandlerFunc) http.HandlerFunc {
	var mu sync.Mutex
	index := 0
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		h := handlers[len(handlers)-1]
		if index < len(handlers) {
			h = handlers[index]
			index++
		}
		mu.Unlock()
		h(w, r)
	}
}
