package llm

import (
	"errors"
	"time"
)

// Code classifies provider failures so callers can decide whether an error
// is retryable, a configuration problem, or fatal to the run.
type Code string

// Possible error codes, shared by every provider adapter.
const (
	CodeGeneric            Code = "generic"
	CodeConnection         Code = "connection"
	CodeUnauthorized       Code = "unauthorized"
	CodeRateLimit          Code = "rate_limit"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeMissingCredentials Code = "missing_credentials"
	CodeImageMissingData   Code = "image_missing_data"
	CodeImageDecode        Code = "image_decode"
	CodeMediaWriteFailed   Code = "media_write_failed"
	CodeAudioMissingData   Code = "audio_missing_data"
)

// Error is the single error type raised by provider and speech clients.
// It carries a taxonomy code and a human-readable message that is surfaced
// to the user verbatim.
type Error struct {
	Code    Code
	Message string

	// RetryAfter is set on rate_limit errors when the provider supplied a
	// resume-after duration.
	RetryAfter time.Duration

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError builds an Error that preserves the underlying cause.
func WrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the taxonomy code from err, or CodeGeneric when err is not
// an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeGeneric
}
