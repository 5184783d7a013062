package moderation

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxTextLength bounds request text size in characters.
	MaxTextLength = 5000

	maxSourceLength    = 100
	maxLocaleLength    = 20
	maxChannelLength   = 50
	maxRequestIDLength = 128
)

// Stable error codes surfaced to callers for rejected input.
const (
	ErrCodeEmptyText    = "E_TEXT_EMPTY"
	ErrCodeTextTooLong  = "E_TEXT_TOO_LONG"
	ErrCodeInvalidUTF8  = "E_TEXT_INVALID_UTF8"
	ErrCodeFieldTooLong = "E_FIELD_TOO_LONG"
)

// ValidationError is a structured client error raised before the pipeline
// runs. It never reaches the merge stage.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validate rejects malformed requests with a stable error code. Valid
// requests pass through untouched.
func (r *Request) Validate() error {
	if r.Text == "" {
		return &ValidationError{Code: ErrCodeEmptyText, Message: "text must not be empty"}
	}
	if !utf8.ValidString(r.Text) {
		return &ValidationError{Code: ErrCodeInvalidUTF8, Message: "text must be valid UTF-8"}
	}
	if n := utf8.RuneCountInString(r.Text); n > MaxTextLength {
		return &ValidationError{
			Code:    ErrCodeTextTooLong,
			Message: fmt.Sprintf("text length %d exceeds maximum %d", n, MaxTextLength),
		}
	}
	if len(r.RequestID) > maxRequestIDLength {
		return &ValidationError{Code: ErrCodeFieldTooLong, Message: "request_id exceeds 128 characters"}
	}
	if r.Context != nil {
		if len(r.Context.Source) > maxSourceLength {
			return &ValidationError{Code: ErrCodeFieldTooLong, Message: "context.source exceeds 100 characters"}
		}
		if len(r.Context.Locale) > maxLocaleLength {
			return &ValidationError{Code: ErrCodeFieldTooLong, Message: "context.locale exceeds 20 characters"}
		}
		if len(r.Context.Channel) > maxChannelLength {
			return &ValidationError{Code: ErrCodeFieldTooLong, Message: "context.channel exceeds 50 characters"}
		}
	}
	return nil
}
