// Package services defines the business logic for the chat board and page
// visit tracking. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-chatboard/internal/moderation"
)

// Chat-related errors.
var (
	// ErrEmptyMessage is returned when the message is missing, not a string,
	// or empty after sanitization.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrEmptyUser is returned when the author identity is missing or empty
	// after sanitization.
	ErrEmptyUser = errors.New("user_id is empty")

	// ErrRateLimited is returned when the source address has used its quota
	// for the current window.
	ErrRateLimited = errors.New("chat rate limit exceeded")
)

// ModerationError reports a message rejected by the moderation pipeline.
// Callers match it with errors.As to read the verdict.
type ModerationError struct {
	Verdict moderation.Verdict
}

func (e *ModerationError) Error() string {
	return fmt.Sprintf("message rejected by %s: %s", e.Verdict.Method, e.Verdict.Reason)
}
