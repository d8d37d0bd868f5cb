package telegram

import (
	"errors"
	"fmt"
)

// Sentinel failure classes for delivery outcomes. The reminder poller
// branches on these to pick a terminal status.
var (
	// ErrForbidden is a permission-denied delivery failure: the bot
	// was blocked by the recipient or kicked from the chat.
	ErrForbidden = errors.New("telegram: forbidden")

	// ErrBadRequest is a malformed-target failure: unknown chat,
	// invalid payload.
	ErrBadRequest = errors.New("telegram: bad request")
)

// APIError is a non-ok Bot API response.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// Unwrap maps the API error code onto a sentinel failure class so
// callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case 403:
		return ErrForbidden
	case 400:
		return ErrBadRequest
	}
	return nil
}
