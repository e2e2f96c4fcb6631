package riot

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// API error types
var (
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrUnauthorized    = errors.New("api key rejected")
	ErrNotFound        = errors.New("resource not found")
	ErrRequestFailed   = errors.New("request failed")
	ErrDecode          = errors.New("malformed response body")
	ErrRateLimited     = errors.New("rate limited")
)

// StatusError is a non-2xx response from the API.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API returned status %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("API returned status %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// classifyStatus marks a StatusError with the sentinel matching its code.
func classifyStatus(statusCode int, url string, body []byte) error {
	se := &StatusError{StatusCode: statusCode, URL: url, Body: abbreviate(body)}
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Mark(se, ErrUnauthorized)
	case http.StatusNotFound:
		return errors.Mark(se, ErrNotFound)
	case http.StatusTooManyRequests:
		return errors.Mark(se, ErrRateLimited)
	default:
		return errors.Mark(se, ErrRequestFailed)
	}
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsFatal reports whether err must abort a whole run rather than skip one item.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrUnknownPlatform) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func abbreviate(body []byte) string {
	const max = 256
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
