package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyLocation = errors.New("location must not be empty")
	ErrMissingAPIKey = errors.New("api key must not be empty")
)

// FetchError reports a failed provider call. StatusCode is 0 when no HTTP
// response was received.
type FetchError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	case e.StatusCode != 0:
		return fmt.Sprintf("provider request failed with status %d", e.StatusCode)
	default:
		return "provider request failed"
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status from a *FetchError anywhere in the chain.
func StatusCode(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

// IsQuotaExceeded reports whether the provider rejected the call with 429.
func IsQuotaExceeded(err error) bool {
	return StatusCode(err) == http.StatusTooManyRequests
}
