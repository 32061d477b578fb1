package upstream

import (
	"errors"
	"fmt"
)

// StatusError is a non-2xx response from a third-party API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// IsTransient reports whether the error is a 5xx upstream failure worth
// retrying. Anything else (4xx, network failure, malformed response) is
// terminal for the current dispatch.
func IsTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 && statusErr.StatusCode < 600
	}
	return false
}
