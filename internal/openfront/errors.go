package openfront

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError is a non-2xx response from the upstream feed.
//
// Status 404 means the match has not finished yet (the detail endpoint only
// serves completed matches), so callers treat it as expected.
type APIError struct {
	Status     int
	RetryAfter time.Duration // only set for 429
}

func (e *APIError) Error() string {
	if e.Status == http.StatusTooManyRequests && e.RetryAfter > 0 {
		return fmt.Sprintf("openfront: rate limited (retry after %s)", e.RetryAfter)
	}
	return fmt.Sprintf("openfront: unexpected status %d", e.Status)
}

// IsNotFound reports whether err is the upstream's "match not finished yet" answer.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// AsRateLimited extracts the upstream's retry directive from a 429 error.
func AsRateLimited(err error) (time.Duration, bool) {
	var ae *APIError
	if errors.As(err, &ae) && ae.Status == http.StatusTooManyRequests {
		d := ae.RetryAfter
		if d <= 0 {
			d = time.Second
		}
		return d, true
	}
	return 0, false
}
