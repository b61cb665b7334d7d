package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrPolicyRefused is returned when a URL may not be fetched under the site policy or robots.txt.
var ErrPolicyRefused = errors.New("fetch refused by crawl policy")

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// TransportError reports a response body that could not be read in full.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("GET %s: reading body: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
