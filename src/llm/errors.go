package llm

import (
	"errors"
	"fmt"
)

// ErrNoChoices is matched by the ParseError returned for a reply without
// choices.
var ErrNoChoices = errors.New("response has no choices")

// TransportError covers everything before an HTTP status is known:
// connection failures, TLS errors and timeouts.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx reply. Body is kept verbatim.
type HTTPError struct {
	Status     string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("endpoint returned %s: %s", e.Status, e.Body)
}

// ParseError is a 2xx reply that does not decode into a completion.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decode completion: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }
