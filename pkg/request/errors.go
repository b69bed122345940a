package request

import (
	"fmt"
)

// ArgumentError is returned when a required parameter is missing or blank,
// for example a blank base URL, a blank request url or a nil part content.
type ArgumentError struct {
	Param string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf(`parameter "%s" must not be empty`, e.Param)
}

// ConnectionError wraps a failure of the request/response cycle:
// a malformed URL, a DNS or connect error, an exceeded timeout,
// a failed body write or a failed body read.
// It always carries the attempted URL and the underlying cause.
type ConnectionError struct {
	Method string
	URL    string
	Err    error
}

func (e *ConnectionError) Error() string {
	// The method is empty when the URL failed already during the facade construction.
	if e.Method == "" {
		return fmt.Sprintf(`request "%s" failed: %s`, e.URL, e.Err)
	}
	return fmt.Sprintf(`request %s "%s" failed: %s`, e.Method, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// EncodingError wraps a failure to encode a request body,
// for example an unsupported body value, a param value that cannot be
// cast to a string, or an unreadable multipart part content.
type EncodingError struct {
	What string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf(`cannot encode %s: %s`, e.What, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
