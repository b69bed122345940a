package otel

import (
	"errors"
	"net"
	"net/http"
)

func isRedirection(r *http.Response) bool {
	return r != nil && r.StatusCode >= http.StatusMultipleChoices && r.StatusCode < http.StatusBadRequest
}

func errorType(r *http.Response, err error) string {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr):
		return "net"
	case err != nil:
		return "other"
	case r != nil && r.StatusCode >= http.StatusInternalServerError:
		return "http_5xx_code"
	case r != nil && r.StatusCode >= http.StatusBadRequest:
		return "http_4xx_code"
	default:
		return ""
	}
}
