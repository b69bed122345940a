package otel

import (
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRedirection(t *testing.T) {
	t.Parallel()
	assert.False(t, isRedirection(nil))
	assert.False(t, isRedirection(&http.Response{}))
	assert.False(t, isRedirection(&http.Response{StatusCode: http.StatusOK}))
	assert.False(t, isRedirection(&http.Response{StatusCode: http.StatusBadRequest}))
	assert.True(t, isRedirection(&http.Response{StatusCode: http.StatusTemporaryRedirect}))
}

func TestErrorType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", errorType(nil, nil))
	assert.Equal(t, "", errorType(&http.Response{StatusCode: http.StatusOK}, nil))
	assert.Equal(t, "other", errorType(nil, errors.New("some error")))
	assert.Equal(t, "net", errorType(nil, &net.DNSError{IsTimeout: true}))
	assert.Equal(t, "http_4xx_code", errorType(&http.Response{StatusCode: http.StatusNotFound}, nil))
	assert.Equal(t, "http_5xx_code", errorType(&http.Response{StatusCode: http.StatusServiceUnavailable}, nil))
}
