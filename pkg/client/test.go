package client

import (
	"fmt"
	"os"

	"github.com/jarcoal/httpmock"

	"github.com/keboola/go-http/pkg/client/trace"
)

// NewTestClient creates the Client for tests.
//
// If the TEST_HTTP_CLIENT_VERBOSE environment variable is set to "true",
// then all HTTP requests and responses are dumped to stdout.
//
// Output may contain unmasked tokens, do not use it in production.
func NewTestClient(baseURL string, opts ...Option) *Client {
	if os.Getenv("TEST_HTTP_CLIENT_VERBOSE") == "true" { //nolint:forbidigo
		opts = append(opts, WithTrace(trace.DumpTracer(os.Stdout)))
	}
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(fmt.Errorf(`cannot create test client: %w`, err))
	}
	return c
}

// NewMockedClient creates the Client with a mocked HTTP transport.
func NewMockedClient(baseURL string, opts ...Option) (*Client, *httpmock.MockTransport) {
	mockTransport := httpmock.NewMockTransport()
	c := NewTestClient(baseURL, append(opts, WithTransport(mockTransport))...)
	return c, mockTransport
}
