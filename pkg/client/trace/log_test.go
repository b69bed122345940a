package trace_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/keboola/go-utils/pkg/wildcards"
	"github.com/stretchr/testify/assert"

	"github.com/keboola/go-http/pkg/client"
	"github.com/keboola/go-http/pkg/client/trace"
)

func TestLogTracer(t *testing.T) {
	t.Parallel()

	// Logs for trace testing
	var logs strings.Builder

	// Create client
	ctx := context.Background()
	c, transport := client.NewMockedClient("https://example.com", client.WithTrace(trace.LogTracer(&logs)))
	transport.RegisterResponder("GET", `https://example.com/index`, httpmock.NewStringResponder(200, "OK1"))
	transport.RegisterResponder("GET", `https://example.com/err`, httpmock.NewErrorResponder(errors.New("network down")))

	// Expected trace
	expected := `
HTTP_REQUEST[0001] START GET "https://example.com/index"
HTTP_REQUEST[0001] DONE  GET "https://example.com/index" | 200 | %s
HTTP_REQUEST[0001] BODY  GET "https://example.com/index" | 3 bytes | %s
HTTP_REQUEST[0002] START GET "https://example.com/err"
HTTP_REQUEST[0002] DONE  GET "https://example.com/err" | 0 | %s | error=Get "https://example.com/err": network down
`

	// Test, requests are numbered in the send order
	response, err := c.Get("index").Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "OK1", response.Text())
	_, err = c.Get("err").Send(ctx)
	assert.Error(t, err)
	wildcards.Assert(t, strings.TrimLeft(expected, "\n"), logs.String())
}
