package request

import (
	"context"
)

// Sender executes a defined Request, the client.Client is the default
// implementation using the standard net/http package.
type Sender interface {
	// Send method executes the request and returns a fully materialized response:
	// the status line and headers are read and the body is completely drained
	// before the method returns. On failure the response is nil, a response is
	// never partially populated.
	Send(ctx context.Context, request *Request) (*Response, error)
}

// Sendable is a Request or anything else that can be sent and checked
// for an error in one step. RunGroup and WaitGroup accept Sendable values.
type Sendable interface {
	SendOrErr(ctx context.Context) error
}
