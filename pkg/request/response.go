package request

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/keboola/go-utils/pkg/orderedmap"
	"golang.org/x/net/html/charset"

	"github.com/keboola/go-http/pkg/jsonmap"
)

// Response is the materialized result of one executed Request:
// the status line, the headers and the fully drained body.
// It holds no connection resource, the connection is always released
// before the Response is returned to the caller.
type Response struct {
	request    *Request
	statusCode int
	status     string
	header     http.Header
	body       []byte
}

// NewResponse creates a response view, used by Sender implementations.
func NewResponse(request *Request, statusCode int, status string, header http.Header, body []byte) *Response {
	if header == nil {
		header = make(http.Header)
	}
	return &Response{request: request, statusCode: statusCode, status: status, header: header, body: body}
}

// Request returns the request the response belongs to.
func (r *Response) Request() *Request {
	return r.request
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int {
	return r.statusCode
}

// Status returns the HTTP status line text, for example "200 OK".
func (r *Response) Status() string {
	return r.status
}

// Headers returns the response headers, keys are canonicalized and case-insensitive.
func (r *Response) Headers() http.Header {
	return r.header
}

// Header returns the first value of the named response header.
func (r *Response) Header(name string) string {
	return r.header.Get(name)
}

// Bytes returns the response body.
func (r *Response) Bytes() []byte {
	return r.body
}

// Text returns the response body decoded as an UTF-8 string.
func (r *Response) Text() string {
	return string(r.body)
}

// TextIn returns the response body decoded with the named character encoding,
// for example "iso-8859-1" or "windows-1250".
func (r *Response) TextIn(encoding string) (string, error) {
	reader, err := charset.NewReaderLabel(encoding, bytes.NewReader(r.body))
	if err != nil {
		return "", fmt.Errorf(`cannot decode text as "%s": %w`, encoding, err)
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf(`cannot decode text as "%s": %w`, encoding, err)
	}
	return string(out), nil
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.statusCode > 199 && r.statusCode < 300
}

// IsError returns true if the status code is 400 or greater.
// An HTTP error status is data, not a Go error: Send returns a fully
// populated Response for it.
func (r *Response) IsError() bool {
	return r.statusCode > 399
}

// JSONMap parses the response body as a JSON object with ordered keys.
// The response must have a JSON content type.
func (r *Response) JSONMap() (*orderedmap.OrderedMap, error) {
	if contentType := r.Header("Content-Type"); !isJSONContentType(contentType) {
		return nil, fmt.Errorf(`cannot parse body: unexpected content type "%s"`, contentType)
	}
	return jsonmap.ToMap(r.Text())
}
