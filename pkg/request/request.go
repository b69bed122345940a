// Package request defines single-use HTTP requests, see the New function.
//
// A Request is created by a facade (client.Client) factory with a base URL
// and default timeouts already applied, configured by the With* methods and
// executed by the Send method through the Sender interface. Each Request
// performs exactly one request/response cycle and is not reusable.
//
// RunGroup and WaitGroup are helpers for running many requests concurrently.
package request

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/keboola/go-http/pkg/jsonmap"
)

// Default timeouts of each request, both can be overridden
// per client by an Option and per request by a With* method.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 5 * time.Second
)

// Request is a one-shot definition of an HTTP request: method, target URL,
// timeouts and an optional body. The body is built from exactly one of the
// variants: multipart parts, raw bytes, or form params, in that precedence.
//
// A Request is not safe for concurrent use and executes exactly once,
// a second Send panics.
type Request struct {
	sender         Sender
	method         string
	baseURL        string
	url            string
	connectTimeout time.Duration
	readTimeout    time.Duration
	header         http.Header
	queryParams    []Param
	formParams     []Param
	body           []byte
	parts          []Part
	basicAuthUser  string
	basicAuthPass  string
	hasBasicAuth   bool
	listeners      []func(ctx context.Context, response *Response, err error) error
	definitionErr  error
	executed       atomic.Bool
}

// New creates a request bound to the sender.
// Usually the client.Client factories are used instead,
// they supply the base URL and the client defaults.
func New(sender Sender, method, url string) *Request {
	return &Request{
		sender:         sender,
		method:         method,
		url:            url,
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
		header:         make(http.Header),
	}
}

// Method returns the HTTP method.
func (r *Request) Method() string {
	if r.method == "" {
		panic(fmt.Errorf("request method is not set"))
	}
	return r.method
}

// URL returns the target URL including query params.
// An url that does not start with the literal prefix "http" is taken as
// relative and concatenated onto the base URL. This is a plain prefix test,
// not URI parsing, so an absolute URL of another scheme is not recognized
// and must rely on the base.
func (r *Request) URL() string {
	target := r.url
	if !strings.HasPrefix(target, "http") {
		target = r.baseURL + target
	}
	if len(r.queryParams) > 0 {
		separator := "?"
		if strings.Contains(target, "?") {
			separator = "&"
		}
		target += separator + encodePairs(r.queryParams)
	}
	return target
}

// BaseURL returns the base URL the request resolves against, always with a trailing "/".
func (r *Request) BaseURL() string {
	return r.baseURL
}

// ConnectTimeout returns the maximum time to open the connection.
func (r *Request) ConnectTimeout() time.Duration {
	return r.connectTimeout
}

// ReadTimeout returns the maximum time to wait for each read from the connection.
func (r *Request) ReadTimeout() time.Duration {
	return r.readTimeout
}

// RequestHeader returns the HTTP request headers.
func (r *Request) RequestHeader() http.Header {
	return r.header
}

// QueryParams returns the query string pairs in the order they were added.
func (r *Request) QueryParams() []Param {
	return r.queryParams
}

// FormParams returns the form body pairs in the order they were added.
func (r *Request) FormParams() []Param {
	return r.formParams
}

// Parts returns the multipart form parts in the order they were added.
func (r *Request) Parts() []Part {
	return r.parts
}

// BasicAuth returns the credentials set by the WithBasicAuth method.
func (r *Request) BasicAuth() (user, password string, ok bool) {
	return r.basicAuthUser, r.basicAuthPass, r.hasBasicAuth
}

// DefinitionErr returns the error deferred by an invalid definition, if any.
// The error is also returned by the Send method, so it is enough to check it once there.
func (r *Request) DefinitionErr() error {
	return r.definitionErr
}

// WithBaseURL sets the base URL relative urls are resolved against,
// a trailing "/" is appended if missing.
func (r *Request) WithBaseURL(baseURL string) *Request {
	r.mutable()
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	r.baseURL = baseURL
	return r
}

// WithConnectTimeout overrides the connection timeout.
func (r *Request) WithConnectTimeout(timeout time.Duration) *Request {
	r.mutable()
	r.connectTimeout = timeout
	return r
}

// WithReadTimeout overrides the read timeout.
func (r *Request) WithReadTimeout(timeout time.Duration) *Request {
	r.mutable()
	r.readTimeout = timeout
	return r
}

// WithTimeouts overrides both the connection and the read timeout.
func (r *Request) WithTimeouts(connectTimeout, readTimeout time.Duration) *Request {
	return r.WithConnectTimeout(connectTimeout).WithReadTimeout(readTimeout)
}

// WithHeader sets a single header field and its value.
func (r *Request) WithHeader(name, value string) *Request {
	r.mutable()
	r.header.Set(name, value)
	return r
}

// WithContentType sets the Content-Type header.
func (r *Request) WithContentType(contentType string) *Request {
	return r.WithHeader("Content-Type", contentType)
}

// WithBasicAuth sets credentials for HTTP basic authentication.
func (r *Request) WithBasicAuth(user, password string) *Request {
	r.mutable()
	r.basicAuthUser = user
	r.basicAuthPass = password
	r.hasBasicAuth = true
	return r
}

// WithBody sets the request body. Supported body types are nil, string
// and []byte, a string is transmitted as its UTF-8 bytes. Any other value
// defers an encoding error to the Send method. The body is transmitted for
// POST, PUT and PATCH requests, GET and DELETE carry none.
func (r *Request) WithBody(body any) *Request {
	r.mutable()
	switch v := body.(type) {
	case nil:
		r.body = nil
	case string:
		r.body = []byte(v)
	case []byte:
		r.body = v
	default:
		return r.fail(&EncodingError{What: "body", Err: fmt.Errorf("unsupported body type %T", body)})
	}
	return r
}

// WithJSONBody sets the request body to the JSON encoding of the value
// and the Content-Type header to "application/json".
func (r *Request) WithJSONBody(v any) *Request {
	r.mutable()
	out, err := jsonmap.ToJSONString(v)
	if err != nil {
		return r.fail(&EncodingError{What: "JSON body", Err: err})
	}
	r.body = []byte(out)
	return r.WithContentType(ContentTypeApplicationJSON)
}

// WithFormParam adds one form body pair. Pairs are sent percent-encoded in
// the "k=v&k=v" form, in the order they were added, with the
// "application/x-www-form-urlencoded" Content-Type unless another one is set.
// A raw body set by the WithBody method takes precedence over form pairs.
func (r *Request) WithFormParam(name string, value any) *Request {
	r.mutable()
	v, err := castToString(value)
	if err != nil {
		return r.fail(&EncodingError{What: fmt.Sprintf(`form param "%s"`, name), Err: err})
	}
	r.formParams = append(r.formParams, Param{Name: name, Value: v})
	return r
}

// WithFormParams adds form body pairs with already cast values.
func (r *Request) WithFormParams(pairs ...Param) *Request {
	r.mutable()
	r.formParams = append(r.formParams, pairs...)
	return r
}

// WithQueryParam adds one query string pair,
// appended to the resolved URL in the order they were added.
func (r *Request) WithQueryParam(name string, value any) *Request {
	r.mutable()
	v, err := castToString(value)
	if err != nil {
		return r.fail(&EncodingError{What: fmt.Sprintf(`query param "%s"`, name), Err: err})
	}
	r.queryParams = append(r.queryParams, Param{Name: name, Value: v})
	return r
}

// WithPart appends a part of the multipart form body, parts keep their order.
// Parts take precedence over any other body variant.
func (r *Request) WithPart(part Part) *Request {
	r.mutable()
	r.parts = append(r.parts, part)
	return r
}

// WithOnComplete registers a callback invoked when the request is done,
// the returned error replaces the request error.
func (r *Request) WithOnComplete(fn func(ctx context.Context, response *Response, err error) error) *Request {
	r.mutable()
	r.listeners = append(r.listeners, fn)
	return r
}

// WithOnSuccess registers a callback invoked when the request is done without
// an error and the status code is 2xx.
func (r *Request) WithOnSuccess(fn func(ctx context.Context, response *Response) error) *Request {
	r.mutable()
	r.listeners = append(r.listeners, func(ctx context.Context, response *Response, err error) error {
		if err == nil && response.IsSuccess() {
			return fn(ctx, response)
		}
		return err
	})
	return r
}

// WithOnError registers a callback invoked when the request failed
// or the status code is >= 400.
func (r *Request) WithOnError(fn func(ctx context.Context, response *Response, err error) error) *Request {
	r.mutable()
	r.listeners = append(r.listeners, func(ctx context.Context, response *Response, err error) error {
		if err != nil || response.IsError() {
			return fn(ctx, response, err)
		}
		return err
	})
	return r
}

// BuildBody assembles the final request body from the body variant:
// multipart parts win, then raw bytes, then form pairs. It returns the body
// bytes and the Content-Type implied by the variant, "" if there is none.
// Building is a pure function of the request definition, no network I/O.
func (r *Request) BuildBody() (body []byte, contentType string, err error) {
	switch {
	case len(r.parts) > 0:
		boundary := newBoundary()
		body, err := EncodeMultipart(boundary, r.parts)
		if err != nil {
			return nil, "", err
		}
		return body, MultipartContentType(boundary), nil
	case r.body != nil:
		return r.body, "", nil
	case len(r.formParams) > 0:
		return []byte(encodePairs(r.formParams)), ContentTypeForm, nil
	default:
		return nil, "", nil
	}
}

// Send executes the request and returns the materialized response.
// Definition errors deferred by the With* methods are returned here.
// The target URL must not be blank.
func (r *Request) Send(ctx context.Context) (*Response, error) {
	if !r.executed.CompareAndSwap(false, true) {
		panic(fmt.Errorf(`request %s "%s" has already been executed`, r.method, r.url))
	}

	// Stop if context has been cancelled
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response, err := r.execute(ctx)

	// Invoke listeners
	for _, fn := range r.listeners {
		// Stop if context has been cancelled
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err = fn(ctx, response, err)
	}

	return response, err
}

// SendOrErr executes the request and returns the error only.
func (r *Request) SendOrErr(ctx context.Context) error {
	_, err := r.Send(ctx)
	return err
}

func (r *Request) execute(ctx context.Context) (*Response, error) {
	if err := r.definitionErr; err != nil {
		return nil, err
	}
	if strings.TrimSpace(r.url) == "" {
		return nil, &ArgumentError{Param: "url"}
	}
	return r.sender.Send(ctx, r)
}

// fail defers a definition error to the Send method, the first error wins.
func (r *Request) fail(err error) *Request {
	if r.definitionErr == nil {
		r.definitionErr = err
	}
	return r
}

func (r *Request) mutable() {
	if r.executed.Load() {
		panic(fmt.Errorf(`request %s "%s" has already been executed`, r.method, r.url))
	}
}
