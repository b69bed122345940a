// Package client provides an HTTP client facade bound to one base URL.
//
// A Client is created by the New function from an absolute base URL.
// The factory methods Get, Post, Put, Patch, Delete and Multipart return
// one-shot request definitions, see the request package. A relative url is
// resolved against the base URL, an url starting with "http" is used as is.
// No network I/O happens in a factory, a request executes on its Send method.
//
// Client implements the request.Sender interface by the standard net/http
// package. Each request performs exactly one request/response cycle:
// connections are not reused, redirects are not followed and a failed
// request is never retried. An HTTP error status (4xx/5xx) is a valid
// response, not an error.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"github.com/keboola/go-http/pkg/client/counter"
	"github.com/keboola/go-http/pkg/client/decode"
	"github.com/keboola/go-http/pkg/client/trace"
	"github.com/keboola/go-http/pkg/request"
)

// Client is an immutable facade bound to one base URL.
// It is safe for concurrent use, it only produces new request.Request values
// and has no shared mutable state, requests never interact with each other.
type Client struct {
	baseURL        string // normalized, always with a trailing "/"
	hostname       string
	transport      http.RoundTripper // nil means a fresh one-shot transport per request
	header         http.Header
	connectTimeout time.Duration
	readTimeout    time.Duration
	basicAuthUser  string
	basicAuthPass  string
	hasBasicAuth   bool
	traceFactories []trace.Factory
}

// Option modifies the Client defaults during construction.
type Option func(c *Client)

// WithTransport sets a custom HTTP transport,
// for example a mocked one, see NewMockedClient.
// The per-request connect/read timeouts of the built-in one-shot transport
// do not apply to a custom transport, only the total request bound does.
func WithTransport(transport http.RoundTripper) Option {
	if transport == nil || transport == http.RoundTripper(nil) {
		panic(fmt.Errorf("transport cannot be nil"))
	}
	return func(c *Client) {
		c.transport = transport
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(v string) Option {
	return func(c *Client) {
		c.header.Set("User-Agent", v)
	}
}

// WithHeader sets a default header applied to every request,
// a request can override it by its own WithHeader method.
func WithHeader(name, value string) Option {
	return func(c *Client) {
		c.header.Set(name, value)
	}
}

// WithBasicAuth sets default credentials applied to every request
// that does not carry its own.
func WithBasicAuth(user, password string) Option {
	return func(c *Client) {
		c.basicAuthUser = user
		c.basicAuthPass = password
		c.hasBasicAuth = true
	}
}

// WithConnectTimeout overrides the default connect timeout of new requests.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.connectTimeout = timeout
	}
}

// WithReadTimeout overrides the default read timeout of new requests.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.readTimeout = timeout
	}
}

// WithTrace registers trace hooks, see the trace package.
// Factories are composed in the registration order.
func WithTrace(fn trace.Factory) Option {
	return func(c *Client) {
		c.traceFactories = append(c.traceFactories, fn)
	}
}

// New creates a Client bound to the base URL.
// The base URL must be an absolute http(s) URL, it is normalized
// to end with a trailing "/" and relative urls are resolved against it.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, &request.ArgumentError{Param: "base url"}
	}

	u, err := url.Parse(baseURL)
	if err == nil && (u.Scheme == "" || u.Host == "") {
		err = fmt.Errorf(`an absolute URL with a scheme and a host is expected`)
	}
	if err != nil {
		return nil, &request.ConnectionError{URL: baseURL, Err: err}
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	c := &Client{
		baseURL:        baseURL,
		hostname:       u.Hostname(),
		header:         make(http.Header),
		connectTimeout: request.DefaultConnectTimeout,
		readTimeout:    request.DefaultReadTimeout,
	}
	c.header.Set("User-Agent", "keboola-go-http")
	c.header.Set("Accept-Encoding", "gzip, br")
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns the normalized base URL, always with a trailing "/".
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Hostname returns the hostname of the base URL, without a port.
func (c *Client) Hostname() string {
	return c.hostname
}

// Get creates a GET request, a GET request carries no body.
func (c *Client) Get(url string) *request.Request {
	return c.newRequest(http.MethodGet, url)
}

// Post creates a POST request, the body is set by a With* method.
func (c *Client) Post(url string) *request.Request {
	return c.newRequest(http.MethodPost, url)
}

// Put creates a PUT request, the body is set by a With* method.
func (c *Client) Put(url string) *request.Request {
	return c.newRequest(http.MethodPut, url)
}

// Patch creates a PATCH request, the body is set by a With* method.
func (c *Client) Patch(url string) *request.Request {
	return c.newRequest(http.MethodPatch, url)
}

// Delete creates a DELETE request, a DELETE request carries no body.
func (c *Client) Delete(url string) *request.Request {
	return c.newRequest(http.MethodDelete, url)
}

// Multipart creates a POST request with a multipart/form-data body,
// parts are added by the request WithPart method.
// The connect and the read timeout apply the same way as to any other request.
func (c *Client) Multipart(url string) *request.Request {
	return c.newRequest(http.MethodPost, url)
}

func (c *Client) newRequest(method, url string) *request.Request {
	return request.
		New(c, method, url).
		WithBaseURL(c.baseURL).
		WithTimeouts(c.connectTimeout, c.readTimeout)
}

// Send executes the request definition, it implements the request.Sender interface.
// It returns either a fully populated response view with a drained body,
// or an error carrying the attempted URL, never both and never a partial response.
func (c *Client) Send(ctx context.Context, reqDef *request.Request) (res *request.Response, err error) {
	method := reqDef.Method()
	urlStr := reqDef.URL()

	// Init trace hooks
	var tc *trace.ClientTrace
	for _, factory := range c.traceFactories {
		var t *trace.ClientTrace
		ctx, t = factory(ctx, reqDef)
		if t != nil {
			t.Compose(tc)
			tc = t
		}
	}

	// Track whether the connection was established,
	// it decides which timeout is reported on failure.
	connected := false
	{
		t := &trace.ClientTrace{}
		t.GotConn = func(httptrace.GotConnInfo) { connected = true }
		t.Compose(tc)
		tc = t
	}
	ctx = httptrace.WithClientTrace(ctx, &tc.ClientTrace)

	// Trace the final result
	if tc.RequestProcessed != nil {
		defer func() {
			tc.RequestProcessed(res, err)
		}()
	}

	// Assemble the body, pure in-memory work, see Request.BuildBody
	body, impliedContentType, err := reqDef.BuildBody()
	if err != nil {
		return nil, err
	}

	// Create the native request, a malformed URL fails here
	req, err := http.NewRequestWithContext(ctx, method, urlStr, requestBody(method, body))
	if err != nil {
		return nil, &request.ConnectionError{Method: method, URL: urlStr, Err: err}
	}

	// Client default headers
	for k, values := range c.header {
		for _, v := range values {
			req.Header.Set(k, v)
		}
	}

	// Request headers override the defaults
	for k, values := range reqDef.RequestHeader() {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if impliedContentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", impliedContentType)
	}

	// Credentials, request ones win
	if user, password, ok := reqDef.BasicAuth(); ok {
		req.SetBasicAuth(user, password)
	} else if c.hasBasicAuth {
		req.SetBasicAuth(c.basicAuthUser, c.basicAuthPass)
	}

	// One request/response cycle: fresh connection, no redirects.
	// The client timeout is a total bound on top of the per-phase
	// connect/read deadlines of the one-shot transport.
	nativeClient := http.Client{
		Timeout:   reqDef.ConnectTimeout() + reqDef.ReadTimeout(),
		Transport: c.transportFor(reqDef),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// Send
	startedAt := time.Now()
	if tc.HTTPRequestStart != nil {
		tc.HTTPRequestStart(req)
	}
	rawRes, err := nativeClient.Do(req)
	if tc.HTTPRequestDone != nil {
		tc.HTTPRequestDone(rawRes, err)
	}
	if err != nil {
		return nil, &request.ConnectionError{
			Method: method,
			URL:    urlStr,
			Err:    normalizeSendError(reqDef, startedAt, connected, err),
		}
	}

	// Drain the body fully into memory and release the connection,
	// on every path, close failures during cleanup are ignored.
	bodyBytes, err := c.drainBody(rawRes, tc)
	if err != nil {
		return nil, &request.ConnectionError{
			Method: method,
			URL:    urlStr,
			Err:    normalizeSendError(reqDef, startedAt, connected, err),
		}
	}

	return request.NewResponse(reqDef, rawRes.StatusCode, rawRes.Status, rawRes.Header, bodyBytes), nil
}

// transportFor returns the custom transport, if any,
// or a fresh one-shot transport armed with the request timeouts.
func (c *Client) transportFor(reqDef *request.Request) http.RoundTripper {
	if c.transport != nil {
		return c.transport
	}
	return NewOneShotTransport(reqDef.ConnectTimeout(), reqDef.ReadTimeout())
}

// requestBody returns the reader transmitting the assembled body.
// GET and DELETE requests carry no body in this design. An empty body on
// POST, PUT and PATCH is legal and transmits zero bytes.
func requestBody(method string, body []byte) io.Reader {
	if method == http.MethodGet || method == http.MethodDelete {
		return nil
	}
	if len(body) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(body)
}

func (c *Client) drainBody(res *http.Response, tc *trace.ClientTrace) ([]byte, error) {
	rawBody := counter.NewReadCloser(res.Body, func(bytes int64, err error) {
		if tc.BodyDrained != nil {
			tc.BodyDrained(res, bytes, err)
		}
	})

	decodedBody, err := decode.Decode(rawBody, res.Header.Get("Content-Encoding"))
	if err != nil {
		_ = rawBody.Close()
		return nil, err
	}

	out, err := io.ReadAll(decodedBody)
	_ = decodedBody.Close()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeSendError converts timeouts and cancellations to a stable message
// with the exceeded timeout value, and unwraps the url.Error envelope added
// by the native client, the cause is kept in the chain.
func normalizeSendError(reqDef *request.Request, startedAt time.Time, connected bool, err error) error {
	cause := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		cause = urlErr.Err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("canceled after %s: %w", time.Since(startedAt), cause)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		if connected {
			return fmt.Errorf("timeout after %s: %w", reqDef.ReadTimeout(), cause)
		}
		return fmt.Errorf("timeout after %s: %w", reqDef.ConnectTimeout(), cause)
	default:
		return cause
	}
}
