package request_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keboola/go-http/pkg/request"
)

// testSender materializes a canned response, no network I/O.
type testSender struct {
	sendFn func(ctx context.Context, r *request.Request) (*request.Response, error)
}

func (s testSender) Send(ctx context.Context, r *request.Request) (*request.Response, error) {
	if s.sendFn != nil {
		return s.sendFn(ctx, r)
	}
	return request.NewResponse(r, http.StatusOK, "200 OK", nil, []byte("OK")), nil
}

func TestURL_RelativeToBase(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodGet, "foo/bar").WithBaseURL("https://example.com")
	assert.Equal(t, "https://example.com/", r.BaseURL())
	assert.Equal(t, "https://example.com/foo/bar", r.URL())
}

func TestURL_BaseWithTrailingSlash(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodGet, "foo").WithBaseURL("https://example.com/")
	assert.Equal(t, "https://example.com/", r.BaseURL())
	assert.Equal(t, "https://example.com/foo", r.URL())
}

func TestURL_AbsoluteUnchanged(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodGet, "https://other.org/path").WithBaseURL("https://example.com")
	assert.Equal(t, "https://other.org/path", r.URL())
	r = request.New(testSender{}, http.MethodGet, "http://other.org").WithBaseURL("https://example.com")
	assert.Equal(t, "http://other.org", r.URL())
}

func TestURL_PrefixTestIsLiteral(t *testing.T) {
	t.Parallel()
	// Not a full URI-scheme parse: an absolute URL of another scheme
	// is taken as relative and prefixed with the base.
	r := request.New(testSender{}, http.MethodGet, "ftp://other.org/file").WithBaseURL("https://example.com")
	assert.Equal(t, "https://example.com/ftp://other.org/file", r.URL())
}

func TestURL_QueryParams(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodGet, "search").
		WithBaseURL("https://example.com").
		WithQueryParam("q", "a b").
		WithQueryParam("page", 2)
	assert.Equal(t, "https://example.com/search?q=a+b&page=2", r.URL())
}

func TestURL_QueryParamsAppendedToExistingQuery(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodGet, "search?q=1").
		WithBaseURL("https://example.com").
		WithQueryParam("page", 2)
	assert.Equal(t, "https://example.com/search?q=1&page=2", r.URL())
}

func TestTimeouts_Defaults(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodGet, "foo")
	assert.Equal(t, request.DefaultConnectTimeout, r.ConnectTimeout())
	assert.Equal(t, request.DefaultReadTimeout, r.ReadTimeout())
}

func TestWithBody_String(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodPost, "foo").WithBody("příliš žluťoučký")
	body, contentType, err := r.BuildBody()
	assert.NoError(t, err)
	assert.Equal(t, []byte("příliš žluťoučký"), body) // UTF-8 bytes
	assert.Equal(t, "", contentType)
}

func TestWithBody_Bytes(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodPost, "foo").WithBody([]byte{0x00, 0x01})
	body, _, err := r.BuildBody()
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01}, body)
}

func TestWithBody_NilIsLegal(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodPost, "foo").WithBody(nil)
	body, contentType, err := r.BuildBody()
	assert.NoError(t, err)
	assert.Empty(t, body)
	assert.Equal(t, "", contentType)
	assert.NoError(t, r.DefinitionErr())
}

func TestWithBody_UnsupportedType(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodPost, "foo").WithBody(12345)

	// The error is deferred to the Send method
	assert.Error(t, r.DefinitionErr())
	_, err := r.Send(context.Background())
	assert.Error(t, err)
	var encodingErr *request.EncodingError
	assert.ErrorAs(t, err, &encodingErr)
	assert.Equal(t, `cannot encode body: unsupported body type int`, err.Error())
}

func TestWithJSONBody(t *testing.T) {
	t.Parallel()
	value := struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}{FirstName: "John", LastName: "Smith"}
	r := request.New(testSender{}, http.MethodPost, "foo").WithJSONBody(value)
	body, _, err := r.BuildBody()
	assert.NoError(t, err)
	assert.Equal(t, `{"firstName":"John","lastName":"Smith"}`, string(body))
	assert.Equal(t, request.ContentTypeApplicationJSON, r.RequestHeader().Get("Content-Type"))
}

func TestFormParams(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodPost, "foo").
		WithFormParam("first name", "John").
		WithFormParam("age", 22)
	body, contentType, err := r.BuildBody()
	assert.NoError(t, err)
	assert.Equal(t, "first+name=John&age=22", string(body))
	assert.Equal(t, request.ContentTypeForm, contentType)
}

func TestBodyPrecedence(t *testing.T) {
	t.Parallel()

	// Raw body wins over form params
	r := request.New(testSender{}, http.MethodPost, "foo").
		WithFormParam("a", "1").
		WithBody("raw")
	body, contentType, err := r.BuildBody()
	assert.NoError(t, err)
	assert.Equal(t, "raw", string(body))
	assert.Equal(t, "", contentType)

	// Multipart parts win over everything
	r = request.New(testSender{}, http.MethodPost, "foo").
		WithBody("raw").
		WithPart(request.TextPart("field", "value"))
	body, contentType, err = r.BuildBody()
	assert.NoError(t, err)
	assert.Contains(t, string(body), `name="field"`)
	assert.Contains(t, contentType, "multipart/form-data; boundary=")
}

func TestSend_BlankURL(t *testing.T) {
	t.Parallel()
	_, err := request.New(testSender{}, http.MethodGet, "  ").Send(context.Background())
	assert.Error(t, err)
	var argErr *request.ArgumentError
	assert.ErrorAs(t, err, &argErr)
	assert.Equal(t, "url", argErr.Param)
}

func TestSend_Twice_Panics(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodGet, "foo").WithBaseURL("https://example.com")
	_, err := r.Send(context.Background())
	assert.NoError(t, err)
	assert.PanicsWithError(t, `request GET "foo" has already been executed`, func() {
		_, _ = r.Send(context.Background())
	})
}

func TestMutationAfterSend_Panics(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodPost, "foo").WithBaseURL("https://example.com")
	_, err := r.Send(context.Background())
	assert.NoError(t, err)
	assert.Panics(t, func() {
		r.WithPart(request.TextPart("late", "part"))
	})
	assert.Panics(t, func() {
		r.WithBody("late")
	})
}

func TestSend_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := request.New(testSender{}, http.MethodGet, "foo").Send(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListeners(t *testing.T) {
	t.Parallel()

	// OnSuccess
	var onSuccess bool
	r := request.New(testSender{}, http.MethodGet, "foo").
		WithOnSuccess(func(ctx context.Context, response *request.Response) error {
			onSuccess = true
			return nil
		})
	_, err := r.Send(context.Background())
	assert.NoError(t, err)
	assert.True(t, onSuccess)

	// OnError, HTTP error status invokes it too
	var onError bool
	sender := testSender{sendFn: func(ctx context.Context, r *request.Request) (*request.Response, error) {
		return request.NewResponse(r, http.StatusNotFound, "404 Not Found", nil, nil), nil
	}}
	r = request.New(sender, http.MethodGet, "foo").
		WithOnError(func(ctx context.Context, response *request.Response, err error) error {
			onError = true
			return err
		})
	response, err := r.Send(context.Background())
	assert.NoError(t, err)
	assert.True(t, onError)
	assert.True(t, response.IsError())
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()
	r := request.New(testSender{}, http.MethodGet, "foo").WithBasicAuth("user", "pass")
	user, password, ok := r.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "user", user)
	assert.Equal(t, "pass", password)
}
