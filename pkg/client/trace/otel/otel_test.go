package otel_test

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	export "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/keboola/go-http/pkg/client"
	"github.com/keboola/go-http/pkg/client/trace/otel"
)

const (
	testTraceID    = 0xabcd
	testSpanIDBase = 0x1000
)

type testIDGenerator struct {
	spanID uint16
}

func (g *testIDGenerator) NewIDs(ctx context.Context) (otelTrace.TraceID, otelTrace.SpanID) {
	traceID := toTraceID(testTraceID)
	return traceID, g.NewSpanID(ctx, traceID)
}

func (g *testIDGenerator) NewSpanID(_ context.Context, _ otelTrace.TraceID) otelTrace.SpanID {
	g.spanID++
	return toSpanID(testSpanIDBase + g.spanID)
}

func toTraceID(in uint16) otelTrace.TraceID { //nolint: unparam
	tmp := make([]byte, 16)
	binary.BigEndian.PutUint16(tmp, in)
	return *(*[16]byte)(tmp)
}

func toSpanID(in uint16) otelTrace.SpanID {
	tmp := make([]byte, 8)
	binary.BigEndian.PutUint16(tmp, in)
	return *(*[8]byte)(tmp)
}

func TestMockedRequest(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup tracing
	res, err := resource.New(ctx)
	assert.NoError(t, err)
	traceExporter := tracetest.NewInMemoryExporter()
	tracerProvider := trace.NewTracerProvider(
		trace.WithSyncer(traceExporter),
		trace.WithResource(res),
		trace.WithIDGenerator(&testIDGenerator{}),
	)

	// Setup metrics
	metricExporter, err := export.New()
	assert.NoError(t, err)
	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metricExporter),
		metric.WithResource(res),
	)

	// Create client
	c, transport := client.NewMockedClient(
		"https://example.com",
		client.WithTrace(otel.NewTrace(
			tracerProvider,
			meterProvider,
			otel.WithRedactedQueryParam("secret"),
			otel.WithRedactedHeaders("X-StorageAPI-Token"),
			otel.WithPropagators(propagation.TraceContext{}),
		)),
	)

	var header http.Header
	transport.RegisterResponder("POST", `=~^https://example.com/`, func(req *http.Request) (*http.Response, error) {
		header = req.Header.Clone()
		return httpmock.NewStringResponse(200, "OK body"), nil
	})
	transport.RegisterResponder("GET", `=~^https://example.com/`, httpmock.NewStringResponder(404, "not found"))

	// Run requests
	response, err := c.Post("data").
		WithQueryParam("secret", "value").
		WithHeader("X-StorageAPI-Token", "my-token").
		WithJSONBody(map[string]any{"key": "value"}).
		Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "OK body", response.Text())
	response, err = c.Get("missing").Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 404, response.StatusCode())

	// Trace context is injected into the request headers
	assert.NotEmpty(t, header.Get("Traceparent"))

	// Assert spans, one request span per request, the mocked transport
	// produces no low-level phase spans
	spans := traceExporter.GetSpans()
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].SpanContext.SpanID().String() < spans[j].SpanContext.SpanID().String()
	})
	assert.Len(t, spans, 2)
	for _, span := range spans {
		assert.Equal(t, "keboola.go.http.request", span.Name)
		// All spans must be finished!
		assert.NotZero(t, span.StartTime)
		assert.NotZero(t, span.EndTime)
	}

	// The POST span carries the definition and the response attributes,
	// secret values are masked
	postAttrs := attrsToMap(spans[0].Attributes)
	assert.Equal(t, "POST", postAttrs["http.method"])
	assert.Equal(t, "https://example.com/data?secret=value", postAttrs["http.url"])
	assert.Equal(t, "example.com", postAttrs["http.url_details.host"])
	assert.Equal(t, "****", postAttrs["http.query.secret"])
	assert.Equal(t, "****", postAttrs["http.header.x-storageapi-token"])
	assert.Equal(t, "application/json", postAttrs["http.header.content-type"])
	assert.Equal(t, int64(200), postAttrs["http.status_code"])
	assert.Equal(t, int64(15), postAttrs["http.wrote_bytes"])
	assert.Equal(t, int64(7), postAttrs["http.read_bytes"])
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	// An HTTP error status is recorded on the span,
	// even though the Send method returns no error
	getAttrs := attrsToMap(spans[1].Attributes)
	assert.Equal(t, "GET", getAttrs["http.method"])
	assert.Equal(t, int64(404), getAttrs["http.status_code"])
	assert.Equal(t, "http_4xx_code", getAttrs["http.error_type"])
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "HTTP status code: 404 Not Found", spans[1].Status.Description)

	// Assert metrics
	metricsAll := &metricdata.ResourceMetrics{}
	assert.NoError(t, metricExporter.Collect(ctx, metricsAll))
	assert.Len(t, metricsAll.ScopeMetrics, 1)
	metrics := metricsAll.ScopeMetrics[0].Metrics
	sort.SliceStable(metrics, func(i, j int) bool {
		return metrics[i].Name < metrics[j].Name
	})
	var metricNames []string
	for _, m := range metrics {
		metricNames = append(metricNames, m.Name)
	}
	assert.Equal(t, []string{
		"keboola.go.http.request.content_length",
		"keboola.go.http.request.duration",
		"keboola.go.http.request.in_flight",
		"keboola.go.http.response.content_length",
	}, metricNames)

	// All requests are done, the in flight counter is back at zero
	for _, m := range metrics {
		if m.Name != "keboola.go.http.request.in_flight" {
			continue
		}
		sum, ok := m.Data.(metricdata.Sum[int64])
		assert.True(t, ok)
		assert.NotEmpty(t, sum.DataPoints)
		for _, dp := range sum.DataPoints {
			assert.Equal(t, int64(0), dp.Value)
		}
	}
}

func TestRealRequest(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	defer server.Close()

	// Setup tracing
	res, err := resource.New(ctx)
	assert.NoError(t, err)
	traceExporter := tracetest.NewInMemoryExporter()
	tracerProvider := trace.NewTracerProvider(
		trace.WithSyncer(traceExporter),
		trace.WithResource(res),
		trace.WithIDGenerator(&testIDGenerator{}),
	)

	// Create client with a real transport
	c, err := client.New(server.URL, client.WithTrace(otel.NewTrace(tracerProvider, nil)))
	assert.NoError(t, err)

	// Run request
	response, err := c.Get("index").Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "OK", response.Text())

	// Assert spans, a loopback address needs no DNS lookup
	// and plain HTTP needs no TLS handshake
	spans := traceExporter.GetSpans()
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].SpanContext.SpanID().String() < spans[j].SpanContext.SpanID().String()
	})
	var spanNames []string
	for _, span := range spans {
		spanNames = append(spanNames, span.Name)

		// All spans must be finished!
		assert.NotZero(t, span.StartTime)
		assert.NotZero(t, span.EndTime)
	}
	assert.Equal(t, []string{
		"keboola.go.http.request",
		"http.getconn",
		"http.connect",
		"http.headers",
		"http.send",
		"http.receive",
	}, spanNames)
}

func attrsToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any)
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}
