// Package otel provides OpenTelemetry tracing and metrics for HTTP client requests.
//
// The package provides 2 levels of telemetry:
// 1. Request telemetry
//   - Span "keboola.go.http.request" wraps the whole request/response cycle,
//     from the request definition to the drained body.
//   - Metrics names start with "keboola.go.http." (meterPrefix const),
//     for the full list see the requestMeters struct.
//
// 2. [httptrace] low-level telemetry
//   - It provides spans for the request phases, for example: "http.dns", "http.tls", "http.getconn".
//   - Span names start with "http.".
//   - Metrics are not provided.
//
// The package [otelhttp] (its client part) is not used, because it doesn't provide metrics.
//
// [otelhttp]: https://pkg.go.dev/go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp
// [httptrace]: https://pkg.go.dev/net/http/httptrace
package otel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelMetric "go.opentelemetry.io/otel/metric"
	metricNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/keboola/go-http/pkg/client/trace"
	"github.com/keboola/go-http/pkg/request"
)

const (
	traceAppName     = "github.com/keboola/go-http"
	meterPrefix      = "keboola.go.http."
	attrResourceName = attribute.Key("resource.name")
	// Request span, whole request/response cycle.
	requestSpanName = meterPrefix + "request"
	// Low-level phase spans.
	httpSpanPrefix           = "http."
	httpDNSSpanName          = httpSpanPrefix + "dns"
	httpGetConnSpanName      = httpSpanPrefix + "getconn"
	httpConnectSpanName      = httpSpanPrefix + "connect"
	httpTLSHandshakeSpanName = httpSpanPrefix + "tls"
	httpHeadersSpanName      = httpSpanPrefix + "headers"
	httpSendSpanName         = httpSpanPrefix + "send"
	httpReceiveSpanName      = httpSpanPrefix + "receive"
	attrDNSAddresses         = attribute.Key("http.dns.addrs")
	attrRemoteAddr           = attribute.Key("http.remote")
	attrLocalAddr            = attribute.Key("http.local")
	attrConnectionStartNet   = attribute.Key("http.conn.start.network")
	attrConnectionDoneNet    = attribute.Key("http.conn.done.network")
	attrConnectionDoneAddr   = attribute.Key("http.conn.done.addr")
	attrWroteBytes           = attribute.Key("http.wrote_bytes")
	attrReadBytes            = attribute.Key("http.read_bytes")
	// Extra attributes for DataDog.
	attrSpanKind            = attribute.Key("span.kind")
	attrSpanKindValueClient = "client"
	attrSpanType            = attribute.Key("span.type")
	attrSpanTypeValueHTTP   = "http"
)

// NewTrace creates a trace.Factory providing OpenTelemetry telemetry,
// register it in the client by the client.WithTrace option.
func NewTrace(tracerProvider otelTrace.TracerProvider, meterProvider otelMetric.MeterProvider, opts ...Option) trace.Factory {
	cfg := newConfig(opts)
	if tracerProvider == nil {
		tracerProvider = noop.NewTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = metricNoop.NewMeterProvider()
	}
	tracer := tracerProvider.Tracer(traceAppName)
	meters := newMeters(meterProvider.Meter(traceAppName))

	return func(rootCtx context.Context, reqDef *request.Request) (context.Context, *trace.ClientTrace) {
		tc := &trace.ClientTrace{}
		attrs := newAttributes(cfg, reqDef)
		var readBytes int64

		// Create the request span and metrics, one per request/response cycle.
		var requestSpan otelTrace.Span
		{
			// Metrics
			startTime := time.Now()
			meters.inFlight.Add(rootCtx, 1, otelMetric.WithAttributes(attrs.definition...))

			// Tracing
			var resourceName string
			if u := reqDef.URL(); u != "" {
				resourceName = mustURLPathUnescape(u)
			}
			rootCtx, requestSpan = tracer.Start(
				rootCtx,
				requestSpanName,
				otelTrace.WithSpanKind(otelTrace.SpanKindClient),
				otelTrace.WithAttributes(
					attrResourceName.String(resourceName),
					attrSpanKind.String(attrSpanKindValueClient),
					attrSpanType.String(attrSpanTypeValueHTTP),
				),
				otelTrace.WithAttributes(attrs.definition...),
				otelTrace.WithAttributes(attrs.definitionExtra...),
			)
			tc.RequestProcessed = func(response *request.Response, err error) {
				elapsedTime := float64(time.Since(startTime)) / float64(time.Millisecond)

				// Metrics
				meterAttrs := append(attrs.definition, attrs.httpResponse...)
				meters.inFlight.Add(rootCtx, -1, otelMetric.WithAttributes(attrs.definition...)) // same attributes/dimensions as above (+1)!
				meters.duration.Record(rootCtx, elapsedTime, otelMetric.WithAttributes(meterAttrs...))

				// Tracing
				if requestSpan != nil {
					// Add attributes from the response
					requestSpan.SetAttributes(attrs.httpResponse...)
					requestSpan.SetAttributes(attrs.httpResponseExtra...)
					requestSpan.SetAttributes(attrReadBytes.Int64(readBytes))
					if err == nil {
						requestSpan.End()
					} else {
						requestSpan.RecordError(err)
						requestSpan.SetStatus(codes.Error, err.Error())
						requestSpan.End(otelTrace.WithStackTrace(true))
					}
					requestSpan = nil
				}
			}
		}

		// Handle the HTTP exchange
		var receiveSpan otelTrace.Span
		{
			var wroteBytes int64
			tc.HTTPRequestStart = func(req *http.Request) {
				// Inject trace headers
				if cfg.propagators != nil {
					cfg.propagators.Inject(rootCtx, propagation.HeaderCarrier(req.Header))
				}
				wroteBytes = req.ContentLength
				if wroteBytes > 0 {
					meters.requestContentLength.Add(rootCtx, wroteBytes, otelMetric.WithAttributes(attrs.definition...))
					requestSpan.SetAttributes(attrWroteBytes.Int64(wroteBytes))
				}
			}
			tc.HTTPRequestDone = func(res *http.Response, err error) {
				attrs.SetFromResponse(res, err)
				if requestSpan == nil {
					return
				}
				switch {
				case err != nil:
					requestSpan.RecordError(err)
					requestSpan.SetStatus(codes.Error, err.Error())
				case res != nil && res.StatusCode >= http.StatusBadRequest:
					httpErr := fmt.Errorf(`HTTP status code: %d %s`, res.StatusCode, http.StatusText(res.StatusCode))
					requestSpan.RecordError(httpErr)
					requestSpan.SetStatus(codes.Error, httpErr.Error())
				}
			}
			tc.BodyDrained = func(res *http.Response, bytes int64, err error) {
				readBytes = bytes
				meters.responseContentLength.Add(
					rootCtx,
					bytes,
					otelMetric.WithAttributes(attrs.definition...),
					otelMetric.WithAttributes(attrs.httpResponse...),
				)
				if receiveSpan != nil {
					receiveSpan.SetAttributes(attrReadBytes.Int64(bytes))
					if err != nil {
						receiveSpan.RecordError(err)
						receiveSpan.SetStatus(codes.Error, err.Error())
					}
					receiveSpan.End()
					receiveSpan = nil
				}
			}
		}

		// Register low-level tracing.
		// "otelhttptrace" pkg from the opentelemetry-contrib module is buggy, does not end spans:
		// https://github.com/open-telemetry/opentelemetry-go-contrib/issues/399
		// httptrace: DNS
		{
			var dnsSpan otelTrace.Span
			tc.DNSStart = func(info httptrace.DNSStartInfo) {
				_, dnsSpan = tracer.Start(
					rootCtx,
					httpDNSSpanName,
					otelTrace.WithSpanKind(otelTrace.SpanKindClient),
					otelTrace.WithAttributes(attribute.String("net.host.name", info.Host)),
				)
			}
			tc.DNSDone = func(info httptrace.DNSDoneInfo) {
				if dnsSpan != nil {
					var addrs []string
					for _, netAddr := range info.Addrs {
						addrs = append(addrs, netAddr.String())
					}
					dnsSpan.SetAttributes(attrDNSAddresses.String(strings.Join(addrs, ";")))
					if info.Err != nil {
						dnsSpan.RecordError(info.Err)
						dnsSpan.SetStatus(codes.Error, info.Err.Error())
					}
					dnsSpan.End()
					dnsSpan = nil
				}
			}
		}
		// httptrace: Get connection
		{
			var getConnSpan otelTrace.Span
			tc.GetConn = func(host string) {
				_, getConnSpan = tracer.Start(
					rootCtx,
					httpGetConnSpanName,
					otelTrace.WithSpanKind(otelTrace.SpanKindClient),
					otelTrace.WithAttributes(attribute.String("net.host.name", host)),
				)
			}
			tc.GotConn = func(info httptrace.GotConnInfo) {
				if getConnSpan != nil {
					getConnSpan.SetAttributes(
						attrRemoteAddr.String(info.Conn.RemoteAddr().String()),
						attrLocalAddr.String(info.Conn.LocalAddr().String()),
					)
					getConnSpan.End()
					getConnSpan = nil
				}
			}
		}
		// httptrace: Connect
		{
			var connectSpan otelTrace.Span
			tc.ConnectStart = func(network, addr string) {
				_, connectSpan = tracer.Start(
					rootCtx,
					httpConnectSpanName,
					otelTrace.WithSpanKind(otelTrace.SpanKindClient),
					otelTrace.WithAttributes(
						attrRemoteAddr.String(addr),
						attrConnectionStartNet.String(network),
					),
				)
			}
			tc.ConnectDone = func(network, addr string, err error) {
				if connectSpan != nil {
					connectSpan.SetAttributes(
						attrConnectionDoneAddr.String(addr),
						attrConnectionDoneNet.String(network),
					)
					if err != nil {
						connectSpan.RecordError(err)
						connectSpan.SetStatus(codes.Error, err.Error())
					}
					connectSpan.End()
					connectSpan = nil
				}
			}
		}
		// httptrace: TLS handshake
		{
			var tlsSpan otelTrace.Span
			tc.TLSHandshakeStart = func() {
				_, tlsSpan = tracer.Start(
					rootCtx,
					httpTLSHandshakeSpanName,
					otelTrace.WithSpanKind(otelTrace.SpanKindClient),
				)
			}
			tc.TLSHandshakeDone = func(_ tls.ConnectionState, err error) {
				if tlsSpan != nil {
					if err != nil {
						tlsSpan.RecordError(err)
						tlsSpan.SetStatus(codes.Error, err.Error())
					}
					tlsSpan.End()
					tlsSpan = nil
				}
			}
		}
		// httptrace: headers, send, receive
		{
			var headersSpan otelTrace.Span
			var sendSpan otelTrace.Span
			tc.WroteHeaderField = func(_ string, _ []string) {
				// Start headers span at first header
				if headersSpan == nil {
					_, headersSpan = tracer.Start(
						rootCtx,
						httpHeadersSpanName,
						otelTrace.WithSpanKind(otelTrace.SpanKindClient),
					)
				}
			}
			tc.WroteHeaders = func() {
				// End headers span, if any
				if headersSpan != nil {
					headersSpan.End()
					headersSpan = nil
				}

				// Start send span
				_, sendSpan = tracer.Start(
					rootCtx,
					httpSendSpanName,
					otelTrace.WithSpanKind(otelTrace.SpanKindClient),
				)
			}
			tc.WroteRequest = func(info httptrace.WroteRequestInfo) {
				if sendSpan != nil {
					// End send span
					if info.Err != nil {
						sendSpan.RecordError(info.Err)
						sendSpan.SetStatus(codes.Error, info.Err.Error())
					}
					sendSpan.End()
					sendSpan = nil
				}
			}
			tc.GotFirstResponseByte = func() {
				// Receive span is ended by the BodyDrained hook
				_, receiveSpan = tracer.Start(
					rootCtx,
					httpReceiveSpanName,
					otelTrace.WithSpanKind(otelTrace.SpanKindClient),
				)
			}
		}

		return rootCtx, tc
	}
}
