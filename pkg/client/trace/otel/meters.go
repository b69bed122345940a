package otel

import otelMetric "go.opentelemetry.io/otel/metric"

type requestMeters struct {
	inFlight              otelMetric.Int64UpDownCounter
	duration              otelMetric.Float64Histogram
	requestContentLength  otelMetric.Int64Counter
	responseContentLength otelMetric.Int64Counter
}

func newMeters(meter otelMetric.Meter) *requestMeters {
	return &requestMeters{
		inFlight:              upDownCounter(meter, meterPrefix+"request.in_flight", "HTTP client: in flight requests."),
		duration:              histogram(meter, meterPrefix+"request.duration", "HTTP client: requests duration.", "ms"),
		requestContentLength:  counter(meter, meterPrefix+"request.content_length", "HTTP client: sent body bytes.", "By"),
		responseContentLength: counter(meter, meterPrefix+"response.content_length", "HTTP client: received body bytes.", "By"),
	}
}

func upDownCounter(meter otelMetric.Meter, name, desc string) otelMetric.Int64UpDownCounter {
	return mustInstrument(meter.Int64UpDownCounter(name, otelMetric.WithDescription(desc)))
}

func counter(meter otelMetric.Meter, name, desc, unit string) otelMetric.Int64Counter {
	return mustInstrument(meter.Int64Counter(name, otelMetric.WithDescription(desc), otelMetric.WithUnit(unit)))
}

func histogram(meter otelMetric.Meter, name, desc string, unit string) otelMetric.Float64Histogram {
	return mustInstrument(meter.Float64Histogram(name, otelMetric.WithDescription(desc), otelMetric.WithUnit(unit)))
}

func mustInstrument[T any](instrument T, err error) T {
	if err != nil {
		panic(err)
	}
	return instrument
}
