package otel

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/go-http/pkg/request"
)

const maskedAttrValue = "****"

type attributes struct {
	config config
	// definition attributes for span and metrics
	definition []attribute.KeyValue
	// definitionExtra attributes for span only
	definitionExtra []attribute.KeyValue
	// httpResponse attributes for span and metrics
	httpResponse []attribute.KeyValue
	// httpResponseExtra attributes for span only
	httpResponseExtra []attribute.KeyValue
}

func newAttributes(cfg config, reqDef *request.Request) *attributes {
	out := &attributes{config: cfg}
	urlStr := reqDef.URL()

	// Definition base
	out.definition = []attribute.KeyValue{
		attribute.String("http.method", reqDef.Method()),
		attribute.String("http.url", mustURLPathUnescape(urlStr)),
	}
	if u, err := url.Parse(urlStr); err == nil {
		out.definition = append(out.definition,
			attribute.String("http.url_details.scheme", u.Scheme),
			attribute.String("http.url_details.path", mustURLPathUnescape(u.Path)),
			attribute.String("http.url_details.host", u.Host),
		)
		if dotPos := strings.IndexByte(u.Host, '.'); dotPos > 0 {
			// Host parts: to trace service name (host prefix) and stack (host suffix).
			out.definition = append(out.definition,
				attribute.String("http.url_details.host_prefix", u.Host[:dotPos]),
				attribute.String("http.url_details.host_suffix", strings.TrimLeft(u.Host[dotPos:], ".")),
			)
		}
	}

	// Definition headers and query params, span only
	var headerAttrs []attribute.KeyValue
	for k, v := range reqDef.RequestHeader() {
		key := strings.ToLower(k)
		value := strings.Join(v, ";")
		if _, found := cfg.redactedHeaders[key]; found {
			value = maskedAttrValue
		}
		headerAttrs = append(headerAttrs, attribute.String("http.header."+key, value))
	}
	sort.SliceStable(headerAttrs, func(i, j int) bool {
		return headerAttrs[i].Key < headerAttrs[j].Key
	})
	out.definitionExtra = append(out.definitionExtra, headerAttrs...)
	for _, p := range reqDef.QueryParams() {
		value := p.Value
		if _, found := cfg.redactedQueryParams[strings.ToLower(p.Name)]; found {
			value = maskedAttrValue
		}
		out.definitionExtra = append(out.definitionExtra, attribute.String("http.query."+p.Name, value))
	}

	return out
}

func (v *attributes) SetFromResponse(res *http.Response, err error) {
	if res == nil {
		v.httpResponse = nil
		v.httpResponseExtra = nil
		return
	}

	// Base
	v.httpResponse = []attribute.KeyValue{
		attribute.Int("http.status_code", res.StatusCode),
	}
	if isRedirection(res) {
		v.httpResponse = append(v.httpResponse, attribute.Bool("http.is_redirection", true))
	}
	if errType := errorType(res, err); errType != "" {
		v.httpResponse = append(v.httpResponse, attribute.String("http.error_type", errType))
	}

	// Extra
	var attrs []attribute.KeyValue
	for key, values := range res.Header {
		key = strings.ToLower(key)
		value := strings.Join(values, ";")
		if _, found := v.config.redactedHeaders[key]; found {
			value = maskedAttrValue
		}
		attrs = append(attrs, attribute.String("http.response.header."+key, value))
	}
	sort.SliceStable(attrs, func(i, j int) bool {
		return attrs[i].Key < attrs[j].Key
	})
	v.httpResponseExtra = attrs
}

func mustURLPathUnescape(in string) string {
	out, err := url.PathUnescape(in)
	if err != nil {
		return in
	}
	return out
}
