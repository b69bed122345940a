// Package trace extends the httptrace.ClientTrace with hooks for the whole
// request/response cycle of the client.Client.
// A custom ClientTrace definition can be registered in the client by the WithTrace option.
package trace

import (
	"context"
	"net/http"
	"net/http/httptrace"
	"reflect"

	"github.com/keboola/go-http/pkg/request"
)

// Factory creates ClientTrace hooks for one request.
// It may derive a new context, for example to start a root telemetry span.
type Factory func(ctx context.Context, reqDef *request.Request) (context.Context, *ClientTrace)

// ClientTrace is a set of hooks to run at various stages of one request/response cycle.
// Hooks fire at most once per request, there are no redirects or retries in the cycle.
type ClientTrace struct {
	httptrace.ClientTrace // native, low level trace
	// HTTPRequestStart is called when the request is about to be written to the connection.
	HTTPRequestStart func(request *http.Request)
	// HTTPRequestDone is called when the response status line and headers have been read.
	// The body has not been drained yet.
	HTTPRequestDone func(response *http.Response, err error)
	// BodyDrained is called when the response body has been fully read into memory
	// and the connection is released, with the number of the raw body bytes.
	BodyDrained func(response *http.Response, bytes int64, err error)
	// RequestProcessed is called when the Client.Send method is done.
	RequestProcessed func(response *request.Response, err error)
}

// Compose modifies t such that it respects the previously-registered hooks in old,
// subject to the composition policy requested in t.Compose.
// Copy of httptrace.compose, extended to descend into the embedded
// httptrace.ClientTrace, so the native hooks are composed too.
func (t *ClientTrace) Compose(old *ClientTrace) {
	if old == nil {
		return
	}
	composeHooks(reflect.ValueOf(t).Elem(), reflect.ValueOf(old).Elem())
}

func composeHooks(tv, ov reflect.Value) {
	structType := tv.Type()
	for i := 0; i < structType.NumField(); i++ {
		tf := tv.Field(i)
		hookType := tf.Type()
		if hookType.Kind() == reflect.Struct {
			// The embedded httptrace.ClientTrace
			composeHooks(tf, ov.Field(i))
			continue
		}
		if hookType.Kind() != reflect.Func {
			continue
		}
		of := ov.Field(i)
		if of.IsNil() {
			continue
		}
		if tf.IsNil() {
			tf.Set(of)
			continue
		}

		// Make a copy of tf for tf to call. (Otherwise it
		// creates a recursive call cycle and stack overflows)
		tfCopy := reflect.ValueOf(tf.Interface())

		// We need to call both tf and of in some order.
		newFunc := reflect.MakeFunc(hookType, func(args []reflect.Value) []reflect.Value {
			of.Call(args)
			return tfCopy.Call(args)
		})
		tv.Field(i).Set(newFunc)
	}
}
