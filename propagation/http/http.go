// Copyright 2022 The OpenZipkin Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package http instruments net/http and gin servers and clients: inbound
// requests are joined to the caller's trace, outbound requests carry the
// current span context in their headers.
package http

import (
	"context"
	stdHTTP "net/http"

	"github.com/gin-gonic/gin"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

// Attribute keys set on HTTP spans.
var (
	AttrComponent  = string(ext.Component)
	AttrMethod     = string(ext.HTTPMethod)
	AttrURL        = string(ext.HTTPUrl)
	AttrStatusCode = string(ext.HTTPStatusCode)
	AttrRoute      = "http.route"
)

const component = "http"

// ServerOption configures the server middleware.
type ServerOption func(o *serverOptions)

type serverOptions struct {
	spanName func(r *stdHTTP.Request) string
	events   []func(r *stdHTTP.Request, span *tracecontext.Span)
}

// SpanName overrides the span name, the request path by default.
func SpanName(f func(r *stdHTTP.Request) string) ServerOption {
	return func(o *serverOptions) { o.spanName = f }
}

// OnRequest registers f to run inside the server span before the handler.
func OnRequest(f func(r *stdHTTP.Request, span *tracecontext.Span)) ServerOption {
	return func(o *serverOptions) { o.events = append(o.events, f) }
}

func newServerOptions(opts []ServerOption) *serverOptions {
	o := &serverOptions{
		spanName: func(r *stdHTTP.Request) string { return r.URL.Path },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func serverAttributes(r *stdHTTP.Request, route string) []tracecontext.KeyValue {
	return []tracecontext.KeyValue{
		tracecontext.String(AttrComponent, component),
		tracecontext.String(AttrMethod, r.Method),
		tracecontext.String(AttrRoute, route),
		tracecontext.String(AttrURL, r.URL.String()),
	}
}

func setResponseStatus(span *tracecontext.Span, status int) {
	span.SetAttributes(tracecontext.Int(AttrStatusCode, status))
	if status >= stdHTTP.StatusInternalServerError {
		span.SetStatus(tracecontext.StatusError, stdHTTP.StatusText(status))
	}
}

type statusWriter struct {
	stdHTTP.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() stdHTTP.ResponseWriter { return w.ResponseWriter }

// Middleware returns net/http middleware that extracts the caller's span
// context from the request headers and runs the handler inside a server
// span whose parent is that context.
func Middleware(tracer *tracecontext.Tracer, propagator tracecontext.Propagator, opts ...ServerOption) func(stdHTTP.Handler) stdHTTP.Handler {
	o := newServerOptions(opts)
	return func(next stdHTTP.Handler) stdHTTP.Handler {
		return stdHTTP.HandlerFunc(func(w stdHTTP.ResponseWriter, r *stdHTTP.Request) {
			ctx := propagator.Extract(r.Context(), opentracing.HTTPHeadersCarrier(r.Header))
			_ = tracer.InSpan(ctx, o.spanName(r), func(ctx context.Context, span *tracecontext.Span) error {
				r = r.WithContext(ctx)
				for _, f := range o.events {
					f(r, span)
				}
				sw := &statusWriter{ResponseWriter: w, status: stdHTTP.StatusOK}
				next.ServeHTTP(sw, r)
				setResponseStatus(span, sw.status)
				return nil
			},
				tracecontext.WithSpanKind(tracecontext.SpanKindServer),
				tracecontext.WithAttributes(serverAttributes(r, r.URL.Path)...),
			)
		})
	}
}

// GinMiddleware is Middleware for gin. The route template is recorded as
// http.route when gin matched one.
func GinMiddleware(tracer *tracecontext.Tracer, propagator tracecontext.Propagator, opts ...ServerOption) gin.HandlerFunc {
	o := newServerOptions(opts)
	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), opentracing.HTTPHeadersCarrier(c.Request.Header))
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		_ = tracer.InSpan(ctx, o.spanName(c.Request), func(ctx context.Context, span *tracecontext.Span) error {
			c.Request = c.Request.WithContext(ctx)
			for _, f := range o.events {
				f(c.Request, span)
			}
			c.Next()
			setResponseStatus(span, c.Writer.Status())
			if len(c.Errors) > 0 {
				span.RecordError(c.Errors.Last())
			}
			return nil
		},
			tracecontext.WithSpanKind(tracecontext.SpanKindServer),
			tracecontext.WithAttributes(serverAttributes(c.Request, route)...),
		)
	}
}

// Transport is an http.RoundTripper that runs every request inside a
// client span and injects that span's context into the request headers.
type Transport struct {
	base       stdHTTP.RoundTripper
	tracer     *tracecontext.Tracer
	propagator tracecontext.Propagator
}

// NewTransport wraps base, http.DefaultTransport when nil.
func NewTransport(tracer *tracecontext.Tracer, propagator tracecontext.Propagator, base stdHTTP.RoundTripper) *Transport {
	if base == nil {
		base = stdHTTP.DefaultTransport
	}
	return &Transport{base: base, tracer: tracer, propagator: propagator}
}

// RoundTrip implements http.RoundTripper. The caller's request is never
// modified; headers are injected into a clone.
func (t *Transport) RoundTrip(req *stdHTTP.Request) (*stdHTTP.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), req.URL.Path,
		tracecontext.WithSpanKind(tracecontext.SpanKindClient),
		tracecontext.WithAttributes(
			tracecontext.String(AttrComponent, component),
			tracecontext.String(AttrMethod, req.Method),
		),
	)
	defer span.End()

	req = req.Clone(ctx)
	if req.Header == nil {
		req.Header = stdHTTP.Header{}
	}
	_ = t.propagator.Inject(ctx, opentracing.HTTPHeadersCarrier(req.Header))
	span.SetAttributes(tracecontext.String(AttrURL, req.URL.String()))

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(tracecontext.StatusError, err.Error())
		return nil, err
	}
	setResponseStatus(span, resp.StatusCode)
	return resp, nil
}
