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

package tracecontext

import "context"

// TraceFlags is the flags byte carried on the wire.
type TraceFlags byte

// FlagsSampled is set when the trace was selected for recording.
const FlagsSampled TraceFlags = 0x01

// IsSampled reports whether the sampled bit is set.
func (f TraceFlags) IsSampled() bool { return f&FlagsSampled == FlagsSampled }

// WithSampled returns f with the sampled bit set or cleared.
func (f TraceFlags) WithSampled(sampled bool) TraceFlags {
	if sampled {
		return f | FlagsSampled
	}
	return f &^ FlagsSampled
}

// SpanContext holds the identity of a span: everything that crosses a
// process boundary. It is an immutable value.
type SpanContext struct {
	TraceID    TraceID
	SpanID     SpanID
	TraceFlags TraceFlags
	// Remote is true when the context was extracted from a carrier rather
	// than created by a local span.
	Remote bool
}

// IsValid reports whether both identifiers are non-zero.
func (sc SpanContext) IsValid() bool { return sc.TraceID.IsValid() && sc.SpanID.IsValid() }

// IsSampled reports whether the sampled flag is set.
func (sc SpanContext) IsSampled() bool { return sc.TraceFlags.IsSampled() }

type currentSpanKey struct{}

// active is what a context carries: either a local span or, when span is
// nil, a remote placeholder known only by its identity.
type active struct {
	span   *Span
	remote SpanContext
}

// ContextWithSpan returns a copy of parent in which span is current.
func ContextWithSpan(parent context.Context, span *Span) context.Context {
	return context.WithValue(parent, currentSpanKey{}, active{span: span})
}

// ContextWithRemoteSpanContext returns a copy of parent whose current span is
// a placeholder for a span owned by another process.
func ContextWithRemoteSpanContext(parent context.Context, sc SpanContext) context.Context {
	sc.Remote = true
	return context.WithValue(parent, currentSpanKey{}, active{remote: sc})
}

// ContextWithSpanContext returns a copy of parent with sc current. Remote
// contexts become placeholders; local ones are only meaningful when paired
// with their Span, so prefer ContextWithSpan for those.
func ContextWithSpanContext(parent context.Context, sc SpanContext) context.Context {
	return context.WithValue(parent, currentSpanKey{}, active{remote: sc})
}

// SpanFromContext returns the current local span, or nil when the current
// context is empty or only holds a remote placeholder. All Span methods are
// safe to call on a nil receiver.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(currentSpanKey{}).(active)
	return a.span
}

// SpanContextFromContext returns the identity of the current span, remote or
// local. The zero SpanContext means no span is current.
func SpanContextFromContext(ctx context.Context) SpanContext {
	if ctx == nil {
		return SpanContext{}
	}
	a, ok := ctx.Value(currentSpanKey{}).(active)
	if !ok {
		return SpanContext{}
	}
	if a.span != nil {
		return a.span.SpanContext()
	}
	return a.remote
}

// WithCurrent runs body with sc as the current span context. The caller's
// context is never modified, so on every exit path (return, error or panic)
// the previously current context is what the caller still holds.
func WithCurrent(ctx context.Context, sc SpanContext, body func(ctx context.Context) error) error {
	return body(ContextWithSpanContext(ctx, sc))
}
