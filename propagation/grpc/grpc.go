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

// Package grpc carries span contexts in gRPC metadata and provides client
// and server interceptors that open spans around each call.
package grpc

import (
	"context"
	"strings"

	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

// Attribute keys set on RPC spans.
const (
	AttrRPCSystem     = "rpc.system"
	AttrRPCMethod     = "rpc.method"
	AttrRPCStatusCode = "rpc.grpc.status_code"
	AttrRPCStreaming  = "rpc.streaming"
)

// MetadataCarrier adapts metadata.MD to the opentracing TextMap
// interfaces. Keys are lower-cased as gRPC requires.
type MetadataCarrier metadata.MD

// Set implements opentracing.TextMapWriter.
func (c MetadataCarrier) Set(key, val string) {
	metadata.MD(c).Set(strings.ToLower(key), val)
}

// ForeachKey implements opentracing.TextMapReader.
func (c MetadataCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, vals := range c {
		for _, v := range vals {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func extract(ctx context.Context, propagator tracecontext.Propagator) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	return propagator.Extract(ctx, MetadataCarrier(md))
}

func finish(span *tracecontext.Span, err error) {
	span.SetAttributes(tracecontext.Int64(AttrRPCStatusCode, int64(status.Code(err))))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(tracecontext.StatusError, status.Convert(err).Message())
	}
}

// UnaryServerInterceptor runs each unary call inside a server span whose
// parent is read from the incoming metadata.
func UnaryServerInterceptor(tracer *tracecontext.Tracer, propagator tracecontext.Propagator) googlegrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *googlegrpc.UnaryServerInfo, handler googlegrpc.UnaryHandler) (interface{}, error) {
		ctx, span := tracer.Start(extract(ctx, propagator), info.FullMethod,
			tracecontext.WithSpanKind(tracecontext.SpanKindServer),
			tracecontext.WithAttributes(
				tracecontext.String(AttrRPCSystem, "grpc"),
				tracecontext.String(AttrRPCMethod, info.FullMethod),
			),
		)
		defer span.End()

		resp, err := handler(ctx, req)
		finish(span, err)
		return resp, err
	}
}

// StreamServerInterceptor is UnaryServerInterceptor for streams. The span
// covers the whole stream.
func StreamServerInterceptor(tracer *tracecontext.Tracer, propagator tracecontext.Propagator) googlegrpc.StreamServerInterceptor {
	return func(srv interface{}, ss googlegrpc.ServerStream, info *googlegrpc.StreamServerInfo, handler googlegrpc.StreamHandler) error {
		ctx, span := tracer.Start(extract(ss.Context(), propagator), info.FullMethod,
			tracecontext.WithSpanKind(tracecontext.SpanKindServer),
			tracecontext.WithAttributes(
				tracecontext.String(AttrRPCSystem, "grpc"),
				tracecontext.String(AttrRPCMethod, info.FullMethod),
				tracecontext.Bool(AttrRPCStreaming, true),
			),
		)
		defer span.End()

		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
		finish(span, err)
		return err
	}
}

// tracedServerStream wraps grpc.ServerStream with the span's context.
type tracedServerStream struct {
	googlegrpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

// UnaryClientInterceptor runs each outgoing unary call inside a client span
// and injects its context into the outgoing metadata.
func UnaryClientInterceptor(tracer *tracecontext.Tracer, propagator tracecontext.Propagator) googlegrpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *googlegrpc.ClientConn, invoker googlegrpc.UnaryInvoker, opts ...googlegrpc.CallOption) error {
		ctx, span := tracer.Start(ctx, method,
			tracecontext.WithSpanKind(tracecontext.SpanKindClient),
			tracecontext.WithAttributes(
				tracecontext.String(AttrRPCSystem, "grpc"),
				tracecontext.String(AttrRPCMethod, method),
			),
		)
		defer span.End()

		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.MD{}
		}
		_ = propagator.Inject(ctx, MetadataCarrier(md))
		ctx = metadata.NewOutgoingContext(ctx, md)

		err := invoker(ctx, method, req, reply, cc, opts...)
		finish(span, err)
		return err
	}
}
