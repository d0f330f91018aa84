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

package grpc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/propagation/grpc"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/reporter/recorder"
)

const method = "/orders.Orders/Transmit"

func TestMetadataCarrier(t *testing.T) {
	md := metadata.MD{}
	grpc.MetadataCarrier(md).Set("TraceParent", "value")
	assert.Equal(t, []string{"value"}, md.Get("traceparent"))

	seen := map[string]string{}
	_ = grpc.MetadataCarrier(md).ForeachKey(func(k, v string) error {
		seen[k] = v
		return nil
	})
	assert.Equal(t, map[string]string{"traceparent": "value"}, seen)
}

func TestClientToServerPropagation(t *testing.T) {
	tp, rec := recorder.NewTracerProvider()
	propagator := tracecontext.NewTraceContext()
	client := grpc.UnaryClientInterceptor(tp.Tracer("client", ""), propagator)
	server := grpc.UnaryServerInterceptor(tp.Tracer("server", ""), propagator)

	var inHandler tracecontext.SpanContext
	invoker := func(ctx context.Context, method string, req, reply interface{}, _ *googlegrpc.ClientConn, _ ...googlegrpc.CallOption) error {
		md, ok := metadata.FromOutgoingContext(ctx)
		require.True(t, ok)
		_, err := server(metadata.NewIncomingContext(context.Background(), md), req, &googlegrpc.UnaryServerInfo{FullMethod: method},
			func(ctx context.Context, req interface{}) (interface{}, error) {
				inHandler = tracecontext.SpanContextFromContext(ctx)
				return "ok", nil
			})
		return err
	}

	outgoing := metadata.Pairs("x-request-id", "1")
	ctx := metadata.NewOutgoingContext(context.Background(), outgoing)
	require.NoError(t, client(ctx, method, "req", nil, nil, invoker))
	assert.Empty(t, outgoing.Get("traceparent"), "caller's metadata must not be modified")

	spans := rec.Flush()
	require.Equal(t, 2, len(spans))
	serverSpan, clientSpan := spans[0], spans[1]
	assert.Equal(t, tracecontext.SpanKindServer, serverSpan.Kind)
	assert.Equal(t, tracecontext.SpanKindClient, clientSpan.Kind)
	assert.Equal(t, clientSpan.SpanContext.SpanID, serverSpan.Parent.SpanID)
	assert.Equal(t, serverSpan.SpanContext, inHandler)
	assert.Equal(t, method, serverSpan.Name)
	code, _ := serverSpan.Attribute(grpc.AttrRPCStatusCode)
	assert.Equal(t, int64(codes.OK), code.AsInt64())
}

func TestServerInterceptorRecordsErrors(t *testing.T) {
	tp, rec := recorder.NewTracerProvider()
	server := grpc.UnaryServerInterceptor(tp.Tracer("server", ""), tracecontext.NewTraceContext())

	_, err := server(context.Background(), nil, &googlegrpc.UnaryServerInfo{FullMethod: method},
		func(context.Context, interface{}) (interface{}, error) {
			return nil, status.Error(codes.Unavailable, "pubsub down")
		})
	require.Error(t, err)

	s := rec.Flush()[0]
	assert.False(t, s.HasParent())
	assert.Equal(t, tracecontext.Status{Code: tracecontext.StatusError, Description: "pubsub down"}, s.Status)
	code, _ := s.Attribute(grpc.AttrRPCStatusCode)
	assert.Equal(t, int64(codes.Unavailable), code.AsInt64())
}

type fakeServerStream struct {
	googlegrpc.ServerStream
	ctx context.Context
}

func (s fakeServerStream) Context() context.Context { return s.ctx }

func TestStreamServerInterceptor(t *testing.T) {
	tp, rec := recorder.NewTracerProvider()
	interceptor := grpc.StreamServerInterceptor(tp.Tracer("server", ""), tracecontext.NewTraceContext())

	md := metadata.Pairs("traceparent", "00-00000000000000000000000000000001-0000000000000002-01")
	ss := fakeServerStream{ctx: metadata.NewIncomingContext(context.Background(), md)}

	var inHandler *tracecontext.Span
	err := interceptor(nil, ss, &googlegrpc.StreamServerInfo{FullMethod: method}, func(_ interface{}, stream googlegrpc.ServerStream) error {
		inHandler = tracecontext.SpanFromContext(stream.Context())
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, inHandler)

	s := rec.Flush()[0]
	assert.Equal(t, tracecontext.SpanIDFromUint64(2), s.Parent.SpanID)
	streaming, _ := s.Attribute(grpc.AttrRPCStreaming)
	assert.True(t, streaming.AsBool())
}
