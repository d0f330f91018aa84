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

package kafka

import (
	"context"
	"strings"

	"github.com/Shopify/sarama"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/propagation/message"
)

// HeaderCarrier adapts Kafka record headers to the opentracing TextMap
// interfaces.
type HeaderCarrier []sarama.RecordHeader

// Set implements opentracing.TextMapWriter, replacing an existing header.
func (c *HeaderCarrier) Set(key, val string) {
	for i, h := range *c {
		if strings.EqualFold(string(h.Key), key) {
			(*c)[i].Value = []byte(val)
			return
		}
	}
	*c = append(*c, sarama.RecordHeader{Key: []byte(key), Value: []byte(val)})
}

// ForeachKey implements opentracing.TextMapReader.
func (c HeaderCarrier) ForeachKey(handler func(key, val string) error) error {
	for _, h := range c {
		if err := handler(string(h.Key), string(h.Value)); err != nil {
			return err
		}
	}
	return nil
}

func consumerHeaders(msg *sarama.ConsumerMessage) HeaderCarrier {
	c := make(HeaderCarrier, 0, len(msg.Headers))
	for _, h := range msg.Headers {
		if h != nil {
			c = append(c, *h)
		}
	}
	return c
}

// ExtractMessage returns ctx with the producer's span context as remote
// parent, read from the body's trace context field or else from the record
// headers. ctx is returned unchanged when neither holds a valid context.
func ExtractMessage(ctx context.Context, p tracecontext.Propagator, msg *sarama.ConsumerMessage, opts ...message.Option) context.Context {
	if sc, err := message.ExtractJSONSpanContext(p, msg.Value, opts...); err == nil {
		return tracecontext.ContextWithRemoteSpanContext(ctx, sc)
	}
	return p.Extract(ctx, consumerHeaders(msg))
}

// Handle runs handler inside a consumer span continuing the producer's
// trace. The handler's error is recorded and returned unchanged.
func Handle(ctx context.Context, tracer *tracecontext.Tracer, p tracecontext.Propagator, msg *sarama.ConsumerMessage, handler func(ctx context.Context, msg *sarama.ConsumerMessage) error) error {
	ctx = ExtractMessage(ctx, p, msg)
	return tracer.InSpan(ctx, msg.Topic+" process", func(ctx context.Context, _ *tracecontext.Span) error {
		return handler(ctx, msg)
	},
		tracecontext.WithSpanKind(tracecontext.SpanKindConsumer),
		tracecontext.WithAttributes(
			tracecontext.String(AttrMessagingSystem, "kafka"),
			tracecontext.String(AttrMessagingDestination, msg.Topic),
			tracecontext.Int64(AttrMessagingPartition, int64(msg.Partition)),
			tracecontext.Int64(AttrMessagingOffset, msg.Offset),
		),
	)
}
