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

// Package kafka publishes traced messages with sarama. Every publish runs
// inside a producer span whose context travels in the message body's trace
// context field and in the record headers; consumers continue the trace
// from either.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Shopify/sarama"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/propagation/message"
)

// Attribute keys set on messaging spans.
const (
	AttrMessagingSystem      = "messaging.system"
	AttrMessagingDestination = "messaging.destination.name"
	AttrMessagingPartition   = "messaging.kafka.destination.partition"
	AttrMessagingOffset      = "messaging.kafka.message.offset"
)

// ErrPublisherClosed is returned by publishes after Close.
var ErrPublisherClosed = errors.New("kafka: publisher closed")

// NewConfig returns a sarama configuration suitable for a Publisher:
// successes and errors are both reported so every Future resolves.
func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	return cfg
}

// NewProducer dials brokers with NewConfig.
func NewProducer(brokers []string) (sarama.AsyncProducer, error) {
	return sarama.NewAsyncProducer(brokers, NewConfig())
}

// Future is the outcome of an asynchronous publish.
type Future struct {
	done      chan struct{}
	err       error
	partition int32
	offset    int64
	span      *tracecontext.Span
	endSpan   bool
}

func newFuture(span *tracecontext.Span, endSpan bool) *Future {
	return &Future{done: make(chan struct{}), span: span, endSpan: endSpan}
}

// Done is closed once the broker acknowledged or rejected the message.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the publish error. It is only meaningful after Done.
func (f *Future) Err() error { return f.err }

// Partition and Offset locate the stored message after a successful publish.
func (f *Future) Partition() int32 { return f.partition }

// Offset of the stored message.
func (f *Future) Offset() int64 { return f.offset }

// Wait blocks until the publish completes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) resolve(msg *sarama.ProducerMessage, err error) {
	f.err = err
	if msg != nil {
		f.partition, f.offset = msg.Partition, msg.Offset
	}
	// Without endSpan the span belongs to the publishing flow, which
	// annotates it after Wait.
	if f.endSpan {
		if err != nil {
			f.span.RecordError(err)
			f.span.SetStatus(tracecontext.StatusError, err.Error())
		} else {
			f.annotate(f.span)
		}
		f.span.End()
	}
	close(f.done)
}

func (f *Future) annotate(span *tracecontext.Span) {
	span.SetAttributes(
		tracecontext.Int64(AttrMessagingPartition, int64(f.partition)),
		tracecontext.Int64(AttrMessagingOffset, f.offset),
	)
}

// PublisherOption configures a Publisher.
type PublisherOption func(p *Publisher)

// WithField overrides the body field holding the trace context.
func WithField(name string) PublisherOption {
	return func(p *Publisher) { p.field = name }
}

// WithLogger reports undeliverable acknowledgements to logger.
func WithLogger(logger tracecontext.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// Publisher sends JSON messages through a sarama.AsyncProducer, resolving
// a Future per message from the producer's Successes and Errors channels.
// The producer must be configured to return both, see NewConfig.
type Publisher struct {
	producer   sarama.AsyncProducer
	tracer     *tracecontext.Tracer
	propagator tracecontext.Propagator
	field      string
	logger     tracecontext.Logger

	mtx    sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPublisher takes ownership of producer; Close closes it.
func NewPublisher(producer sarama.AsyncProducer, tracer *tracecontext.Tracer, propagator tracecontext.Propagator, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		producer:   producer,
		tracer:     tracer,
		propagator: propagator,
		field:      message.DefaultField,
		logger:     tracecontext.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(2)
	go p.drainSuccesses()
	go p.drainErrors()
	return p
}

func (p *Publisher) drainSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		p.dispatch(msg, nil)
	}
}

func (p *Publisher) drainErrors() {
	defer p.wg.Done()
	for perr := range p.producer.Errors() {
		p.dispatch(perr.Msg, perr.Err)
	}
}

func (p *Publisher) dispatch(msg *sarama.ProducerMessage, err error) {
	if msg == nil {
		_ = p.logger.Log("msg", "producer result without message", "err", fmt.Sprint(err))
		return
	}
	f, ok := msg.Metadata.(*Future)
	if !ok {
		_ = p.logger.Log("msg", "producer result without future", "topic", msg.Topic)
		return
	}
	f.resolve(msg, err)
}

// Publish sends body to topic inside a producer span named name and waits
// for the broker's answer before the span ends. The span's status reflects
// the outcome.
func (p *Publisher) Publish(ctx context.Context, name, topic string, key, body []byte) error {
	return p.tracer.InSpan(ctx, name, func(ctx context.Context, span *tracecontext.Span) error {
		f, err := p.send(ctx, span, topic, key, body, false)
		if err != nil {
			return err
		}
		if err := f.Wait(ctx); err != nil {
			return err
		}
		f.annotate(span)
		return nil
	}, p.spanOptions(topic)...)
}

// PublishAsync sends body to topic inside a producer span that ends when
// the returned Future resolves.
func (p *Publisher) PublishAsync(ctx context.Context, name, topic string, key, body []byte) (*Future, error) {
	ctx, span := p.tracer.Start(ctx, name, p.spanOptions(topic)...)
	f, err := p.send(ctx, span, topic, key, body, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(tracecontext.StatusError, err.Error())
		span.End()
		return nil, err
	}
	return f, nil
}

func (p *Publisher) spanOptions(topic string) []tracecontext.SpanStartOption {
	return []tracecontext.SpanStartOption{
		tracecontext.WithSpanKind(tracecontext.SpanKindProducer),
		tracecontext.WithAttributes(
			tracecontext.String(AttrMessagingSystem, "kafka"),
			tracecontext.String(AttrMessagingDestination, topic),
		),
	}
}

func (p *Publisher) send(ctx context.Context, span *tracecontext.Span, topic string, key, body []byte, endSpan bool) (*Future, error) {
	body, err := message.InjectJSON(ctx, p.propagator, body, message.WithField(p.field))
	if err != nil {
		return nil, err
	}
	headers := HeaderCarrier{}
	_ = p.propagator.Inject(ctx, &headers)

	f := newFuture(span, endSpan)
	msg := &sarama.ProducerMessage{
		Topic:    topic,
		Value:    sarama.ByteEncoder(body),
		Headers:  []sarama.RecordHeader(headers),
		Metadata: f,
	}
	if key != nil {
		msg.Key = sarama.ByteEncoder(key)
	}

	p.mtx.RLock()
	defer p.mtx.RUnlock()
	if p.closed {
		return nil, ErrPublisherClosed
	}
	select {
	case p.producer.Input() <- msg:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting messages, waits for outstanding results and closes
// the producer.
func (p *Publisher) Close() error {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return nil
	}
	p.closed = true
	p.mtx.Unlock()

	p.producer.AsyncClose()
	p.wg.Wait()
	return nil
}
