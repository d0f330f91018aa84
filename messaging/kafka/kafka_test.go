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

package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/messaging/kafka"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/reporter/recorder"
)

const topic = "first-topic"

type orderStatus struct {
	ID           int    `json:"id"`
	Key          string `json:"key"`
	TraceContext string `json:"trace_context"`
}

func TestPublishWaitsForAcknowledgement(t *testing.T) {
	tp, rec := recorder.NewTracerProvider()
	producer := mocks.NewAsyncProducer(t, kafka.NewConfig())
	var published orderStatus
	producer.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		return json.Unmarshal(val, &published)
	})
	pub := kafka.NewPublisher(producer, tp.Tracer("orders", ""), tracecontext.NewTraceContext())

	err := pub.Publish(context.Background(), "update_order_status", topic, nil, []byte(`{"id":10,"key":"received_by_vendor"}`))
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	spans := rec.Flush()
	require.Equal(t, 1, len(spans))
	s := spans[0]
	assert.Equal(t, "update_order_status", s.Name)
	assert.Equal(t, tracecontext.SpanKindProducer, s.Kind)
	assert.Equal(t, tracecontext.StatusUnset, s.Status.Code)
	dest, _ := s.Attribute(kafka.AttrMessagingDestination)
	assert.Equal(t, topic, dest.AsString())

	assert.Equal(t, 10, published.ID)
	assert.Equal(t, "received_by_vendor", published.Key)
	_, ok := s.Attribute(kafka.AttrMessagingOffset)
	assert.True(t, ok)
	if want, have := tracecontext.FormatTraceParent(s.SpanContext), published.TraceContext; want != have {
		t.Errorf("trace_context want %s, have %s", want, have)
	}
}

func TestPublishFailureMarksSpan(t *testing.T) {
	tp, rec := recorder.NewTracerProvider()
	producer := mocks.NewAsyncProducer(t, kafka.NewConfig())
	producer.ExpectInputAndFail(errors.New("broker down"))
	pub := kafka.NewPublisher(producer, tp.Tracer("orders", ""), tracecontext.NewTraceContext())

	err := pub.Publish(context.Background(), "update_order_status", topic, []byte("10"), []byte(`{}`))
	require.EqualError(t, err, "broker down")
	require.NoError(t, pub.Close())

	s := rec.Flush()[0]
	assert.Equal(t, tracecontext.StatusError, s.Status.Code)
}

func TestPublishAsyncEndsSpanOnResolution(t *testing.T) {
	tp, rec := recorder.NewTracerProvider()
	producer := mocks.NewAsyncProducer(t, kafka.NewConfig())
	producer.ExpectInputAndSucceed()
	pub := kafka.NewPublisher(producer, tp.Tracer("orders", ""), tracecontext.NewTraceContext())
	defer pub.Close()

	f, err := pub.PublishAsync(context.Background(), "update_order_status", topic, nil, []byte(`{"id":10}`))
	require.NoError(t, err)
	require.NoError(t, f.Wait(context.Background()))
	assert.Equal(t, int64(1), f.Offset())

	spans := rec.Flush()
	require.Equal(t, 1, len(spans))
	offset, ok := spans[0].Attribute(kafka.AttrMessagingOffset)
	require.True(t, ok)
	assert.Equal(t, int64(1), offset.AsInt64())
}

func TestPublishCancelledBeforeAcknowledgementLeavesSpanAlone(t *testing.T) {
	var (
		mtx    sync.Mutex
		logged []string
	)
	logger := tracecontext.LoggerFunc(func(keyvals ...interface{}) error {
		mtx.Lock()
		defer mtx.Unlock()
		logged = append(logged, fmt.Sprint(keyvals...))
		return nil
	})
	tp, rec := recorder.NewTracerProvider(tracecontext.WithLogger(logger))

	received, release := make(chan struct{}), make(chan struct{})
	producer := mocks.NewAsyncProducer(t, kafka.NewConfig())
	producer.ExpectInputWithCheckerFunctionAndSucceed(func([]byte) error {
		close(received)
		<-release
		return nil
	})
	pub := kafka.NewPublisher(producer, tp.Tracer("orders", ""), tracecontext.NewTraceContext())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-received
		cancel()
	}()
	err := pub.Publish(ctx, "update_order_status", topic, nil, []byte(`{"id":10}`))
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, pub.Close())

	spans := rec.Flush()
	require.Equal(t, 1, len(spans))
	assert.Equal(t, tracecontext.StatusError, spans[0].Status.Code)
	_, ok := spans[0].Attribute(kafka.AttrMessagingOffset)
	assert.False(t, ok)

	mtx.Lock()
	defer mtx.Unlock()
	for _, line := range logged {
		assert.NotContains(t, line, tracecontext.ErrSpanAlreadyEnded.Error())
	}
}

func TestPublishRejectsNonObjectBody(t *testing.T) {
	tp, rec := recorder.NewTracerProvider()
	producer := mocks.NewAsyncProducer(t, kafka.NewConfig())
	pub := kafka.NewPublisher(producer, tp.Tracer("orders", ""), tracecontext.NewTraceContext())

	err := pub.Publish(context.Background(), "update_order_status", topic, nil, []byte(`[1]`))
	require.Error(t, err)
	require.NoError(t, pub.Close())
	assert.Equal(t, tracecontext.StatusError, rec.Flush()[0].Status.Code)
}

func TestPublishAfterClose(t *testing.T) {
	tp, _ := recorder.NewTracerProvider()
	producer := mocks.NewAsyncProducer(t, kafka.NewConfig())
	pub := kafka.NewPublisher(producer, tp.Tracer("orders", ""), tracecontext.NewTraceContext())
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())

	_, err := pub.PublishAsync(context.Background(), "late", topic, nil, []byte(`{}`))
	assert.True(t, errors.Is(err, kafka.ErrPublisherClosed))
}

func TestHandleContinuesProducerTrace(t *testing.T) {
	tp, rec := recorder.NewTracerProvider()
	p := tracecontext.NewTraceContext()
	msg := &sarama.ConsumerMessage{
		Topic:     topic,
		Partition: 1,
		Offset:    7,
		Value:     []byte(`{"id":10,"trace_context":"00-00000000000000000000000000000001-0000000000000002-01"}`),
	}

	handled := false
	err := kafka.Handle(context.Background(), tp.Tracer("status-consumer", ""), p, msg, func(ctx context.Context, m *sarama.ConsumerMessage) error {
		handled = true
		assert.Equal(t, tracecontext.TraceIDFromUint64(0, 1), tracecontext.SpanContextFromContext(ctx).TraceID)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, handled)

	s := rec.Flush()[0]
	assert.Equal(t, tracecontext.SpanKindConsumer, s.Kind)
	assert.Equal(t, tracecontext.SpanIDFromUint64(2), s.Parent.SpanID)
}

func TestExtractMessageFallsBackToHeaders(t *testing.T) {
	p := tracecontext.NewTraceContext()
	sc := tracecontext.SpanContext{
		TraceID:    tracecontext.NewTraceID(),
		SpanID:     tracecontext.NewSpanID(),
		TraceFlags: tracecontext.FlagsSampled,
	}
	headers := kafka.HeaderCarrier{}
	require.NoError(t, p.Inject(tracecontext.ContextWithSpanContext(context.Background(), sc), &headers))
	require.Equal(t, 1, len(headers))

	msg := &sarama.ConsumerMessage{Value: []byte(`not json`)}
	for i := range headers {
		msg.Headers = append(msg.Headers, &headers[i])
	}

	have := tracecontext.SpanContextFromContext(kafka.ExtractMessage(context.Background(), p, msg))
	assert.Equal(t, sc.SpanID, have.SpanID)

	empty := &sarama.ConsumerMessage{Value: []byte(`{}`)}
	assert.False(t, tracecontext.SpanContextFromContext(kafka.ExtractMessage(context.Background(), p, empty)).IsValid())
}

func TestHeaderCarrierReplaces(t *testing.T) {
	c := kafka.HeaderCarrier{}
	c.Set("traceparent", "a")
	c.Set("TraceParent", "b")
	require.Equal(t, 1, len(c))
	assert.Equal(t, "b", string(c[0].Value))
}
