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

package console_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/reporter/console"
)

func TestExporterLogsSpans(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	exporter, err := console.New(zap.New(core))
	require.NoError(t, err)

	tp := tracecontext.NewTracerProvider(
		tracecontext.WithSyncer(exporter),
		tracecontext.WithService("time-estimation", ""),
	)
	tracer := tp.Tracer("estimations", "")

	ctx, parent := tracer.Start(context.Background(), "GET /estimate", tracecontext.WithSpanKind(tracecontext.SpanKindServer))
	_ = tracer.InSpan(ctx, "calculate", func(ctx context.Context, s *tracecontext.Span) error {
		s.SetAttributes(tracecontext.Int("order_id", 5), tracecontext.String("vendor", "acme"))
		s.AddEvent("estimated", tracecontext.Bool("cached", false))
		return errors.New("no couriers")
	})
	parent.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	entries := logs.AllUntimed()
	require.Equal(t, 2, len(entries))

	child := entries[0]
	assert.Equal(t, zapcore.ErrorLevel, child.Level)
	assert.Equal(t, console.MsgSpanError, child.Message)
	assert.Equal(t, "spans", child.LoggerName)
	fields := child.ContextMap()
	assert.Equal(t, "calculate", fields["operation"])
	assert.Equal(t, "no couriers", fields["status"])
	assert.Equal(t, parent.SpanContext().SpanID.String(), fields["parent_id"])
	assert.Equal(t, parent.SpanContext().TraceID.String(), fields["trace_id"])
	assert.Equal(t, "time-estimation", fields["service"])
	assert.Equal(t, map[string]interface{}{"order_id": int64(5), "vendor": "acme"}, fields["attributes"])
	evs, ok := fields["events"].([]interface{})
	require.True(t, ok)
	require.Equal(t, 2, len(evs))
	assert.Equal(t, "estimated", evs[0].(map[string]interface{})["name"])

	root := entries[1]
	assert.Equal(t, zapcore.InfoLevel, root.Level)
	assert.Equal(t, console.MsgSpan, root.Message)
	rootFields := root.ContextMap()
	assert.Equal(t, "server", rootFields["kind"])
	assert.Equal(t, "unset", rootFields["status_code"])
	_, hasParent := rootFields["parent_id"]
	assert.False(t, hasParent)
}
