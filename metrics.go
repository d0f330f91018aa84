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

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons a span can be dropped by the BatchSpanProcessor.
const (
	DropReasonQueueFull    = "queue_full"
	DropReasonExportFailed = "export_failed"
	DropReasonShutdown     = "shutdown"
)

// processorMetrics holds the Prometheus counters of a BatchSpanProcessor.
// A nil *processorMetrics records nothing.
type processorMetrics struct {
	exported       prometheus.Counter
	dropped        *prometheus.CounterVec
	failedAttempts prometheus.Counter
}

// newProcessorMetrics registers the counters with reg. Registering twice on
// the same registerer panics, as promauto does.
func newProcessorMetrics(reg prometheus.Registerer) *processorMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &processorMetrics{
		exported: f.NewCounter(prometheus.CounterOpts{
			Name: "tracecontext_spans_exported_total",
			Help: "Total number of spans successfully handed to the exporter",
		}),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracecontext_spans_dropped_total",
				Help: "Total number of spans dropped before reaching the exporter",
			},
			[]string{"reason"},
		),
		failedAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "tracecontext_export_attempts_failed_total",
			Help: "Total number of failed export attempts, including retried ones",
		}),
	}
}

func (m *processorMetrics) spansExported(n int) {
	if m == nil {
		return
	}
	m.exported.Add(float64(n))
}

func (m *processorMetrics) spansDropped(reason string, n int) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Add(float64(n))
}

func (m *processorMetrics) attemptFailed() {
	if m == nil {
		return
	}
	m.failedAttempts.Inc()
}
