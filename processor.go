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
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrExportFailure wraps errors returned by an Exporter. It is only ever
// logged; it never reaches instrumented code.
var ErrExportFailure = errors.New("tracecontext: export failed")

// SpanProcessor receives a snapshot of every ended span exactly once.
// OnEnd is called inline with Span.End and must not block for long.
type SpanProcessor interface {
	OnEnd(s SpanSnapshot)
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Exporter transmits finished spans to a backend.
type Exporter interface {
	ExportSpans(ctx context.Context, spans []SpanSnapshot) error
	Shutdown(ctx context.Context) error
}

// SimpleSpanProcessor forwards each span to its exporter synchronously,
// inside the call to End. Export errors are logged and swallowed.
type SimpleSpanProcessor struct {
	exporter Exporter
	logger   *StateLogger

	mu      sync.Mutex
	stopped bool
}

// NewSimpleSpanProcessor returns a processor exporting inline. A nil logger
// discards errors.
func NewSimpleSpanProcessor(exporter Exporter, logger Logger) *SimpleSpanProcessor {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &SimpleSpanProcessor{
		exporter: exporter,
		logger:   NewStateLogger(logger, defaultLogErrorInterval),
	}
}

// OnEnd implements SpanProcessor.
func (p *SimpleSpanProcessor) OnEnd(s SpanSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if err := p.exporter.ExportSpans(context.Background(), []SpanSnapshot{s}); err != nil {
		p.logger.LogError(fmt.Errorf("%w: %v", ErrExportFailure, err), "span", s.Name)
	}
}

// ForceFlush implements SpanProcessor. Nothing is buffered.
func (p *SimpleSpanProcessor) ForceFlush(context.Context) error { return nil }

// Shutdown implements SpanProcessor.
func (p *SimpleSpanProcessor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	return p.exporter.Shutdown(ctx)
}
