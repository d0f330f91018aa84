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
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultBatchSize         = 512
	defaultBatchInterval     = 5 * time.Second
	defaultMaxQueueSize      = 2048
	defaultMaxExportAttempts = 3
	defaultRetryBackoff      = 100 * time.Millisecond
	defaultExportTimeout     = 30 * time.Second
)

var errQueueFull = errors.New("tracecontext: span queue full")

// BatchSpanProcessor buffers ended spans and exports them from a single
// background goroutine when either the batch size or the batch interval is
// reached. The queue is bounded: when it is full new spans are dropped and
// counted. Failed exports are retried with exponential backoff; after the
// last attempt the batch is dropped and counted.
type BatchSpanProcessor struct {
	exporter          Exporter
	logger            Logger
	stateLogger       *StateLogger
	batchInterval     time.Duration
	batchSize         int
	maxQueueSize      int
	maxExportAttempts int
	retryBackoff      time.Duration
	exportTimeout     time.Duration
	registerer        prometheus.Registerer
	metrics           *processorMetrics

	spanc    chan SpanSnapshot
	flushc   chan chan error
	quit     chan struct{}
	shutdown chan error
	stopOnce sync.Once
	stopErr  error

	// stopMu orders OnEnd sends before the close of quit.
	stopMu  sync.RWMutex
	stopped bool

	exported atomic.Int64
	dropped  atomic.Int64
}

// BatchOption sets a parameter for the BatchSpanProcessor.
type BatchOption func(p *BatchSpanProcessor)

// BatchLogger sets the logger used to report queue overflows and export
// failures. By default a no-op logger is used.
func BatchLogger(logger Logger) BatchOption {
	return func(p *BatchSpanProcessor) { p.logger = logger }
}

// BatchSize sets the number of spans after which an export is triggered.
func BatchSize(n int) BatchOption {
	return func(p *BatchSpanProcessor) { p.batchSize = n }
}

// BatchInterval sets the maximum duration spans are buffered before export.
func BatchInterval(d time.Duration) BatchOption {
	return func(p *BatchSpanProcessor) { p.batchInterval = d }
}

// MaxQueueSize bounds the number of spans waiting for the export loop.
func MaxQueueSize(n int) BatchOption {
	return func(p *BatchSpanProcessor) { p.maxQueueSize = n }
}

// MaxExportAttempts sets how many times a batch is offered to the exporter
// before it is dropped.
func MaxExportAttempts(n int) BatchOption {
	return func(p *BatchSpanProcessor) { p.maxExportAttempts = n }
}

// RetryBackoff sets the delay before the first retry; it doubles after each
// failed attempt.
func RetryBackoff(d time.Duration) BatchOption {
	return func(p *BatchSpanProcessor) { p.retryBackoff = d }
}

// ExportTimeout bounds a single export attempt.
func ExportTimeout(d time.Duration) BatchOption {
	return func(p *BatchSpanProcessor) { p.exportTimeout = d }
}

// BatchRegisterer registers the processor's Prometheus counters with reg.
func BatchRegisterer(reg prometheus.Registerer) BatchOption {
	return func(p *BatchSpanProcessor) { p.registerer = reg }
}

// NewBatchSpanProcessor returns a started BatchSpanProcessor.
func NewBatchSpanProcessor(exporter Exporter, options ...BatchOption) *BatchSpanProcessor {
	p := &BatchSpanProcessor{
		exporter:          exporter,
		logger:            NewNopLogger(),
		batchInterval:     defaultBatchInterval,
		batchSize:         defaultBatchSize,
		maxQueueSize:      defaultMaxQueueSize,
		maxExportAttempts: defaultMaxExportAttempts,
		retryBackoff:      defaultRetryBackoff,
		exportTimeout:     defaultExportTimeout,
		flushc:            make(chan chan error),
		quit:              make(chan struct{}),
		shutdown:          make(chan error, 1),
	}
	for _, option := range options {
		option(p)
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultBatchSize
	}
	if p.batchInterval <= 0 {
		p.batchInterval = defaultBatchInterval
	}
	if p.maxExportAttempts <= 0 {
		p.maxExportAttempts = 1
	}
	if p.maxQueueSize <= 0 {
		p.maxQueueSize = defaultMaxQueueSize
	}
	if p.maxQueueSize < p.batchSize {
		p.maxQueueSize = p.batchSize
	}
	p.stateLogger = NewStateLogger(p.logger, defaultLogErrorInterval)
	p.metrics = newProcessorMetrics(p.registerer)

	// spanc can immediately accept maxQueueSize spans and everything else is dropped.
	p.spanc = make(chan SpanSnapshot, p.maxQueueSize)

	go p.loop()
	return p
}

// OnEnd implements SpanProcessor. It never blocks.
func (p *BatchSpanProcessor) OnEnd(s SpanSnapshot) {
	p.stopMu.RLock()
	defer p.stopMu.RUnlock()
	if p.stopped {
		p.drop(DropReasonShutdown, 1)
		return
	}
	select {
	case p.spanc <- s:
		// Accepted.
	default:
		p.drop(DropReasonQueueFull, 1)
		p.stateLogger.LogError(errQueueFull, "msg", "disposing spans", "size", p.maxQueueSize)
	}
}

// ForceFlush exports everything queued so far and returns the export
// result.
func (p *BatchSpanProcessor) ForceFlush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case p.flushc <- reply:
	case <-p.quit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown flushes the queue, stops the export loop and shuts the exporter
// down. Subsequent calls return the first result.
func (p *BatchSpanProcessor) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.stopMu.Lock()
		p.stopped = true
		close(p.quit)
		p.stopMu.Unlock()
		select {
		case err := <-p.shutdown:
			p.stopErr = err
		case <-ctx.Done():
			p.stopErr = ctx.Err()
			return
		}
		if err := p.exporter.Shutdown(ctx); err != nil && p.stopErr == nil {
			p.stopErr = err
		}
	})
	return p.stopErr
}

// Exported returns the number of spans accepted by the exporter.
func (p *BatchSpanProcessor) Exported() int64 { return p.exported.Load() }

// Dropped returns the number of spans that never reached the exporter.
func (p *BatchSpanProcessor) Dropped() int64 { return p.dropped.Load() }

func (p *BatchSpanProcessor) drop(reason string, n int) {
	p.dropped.Add(int64(n))
	p.metrics.spansDropped(reason, n)
}

func (p *BatchSpanProcessor) loop() {
	var (
		nextSend = time.Now().Add(p.batchInterval)
		ticker   = time.NewTicker(max(p.batchInterval/10, time.Millisecond))
		tickc    = ticker.C
	)
	defer ticker.Stop()

	// The following loop is single threaded
	// allocate enough space so we don't have to reallocate.
	batch := make([]SpanSnapshot, 0, p.batchSize)

	for {
		select {
		case span := <-p.spanc:
			batch = append(batch, span)
			if len(batch) == p.batchSize {
				_ = p.export(batch)
				batch = batch[0:0]
				nextSend = time.Now().Add(p.batchInterval)
			}
		case <-tickc:
			if time.Now().After(nextSend) {
				if len(batch) > 0 {
					_ = p.export(batch)
					batch = batch[0:0]
				}
				nextSend = time.Now().Add(p.batchInterval)
			}
		case reply := <-p.flushc:
			batch = p.drain(batch)
			reply <- p.export(batch)
			batch = batch[0:0]
			nextSend = time.Now().Add(p.batchInterval)
		case <-p.quit:
			batch = p.drain(batch)
			p.shutdown <- p.export(batch)
			return
		}
	}
}

// drain moves every queued span into batch, exporting full batches on the
// way.
func (p *BatchSpanProcessor) drain(batch []SpanSnapshot) []SpanSnapshot {
	for {
		select {
		case span := <-p.spanc:
			batch = append(batch, span)
			if len(batch) == p.batchSize {
				_ = p.export(batch)
				batch = batch[0:0]
			}
		default:
			return batch
		}
	}
}

func (p *BatchSpanProcessor) export(batch []SpanSnapshot) error {
	if len(batch) == 0 {
		return nil
	}
	// batch is reused by the loop; the exporter gets its own copy.
	spans := make([]SpanSnapshot, len(batch))
	copy(spans, batch)

	var (
		err     error
		backoff = p.retryBackoff
	)
	for attempt := 1; attempt <= p.maxExportAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.exportTimeout)
		err = p.exporter.ExportSpans(ctx, spans)
		cancel()
		if err == nil {
			p.exported.Add(int64(len(spans)))
			p.metrics.spansExported(len(spans))
			p.stateLogger.Fixed("msg", "span export recovered")
			return nil
		}
		p.metrics.attemptFailed()
		if attempt < p.maxExportAttempts {
			p.sleep(backoff)
			backoff *= 2
		}
	}

	p.drop(DropReasonExportFailed, len(spans))
	err = fmt.Errorf("%w after %d attempts: %v", ErrExportFailure, p.maxExportAttempts, err)
	p.stateLogger.LogError(err, "dropped", len(spans))
	return err
}

// sleep waits d, returning early once shutdown has begun.
func (p *BatchSpanProcessor) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.quit:
	}
}
