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

package otbridge

import (
	otobserver "github.com/opentracing-contrib/go-observer"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

// TracerOptions allows creating a customized bridge Tracer.
type TracerOptions struct {
	observers  []otobserver.Observer
	propagator tracecontext.Propagator
}

// TracerOption allows for functional options.
// See: http://dave.cheney.net/2014/10/17/functional-options-for-friendly-apis
type TracerOption func(opts *TracerOptions)

// WithObserver registers an observer notified of every span started through
// the bridge. It may be given more than once.
func WithObserver(observer otobserver.Observer) TracerOption {
	return func(opts *TracerOptions) {
		opts.observers = append(opts.observers, observer)
	}
}

// WithPropagator sets the propagator used for the TextMap, HTTPHeaders and
// Binary formats. The W3C trace context propagator is the default.
func WithPropagator(p tracecontext.Propagator) TracerOption {
	return func(opts *TracerOptions) {
		opts.propagator = p
	}
}
