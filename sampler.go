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
	zipkin "github.com/openzipkin/zipkin-go"
)

// Sampler functions decide whether a new root trace is recorded, based on
// its TraceID. Child spans follow their parent's decision.
type Sampler func(id TraceID) bool

// AlwaysSample records every trace.
func AlwaysSample(TraceID) bool { return true }

// NeverSample records no trace.
func NeverSample(TraceID) bool { return false }

// NewBoundarySampler samples the given rate (0..1) of traces using the lower
// 64 bits of the TraceID, delegating the decision to zipkin-go's boundary
// sampler so that Zipkin-instrumented services agree on the same traces.
func NewBoundarySampler(rate float64, salt int64) (Sampler, error) {
	zs, err := zipkin.NewBoundarySampler(rate, salt)
	if err != nil {
		return nil, err
	}
	return func(id TraceID) bool { return zs(id.Low()) }, nil
}

// sampled applies the parent-based policy: a valid parent's flag wins,
// otherwise root decides.
func sampled(root Sampler, parent SpanContext, id TraceID) bool {
	if parent.IsValid() {
		return parent.IsSampled()
	}
	return root(id)
}
