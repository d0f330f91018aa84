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
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrMalformedIdentifier is returned when a trace or span identifier is not
// fixed-width lowercase hex or is all zeros.
var ErrMalformedIdentifier = errors.New("tracecontext: malformed identifier")

// TraceID is a 128 bit trace identifier shared by every span in a trace.
type TraceID [16]byte

// SpanID is a 64 bit span identifier, unique within its trace.
type SpanID [8]byte

var (
	nilTraceID TraceID
	nilSpanID  SpanID
)

// IsValid reports whether the TraceID is non-zero.
func (t TraceID) IsValid() bool { return t != nilTraceID }

// String renders the TraceID as 32 lowercase hex characters.
func (t TraceID) String() string { return hex.EncodeToString(t[:]) }

// High returns the upper 64 bits.
func (t TraceID) High() uint64 { return binary.BigEndian.Uint64(t[:8]) }

// Low returns the lower 64 bits.
func (t TraceID) Low() uint64 { return binary.BigEndian.Uint64(t[8:]) }

// MarshalText implements encoding.TextMarshaler.
func (t TraceID) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// IsValid reports whether the SpanID is non-zero.
func (s SpanID) IsValid() bool { return s != nilSpanID }

// String renders the SpanID as 16 lowercase hex characters.
func (s SpanID) String() string { return hex.EncodeToString(s[:]) }

// Uint64 returns the SpanID as an integer.
func (s SpanID) Uint64() uint64 { return binary.BigEndian.Uint64(s[:]) }

// MarshalText implements encoding.TextMarshaler.
func (s SpanID) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// TraceIDFromUint64 assembles a TraceID from its two halves.
func TraceIDFromUint64(high, low uint64) TraceID {
	var t TraceID
	binary.BigEndian.PutUint64(t[:8], high)
	binary.BigEndian.PutUint64(t[8:], low)
	return t
}

// SpanIDFromUint64 converts an integer span id.
func SpanIDFromUint64(v uint64) SpanID {
	var s SpanID
	binary.BigEndian.PutUint64(s[:], v)
	return s
}

// ParseTraceID decodes a 32 character hex string.
func ParseTraceID(h string) (TraceID, error) {
	var t TraceID
	if err := decodeHex(h, t[:]); err != nil {
		return nilTraceID, err
	}
	if !t.IsValid() {
		return nilTraceID, fmt.Errorf("%w: all-zero trace id", ErrMalformedIdentifier)
	}
	return t, nil
}

// ParseSpanID decodes a 16 character hex string.
func ParseSpanID(h string) (SpanID, error) {
	var s SpanID
	if err := decodeHex(h, s[:]); err != nil {
		return nilSpanID, err
	}
	if !s.IsValid() {
		return nilSpanID, fmt.Errorf("%w: all-zero span id", ErrMalformedIdentifier)
	}
	return s, nil
}

func decodeHex(h string, dst []byte) error {
	if len(h) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("%w: want %d hex characters, have %d", ErrMalformedIdentifier, hex.EncodedLen(len(dst)), len(h))
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: invalid character %q", ErrMalformedIdentifier, c)
		}
	}
	if _, err := hex.Decode(dst, []byte(h)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedIdentifier, err)
	}
	return nil
}

// IDGenerator allocates new identifiers. Implementations must never return
// zero values.
type IDGenerator interface {
	NewTraceID() TraceID
	NewSpanID() SpanID
}

type randomIDGenerator struct{}

// NewTraceID returns a random, non-zero TraceID.
func NewTraceID() TraceID { return randomIDGenerator{}.NewTraceID() }

// NewSpanID returns a random, non-zero SpanID.
func NewSpanID() SpanID { return randomIDGenerator{}.NewSpanID() }

func (randomIDGenerator) NewTraceID() TraceID {
	var t TraceID
	for !t.IsValid() {
		fillRandom(t[:])
	}
	return t
}

func (randomIDGenerator) NewSpanID() SpanID {
	var s SpanID
	for !s.IsValid() {
		fillRandom(s[:])
	}
	return s
}

func fillRandom(b []byte) {
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
}
