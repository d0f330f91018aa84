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
	"fmt"
	"strconv"
)

// ValueType enumerates the scalar kinds an attribute may hold.
type ValueType int

// Available ValueType values
const (
	InvalidType ValueType = iota
	StringType
	Int64Type
	Float64Type
	BoolType
)

// Value is a scalar attribute value restricted to strings, integers,
// floats and booleans.
type Value struct {
	vtype   ValueType
	str     string
	numeric int64
	float   float64
}

// Type returns the kind of the value.
func (v Value) Type() ValueType { return v.vtype }

// AsString returns the string held by v; empty for other kinds.
func (v Value) AsString() string { return v.str }

// AsInt64 returns the integer held by v.
func (v Value) AsInt64() int64 { return v.numeric }

// AsFloat64 returns the float held by v.
func (v Value) AsFloat64() float64 { return v.float }

// AsBool returns the boolean held by v.
func (v Value) AsBool() bool { return v.numeric != 0 }

// AsInterface returns v as one of string, int64, float64 or bool.
func (v Value) AsInterface() interface{} {
	switch v.vtype {
	case StringType:
		return v.str
	case Int64Type:
		return v.numeric
	case Float64Type:
		return v.float
	case BoolType:
		return v.AsBool()
	}
	return nil
}

// Emit renders v as a string regardless of its kind.
func (v Value) Emit() string {
	switch v.vtype {
	case StringType:
		return v.str
	case Int64Type:
		return strconv.FormatInt(v.numeric, 10)
	case Float64Type:
		return strconv.FormatFloat(v.float, 'g', -1, 64)
	case BoolType:
		return strconv.FormatBool(v.AsBool())
	}
	return ""
}

// KeyValue is a single span or event attribute.
type KeyValue struct {
	Key   string
	Value Value
}

// Valid reports whether kv has a key and a typed value.
func (kv KeyValue) Valid() bool { return kv.Key != "" && kv.Value.vtype != InvalidType }

// String creates a string attribute.
func String(key, value string) KeyValue {
	return KeyValue{Key: key, Value: Value{vtype: StringType, str: value}}
}

// Int creates an integer attribute.
func Int(key string, value int) KeyValue { return Int64(key, int64(value)) }

// Int64 creates an integer attribute.
func Int64(key string, value int64) KeyValue {
	return KeyValue{Key: key, Value: Value{vtype: Int64Type, numeric: value}}
}

// Float64 creates a floating point attribute.
func Float64(key string, value float64) KeyValue {
	return KeyValue{Key: key, Value: Value{vtype: Float64Type, float: value}}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) KeyValue {
	var n int64
	if value {
		n = 1
	}
	return KeyValue{Key: key, Value: Value{vtype: BoolType, numeric: n}}
}

// Any converts a dynamically typed value at the API boundary. Integers of
// any width become Int64, floats become Float64 and everything else that is
// not a string or bool is rendered with fmt.
func Any(key string, value interface{}) KeyValue {
	switch v := value.(type) {
	case string:
		return String(key, v)
	case bool:
		return Bool(key, v)
	case int:
		return Int64(key, int64(v))
	case int8:
		return Int64(key, int64(v))
	case int16:
		return Int64(key, int64(v))
	case int32:
		return Int64(key, int64(v))
	case int64:
		return Int64(key, v)
	case uint8:
		return Int64(key, int64(v))
	case uint16:
		return Int64(key, int64(v))
	case uint32:
		return Int64(key, int64(v))
	case uint:
		return Int64(key, int64(v))
	case uint64:
		return Int64(key, int64(v))
	case float32:
		return Float64(key, float64(v))
	case float64:
		return Float64(key, v)
	case fmt.Stringer:
		return String(key, v.String())
	}
	return String(key, fmt.Sprintf("%+v", value))
}
