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

	"go.uber.org/zap"
)

// Logger is the key-value logging interface used to report problems inside
// the tracing machinery. Errors are never surfaced to the instrumented code,
// so it's important to set a real logger in a production service.
type Logger interface {
	Log(keyvals ...interface{}) error
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(keyvals ...interface{}) error

// Log implements Logger.
func (f LoggerFunc) Log(keyvals ...interface{}) error { return f(keyvals...) }

type nopLogger struct{}

func (nopLogger) Log(...interface{}) error { return nil }

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger { return nopLogger{} }

type zapLogger struct {
	logger *zap.Logger
}

// NewZapLogger returns a Logger writing to l. Entries carrying an "err" key
// are logged at warn level, everything else at debug. The "msg" key, when
// present, becomes the log message.
func NewZapLogger(l *zap.Logger) Logger {
	return zapLogger{logger: l}
}

func (z zapLogger) Log(keyvals ...interface{}) error {
	if len(keyvals)%2 == 1 {
		keyvals = append(keyvals, "(MISSING)")
	}
	var (
		msg    = "tracecontext"
		fields = make([]zap.Field, 0, len(keyvals)/2)
		isErr  bool
	)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		switch key {
		case "msg":
			msg = fmt.Sprint(keyvals[i+1])
			continue
		case "err":
			isErr = true
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	if isErr {
		z.logger.Warn(msg, fields...)
	} else {
		z.logger.Debug(msg, fields...)
	}
	return nil
}
