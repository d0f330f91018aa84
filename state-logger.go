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
	"sync"
	"time"
)

// StateLogger is a Logger that logs error only if logErrorInterval have passed
// from the last error, or it is a different error than the last seen. Errors
// are compared by message so that wrapped errors built per call still
// collapse.
type StateLogger struct {
	logger           Logger
	logErrorInterval time.Duration
	lastError        string
	lastErrorTime    time.Time
	mutex            sync.Mutex
}

// NewStateLogger creates a new StateLogger.
func NewStateLogger(logger Logger, logErrorInterval time.Duration) *StateLogger {
	return &StateLogger{
		logger:           logger,
		logErrorInterval: logErrorInterval,
	}
}

// LogError logs an error if it is different from the last seen error,
// or that logErrorInterval have passed since the last reported error.
func (se *StateLogger) LogError(err error, keyvals ...interface{}) {
	se.mutex.Lock()
	defer se.mutex.Unlock()
	msg := err.Error()
	if msg == se.lastError && time.Since(se.lastErrorTime) < se.logErrorInterval {
		return
	}
	_ = se.logger.Log(append([]interface{}{"err", msg}, keyvals...)...)
	se.lastError = msg
	se.lastErrorTime = time.Now()
}

// Fixed makes the StateLogger understand that the state is fixed, and when
// the next error will occur, it will log it.
func (se *StateLogger) Fixed(keyvals ...interface{}) {
	se.mutex.Lock()
	defer se.mutex.Unlock()
	if se.logErrorInterval == 0 || se.lastError == "" {
		return
	}
	_ = se.logger.Log(keyvals...)
	se.lastError = ""
}
