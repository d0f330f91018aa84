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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const recovered = "span export recovered"

type mockLogger struct {
	mock.Mock
}

func (l *mockLogger) Log(keyvals ...interface{}) error {
	args := l.Called(keyvals...)
	return args.Error(0)
}

// exportFailure builds a fresh wrapped error per call, as the batch
// processor does after the last attempt.
func exportFailure(attempts int, cause error) error {
	return fmt.Errorf("%w after %d attempts: %v", ErrExportFailure, attempts, cause)
}

func TestStateLogger_PassesKeyvals(t *testing.T) {
	err := exportFailure(3, errors.New("connection refused"))

	m := new(mockLogger)
	l := NewStateLogger(m, time.Hour)

	m.On("Log", "err", err.Error(), "dropped", 12).Return(nil).Once()
	l.LogError(err, "dropped", 12)
	m.AssertExpectations(t)
}

func TestStateLogger_CollapsesWrappedErrorsBuiltPerCall(t *testing.T) {
	cause := errors.New("connection refused")
	first, second := exportFailure(3, cause), exportFailure(3, cause)
	require.False(t, first == second)

	m := new(mockLogger)
	l := NewStateLogger(m, time.Hour)

	m.On("Log", "err", first.Error(), "dropped", 5).Return(nil).Once()
	l.LogError(first, "dropped", 5)
	l.LogError(second, "dropped", 7)
	m.AssertNumberOfCalls(t, "Log", 1)

	other := exportFailure(3, errors.New("timeout"))
	m.On("Log", "err", other.Error(), "dropped", 2).Return(nil).Once()
	l.LogError(other, "dropped", 2)
	m.AssertNumberOfCalls(t, "Log", 2)
	m.AssertExpectations(t)
}

func TestStateLogger_RepeatsAfterInterval(t *testing.T) {
	const interval = 50 * time.Millisecond
	cause := errors.New("connection refused")

	m := new(mockLogger)
	l := NewStateLogger(m, interval)

	m.On("Log", "err", exportFailure(3, cause).Error(), "dropped", 1).Return(nil).Twice()
	l.LogError(exportFailure(3, cause), "dropped", 1)
	l.LogError(exportFailure(3, cause), "dropped", 1)
	m.AssertNumberOfCalls(t, "Log", 1)

	time.Sleep(2 * interval)
	l.LogError(exportFailure(3, cause), "dropped", 1)
	m.AssertNumberOfCalls(t, "Log", 2)
}

func TestStateLogger_FixedResetsState(t *testing.T) {
	err := exportFailure(3, errors.New("connection refused"))

	m := new(mockLogger)
	l := NewStateLogger(m, time.Hour)

	// nothing to recover from yet
	l.Fixed("msg", recovered)
	m.AssertNumberOfCalls(t, "Log", 0)

	m.On("Log", "err", err.Error(), "dropped", 4).Return(nil).Twice()
	m.On("Log", "msg", recovered).Return(nil).Once()
	l.LogError(err, "dropped", 4)
	l.Fixed("msg", recovered)
	l.Fixed("msg", recovered)
	if want, have := 2, len(m.Calls); want != have {
		t.Errorf("log calls want %d, have %d", want, have)
	}

	l.LogError(err, "dropped", 4)
	m.AssertNumberOfCalls(t, "Log", 3)
	m.AssertExpectations(t)
}

func TestStateLogger_ZeroIntervalAlwaysLogs(t *testing.T) {
	err := errQueueFull

	m := new(mockLogger)
	l := NewStateLogger(m, 0)

	m.On("Log", "err", err.Error(), "size", 2048).Return(nil).Times(3)
	for i := 0; i < 3; i++ {
		l.LogError(err, "size", 2048)
	}
	m.AssertNumberOfCalls(t, "Log", 3)

	// Fixed is silent when errors are never suppressed
	l.Fixed("msg", recovered)
	assert.Equal(t, 3, len(m.Calls))
}
