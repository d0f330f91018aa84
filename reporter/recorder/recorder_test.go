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

package recorder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderFlushAndShutdown(t *testing.T) {
	tp, rec := NewTracerProvider()
	_, span := tp.Tracer("test", "").Start(context.Background(), "one")
	span.End()

	require.Equal(t, 1, len(rec.Spans()))
	spans := rec.Flush()
	require.Equal(t, 1, len(spans))
	assert.Equal(t, "one", spans[0].Name)
	assert.Empty(t, rec.Spans())

	assert.False(t, rec.IsShutdown())
	require.NoError(t, tp.Shutdown(context.Background()))
	assert.True(t, rec.IsShutdown())
}
