// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package crclink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceBuffer_EvictsOldest(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer(3)
	for i := range uint64(5) {
		require.NoError(t, tb.RecordTick(TickRecord{Tick: i}))
	}

	entries := tb.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []uint64{2, 3, 4}, []uint64{entries[0].Tick, entries[1].Tick, entries[2].Tick})

	tb.Clear()
	assert.Empty(t, tb.Entries())
	assert.Equal(t, "(no trace data)", tb.Format())
}

func TestTraceBuffer_DefaultSize(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer(0)
	assert.Equal(t, 256, tb.maxSize)
}

func TestTraceBuffer_Format(t *testing.T) {
	t.Parallel()

	link, trace := newTestLink(t)
	_, err := link.Write(testAddress, testPayload)
	require.NoError(t, err)

	out := trace.Format()
	assert.Contains(t, out, "initiator:A5")
	assert.Contains(t, out, "CmdAddrCrc")
	assert.Contains(t, out, "Finish")
}

func TestMultiTracer(t *testing.T) {
	t.Parallel()

	first, second := NewTraceBuffer(8), NewTraceBuffer(8)
	multi := MultiTracer(first, second)
	require.NoError(t, multi.RecordTick(TickRecord{Tick: 7}))
	assert.Len(t, first.Entries(), 1)
	assert.Len(t, second.Entries(), 1)

	errStop := errors.New("stop")
	third := NewTraceBuffer(8)
	failing := MultiTracer(TracerFunc(func(TickRecord) error { return errStop }), third)
	require.ErrorIs(t, failing.RecordTick(TickRecord{}), errStop)
	assert.Empty(t, third.Entries())
}
