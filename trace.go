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
	"fmt"
	"strings"
)

// TickRecord is a snapshot of one bus tick, taken after both engines have
// observed it.
type TickRecord struct {
	Bus       BusValue
	Sideband  Sideband
	Tick      uint64
	Initiator Phase // Initiator phase the tick was driven from
	Responder Phase // Responder phase the tick was driven from
}

func (r TickRecord) String() string {
	return fmt.Sprintf("%6d  %-10s %-10s %-14s i:%s r:%s",
		r.Tick, r.Initiator, r.Responder, r.Bus, r.Sideband.Initiator, r.Sideband.Responder)
}

// Tracer receives every tick of a link. A returned error aborts the
// transaction in progress.
type Tracer interface {
	RecordTick(rec TickRecord) error
}

// TracerFunc adapts a plain function to Tracer.
type TracerFunc func(rec TickRecord) error

// RecordTick calls f.
func (f TracerFunc) RecordTick(rec TickRecord) error {
	return f(rec)
}

// MultiTracer fans a record out to several tracers, stopping at the first error.
func MultiTracer(tracers ...Tracer) Tracer {
	return TracerFunc(func(rec TickRecord) error {
		for _, t := range tracers {
			if err := t.RecordTick(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// TraceBuffer collects tick records in a fixed-size ring, evicting the
// oldest entry when full.
type TraceBuffer struct {
	entries []TickRecord
	maxSize int
}

// NewTraceBuffer creates a new trace buffer with the specified capacity
func NewTraceBuffer(maxSize int) *TraceBuffer {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &TraceBuffer{
		entries: make([]TickRecord, 0, maxSize),
		maxSize: maxSize,
	}
}

// RecordTick implements Tracer.
func (tb *TraceBuffer) RecordTick(rec TickRecord) error {
	if len(tb.entries) >= tb.maxSize {
		copy(tb.entries, tb.entries[1:])
		tb.entries[len(tb.entries)-1] = rec
	} else {
		tb.entries = append(tb.entries, rec)
	}
	return nil
}

// Entries returns a copy of the buffered records, oldest first.
func (tb *TraceBuffer) Entries() []TickRecord {
	out := make([]TickRecord, len(tb.entries))
	copy(out, tb.entries)
	return out
}

// Driven returns the bytes placed on the bus by either side, in tick order.
func (tb *TraceBuffer) Driven() []BusValue {
	var out []BusValue
	for _, rec := range tb.entries {
		if !rec.Bus.Idle() {
			out = append(out, rec.Bus)
		}
	}
	return out
}

// Clear resets the trace buffer
func (tb *TraceBuffer) Clear() {
	tb.entries = tb.entries[:0]
}

// Format returns a human-readable table of the buffered ticks
func (tb *TraceBuffer) Format() string {
	if len(tb.entries) == 0 {
		return "(no trace data)"
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%6s  %-10s %-10s %-14s %s\n", "tick", "initiator", "responder", "bus", "sideband")
	for _, rec := range tb.entries {
		_, _ = sb.WriteString(rec.String())
		_ = sb.WriteByte('\n')
	}
	return sb.String()
}
