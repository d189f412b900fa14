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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLinkConfig(t *testing.T) {
	t.Parallel()

	config := DefaultLinkConfig()
	require.NotNil(t, config)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 6, config.ReadLatency)
	assert.NotNil(t, config.FaultPolicy)
	assert.Nil(t, config.Tracer)
	assert.Nil(t, config.Corruptor)
	require.NoError(t, config.validate())
}

func TestLinkConfig_TicksPerAttempt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		latency int
		want    uint64
	}{
		{name: "no latency", latency: 0, want: 18},
		{name: "default latency", latency: 6, want: 24},
		{name: "long latency", latency: 100, want: 118},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			config := DefaultLinkConfig()
			config.ReadLatency = tt.latency
			assert.Equal(t, tt.want, config.ticksPerAttempt())
		})
	}
}

func TestApplyOptions(t *testing.T) {
	t.Parallel()

	trace := NewTraceBuffer(4)
	corrupt := Corruptor(func(_ uint64, b byte) byte { return b })
	config, err := applyOptions([]Option{
		WithMaxRetries(5),
		WithReadLatency(2),
		WithFaultPolicy(ReferenceFaultPolicy()),
		WithTracer(trace),
		WithCorruptor(corrupt),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, config.MaxRetries)
	assert.Equal(t, 2, config.ReadLatency)
	assert.Same(t, trace, config.Tracer)
	assert.NotNil(t, config.Corruptor)
	assert.False(t, config.FaultPolicy.Accept(CheckCmdAddr, 0))
}

func TestApplyOptions_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  Option
	}{
		{name: "negative retries", opt: WithMaxRetries(-1)},
		{name: "negative latency", opt: WithReadLatency(-1)},
		{name: "latency too long", opt: WithReadLatency(maxReadLatency + 1)},
		{name: "nil tracer", opt: WithTracer(nil)},
		{name: "nil config", opt: WithConfig(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := applyOptions([]Option{tt.opt})
			require.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestWithConfig_ReplacesDefaults(t *testing.T) {
	t.Parallel()

	config, err := applyOptions([]Option{
		WithMaxRetries(9),
		WithConfig(&LinkConfig{MaxRetries: 1, ReadLatency: 0}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, config.MaxRetries)
	assert.Equal(t, 0, config.ReadLatency)
	assert.Nil(t, config.FaultPolicy, "nil policy is replaced by the responder")
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pending", OutcomePending.String())
	assert.Equal(t, "completed", OutcomeCompleted.String())
	assert.Equal(t, "exhausted", OutcomeExhausted.String())
	assert.Equal(t, "Outcome(7)", Outcome(7).String())

	var nilResult *Result
	assert.False(t, nilResult.Completed())
}
