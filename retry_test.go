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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryConfig_DefaultRetryConfig(t *testing.T) {
	t.Parallel()

	config := DefaultRetryConfig()

	assert.NotNil(t, config)
	assert.Positive(t, config.MaxAttempts)
	assert.Greater(t, config.MaxBackoff, config.InitialBackoff)
	assert.Greater(t, config.BackoffMultiplier, 1.0)
	assert.GreaterOrEqual(t, config.Jitter, 0.0)
	assert.LessOrEqual(t, config.Jitter, 1.0)
	assert.Greater(t, config.RetryTimeout, time.Duration(0))
}

func TestCalculateNextBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		config   *RetryConfig
		name     string
		current  time.Duration
		expected time.Duration
	}{
		{
			name:     "Normal exponential growth",
			current:  100 * time.Millisecond,
			config:   &RetryConfig{BackoffMultiplier: 2.0, MaxBackoff: 5 * time.Second},
			expected: 200 * time.Millisecond,
		},
		{
			name:     "Hits maximum backoff limit",
			current:  3 * time.Second,
			config:   &RetryConfig{BackoffMultiplier: 2.0, MaxBackoff: 5 * time.Second},
			expected: 5 * time.Second,
		},
		{
			name:     "Fractional multiplier",
			current:  200 * time.Millisecond,
			config:   &RetryConfig{BackoffMultiplier: 1.5, MaxBackoff: 10 * time.Second},
			expected: 300 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, calculateNextBackoff(tt.current, tt.config))
		})
	}
}

func TestCalculateJitteredSleep(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	assert.Equal(t, base, calculateJitteredSleep(base, 0))
	for range 50 {
		sleep := calculateJitteredSleep(base, 0.5)
		assert.GreaterOrEqual(t, sleep, base)
		assert.Less(t, sleep, base+base/2)
	}
}

var errTestSink = errors.New("sink unavailable")

// countingPolicy rejects the command/address check on the first n
// consultations across all transactions, then accepts.
func countingPolicy(n int) FaultPolicy {
	calls := 0
	return FaultPolicyFunc(func(c CheckPhase, _ int) bool {
		if c != CheckCmdAddr {
			return true
		}
		calls++
		return calls > n
	})
}

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestSubmitWithRetry_ResubmitsAfterExhaustion(t *testing.T) {
	t.Parallel()

	// Four rejections exhaust the first submission, the fifth lands on the
	// second submission's first attempt.
	link, _ := newTestLink(t, WithFaultPolicy(countingPolicy(5)))
	tx := Transaction{Opcode: OpWrite, Address: testAddress, Payload: testPayload}

	result, err := link.SubmitWithRetry(context.Background(), tx, fastRetry(3))
	require.NoError(t, err)
	require.True(t, result.Completed())
	assert.Equal(t, 1, result.Retries)
	assert.Equal(t, uint64(testPayload), link.Responder().Storage())
}

func TestSubmitWithRetry_GivesUp(t *testing.T) {
	t.Parallel()

	link, _ := newTestLink(t, WithFaultPolicy(RejectAlways(CheckData)))
	tx := Transaction{Opcode: OpRead, Address: testAddress}

	result, err := link.SubmitWithRetry(context.Background(), tx, fastRetry(2))
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.NotNil(t, result)
	assert.Equal(t, OutcomeExhausted, result.Outcome)
}

func TestSubmitWithRetry_NonRetryableReturnsImmediately(t *testing.T) {
	t.Parallel()

	submissions := 0
	link, _ := newTestLink(t, WithTracer(TracerFunc(func(rec TickRecord) error {
		if rec.Tick == 0 {
			submissions++
		}
		return errTestSink
	})))

	_, err := link.SubmitWithRetry(context.Background(), Transaction{Opcode: OpRead}, fastRetry(5))
	require.ErrorIs(t, err, errTestSink)
	assert.Equal(t, 1, submissions)
}

func TestSubmitWithRetry_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	link, _ := newTestLink(t)
	result, err := link.SubmitWithRetry(ctx, Transaction{Opcode: OpRead}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestSubmitWithRetry_SingleAttempt(t *testing.T) {
	t.Parallel()

	link, _ := newTestLink(t)
	result, err := link.SubmitWithRetry(context.Background(), Transaction{Opcode: OpRead}, &RetryConfig{})
	require.NoError(t, err)
	assert.True(t, result.Completed())
}
