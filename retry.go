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
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// RetryConfig configures resubmission of transactions whose in-link retry
// budget ran out. It sits above the link: every resubmission is a fresh
// transaction with a fresh retry counter.
type RetryConfig struct {
	// MaxAttempts is the maximum number of submissions (0 or 1 = submit once)
	MaxAttempts int
	// InitialBackoff is the initial backoff duration
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which the backoff increases
	BackoffMultiplier float64
	// Jitter adds randomness to backoff
	Jitter float64
	// RetryTimeout is the overall timeout for all attempts
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      5 * time.Second,
	}
}

// shouldResubmit reports whether a failed submission may succeed as a new
// transaction. Only an exhausted retry budget qualifies; design errors and
// sink failures do not.
func shouldResubmit(err error) bool {
	return errors.Is(err, ErrRetriesExhausted)
}

// SubmitWithRetry submits tx and resubmits it with backoff while the link
// reports ErrRetriesExhausted. It returns the last result and error.
func (l *Link) SubmitWithRetry(ctx context.Context, tx Transaction, config *RetryConfig) (*Result, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	var (
		result  *Result
		lastErr error
	)
	backoff := config.InitialBackoff
	attempts := max(config.MaxAttempts, 1)

	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return result, lastErr
			}
			return nil, fmt.Errorf("retry context cancelled: %w", err)
		}

		result, lastErr = l.Submit(tx)
		if lastErr == nil || !shouldResubmit(lastErr) {
			return result, lastErr
		}
		Debugf("link: submission %d/%d exhausted, resubmitting", attempt+1, attempts)

		if attempt < attempts-1 {
			if err := sleepWithContext(ctx, calculateJitteredSleep(backoff, config.Jitter)); err != nil {
				return result, lastErr
			}
			backoff = calculateNextBackoff(backoff, config)
		}
	}

	return result, lastErr
}

func sleepWithContext(ctx context.Context, sleep time.Duration) error {
	timer := time.NewTimer(sleep)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func calculateNextBackoff(backoff time.Duration, config *RetryConfig) time.Duration {
	newBackoff := time.Duration(float64(backoff) * config.BackoffMultiplier)
	if newBackoff > config.MaxBackoff {
		return config.MaxBackoff
	}
	return newBackoff
}

// calculateJitteredSleep calculates sleep duration with jitter
func calculateJitteredSleep(baseSleep time.Duration, jitterFactor float64) time.Duration {
	sleep := baseSleep
	if jitterFactor > 0 {
		var randBytes [8]byte
		if _, err := rand.Read(randBytes[:]); err == nil {
			// Convert to float64 in range [0, 1)
			randUint := binary.LittleEndian.Uint64(randBytes[:])
			randFloat := float64(randUint) / float64(1<<64)
			jitter := float64(sleep) * jitterFactor
			sleep += time.Duration(randFloat * jitter)
		}
	}
	return sleep
}
