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

	"github.com/ZaparooProject/go-crclink/internal/frame"
)

// maxReadLatency keeps the latency window representable as a wait counter
const maxReadLatency = 255

// LinkConfig contains configuration options for a Link
type LinkConfig struct {
	// FaultPolicy decides the responder's checks (nil accepts everything)
	FaultPolicy FaultPolicy
	// Tracer receives one record per tick (optional)
	Tracer Tracer
	// Corruptor rewrites driven bytes to model a lossy channel (optional)
	Corruptor Corruptor
	// MaxRetries is the whole-transaction restart budget
	MaxRetries int
	// ReadLatency is the number of idle ticks before read data
	ReadLatency int
}

// DefaultLinkConfig returns the reference link configuration: three retries,
// six ticks of read latency and a clean responder.
func DefaultLinkConfig() *LinkConfig {
	return &LinkConfig{
		FaultPolicy: AcceptAllPolicy,
		MaxRetries:  frame.DefaultMaxRetries,
		ReadLatency: frame.DefaultReadLatency,
	}
}

func (c *LinkConfig) validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries %d is negative", ErrInvalidParameter, c.MaxRetries)
	}
	if c.ReadLatency < 0 || c.ReadLatency > maxReadLatency {
		return fmt.Errorf("%w: read latency %d outside 0..%d", ErrInvalidParameter, c.ReadLatency, maxReadLatency)
	}
	return nil
}

// ticksPerAttempt is the longest byte sequence one attempt can take
func (c *LinkConfig) ticksPerAttempt() uint64 {
	head := 1 + frame.AddressBytes + 1
	data := max(frame.PayloadBytes, c.ReadLatency+frame.PayloadBytes) + 1
	return uint64(head + data + 1)
}

// Option represents a functional option for New
type Option func(*LinkConfig) error

// WithFaultPolicy sets the responder's fault policy.
func WithFaultPolicy(policy FaultPolicy) Option {
	return func(c *LinkConfig) error {
		c.FaultPolicy = policy
		return nil
	}
}

// WithMaxRetries sets the retry budget.
func WithMaxRetries(retries int) Option {
	return func(c *LinkConfig) error {
		c.MaxRetries = retries
		return nil
	}
}

// WithReadLatency sets the number of idle turnaround ticks before read data.
func WithReadLatency(ticks int) Option {
	return func(c *LinkConfig) error {
		c.ReadLatency = ticks
		return nil
	}
}

// WithTracer attaches a per-tick trace sink.
func WithTracer(tracer Tracer) Option {
	return func(c *LinkConfig) error {
		if tracer == nil {
			return fmt.Errorf("%w: nil tracer", ErrInvalidParameter)
		}
		c.Tracer = tracer
		return nil
	}
}

// WithCorruptor installs a channel corruption hook.
func WithCorruptor(corrupt Corruptor) Option {
	return func(c *LinkConfig) error {
		c.Corruptor = corrupt
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(config *LinkConfig) Option {
	return func(c *LinkConfig) error {
		if config == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidParameter)
		}
		*c = *config
		return nil
	}
}

func applyOptions(opts []Option) (*LinkConfig, error) {
	config := DefaultLinkConfig()
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}
