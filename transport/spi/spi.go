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

// Package spi mirrors a crclink bus onto an SPI port, clocking out one
// transfer per driven bus byte.
package spi

import (
	"fmt"
	"sync"

	"github.com/ZaparooProject/go-crclink"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// Default SPI settings
	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0
	bitsPerWord = 8

	// defaultReceiveLimit bounds the clocked-in history
	defaultReceiveLimit = 256
)

// Mirror implements crclink.Tracer over an SPI connection. The most recent
// bytes clocked in on MISO are kept so a looped-back or listening peer can
// be checked against what was sent.
type Mirror struct {
	port         spi.PortCloser
	conn         spi.Conn
	portName     string
	received     []byte
	freq         physic.Frequency
	receiveLimit int
	mu           sync.Mutex
	lsbFirst     bool
	closed       bool
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithFrequency overrides the 1 MHz default clock.
func WithFrequency(f physic.Frequency) Option {
	return func(m *Mirror) {
		m.freq = f
	}
}

// WithLSBFirst bit-reverses every byte for sinks that shift LSB first on a
// controller that only supports MSB first.
func WithLSBFirst() Option {
	return func(m *Mirror) {
		m.lsbFirst = true
	}
}

// WithReceiveLimit keeps at most n clocked-in bytes, dropping the oldest.
// Values below 1 keep the default of 256.
func WithReceiveLimit(n int) Option {
	return func(m *Mirror) {
		if n > 0 {
			m.receiveLimit = n
		}
	}
}

// New initializes the periph host, opens portName and connects in mode 0.
func New(portName string, opts ...Option) (*Mirror, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	m, err := NewWithPort(port, portName, opts...)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return m, nil
}

// NewWithPort connects to an already opened port.
func NewWithPort(port spi.PortCloser, portName string, opts ...Option) (*Mirror, error) {
	m := &Mirror{
		port:         port,
		portName:     portName,
		freq:         defaultFreq,
		receiveLimit: defaultReceiveLimit,
	}
	for _, opt := range opts {
		opt(m)
	}

	conn, err := port.Connect(m.freq, mode, bitsPerWord)
	if err != nil {
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}
	m.conn = conn
	return m, nil
}

// reverseBit reverses the bits in a byte (LSB <-> MSB)
func reverseBit(b byte) byte {
	var result byte
	for range 8 {
		result <<= 1
		result |= b & 1
		b >>= 1
	}
	return result
}

// RecordTick clocks out the driven byte of rec, if any.
func (m *Mirror) RecordTick(rec crclink.TickRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &crclink.TransportError{Op: "mirror", Port: m.portName, Err: crclink.ErrTransportClosed}
	}
	if rec.Bus.Idle() {
		return nil
	}

	out := rec.Bus.Data
	if m.lsbFirst {
		out = reverseBit(out)
	}

	in := make([]byte, 1)
	if err := m.conn.Tx([]byte{out}, in); err != nil {
		return &crclink.TransportError{
			Op:   "mirror",
			Port: m.portName,
			Err:  fmt.Errorf("%w: %w", crclink.ErrTransportWrite, err),
		}
	}

	if m.lsbFirst {
		in[0] = reverseBit(in[0])
	}
	if len(m.received) >= m.receiveLimit {
		copy(m.received, m.received[1:])
		m.received[len(m.received)-1] = in[0]
	} else {
		m.received = append(m.received, in[0])
	}
	return nil
}

// Reset discards the clocked-in history.
func (m *Mirror) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = m.received[:0]
}

// Received returns a copy of the retained clocked-in bytes, oldest first.
func (m *Mirror) Received() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.received))
	copy(out, m.received)
	return out
}

// Close closes the port.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if err := m.port.Close(); err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}
