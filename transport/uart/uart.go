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

// Package uart mirrors a crclink bus onto a serial port. Every byte driven
// during a tick is written to the port as it happens, so a logic analyser or
// a second host can follow the link.
package uart

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/go-crclink"
	"go.bug.st/serial"
)

// DefaultBaudRate is the line rate used by New.
const DefaultBaudRate = 115200

// Mirror implements crclink.Tracer over a serial port.
type Mirror struct {
	port     serial.Port
	portName string
	written  uint64
	mu       sync.Mutex
	closed   bool
}

// New opens portName at 115200 8N1 and returns a mirror writing to it.
func New(portName string) (*Mirror, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.ResetOutputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to reset UART output buffer: %w", err)
	}

	return NewWithPort(port, portName), nil
}

// NewWithPort wraps an already opened port.
func NewWithPort(port serial.Port, portName string) *Mirror {
	return &Mirror{
		port:     port,
		portName: portName,
	}
}

// RecordTick writes the driven byte of rec, if any. The port is drained at
// the Finish tick of every attempt so each attempt leaves the wire complete.
func (m *Mirror) RecordTick(rec crclink.TickRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &crclink.TransportError{Op: "mirror", Port: m.portName, Err: crclink.ErrTransportClosed}
	}

	if !rec.Bus.Idle() {
		n, err := m.port.Write([]byte{rec.Bus.Data})
		if err != nil {
			return &crclink.TransportError{
				Op:   "mirror",
				Port: m.portName,
				Err:  fmt.Errorf("%w: %w", crclink.ErrTransportWrite, err),
			}
		} else if n != 1 {
			return &crclink.TransportError{Op: "mirror", Port: m.portName, Err: crclink.ErrTransportWrite}
		}
		m.written++
	}

	if rec.Initiator == crclink.PhaseFinish {
		return m.drainWithRetry()
	}
	return nil
}

// Written returns the number of bytes mirrored so far.
func (m *Mirror) Written() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written
}

// Close drains and closes the port. Further ticks fail with
// crclink.ErrTransportClosed.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	drainErr := m.drainWithRetry()
	if err := m.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return drainErr
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (m *Mirror) drainWithRetry() error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := m.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
			continue
		}

		return &crclink.TransportError{Op: "drain", Port: m.portName, Err: err}
	}

	return &crclink.TransportError{
		Op:   "drain",
		Port: m.portName,
		Err:  fmt.Errorf("failed after %d retries", maxRetries),
	}
}
