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
	"fmt"
	"io"
)

// Error categories for retry logic and callers
var (
	// Link errors - recovered by the whole-transaction retry
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrRetriesExhausted = errors.New("retries exhausted")

	// Protocol design errors - never retryable
	ErrBusContention = errors.New("bus driven by both sides")
	ErrBusOwnership  = errors.New("bus driven outside owning phase")
	ErrStalled       = errors.New("transaction did not complete within tick budget")

	// Caller errors
	ErrEngineBusy       = errors.New("engine busy")
	ErrInvalidParameter = errors.New("invalid parameter")

	// Mirror and trace sink errors
	ErrTransportWrite  = errors.New("transport write failed")
	ErrTransportClosed = errors.New("transport is closed")
)

// ChecksumMismatchError records one failed check within an attempt.
//
// Initiator-side failures carry the locally accumulated checksum in Expected
// and the byte seen on the bus in Observed. Responder-side failures come from
// its fault policy over the sideband and leave both at zero.
type ChecksumMismatchError struct {
	Check      CheckPhase
	ReportedBy Driver
	Attempt    int
	Expected   byte
	Observed   byte
}

func (e *ChecksumMismatchError) Error() string {
	if e.ReportedBy == DriverInitiator {
		return fmt.Sprintf("%s checksum mismatch reported by %s on attempt %d: expected %02X, observed %02X",
			e.Check, e.ReportedBy, e.Attempt, e.Expected, e.Observed)
	}
	return fmt.Sprintf("%s checksum mismatch reported by %s on attempt %d", e.Check, e.ReportedBy, e.Attempt)
}

func (*ChecksumMismatchError) Unwrap() error {
	return ErrChecksumMismatch
}

// TransportError wraps failures of a trace sink or hardware bus mirror
type TransportError struct {
	Err  error  // Underlying error
	Op   string // Operation that failed
	Port string // Port or device identifier
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is one the link recovers from by
// restarting the transaction.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetriesExhausted) {
		return false
	}
	return errors.Is(err, ErrChecksumMismatch)
}

// IsFatal returns true if the error means the link itself is broken and
// further transactions cannot be trusted.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrBusContention),
		errors.Is(err, ErrBusOwnership),
		errors.Is(err, ErrStalled),
		errors.Is(err, ErrTransportClosed),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// LastMismatch extracts the most recent checksum mismatch wrapped in err.
func LastMismatch(err error) *ChecksumMismatchError {
	var me *ChecksumMismatchError
	if errors.As(err, &me) {
		return me
	}
	return nil
}
