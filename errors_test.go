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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumMismatchError(t *testing.T) {
	t.Parallel()

	initiatorSide := &ChecksumMismatchError{
		Check:      CheckData,
		ReportedBy: DriverInitiator,
		Attempt:    2,
		Expected:   0x5A,
		Observed:   0x4A,
	}
	assert.Equal(t, "data checksum mismatch reported by initiator on attempt 2: expected 5A, observed 4A",
		initiatorSide.Error())
	assert.ErrorIs(t, initiatorSide, ErrChecksumMismatch)

	responderSide := &ChecksumMismatchError{Check: CheckCmdAddr, ReportedBy: DriverResponder}
	assert.Equal(t, "cmd/addr checksum mismatch reported by responder on attempt 0", responderSide.Error())
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	withPort := &TransportError{Op: "mirror", Port: "/dev/ttyUSB0", Err: ErrTransportWrite}
	assert.Equal(t, "mirror /dev/ttyUSB0: transport write failed", withPort.Error())
	assert.ErrorIs(t, withPort, ErrTransportWrite)

	noPort := &TransportError{Op: "trace", Err: io.ErrShortWrite}
	assert.Equal(t, "trace: short write", noPort.Error())
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	mismatch := &ChecksumMismatchError{Check: CheckCmdAddr, ReportedBy: DriverInitiator}
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "mismatch", err: mismatch, want: true},
		{name: "wrapped mismatch", err: fmt.Errorf("attempt: %w", mismatch), want: true},
		{name: "exhausted", err: fmt.Errorf("%w: %w", ErrRetriesExhausted, mismatch), want: false},
		{name: "contention", err: ErrBusContention, want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "contention", err: ErrBusContention, want: true},
		{name: "ownership", err: fmt.Errorf("tick 4: %w", ErrBusOwnership), want: true},
		{name: "stalled", err: ErrStalled, want: true},
		{name: "closed mirror", err: &TransportError{Op: "mirror", Err: ErrTransportClosed}, want: true},
		{name: "closed pipe", err: io.ErrClosedPipe, want: true},
		{name: "mismatch", err: &ChecksumMismatchError{}, want: false},
		{name: "exhausted", err: ErrRetriesExhausted, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestLastMismatch(t *testing.T) {
	t.Parallel()

	assert.Nil(t, LastMismatch(nil))
	assert.Nil(t, LastMismatch(ErrStalled))

	m := &ChecksumMismatchError{Check: CheckData, Attempt: 3}
	err := fmt.Errorf("%w after 3 retries: %w", ErrRetriesExhausted, m)
	assert.Same(t, m, LastMismatch(err))
}
