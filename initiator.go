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

// Initiator drives a transaction to completion. It emits the command,
// address and write data, captures read data, checks every checksum byte the
// responder drives and owns the retry decision.
//
// Initiator is not safe for concurrent use; Link serializes access.
type Initiator struct {
	result      *Result
	mismatches  []*ChecksumMismatchError
	tx          Transaction
	captured    uint64
	caCRC       frame.CRC8
	dataCRC     frame.CRC8
	phase       Phase
	index       int
	retries     int
	maxRetries  int
	readLatency int
	ticks       uint64
	failed      CheckSet
	caMatch     bool
	dataMatch   bool
	done        bool
}

// NewInitiator creates an idle initiator.
func NewInitiator(maxRetries, readLatency int) *Initiator {
	return &Initiator{
		maxRetries:  maxRetries,
		readLatency: readLatency,
	}
}

// Start is the start pulse. The transaction begins on the next tick.
func (in *Initiator) Start(tx Transaction) error {
	if in.phase != PhaseIdle {
		return fmt.Errorf("%w: initiator in phase %s", ErrEngineBusy, in.phase)
	}
	if err := tx.validate(); err != nil {
		return err
	}

	in.tx = tx
	in.retries = 0
	in.ticks = 0
	in.mismatches = nil
	in.result = nil
	in.done = false
	in.beginAttempt()
	Debugf("initiator: start opcode %02X address %012X", tx.Opcode, tx.Address)
	return nil
}

// Phase returns the current phase.
func (in *Initiator) Phase() Phase {
	return in.phase
}

// Retries returns the retry counter of the attempt in progress.
func (in *Initiator) Retries() int {
	return in.retries
}

// Done reports the one-tick done pulse.
func (in *Initiator) Done() bool {
	return in.done
}

// Result returns the report latched on the last done pulse, or nil.
func (in *Initiator) Result() *Result {
	return in.result
}

// ErrorLine is the sideband the responder samples.
func (in *Initiator) ErrorLine() CheckSet {
	return in.failed
}

func (in *Initiator) beginAttempt() {
	in.phase = PhaseCommand
	in.index = 0
	in.caCRC.Clear()
	in.dataCRC.Clear()
	in.captured = 0
	in.failed = 0
	in.caMatch = false
	in.dataMatch = false
}

// outgoing returns the byte this side owns in the current phase
func (in *Initiator) outgoing() byte {
	switch in.phase {
	case PhaseCommand:
		return in.tx.Opcode
	case PhaseAddress:
		return frame.ByteAt(in.tx.Address, in.index, frame.AddressBytes)
	case PhaseWriteData:
		return frame.ByteAt(in.tx.Payload, in.index, frame.PayloadBytes)
	default:
		return 0
	}
}

// Drive returns the initiator's bus output for the current tick.
func (in *Initiator) Drive() Drive {
	if in.phase.Owner() != DriverInitiator {
		return Drive{}
	}
	return Drive{Data: in.outgoing(), Enabled: true}
}

// Observe advances the state machine by one tick given the resolved bus
// value and the sideband sampled at the start of the tick.
func (in *Initiator) Observe(bus BusValue, side Sideband) {
	in.done = false
	if in.phase == PhaseIdle {
		return
	}
	in.ticks++

	switch in.phase {
	case PhaseCommand:
		in.caCRC.Update(in.outgoing())
		in.enter(PhaseAddress)
	case PhaseAddress:
		in.caCRC.Update(in.outgoing())
		if in.advance(frame.AddressBytes) {
			in.enter(PhaseCmdAddrCrc)
		}
	case PhaseCmdAddrCrc:
		in.caMatch = in.check(CheckCmdAddr, in.caCRC.Sum(), bus)
		if in.caMatch {
			in.afterCmdAddr()
		} else {
			// The responder may have branched on a corrupted opcode.
			in.enter(PhaseFinish)
		}
	case PhaseWriteData:
		in.dataCRC.Update(in.outgoing())
		if in.advance(frame.PayloadBytes) {
			in.enter(PhaseDataCrc)
		}
	case PhaseLatency:
		if in.advance(in.readLatency) {
			in.enter(PhaseReadData)
		}
	case PhaseReadData:
		in.captured = frame.ShiftIn(in.captured, bus.Data)
		in.dataCRC.Update(bus.Data)
		if in.advance(frame.PayloadBytes) {
			in.enter(PhaseDataCrc)
		}
	case PhaseDataCrc:
		in.dataMatch = in.check(CheckData, in.dataCRC.Sum(), bus)
		in.enter(PhaseFinish)
	case PhaseFinish:
		in.finish(side)
	}
}

func (in *Initiator) enter(p Phase) {
	in.phase = p
	in.index = 0
}

// advance counts one byte of a multi-byte phase and reports when n are done
func (in *Initiator) advance(n int) bool {
	in.index++
	return in.index >= n
}

func (in *Initiator) afterCmdAddr() {
	switch in.tx.Opcode {
	case OpWrite:
		in.enter(PhaseWriteData)
	case OpRead:
		if in.readLatency > 0 {
			in.enter(PhaseLatency)
		} else {
			in.enter(PhaseReadData)
		}
	default:
		in.enter(PhaseFinish)
	}
}

// check compares the local checksum with the responder-driven byte
func (in *Initiator) check(c CheckPhase, expected byte, bus BusValue) bool {
	if bus.Driver == DriverResponder && bus.Data == expected {
		return true
	}
	in.failed = in.failed.With(c)
	in.mismatches = append(in.mismatches, &ChecksumMismatchError{
		Check:      c,
		ReportedBy: DriverInitiator,
		Attempt:    in.retries,
		Expected:   expected,
		Observed:   bus.Data,
	})
	Debugf("initiator: %s checksum mismatch on attempt %d: local %02X, bus %s",
		c, in.retries, expected, bus)
	return false
}

func (in *Initiator) finish(side Sideband) {
	for _, c := range []CheckPhase{CheckCmdAddr, CheckData} {
		if side.Responder.Has(c) {
			in.mismatches = append(in.mismatches, &ChecksumMismatchError{
				Check:      c,
				ReportedBy: DriverResponder,
				Attempt:    in.retries,
			})
		}
	}

	failed := side.Failed()
	if failed && in.retries < in.maxRetries {
		in.retries++
		Debugf("initiator: attempt failed (%s / responder %s), retry %d/%d",
			side.Initiator, side.Responder, in.retries, in.maxRetries)
		in.beginAttempt()
		return
	}

	outcome := OutcomeCompleted
	if failed {
		outcome = OutcomeExhausted
	}

	payload := in.captured
	if in.tx.Opcode == OpWrite {
		payload = in.tx.Payload
	}

	in.result = &Result{
		Payload:    payload,
		CAMatch:    in.caMatch,
		CAError:    in.failed.Has(CheckCmdAddr) || side.Responder.Has(CheckCmdAddr),
		DataMatch:  in.dataMatch,
		DataError:  in.failed.Has(CheckData) || side.Responder.Has(CheckData),
		Outcome:    outcome,
		Retries:    in.retries,
		Ticks:      in.ticks,
		Mismatches: in.mismatches,
	}
	Debugf("initiator: done %s after %d retries in %d ticks", outcome, in.retries, in.ticks)

	in.phase = PhaseIdle
	in.index = 0
	in.failed = 0
	in.done = true
}
