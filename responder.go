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
	"github.com/ZaparooProject/go-crclink/internal/frame"
)

// Responder follows the bus passively until the initiator drives a command,
// then walks the mirrored phase sequence. It echoes its command/address and
// data checksums, serves reads from a single storage cell and consults a
// FaultPolicy at each check.
//
// The storage cell is address-insensitive: every address maps to it.
type Responder struct {
	policy      FaultPolicy
	address     uint64
	incoming    uint64
	outgoing    uint64
	storage     uint64
	caCRC       frame.CRC8
	dataCRC     frame.CRC8
	phase       Phase
	index       int
	retries     int
	maxRetries  int
	readLatency int
	failed      CheckSet
	opcode      byte
}

// NewResponder creates an idle responder. A nil policy accepts everything.
func NewResponder(policy FaultPolicy, maxRetries, readLatency int) *Responder {
	if policy == nil {
		policy = AcceptAllPolicy
	}
	return &Responder{
		policy:      policy,
		maxRetries:  maxRetries,
		readLatency: readLatency,
	}
}

// Phase returns the current phase.
func (r *Responder) Phase() Phase {
	return r.phase
}

// Retries returns the responder's mirror of the retry counter.
func (r *Responder) Retries() int {
	return r.retries
}

// Storage returns the storage cell.
func (r *Responder) Storage() uint64 {
	return r.storage
}

// SetStorage preloads the storage cell.
func (r *Responder) SetStorage(v uint64) {
	r.storage = v
}

// Address returns the address latched by the last command.
func (r *Responder) Address() uint64 {
	return r.address
}

// ErrorLine is the sideband the initiator samples.
func (r *Responder) ErrorLine() CheckSet {
	return r.failed
}

// outgoingByte returns the byte this side owns in the current phase
func (r *Responder) outgoingByte() byte {
	switch r.phase {
	case PhaseCmdAddrCrc:
		return r.caCRC.Sum()
	case PhaseReadData:
		return frame.ByteAt(r.outgoing, r.index, frame.PayloadBytes)
	case PhaseDataCrc:
		return r.dataCRC.Sum()
	default:
		return 0
	}
}

// Drive returns the responder's bus output for the current tick, given the
// sideband sampled at its start.
func (r *Responder) Drive(side Sideband) Drive {
	if r.phase.Owner() != DriverResponder || r.abandoned(side) {
		return Drive{}
	}
	return Drive{Data: r.outgoingByte(), Enabled: true}
}

// Observe advances the state machine by one tick.
func (r *Responder) Observe(bus BusValue, side Sideband) {
	if r.abandoned(side) {
		Debugf("responder: initiator rejected cmd/addr, leaving %s", r.phase)
		r.finish(side)
		return
	}

	switch r.phase {
	case PhaseIdle:
		if bus.Driver == DriverInitiator {
			r.beginAttempt(bus.Data)
		}
	case PhaseAddress:
		r.address = frame.ShiftIn(r.address, bus.Data)
		r.caCRC.Update(bus.Data)
		if r.advance(frame.AddressBytes) {
			r.enter(PhaseCmdAddrCrc)
		}
	case PhaseCmdAddrCrc:
		r.judge(CheckCmdAddr)
		r.afterCmdAddr()
	case PhaseWriteData:
		r.incoming = frame.ShiftIn(r.incoming, bus.Data)
		r.dataCRC.Update(bus.Data)
		if r.advance(frame.PayloadBytes) {
			r.enter(PhaseDataCrc)
		}
	case PhaseLatency:
		if r.advance(r.readLatency) {
			r.enterReadData()
		}
	case PhaseReadData:
		r.dataCRC.Update(r.outgoingByte())
		if r.advance(frame.PayloadBytes) {
			r.enter(PhaseDataCrc)
		}
	case PhaseDataCrc:
		r.judge(CheckData)
		r.enter(PhaseFinish)
	case PhaseFinish:
		r.finish(side)
	}
}

// abandoned reports whether the initiator flagged the command/address
// exchange this responder has already branched on. The initiator raises that
// line only from Finish, so the responder finishes on the same tick.
func (r *Responder) abandoned(side Sideband) bool {
	switch r.phase {
	case PhaseIdle, PhaseCommand, PhaseAddress, PhaseCmdAddrCrc:
		return false
	default:
		return side.Initiator.Has(CheckCmdAddr)
	}
}

func (r *Responder) beginAttempt(opcode byte) {
	r.opcode = opcode
	r.address = 0
	r.incoming = 0
	r.failed = 0
	r.caCRC.Clear()
	r.dataCRC.Clear()
	r.caCRC.Update(opcode)
	r.enter(PhaseAddress)
}

func (r *Responder) enter(p Phase) {
	r.phase = p
	r.index = 0
}

func (r *Responder) advance(n int) bool {
	r.index++
	return r.index >= n
}

func (r *Responder) afterCmdAddr() {
	switch r.opcode {
	case OpWrite:
		r.enter(PhaseWriteData)
	case OpRead:
		if r.readLatency > 0 {
			r.enter(PhaseLatency)
		} else {
			r.enterReadData()
		}
	default:
		r.enter(PhaseFinish)
	}
}

// enterReadData snapshots the storage cell at the start of the data phase
func (r *Responder) enterReadData() {
	r.outgoing = r.storage
	r.enter(PhaseReadData)
}

func (r *Responder) judge(c CheckPhase) {
	if r.policy.Accept(c, r.retries) {
		return
	}
	r.failed = r.failed.With(c)
	Debugf("responder: %s check rejected on attempt %d", c, r.retries)
}

// finish mirrors the initiator's retry decision from the same sideband
func (r *Responder) finish(side Sideband) {
	failed := side.Failed()
	if !failed && r.opcode == OpWrite {
		r.storage = r.incoming
		Debugf("responder: stored %016X", r.storage)
	}

	if failed && r.retries < r.maxRetries {
		r.retries++
	} else {
		r.retries = 0
	}
	r.failed = 0
	r.enter(PhaseIdle)
}
