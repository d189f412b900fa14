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
	"strings"
)

// Phase names one step of a transaction's fixed byte sequence.
// Both engines walk the same phases; which side drives the bus in each
// phase is fixed by Owner.
type Phase int

const (
	PhaseIdle       Phase = iota // No transaction in progress
	PhaseCommand                 // Opcode byte
	PhaseAddress                 // Six address bytes, MSB first
	PhaseCmdAddrCrc              // CRC8 over command and address
	PhaseWriteData               // Eight payload bytes from the initiator
	PhaseLatency                 // Idle turnaround before read data
	PhaseReadData                // Eight payload bytes from the responder
	PhaseDataCrc                 // CRC8 over the payload
	PhaseFinish                  // Retry or completion decision
)

var phaseNames = [...]string{
	PhaseIdle:       "Idle",
	PhaseCommand:    "Command",
	PhaseAddress:    "Address",
	PhaseCmdAddrCrc: "CmdAddrCrc",
	PhaseWriteData:  "WriteData",
	PhaseLatency:    "Latency",
	PhaseReadData:   "ReadData",
	PhaseDataCrc:    "DataCrc",
	PhaseFinish:     "Finish",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Owner returns the side allowed to drive the bus during p.
func (p Phase) Owner() Driver {
	switch p {
	case PhaseCommand, PhaseAddress, PhaseWriteData:
		return DriverInitiator
	case PhaseCmdAddrCrc, PhaseReadData, PhaseDataCrc:
		return DriverResponder
	default:
		return DriverNone
	}
}

// Driver identifies a side of the link.
type Driver int

const (
	DriverNone Driver = iota
	DriverInitiator
	DriverResponder
)

func (d Driver) String() string {
	switch d {
	case DriverNone:
		return "none"
	case DriverInitiator:
		return "initiator"
	case DriverResponder:
		return "responder"
	default:
		return fmt.Sprintf("Driver(%d)", int(d))
	}
}

// CheckPhase identifies one of the two checksum domains.
type CheckPhase int

const (
	// CheckCmdAddr covers the command byte and the six address bytes
	CheckCmdAddr CheckPhase = iota
	// CheckData covers the eight payload bytes
	CheckData
)

func (c CheckPhase) String() string {
	switch c {
	case CheckCmdAddr:
		return "cmd/addr"
	case CheckData:
		return "data"
	default:
		return fmt.Sprintf("CheckPhase(%d)", int(c))
	}
}

// CheckSet is a bitmask of failed checksum domains. It is what each engine
// exposes on its sideband error line.
type CheckSet uint8

// With returns s with c added.
func (s CheckSet) With(c CheckPhase) CheckSet {
	return s | 1<<uint(c)
}

// Has reports whether c failed.
func (s CheckSet) Has(c CheckPhase) bool {
	return s&(1<<uint(c)) != 0
}

// Any reports whether any domain failed.
func (s CheckSet) Any() bool {
	return s != 0
}

func (s CheckSet) String() string {
	if s == 0 {
		return "ok"
	}
	var parts []string
	for _, c := range []CheckPhase{CheckCmdAddr, CheckData} {
		if s.Has(c) {
			parts = append(parts, c.String())
		}
	}
	return strings.Join(parts, "+")
}
