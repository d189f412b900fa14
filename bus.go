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

import "fmt"

// Drive is one engine's output for a single tick.
type Drive struct {
	Data    byte
	Enabled bool
}

// BusValue is the content of the shared one-byte slot for a tick: either
// idle or a byte driven by exactly one side.
type BusValue struct {
	Driver Driver
	Data   byte
}

// IdleBus is the value of an undriven tick.
var IdleBus = BusValue{Driver: DriverNone}

// Idle reports whether nobody drove the bus.
func (v BusValue) Idle() bool {
	return v.Driver == DriverNone
}

func (v BusValue) String() string {
	if v.Idle() {
		return "--"
	}
	return fmt.Sprintf("%s:%02X", v.Driver, v.Data)
}

// ResolveBus combines both engines' outputs into the tick's bus value.
// Both sides driving at once is a protocol design error and is reported as
// ErrBusContention rather than arbitrated.
func ResolveBus(initiator, responder Drive) (BusValue, error) {
	switch {
	case initiator.Enabled && responder.Enabled:
		return IdleBus, fmt.Errorf("%w: initiator %02X, responder %02X",
			ErrBusContention, initiator.Data, responder.Data)
	case initiator.Enabled:
		return BusValue{Driver: DriverInitiator, Data: initiator.Data}, nil
	case responder.Enabled:
		return BusValue{Driver: DriverResponder, Data: responder.Data}, nil
	default:
		return IdleBus, nil
	}
}

// Sideband holds the error lines both engines expose to each other. The
// link samples it before every tick so both sides make the same decision
// at Finish.
type Sideband struct {
	Initiator CheckSet
	Responder CheckSet
}

// Failed reports whether either side flagged a checksum failure.
func (s Sideband) Failed() bool {
	return s.Initiator.Any() || s.Responder.Any()
}

// Corruptor rewrites a driven byte between the driver and the observers,
// modelling a lossy channel. It is never applied to idle ticks.
type Corruptor func(tick uint64, data byte) byte
