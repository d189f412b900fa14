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

package frame

// Command opcodes - any other value runs the command/address exchange only
const (
	OpWrite = 0xA5 // Initiator streams a payload to the responder
	OpRead  = 0xFF // Responder streams its storage cell back after the latency window
)

// Field widths on the wire
const (
	AddressBytes = 6 // 48-bit address, most significant byte first
	PayloadBytes = 8 // 64-bit payload, most significant byte first

	AddressMask uint64 = 1<<(8*AddressBytes) - 1
)

// Protocol timing and recovery defaults
const (
	DefaultReadLatency = 6 // Idle ticks between the command/address CRC and the first read byte
	DefaultMaxRetries  = 3 // Whole-transaction restarts before giving up
)

// Polynomial is the CRC-8 generator x^8 + x^2 + x + 1 with the x^8 term implied.
const Polynomial = 0x07

// ByteAt returns byte i (0 = most significant) of the low width bytes of v.
func ByteAt(v uint64, i, width int) byte {
	return byte(v >> (8 * (width - 1 - i)))
}

// ShiftIn appends b as the new least significant byte of v.
func ShiftIn(v uint64, b byte) uint64 {
	return v<<8 | uint64(b)
}
