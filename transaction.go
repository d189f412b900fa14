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

// Command opcodes
const (
	OpWrite byte = frame.OpWrite
	OpRead  byte = frame.OpRead
)

// Transaction is one request issued to the initiator. Address and Payload
// stay fixed across every retry attempt.
type Transaction struct {
	Address uint64 // 48-bit target address
	Payload uint64 // Value to store for OpWrite, ignored otherwise
	Opcode  byte
}

// validate rejects transactions that cannot be framed
func (tx Transaction) validate() error {
	if tx.Address&^frame.AddressMask != 0 {
		return fmt.Errorf("%w: address %#x exceeds 48 bits", ErrInvalidParameter, tx.Address)
	}
	return nil
}

// Outcome is the terminal status of a transaction.
type Outcome int

const (
	// OutcomePending means the transaction has not finished
	OutcomePending Outcome = iota
	// OutcomeCompleted means the last attempt passed every check
	OutcomeCompleted
	// OutcomeExhausted means the retry budget ran out with a failed attempt
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is what the initiator reports on done.
type Result struct {
	// Mismatches lists every failed check across all attempts, oldest first
	Mismatches []*ChecksumMismatchError
	// Payload is the value read back for OpRead and the written value for OpWrite
	Payload uint64
	// Ticks is the number of bus ticks the transaction consumed
	Ticks   uint64
	Outcome Outcome
	// Retries is the number of restarts performed, at most the retry budget
	Retries   int
	CAMatch   bool
	CAError   bool
	DataMatch bool
	DataError bool
}

// Completed reports whether the final attempt passed every check.
func (r *Result) Completed() bool {
	return r != nil && r.Outcome == OutcomeCompleted
}
