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

import "github.com/ZaparooProject/go-crclink/internal/frame"

// FaultPolicy decides whether the responder accepts a checksum domain on a
// given attempt. attempt is the responder's retry counter, 0 on the first try.
// A rejection raises the responder's sideband error line for that domain.
type FaultPolicy interface {
	Accept(check CheckPhase, attempt int) bool
}

// FaultPolicyFunc adapts a plain function to FaultPolicy.
type FaultPolicyFunc func(check CheckPhase, attempt int) bool

// Accept calls f.
func (f FaultPolicyFunc) Accept(check CheckPhase, attempt int) bool {
	return f(check, attempt)
}

// AcceptAllPolicy never injects a fault.
var AcceptAllPolicy FaultPolicy = FaultPolicyFunc(func(CheckPhase, int) bool { return true })

// RejectUntil rejects check on every attempt below attempts and accepts from
// then on. Other domains are always accepted.
func RejectUntil(check CheckPhase, attempts int) FaultPolicy {
	return FaultPolicyFunc(func(c CheckPhase, attempt int) bool {
		return c != check || attempt >= attempts
	})
}

// RejectAlways rejects check on every attempt.
func RejectAlways(check CheckPhase) FaultPolicy {
	return FaultPolicyFunc(func(c CheckPhase, _ int) bool {
		return c != check
	})
}

// ReferenceFaultPolicy rejects the command/address check on attempts 0
// through 2 and accepts from attempt 3 on. The count is fixed at
// frame.DefaultMaxRetries and does not follow WithMaxRetries: with the
// default budget the final attempt is the first one accepted, a larger
// budget completes after three retries and a smaller one exhausts. Use
// RejectUntil(CheckCmdAddr, n) to pair the same fault with another budget.
func ReferenceFaultPolicy() FaultPolicy {
	return RejectUntil(CheckCmdAddr, frame.DefaultMaxRetries)
}
