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

	"github.com/ZaparooProject/go-crclink/internal/syncutil"
)

// Link couples an Initiator and a Responder through a shared one-byte bus
// and advances both in lock step, one tick per Step.
//
// Submit, Write and Read are safe for concurrent use and run one transaction
// at a time. Step is the raw driver and must not be mixed with concurrent
// Submit calls.
type Link struct {
	initiator *Initiator
	responder *Responder
	config    *LinkConfig
	tick      uint64
	mu        syncutil.Mutex
}

// New creates a link with both engines idle and the storage cell zeroed.
func New(opts ...Option) (*Link, error) {
	config, err := applyOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply link options: %w", err)
	}

	return &Link{
		initiator: NewInitiator(config.MaxRetries, config.ReadLatency),
		responder: NewResponder(config.FaultPolicy, config.MaxRetries, config.ReadLatency),
		config:    config,
	}, nil
}

// Initiator returns the initiator engine.
func (l *Link) Initiator() *Initiator {
	return l.initiator
}

// Responder returns the responder engine.
func (l *Link) Responder() *Responder {
	return l.responder
}

// Tick returns the number of ticks stepped so far.
func (l *Link) Tick() uint64 {
	return l.tick
}

// Step advances both engines by one tick. The sideband is sampled first;
// each engine's output is derived from its own phase and the resolved byte
// (after any channel corruption) is then observed by both.
func (l *Link) Step() error {
	iPhase, rPhase := l.initiator.Phase(), l.responder.Phase()
	side := Sideband{
		Initiator: l.initiator.ErrorLine(),
		Responder: l.responder.ErrorLine(),
	}

	bus, err := ResolveBus(l.initiator.Drive(), l.responder.Drive(side))
	if err != nil {
		return fmt.Errorf("tick %d (%s/%s): %w", l.tick, iPhase, rPhase, err)
	}
	if err := checkOwnership(bus, iPhase, rPhase); err != nil {
		return fmt.Errorf("tick %d: %w", l.tick, err)
	}

	if !bus.Idle() && l.config.Corruptor != nil {
		bus.Data = l.config.Corruptor(l.tick, bus.Data)
	}

	l.initiator.Observe(bus, side)
	l.responder.Observe(bus, side)

	rec := TickRecord{
		Tick:      l.tick,
		Initiator: iPhase,
		Responder: rPhase,
		Bus:       bus,
		Sideband:  side,
	}
	l.tick++

	if l.config.Tracer != nil {
		if err := l.config.Tracer.RecordTick(rec); err != nil {
			return &TransportError{Op: "trace", Err: err}
		}
	}
	return nil
}

// checkOwnership rejects a driven tick that either engine's phase does not
// assign to the driver. A responder waiting in Idle accepts any command.
func checkOwnership(bus BusValue, iPhase, rPhase Phase) error {
	if bus.Idle() {
		return nil
	}
	if iPhase.Owner() != bus.Driver {
		return fmt.Errorf("%w: %s drove during initiator phase %s", ErrBusOwnership, bus.Driver, iPhase)
	}
	if rPhase != PhaseIdle && rPhase.Owner() != bus.Driver {
		return fmt.Errorf("%w: %s drove during responder phase %s", ErrBusOwnership, bus.Driver, rPhase)
	}
	return nil
}

// Submit pulses start on the initiator and steps until done. The returned
// Result is non-nil whenever the transaction reached Finish; an exhausted
// retry budget is reported as ErrRetriesExhausted wrapping the last
// checksum mismatch.
func (l *Link) Submit(tx Transaction) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.initiator.Start(tx); err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	budget := (uint64(l.config.MaxRetries) + 1) * l.config.ticksPerAttempt()
	for steps := uint64(0); !l.initiator.Done(); steps++ {
		if steps >= budget {
			l.abort()
			return nil, fmt.Errorf("%w: %d ticks", ErrStalled, steps)
		}
		if err := l.Step(); err != nil {
			l.abort()
			return nil, err
		}
	}

	result := l.initiator.Result()
	if result.Outcome == OutcomeExhausted {
		err := fmt.Errorf("%w after %d retries", ErrRetriesExhausted, result.Retries)
		if n := len(result.Mismatches); n > 0 {
			err = fmt.Errorf("%w: %w", err, result.Mismatches[n-1])
		}
		return result, err
	}
	return result, nil
}

// Write stores payload at address.
func (l *Link) Write(address, payload uint64) (*Result, error) {
	return l.Submit(Transaction{Opcode: OpWrite, Address: address, Payload: payload})
}

// Read fetches the value at address.
func (l *Link) Read(address uint64) (*Result, error) {
	return l.Submit(Transaction{Opcode: OpRead, Address: address})
}

// abort returns both engines to Idle after a fatal error, keeping the
// responder's storage cell.
func (l *Link) abort() {
	storage := l.responder.Storage()
	l.initiator = NewInitiator(l.config.MaxRetries, l.config.ReadLatency)
	l.responder = NewResponder(l.config.FaultPolicy, l.config.MaxRetries, l.config.ReadLatency)
	l.responder.SetStorage(storage)
	Debugf("link: engines reset at tick %d", l.tick)
}
