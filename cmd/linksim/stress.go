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

package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	crclink "github.com/ZaparooProject/go-crclink"
)

const addressMask = 1<<48 - 1

// StressResult summarizes a stress run.
type StressResult struct {
	CrashFiles   []string
	Transactions int
	Completed    int
	Exhausted    int
	Retries      int
	Escaped      int
	Desynced     int
	Duration     time.Duration
	noisy        bool
}

// CrashReport contains everything needed to replay an undetected corruption.
type CrashReport struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Address   string    `json:"address"`
	Expected  string    `json:"expected"`
	Actual    string    `json:"actual"`
	Trace     []string  `json:"trace"`
	Iteration int       `json:"iteration"`
	Noise     int       `json:"noise_percent"`
	Retries   int       `json:"retries"`
}

// randomInt returns a random int in [low, high] inclusive
func randomInt(low, high int) int {
	if low >= high {
		return low
	}
	return low + int(randomUint64()%uint64(high-low+1))
}

func randomUint64() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

// noisyChannel flips one random bit of a driven byte with the given
// percent probability.
func noisyChannel(percent int) crclink.Corruptor {
	return func(_ uint64, data byte) byte {
		if percent <= 0 || randomInt(1, 100) > percent {
			return data
		}
		return data ^ 1<<randomInt(0, 7)
	}
}

func printStressBanner(w io.Writer, cfg *config) {
	_, _ = fmt.Fprintln(w, "================================================================================")
	_, _ = fmt.Fprintf(w, "  crclink stress: %d transactions, %d%% bit-flip noise, %s responder\n",
		cfg.stress, cfg.noise, cfg.faults)
	_, _ = fmt.Fprintln(w, "================================================================================")
}

// runStress issues random write/read pairs over a noisy channel and checks
// that every completed read returns the last completed write. A mismatch is
// a corruption the checksums failed to catch and is written to a crash report.
func runStress(ctx context.Context, w io.Writer, cfg *config, trace *crclink.TraceBuffer, extra []crclink.Tracer) error {
	link, err := newLink(cfg, trace, extra, crclink.WithCorruptor(noisyChannel(cfg.noise)))
	if err != nil {
		return err
	}

	printStressBanner(w, cfg)
	started := time.Now()
	result := &StressResult{noisy: cfg.noise > 0}
	var stored uint64

	for i := range cfg.stress {
		if err := ctx.Err(); err != nil {
			return err
		}
		trace.Clear()

		address := randomUint64() & addressMask
		payload := randomUint64()

		res, err := link.Write(address, payload)
		if !result.tally(res, err) {
			return fmt.Errorf("iteration %d write: %w", i, err)
		}
		switch {
		case res == nil:
			// The aborted write may or may not have reached the cell.
			stored = link.Responder().Storage()
		case res.Completed():
			stored = payload
		}

		res, err = link.Read(address)
		if !result.tally(res, err) {
			return fmt.Errorf("iteration %d read: %w", i, err)
		}
		if res == nil {
			_, _ = fmt.Fprintf(w, "  [DESYNC] iteration %d: %v\n", i, err)
			stored = link.Responder().Storage()
			continue
		}
		if !res.Completed() || res.Payload == stored {
			continue
		}

		result.Escaped++
		report := &CrashReport{
			Timestamp: time.Now(),
			Operation: "read",
			Address:   fmt.Sprintf("%012X", address),
			Expected:  fmt.Sprintf("%016X", stored),
			Actual:    fmt.Sprintf("%016X", res.Payload),
			Trace:     formatTrace(trace),
			Iteration: i,
			Noise:     cfg.noise,
			Retries:   res.Retries,
		}
		path, werr := writeCrashReportToFile(reportDir(cfg), report)
		if werr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to write crash report: %v\n", werr)
		} else {
			result.CrashFiles = append(result.CrashFiles, path)
		}
		_, _ = fmt.Fprintf(w, "  [ESCAPE] iteration %d: read %s, expected %s\n", i, report.Actual, report.Expected)
		stored = res.Payload
	}

	result.Duration = time.Since(started)
	printStressSummary(w, result)
	if result.Escaped > 0 {
		return fmt.Errorf("%w: %d undetected corruptions", errScenarioFailed, result.Escaped)
	}
	return nil
}

// tally counts one transaction and reports whether the run can continue.
// On a noisy channel an aborted transaction is a detected failure: the
// link has already reset both engines and the next one starts clean.
func (r *StressResult) tally(res *crclink.Result, err error) bool {
	if err != nil && !errors.Is(err, crclink.ErrRetriesExhausted) {
		if !r.noisy || !isDesync(err) {
			return false
		}
		r.Transactions++
		r.Desynced++
		return true
	}
	r.Transactions++
	r.Retries += res.Retries
	if res.Completed() {
		r.Completed++
	} else {
		r.Exhausted++
	}
	return true
}

// isDesync reports whether err is a fatal link error caused by the engines
// disagreeing on the phase, which a corrupted opcode can do when the
// command/address checksum does not catch it.
func isDesync(err error) bool {
	return errors.Is(err, crclink.ErrBusOwnership) ||
		errors.Is(err, crclink.ErrBusContention) ||
		errors.Is(err, crclink.ErrStalled)
}

func reportDir(cfg *config) string {
	if cfg.logDir != "" {
		return cfg.logDir
	}
	return "."
}

func formatTrace(trace *crclink.TraceBuffer) []string {
	entries := trace.Entries()
	lines := make([]string, 0, len(entries))
	for _, rec := range entries {
		lines = append(lines, rec.String())
	}
	return lines
}

func writeCrashReportToFile(dir string, report *CrashReport) (string, error) {
	timestamp := report.Timestamp.Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("linksim_crash_%06d_%s.json", report.Iteration, timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal crash report: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write crash report: %w", err)
	}

	return filename, nil
}

func printStressSummary(w io.Writer, r *StressResult) {
	status := "PASS"
	if r.Escaped > 0 {
		status = "FAIL"
	}

	_, _ = fmt.Fprintln(w, "================================================================================")
	_, _ = fmt.Fprintf(w, "Transactions: %d\n", r.Transactions)
	_, _ = fmt.Fprintf(w, "  Completed:  %d\n", r.Completed)
	_, _ = fmt.Fprintf(w, "  Exhausted:  %d\n", r.Exhausted)
	_, _ = fmt.Fprintf(w, "  Retries:    %d\n", r.Retries)
	_, _ = fmt.Fprintf(w, "  Desynced:   %d\n", r.Desynced)
	_, _ = fmt.Fprintf(w, "  Escaped:    %d\n", r.Escaped)
	for _, f := range r.CrashFiles {
		_, _ = fmt.Fprintf(w, "  Crash report: %s\n", f)
	}
	_, _ = fmt.Fprintf(w, "Duration: %s\n", r.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintln(w, status)
}
