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
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	crclink "github.com/ZaparooProject/go-crclink"
	"github.com/ZaparooProject/go-crclink/transport/spi"
	"github.com/ZaparooProject/go-crclink/transport/uart"
)

var errScenarioFailed = errors.New("scenario failed")

type config struct {
	faults   string
	logDir   string
	uartPort string
	spiPort  string
	address  uint64
	payload  uint64
	stress   int
	noise    int
	resubmit int
	debug    bool
	trace    bool
}

// Package-level flag variables
var (
	flagFaults   string
	flagLogDir   string
	flagUART     string
	flagSPI      string
	flagAddress  uint64
	flagPayload  uint64
	flagStress   int
	flagNoise    int
	flagResubmit int
	flagDebug    bool
	flagTrace    bool
)

func init() {
	flag.Uint64Var(&flagAddress, "address", 0x6655443322AB, "48-bit target address")
	flag.Uint64Var(&flagPayload, "payload", 0x1122334455667788, "64-bit payload to write and read back")
	flag.StringVar(&flagFaults, "faults", "reference", "Responder fault policy: reference, clean or always")
	flag.StringVar(&flagLogDir, "log", "", "Directory for a session log file (disabled if empty)")
	flag.StringVar(&flagUART, "uart", "", "Serial port to mirror bus bytes to")
	flag.StringVar(&flagSPI, "spi", "", "SPI port to mirror bus bytes to")
	flag.IntVar(&flagStress, "stress", 0, "Run this many random transactions instead of the scripted scenario")
	flag.IntVar(&flagNoise, "noise", 0, "Percent chance of a bit flip per driven byte in stress mode")
	flag.IntVar(&flagResubmit, "resubmit", 0, "Resubmit a transaction this many times after its retry budget runs out")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagTrace, "trace", false, "Print the tick trace after the scenario")
}

func parseConfig() (*config, error) {
	cfg := &config{
		faults:   flagFaults,
		logDir:   flagLogDir,
		uartPort: flagUART,
		spiPort:  flagSPI,
		address:  flagAddress,
		payload:  flagPayload,
		stress:   flagStress,
		noise:    flagNoise,
		resubmit: flagResubmit,
		debug:    flagDebug,
		trace:    flagTrace,
	}

	if _, err := faultPolicy(cfg.faults); err != nil {
		return nil, err
	}
	if cfg.resubmit < 0 {
		return nil, fmt.Errorf("resubmit %d is negative", cfg.resubmit)
	}
	if cfg.noise < 0 || cfg.noise > 100 {
		return nil, fmt.Errorf("noise %d%% outside 0..100", cfg.noise)
	}

	if cfg.debug {
		// Keep stdout for the PASS/FAIL report.
		crclink.SetDebugOutput(os.Stderr)
		crclink.SetDebugEnabled(true)
	}

	return cfg, nil
}

func faultPolicy(name string) (crclink.FaultPolicy, error) {
	switch name {
	case "reference":
		return crclink.ReferenceFaultPolicy(), nil
	case "clean":
		return crclink.AcceptAllPolicy, nil
	case "always":
		return crclink.RejectAlways(crclink.CheckCmdAddr), nil
	default:
		return nil, fmt.Errorf("unknown fault policy %q", name)
	}
}

// mirrors opens the hardware bus mirrors named in cfg. The returned closer
// releases whatever was opened.
func mirrors(cfg *config) (tracers []crclink.Tracer, closeAll func(), err error) {
	var closers []io.Closer
	closeAll = func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Failed to close mirror: %v\n", err)
			}
		}
	}

	if cfg.uartPort != "" {
		m, err := uart.New(cfg.uartPort)
		if err != nil {
			return nil, closeAll, fmt.Errorf("failed to create UART mirror: %w", err)
		}
		tracers = append(tracers, m)
		closers = append(closers, m)
	}

	if cfg.spiPort != "" {
		m, err := spi.New(cfg.spiPort)
		if err != nil {
			return nil, closeAll, fmt.Errorf("failed to create SPI mirror: %w", err)
		}
		tracers = append(tracers, m)
		closers = append(closers, m)
	}

	return tracers, closeAll, nil
}

// newLink builds a link with the configured fault policy, the trace buffer
// and any extra tracers attached.
func newLink(cfg *config, trace *crclink.TraceBuffer, extra []crclink.Tracer, opts ...crclink.Option) (*crclink.Link, error) {
	policy, err := faultPolicy(cfg.faults)
	if err != nil {
		return nil, err
	}

	tracers := append([]crclink.Tracer{trace}, extra...)
	if cfg.debug {
		tracers = append(tracers, crclink.DebugTracer())
	}
	opts = append(opts,
		crclink.WithFaultPolicy(policy),
		crclink.WithTracer(crclink.MultiTracer(tracers...)))

	link, err := crclink.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create link: %w", err)
	}
	return link, nil
}

func printResult(w io.Writer, op string, res *crclink.Result) {
	if res == nil {
		_, _ = fmt.Fprintf(w, "%-5s no result\n", op)
		return
	}
	_, _ = fmt.Fprintf(w,
		"%-5s outcome=%s retries=%d ticks=%d caMatch=%t caError=%t dataMatch=%t dataError=%t payload=%016X\n",
		op, res.Outcome, res.Retries, res.Ticks, res.CAMatch, res.CAError, res.DataMatch, res.DataError, res.Payload)
}

func retryConfig(cfg *config) *crclink.RetryConfig {
	rc := crclink.DefaultRetryConfig()
	rc.MaxAttempts = cfg.resubmit + 1
	return rc
}

// runScenario writes the payload, reads it back and reports PASS or FAIL.
func runScenario(ctx context.Context, w io.Writer, cfg *config, trace *crclink.TraceBuffer, extra []crclink.Tracer) error {
	link, err := newLink(cfg, trace, extra)
	if err != nil {
		return err
	}

	defer func() {
		if cfg.trace {
			_, _ = fmt.Fprint(w, trace.Format())
		}
	}()

	rc := retryConfig(cfg)
	res, err := link.SubmitWithRetry(ctx, crclink.Transaction{
		Opcode:  crclink.OpWrite,
		Address: cfg.address,
		Payload: cfg.payload,
	}, rc)
	printResult(w, "write", res)
	if err != nil {
		_, _ = fmt.Fprintf(w, "FAIL: %v\n", err)
		return fmt.Errorf("%w: write: %w", errScenarioFailed, err)
	}

	res, err = link.SubmitWithRetry(ctx, crclink.Transaction{Opcode: crclink.OpRead, Address: cfg.address}, rc)
	printResult(w, "read", res)
	if err != nil {
		_, _ = fmt.Fprintf(w, "FAIL: %v\n", err)
		return fmt.Errorf("%w: read: %w", errScenarioFailed, err)
	}

	if res.Payload != cfg.payload {
		_, _ = fmt.Fprintf(w, "FAIL: read %016X, wrote %016X\n", res.Payload, cfg.payload)
		return fmt.Errorf("%w: payload mismatch", errScenarioFailed)
	}

	_, _ = fmt.Fprintln(w, "PASS")
	return nil
}

func run(ctx context.Context, w io.Writer, cfg *config) error {
	if cfg.logDir != "" {
		path, err := crclink.InitSessionLog(cfg.logDir)
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
		defer func() {
			_ = crclink.CloseSessionLog()
		}()
		_, _ = fmt.Fprintf(w, "Session log: %s\n", path)
	}

	extra, closeAll, err := mirrors(cfg)
	defer closeAll()
	if err != nil {
		return err
	}

	trace := crclink.NewTraceBuffer(1024)
	if cfg.stress > 0 {
		return runStress(ctx, w, cfg, trace, extra)
	}
	return runScenario(ctx, w, cfg, trace, extra)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, os.Stdout, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
