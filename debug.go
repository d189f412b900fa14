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
	"io"
	"os"
	"strings"
	"time"

	"github.com/ZaparooProject/go-crclink/internal/syncutil"
)

// debugEnabled controls whether debug logging is echoed to debugOutput
var debugEnabled = false

// debugOutput receives console debug lines; debugMu also guards the session
// log writer, since engines on different links log concurrently.
var (
	debugOutput io.Writer = os.Stdout
	debugMu     syncutil.Mutex
)

func init() {
	// Enable debug logging if a DEBUG environment variable is set
	if os.Getenv("CRCLINK_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// Debugf prints debug information.
// Always writes to the session log (if initialized) with a timestamp.
// Only prints to the console when debug mode is enabled.
func Debugf(format string, args ...any) {
	logDebug(fmt.Sprintf(format, args...))
}

// Debugln is Debugf with its operands formatted as by fmt.Sprintln, without
// the trailing newline.
func Debugln(args ...any) {
	logDebug(strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

func logDebug(message string) {
	debugMu.Lock()
	defer debugMu.Unlock()

	if sessionLogWriter != nil {
		timestamp := time.Now().Format("15:04:05.000")
		_, _ = fmt.Fprintf(sessionLogWriter, "%s DEBUG: %s\n", timestamp, message)
	}

	if debugEnabled {
		_, _ = fmt.Fprintf(debugOutput, "DEBUG: %s\n", message)
	}
}

// SetDebugEnabled allows programmatic control of console debug output
func SetDebugEnabled(enabled bool) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugEnabled = enabled
}

// SetDebugOutput redirects console debug output (stdout by default). A nil
// writer restores stdout.
func SetDebugOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	debugMu.Lock()
	defer debugMu.Unlock()
	debugOutput = w
}

// DebugTracer returns a Tracer that logs every tick through Debugf.
func DebugTracer() Tracer {
	return TracerFunc(func(rec TickRecord) error {
		Debugf("tick %s", rec)
		return nil
	})
}
