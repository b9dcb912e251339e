/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns panics into crash reports. Recover is for the process
// entry point; Capture converts a panic inside one job into an error so a
// batch can carry on.
package crash

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "imagestroke/internal/log"
	"imagestroke/internal/telemetry"
	"imagestroke/internal/version"
)

// ErrPanic wraps a panic recovered by Capture.
var ErrPanic = errors.New("panic")

// Info describes what was running when the panic happened. Dir is where the
// report goes; empty means the OS temp dir.
type Info struct {
	Dir       string
	Command   string
	JobID     string
	Input     string
	Algorithm string
}

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Recover captures a panic, logs it with its stack, writes a report file and
// exits with code 2.
//
// Usage: defer crash.Recover(&info)
func Recover(info *Info) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, err := writeReport(info, r, stack)
		if err != nil {
			l.Error("write crash report failed", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

// Capture runs fn and converts a panic into an error wrapping ErrPanic. A
// report is written as with Recover, but the process keeps running.
func Capture(info Info, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			l := applog.WithJob(applog.WithComponent("crash"), info.JobID)
			l.Error("job panicked", slog.Any("panic", r), slog.String("stack", string(stack)))
			path, werr := writeReport(&info, r, stack)
			if werr != nil {
				l.Error("write crash report failed", slog.Any("err", werr))
			}
			err = fmt.Errorf("%w: %v (report: %s)", ErrPanic, r, path)
		}
	}()
	return fn()
}

func writeReport(info *Info, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if info != nil && info.Dir != "" {
		dir = info.Dir
		_ = os.MkdirAll(dir, 0o755)
	}
	stamp := time.Now().Format("20060102-150405.000000000")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "imagestroke crash report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if info != nil {
		if info.Command != "" {
			_, _ = fmt.Fprintf(&buf, "Command: %s\n", info.Command)
		}
		if info.JobID != "" {
			_, _ = fmt.Fprintf(&buf, "Job: %s\n", info.JobID)
		}
		if info.Input != "" {
			_, _ = fmt.Fprintf(&buf, "Input: %s\n", info.Input)
		}
		if info.Algorithm != "" {
			_, _ = fmt.Fprintf(&buf, "Algorithm: %s\n", info.Algorithm)
		}
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}

	// Input paths stay local; the uploaded copy omits them.
	telemetry.UploadCrash(redact(buf.Bytes(), info))
	return path, nil
}

func redact(report []byte, info *Info) []byte {
	if info == nil || info.Input == "" {
		return report
	}
	return bytes.ReplaceAll(report, []byte(info.Input), []byte("<input>"))
}
