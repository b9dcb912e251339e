/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"imagestroke/internal/cache"
	"imagestroke/internal/config"
	"imagestroke/internal/crash"
	"imagestroke/internal/imageio"
	applog "imagestroke/internal/log"
	"imagestroke/internal/pipeline"
	"imagestroke/internal/telemetry"
	"imagestroke/internal/version"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "imagestroke: outline the opaque content of images")
	_, _ = fmt.Fprintf(w, "Version: %s\n", version.String())
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  imagestroke version                         Show version")
	_, _ = fmt.Fprintln(w, "  imagestroke stroke <input> [flags]          Stroke one image (-o out.svg|.pdf|.png)")
	_, _ = fmt.Fprintln(w, "  imagestroke batch <manifest.json> [-j N]    Stroke every job in a manifest")
	_, _ = fmt.Fprintln(w, "  imagestroke watch <dir> <outdir> [flags]    Stroke images as they appear in <dir>")
	_, _ = fmt.Fprintln(w, "  imagestroke cache stats|clear               Inspect or empty the result cache")
	_, _ = fmt.Fprintln(w, "  imagestroke config show|path|init           Inspect or create the user config")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app carries what every command needs.
type app struct {
	cfg    config.AppConfig
	stdout io.Writer
	stderr io.Writer
	log    *slog.Logger
	crash  *crash.Info
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, cfgErr := config.Load()
	logOpts := cfg.Logging.LogOptions()
	logOpts.Console = stderr
	applog.Init(logOpts)
	defer func() { _ = applog.Close() }()

	a := &app{cfg: cfg, stdout: stdout, stderr: stderr, log: applog.WithComponent("cli"), crash: &crash.Info{}}
	if cfgErr != nil {
		a.log.Warn("config not loaded, using defaults", slog.Any("err", cfgErr))
	}

	tc := telemetry.New(telemetry.FromConfig(cfg.Telemetry))
	telemetry.SetDefault(tc)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.Timeout())
		tc.Flush(ctx)
		cancel()
		tc.Close()
	}()
	defer crash.Recover(a.crash)

	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}
	a.crash.Command = args[0]
	a.log.Debug("start", slog.String("command", args[0]), slog.Int("args", len(args)))

	switch args[0] {
	case "version", "--version", "-v":
		_, _ = fmt.Fprintf(stdout, "imagestroke %s\n", version.String())
		return exitOK
	case "help", "--help", "-h":
		usage(stdout)
		return exitOK
	case "stroke":
		return a.stroke(args[1:])
	case "batch":
		return a.batch(args[1:])
	case "watch":
		return a.watch(args[1:])
	case "cache":
		return a.cache(args[1:])
	case "config":
		return a.config(args[1:])
	}
	_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
	usage(stderr)
	return exitUsage
}

// flags returns a subcommand flag set that reports errors instead of exiting.
func (a *app) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parse handles -h and flag errors uniformly. ok is false when the command
// should return code.
func (a *app) parse(fs *pflag.FlagSet, args []string, nargs int, what string) (rest []string, code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, exitOK, false
		}
		return nil, exitUsage, false
	}
	if fs.NArg() != nargs {
		_, _ = fmt.Fprintf(a.stderr, "%s requires %s\n", fs.Name(), what)
		fs.PrintDefaults()
		return nil, exitUsage, false
	}
	return fs.Args(), exitOK, true
}

// runner builds a pipeline runner. The returned cleanup must be called.
func (a *app) runner(noCache bool) (*pipeline.Runner, func()) {
	codec := imageio.NewAsyncCodec(4)
	r := &pipeline.Runner{Codec: codec, Telemetry: telemetry.Default()}
	cleanup := []func(){codec.Close}

	if a.cfg.Cache.Enabled && !noCache {
		if c, err := a.openCache(); err != nil {
			a.log.Warn("cache disabled", slog.Any("err", err))
		} else {
			r.Cache = c
			cleanup = append(cleanup, func() { _ = c.Close() })
		}
	}
	return r, func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}
}

func (a *app) openCache() (*cache.Cache, error) {
	dir := a.cfg.Cache.Dir
	if dir == "" {
		d, err := cache.DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return cache.Open(dir, a.cfg.Cache.MaxBytes)
}

func (a *app) fail(err error) int {
	_, _ = fmt.Fprintln(a.stderr, pipeline.Notification(err))
	return exitFailure
}

func elapsed(d time.Duration) string { return d.Round(time.Millisecond).String() }
