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
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"imagestroke/internal/config"
	"imagestroke/internal/domain"
	"imagestroke/internal/pipeline"
	"imagestroke/internal/vector"
)

// strokeFlags registers the stroke parameter flags shared by stroke and watch.
func (a *app) strokeFlags(fs *pflag.FlagSet) *config.StrokeConfig {
	sc := a.cfg.Stroke
	fs.StringVarP(&sc.Algorithm, "algorithm", "a", sc.Algorithm, "contour, distance or raster")
	fs.Float64VarP(&sc.Width, "width", "w", sc.Width, "stroke width in pixels")
	fs.StringVarP(&sc.Color, "color", "c", sc.Color, "stroke color as #rrggbb")
	fs.StringVar(&sc.Side, "side", sc.Side, "raster band: inside or outside")
	return &sc
}

func (a *app) params(sc *config.StrokeConfig) (domain.Params, bool) {
	p, err := sc.Params()
	if err != nil {
		_, _ = fmt.Fprintln(a.stderr, "Error:", err)
		return domain.Params{}, false
	}
	return p, true
}

func parseFrame(s string) (*vector.Rect, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("frame must be x,y,w,h: %q", s)
	}
	var v [4]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("frame must be x,y,w,h: %q", s)
		}
		v[i] = float32(f)
	}
	r := vector.R(v[0], v[1], v[2], v[3])
	return &r, nil
}

func (a *app) stroke(args []string) int {
	fs := a.flags("stroke")
	sc := a.strokeFlags(fs)
	output := fs.StringP("output", "o", "", "output file (.svg, .pdf or .png); defaults next to the input")
	frame := fs.String("frame", "", "place the stroke into a host frame x,y,w,h")
	noCache := fs.Bool("no-cache", false, "bypass the result cache")
	rest, code, ok := a.parse(fs, args, 1, "<input>")
	if !ok {
		return code
	}
	params, ok := a.params(sc)
	if !ok {
		return exitUsage
	}
	fr, err := parseFrame(*frame)
	if err != nil {
		_, _ = fmt.Fprintln(a.stderr, "Error:", err)
		return exitUsage
	}
	out := *output
	if out == "" {
		out = pipeline.OutputFor(rest[0], "", a.cfg.Stroke.Format)
	}

	r, cleanup := a.runner(*noCache)
	defer cleanup()
	job := pipeline.NewJob(rest[0], out, sc.Algorithm, params)
	job.Frame = fr
	a.crash.JobID, a.crash.Input, a.crash.Algorithm = job.ID, job.Input, job.Algorithm

	o, err := r.Run(context.Background(), job)
	if err != nil {
		return a.fail(err)
	}
	_, _ = fmt.Fprintf(a.stdout, "wrote %s (%s, %d contours%s, %s)\n",
		out, o.Result.Kind, o.Result.Contours, cachedNote(o.Cached), elapsed(o.Elapsed))
	return exitOK
}

func cachedNote(cached bool) string {
	if cached {
		return ", cached"
	}
	return ""
}

func (a *app) batch(args []string) int {
	fs := a.flags("batch")
	jobsN := fs.IntP("jobs", "j", a.cfg.Batch.Workers(), "jobs to run in parallel")
	noCache := fs.Bool("no-cache", false, "bypass the result cache")
	rest, code, ok := a.parse(fs, args, 1, "<manifest.json>")
	if !ok {
		return code
	}
	jobs, err := pipeline.LoadManifest(rest[0], a.cfg.Stroke)
	if err != nil {
		_, _ = fmt.Fprintln(a.stderr, "Error:", err)
		return exitUsage
	}

	r, cleanup := a.runner(*noCache)
	defer cleanup()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcomes, err := r.RunBatch(ctx, jobs, *jobsN)
	for _, o := range outcomes {
		if o.Err != nil {
			_, _ = fmt.Fprintf(a.stderr, "%s: %s\n", o.Job.Input, pipeline.Notification(o.Err))
		}
	}
	s := pipeline.Summarize(outcomes)
	_, _ = fmt.Fprintf(a.stdout, "%d jobs: %d ok (%d cached), %d failed\n", s.Total, s.Succeeded, s.Cached, s.Failed)
	if err != nil || s.Failed > 0 {
		return exitFailure
	}
	return exitOK
}

func (a *app) watch(args []string) int {
	fs := a.flags("watch")
	sc := a.strokeFlags(fs)
	format := fs.String("format", a.cfg.Stroke.Format, "output format: svg, pdf or png")
	existing := fs.Bool("existing", false, "also stroke images already in <dir>")
	noCache := fs.Bool("no-cache", false, "bypass the result cache")
	rest, code, ok := a.parse(fs, args, 2, "<dir> and <outdir>")
	if !ok {
		return code
	}
	params, ok := a.params(sc)
	if !ok {
		return exitUsage
	}

	r, cleanup := a.runner(*noCache)
	defer cleanup()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := r.Watch(ctx, pipeline.WatchOptions{
		Dir: rest[0], OutDir: rest[1], Format: *format, Algorithm: sc.Algorithm, Params: params,
		Existing: *existing,
		OnOutcome: func(o pipeline.Outcome) {
			if o.Err != nil {
				_, _ = fmt.Fprintf(a.stderr, "%s: %s\n", o.Job.Input, pipeline.Notification(o.Err))
				return
			}
			_, _ = fmt.Fprintf(a.stdout, "wrote %s\n", o.Job.Output)
		},
	})
	if err != nil {
		_, _ = fmt.Fprintln(a.stderr, "Error:", err)
		return exitFailure
	}
	return exitOK
}

func (a *app) cache(args []string) int {
	if len(args) != 1 || (args[0] != "stats" && args[0] != "clear") {
		_, _ = fmt.Fprintln(a.stderr, "cache requires stats or clear")
		return exitUsage
	}
	c, err := a.openCache()
	if err != nil {
		_, _ = fmt.Fprintln(a.stderr, "Error:", err)
		return exitFailure
	}
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	if args[0] == "clear" {
		if err := c.Clear(ctx); err != nil {
			_, _ = fmt.Fprintln(a.stderr, "Error:", err)
			return exitFailure
		}
		_, _ = fmt.Fprintln(a.stdout, "cache cleared")
		return exitOK
	}
	st, err := c.Stats(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(a.stderr, "Error:", err)
		return exitFailure
	}
	limit := "unlimited"
	if st.MaxBytes > 0 {
		limit = humanize.Bytes(uint64(st.MaxBytes))
	}
	_, _ = fmt.Fprintf(a.stdout, "path:    %s\nentries: %s\nsize:    %s of %s\n",
		st.Path, humanize.Comma(int64(st.Entries)), humanize.Bytes(uint64(st.Bytes)), limit)
	return exitOK
}

var configKeys = []string{
	"stroke.algorithm", "stroke.width", "stroke.color", "stroke.side",
	"cache.enabled", "cache.dir", "cache.max_bytes",
	"batch.concurrency",
	"logging.level", "logging.format", "logging.source", "logging.file",
	"telemetry.opt_in", "telemetry.events_url", "telemetry.crash_url", "telemetry.timeout_ms",
}

func (a *app) config(args []string) int {
	fs := a.flags("config")
	force := fs.Bool("force", false, "overwrite an existing config on init")
	rest, code, ok := a.parse(fs, args, 1, "show, path or init")
	if !ok {
		return code
	}
	path, err := config.ConfigPath()
	if err != nil {
		_, _ = fmt.Fprintln(a.stderr, "Error:", err)
		return exitFailure
	}
	switch rest[0] {
	case "path":
		_, _ = fmt.Fprintln(a.stdout, path)
		return exitOK
	case "show":
		b, err := yaml.Marshal(a.cfg)
		if err != nil {
			_, _ = fmt.Fprintln(a.stderr, "Error:", err)
			return exitFailure
		}
		_, _ = a.stdout.Write(b)
		for _, k := range configKeys {
			if env, ok := config.EnvOverrideFor(k); ok {
				_, _ = fmt.Fprintf(a.stdout, "# %s overridden by %s\n", k, env)
			}
		}
		return exitOK
	case "init":
		if _, err := os.Stat(path); err == nil && !*force {
			_, _ = fmt.Fprintf(a.stderr, "config already exists at %s (use --force)\n", path)
			return exitFailure
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			_, _ = fmt.Fprintln(a.stderr, "Error:", err)
			return exitFailure
		}
		if err := config.SaveTo(path, config.Defaults()); err != nil {
			_, _ = fmt.Fprintln(a.stderr, "Error:", err)
			return exitFailure
		}
		_, _ = fmt.Fprintln(a.stdout, "wrote", path)
		return exitOK
	}
	_, _ = fmt.Fprintf(a.stderr, "unknown config command %q\n", rest[0])
	return exitUsage
}
