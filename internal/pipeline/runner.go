/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	humanize "github.com/dustin/go-humanize"

	"imagestroke/internal/cache"
	"imagestroke/internal/crash"
	"imagestroke/internal/domain"
	"imagestroke/internal/export"
	"imagestroke/internal/imageio"
	applog "imagestroke/internal/log"
	"imagestroke/internal/stroke"
	"imagestroke/internal/telemetry"
)

// Runner executes jobs. Codec is required; Cache and Telemetry are optional.
type Runner struct {
	Codec     imageio.Codec
	Cache     *cache.Cache
	Telemetry *telemetry.Client
	// CrashDir receives reports for jobs that panic; empty means the temp dir.
	CrashDir string
}

// Run executes job. The returned Outcome always carries the job; on failure
// its Err equals the returned error, an *Error naming the stage.
func (r *Runner) Run(ctx context.Context, job Job) (Outcome, error) {
	out := Outcome{Job: job}
	start := time.Now()
	err := crash.Capture(crash.Info{Dir: r.CrashDir, Command: "run", JobID: job.ID, Input: job.Input, Algorithm: job.Algorithm}, func() error {
		return r.run(ctx, job, &out)
	})
	out.Elapsed = time.Since(start)
	if err != nil {
		var je *Error
		if !errors.As(err, &je) {
			err = &Error{JobID: job.ID, Stage: StageStroke, Err: err}
		}
		out.Err = err
		r.Telemetry.StrokeFailed(job.Algorithm, string(errorStage(err)))
		return out, err
	}
	r.Telemetry.StrokeCreated(job.Algorithm, out.Result.Kind.String(), out.Result.Contours, out.Elapsed, out.Cached)
	return out, nil
}

func errorStage(err error) Stage {
	var je *Error
	if errors.As(err, &je) {
		return je.Stage
	}
	return ""
}

func (r *Runner) run(ctx context.Context, job Job, out *Outcome) error {
	l := applog.WithJob(applog.WithOperation(applog.WithComponent("pipeline"), "run"), job.ID).With(
		slog.String("input", job.Input),
		slog.String("algorithm", job.Algorithm),
	)
	fail := func(stage Stage, err error) error {
		l.Error("job failed", slog.String("stage", string(stage)), slog.Any("err", err))
		return &Error{JobID: job.ID, Stage: stage, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(StageRead, err)
	}
	if _, err := stroke.ParseAlgorithm(job.Algorithm); err != nil {
		return fail(StageStroke, err)
	}

	data, err := os.ReadFile(job.Input)
	if err != nil {
		return fail(StageRead, err)
	}
	img, err := r.Codec.Decode(ctx, data)
	if err != nil {
		return fail(StageDecode, err)
	}
	l.Debug("decoded", slog.Int("w", img.Width), slog.Int("h", img.Height), slog.String("size", humanize.Bytes(uint64(len(data)))))

	res, cached, err := r.stroke(ctx, l, job, img)
	if err != nil {
		return fail(StageStroke, err)
	}
	if res.Empty() {
		return fail(StageStroke, stroke.ErrPathGenerationFailed)
	}
	out.Result, out.Cached = res, cached

	if job.Output == "" {
		return nil
	}
	opts, err := exportOptions(job, res, img)
	if err != nil {
		return fail(StageExport, err)
	}
	if err := export.WriteFile(job.Output, res, img, opts); err != nil {
		return fail(StageExport, err)
	}
	l.Info("stroke written", slog.String("output", job.Output), slog.Bool("cached", cached), slog.Int("contours", res.Contours))
	return nil
}

// stroke computes the result through the cache when one is configured. Cache
// failures fall back to computing directly.
func (r *Runner) stroke(ctx context.Context, l *slog.Logger, job Job, img domain.Image) (stroke.Result, bool, error) {
	create := func(context.Context) (stroke.Result, error) {
		return stroke.Create(job.Algorithm, img, job.Params)
	}
	if r.Cache == nil {
		res, err := create(ctx)
		return res, false, err
	}
	var genErr error
	res, cached, err := r.Cache.GetOrCreate(ctx, cache.KeyFor(img, job.Algorithm, job.Params), func(ctx context.Context) (stroke.Result, error) {
		res, err := create(ctx)
		genErr = err
		return res, err
	})
	if err == nil || genErr != nil {
		return res, cached, err
	}
	l.Warn("cache unavailable, computing directly", slog.Any("err", err))
	res, err = create(ctx)
	return res, false, err
}

func exportOptions(job Job, res stroke.Result, img domain.Image) (export.Options, error) {
	opts := export.OptionsFor(job.Params, img)
	if job.Frame == nil || res.Kind != stroke.KindVector {
		return opts, nil
	}
	if job.Frame.Empty() {
		return export.Options{}, fmt.Errorf("%w: empty frame", export.ErrInvalidPlacement)
	}
	pl, err := export.Place(res.Bounds, img.Width, img.Height, *job.Frame)
	if err != nil {
		return export.Options{}, err
	}
	opts.Transform = pl.Transform()
	opts.Width = int(math.Ceil(float64(job.Frame.X + job.Frame.W)))
	opts.Height = int(math.Ceil(float64(job.Frame.Y + job.Frame.H)))
	if opts.Width <= 0 || opts.Height <= 0 {
		return export.Options{}, fmt.Errorf("%w: frame outside canvas", export.ErrInvalidPlacement)
	}
	return opts, nil
}
