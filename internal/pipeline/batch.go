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
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	applog "imagestroke/internal/log"
	"imagestroke/internal/telemetry"
)

// Summary counts batch outcomes.
type Summary struct {
	Total, Succeeded, Failed, Cached int
	Elapsed                          time.Duration
}

// Summarize counts outcomes.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			s.Failed++
		case o.Cached:
			s.Succeeded++
			s.Cached++
		default:
			s.Succeeded++
		}
	}
	return s
}

// RunBatch runs jobs with at most concurrency in flight (<= 0 means
// unlimited). Job failures do not stop the batch; they are recorded in the
// returned outcomes, which are in job order. The error is non-nil only when
// ctx is cancelled, in which case unstarted jobs carry the context error.
func (r *Runner) RunBatch(ctx context.Context, jobs []Job, concurrency int) ([]Outcome, error) {
	l := applog.WithOperation(applog.WithComponent("pipeline"), "batch").With(
		slog.Int("jobs", len(jobs)), slog.Int("concurrency", concurrency),
	)
	start := time.Now()
	outcomes := make([]Outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(jobs); j++ {
				outcomes[j] = Outcome{Job: jobs[j], Err: &Error{JobID: jobs[j].ID, Stage: StageRead, Err: err}}
			}
			break
		}
		i, job := i, job
		g.Go(func() error {
			// Job errors stay in the outcome so siblings keep running.
			outcomes[i], _ = r.Run(gctx, job)
			return nil
		})
	}
	_ = g.Wait()

	s := Summarize(outcomes)
	s.Elapsed = time.Since(start)
	l.Info("batch finished",
		slog.Int("ok", s.Succeeded), slog.Int("failed", s.Failed), slog.Int("cached", s.Cached),
		slog.Duration("took", s.Elapsed),
	)
	r.Telemetry.Event(telemetry.EventBatchFinished, map[string]any{
		"jobs": s.Total, "failed": s.Failed, "cached": s.Cached, "duration_ms": s.Elapsed.Milliseconds(),
	})
	return outcomes, ctx.Err()
}
