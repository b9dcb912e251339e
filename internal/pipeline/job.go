/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pipeline runs stroke jobs end to end: read and decode the input,
// look the result up in the cache or compute it, write the output file and
// report the outcome.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"imagestroke/internal/domain"
	"imagestroke/internal/stroke"
	"imagestroke/internal/vector"
)

// Stage names the step a job failed in.
type Stage string

const (
	StageRead   Stage = "read"
	StageDecode Stage = "decode"
	StageStroke Stage = "stroke"
	StageExport Stage = "export"
)

// Job is one input image to stroke. Output may be empty, in which case the
// result is computed but not written.
type Job struct {
	ID        string
	Input     string
	Output    string
	Algorithm string
	Params    domain.Params
	// Frame, when set, places a vector stroke into a host frame showing the
	// whole image scaled to Frame.
	Frame *vector.Rect
}

// NewJob returns a job with a fresh ID.
func NewJob(input, output, algorithm string, p domain.Params) Job {
	return Job{ID: uuid.NewString(), Input: input, Output: output, Algorithm: algorithm, Params: p}
}

// OutputFor derives an output path in outDir from the input file name and an
// extension such as "svg".
func OutputFor(input, outDir, format string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	ext := strings.TrimPrefix(strings.ToLower(format), ".")
	if outDir == "" {
		outDir = filepath.Dir(input)
	}
	return filepath.Join(outDir, base+".stroke."+ext)
}

// Error reports the job and stage a failure happened in.
type Error struct {
	JobID string
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Notification is the user-facing message for a job failure.
func Notification(err error) string {
	var je *Error
	if errors.As(err, &je) {
		return stroke.Notification(je.Err)
	}
	return stroke.Notification(err)
}

// Outcome is the result of one job.
type Outcome struct {
	Job     Job
	Result  stroke.Result
	Cached  bool
	Elapsed time.Duration
	Err     error
}

// OK reports whether the job succeeded.
func (o Outcome) OK() bool { return o.Err == nil }
