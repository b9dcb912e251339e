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
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagestroke/internal/cache"
	"imagestroke/internal/config"
	"imagestroke/internal/domain"
	"imagestroke/internal/imageio"
	"imagestroke/internal/stroke"
	"imagestroke/internal/vector"
)

// writeSquare writes a 20x20 PNG with an opaque 10x10 square at (5,5).
func writeSquare(t *testing.T, path string, opaque bool) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	if opaque {
		for y := 5; y < 15; y++ {
			for x := 5; x < 15; x++ {
				img.SetNRGBA(x, y, color.NRGBA{R: 200, A: 255})
			}
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func newRunner(t *testing.T, withCache bool) *Runner {
	t.Helper()
	r := &Runner{Codec: imageio.Direct{}, CrashDir: t.TempDir()}
	if withCache {
		c, err := cache.Open(t.TempDir(), 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		r.Cache = c
	}
	return r
}

func TestRunWritesSVG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "square.png")
	writeSquare(t, in, true)
	out := filepath.Join(dir, "out", "square.svg")

	r := newRunner(t, false)
	o, err := r.Run(context.Background(), NewJob(in, out, "distance", domain.DefaultParams()))
	require.NoError(t, err)
	assert.True(t, o.OK())
	assert.Equal(t, stroke.KindVector, o.Result.Kind)
	assert.Equal(t, 1, o.Result.Contours)
	assert.Equal(t, "M 5 5 L 14 5 L 14 14 L 5 14 L 5 6 Z", o.Result.Path)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "<path")
	assert.Contains(t, string(b), "M 5 5")
}

func TestRunWithoutOutputOnlyComputes(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "square.png")
	writeSquare(t, in, true)
	o, err := newRunner(t, false).Run(context.Background(), NewJob(in, "", "contour", domain.DefaultParams()))
	require.NoError(t, err)
	assert.Equal(t, "M 5 5 L 14 5 L 14 14 L 5 14 L 5 5 Z", o.Result.Path)
	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1)
}

func TestRunUsesCache(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "square.png")
	writeSquare(t, in, true)
	r := newRunner(t, true)
	job := NewJob(in, filepath.Join(dir, "a.png"), "raster", domain.DefaultParams())

	first, err := r.Run(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	second, err := r.Run(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Result.Pixels.Pix, second.Result.Pixels.Pix)
}

func TestRunEmptyPathFails(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "empty.png")
	writeSquare(t, in, false)
	out := filepath.Join(dir, "empty.svg")
	_, err := newRunner(t, false).Run(context.Background(), NewJob(in, out, "contour", domain.DefaultParams()))
	require.Error(t, err)
	assert.ErrorIs(t, err, stroke.ErrPathGenerationFailed)
	assert.Equal(t, "Failed to generate vector path", Notification(err))
	var je *Error
	require.True(t, errors.As(err, &je))
	assert.Equal(t, StageStroke, je.Stage)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunFailureStages(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	square := filepath.Join(dir, "square.png")
	writeSquare(t, square, true)

	cases := []struct {
		name  string
		job   Job
		stage Stage
		is    error
	}{
		{"missing", NewJob(filepath.Join(dir, "nope.png"), "", "contour", domain.DefaultParams()), StageRead, os.ErrNotExist},
		{"garbage", NewJob(garbage, "", "contour", domain.DefaultParams()), StageDecode, nil},
		{"algorithm", NewJob(square, "", "bogus", domain.DefaultParams()), StageStroke, stroke.ErrUnknownAlgorithm},
		{"output", NewJob(square, filepath.Join(dir, "out.gif"), "contour", domain.DefaultParams()), StageExport, nil},
	}
	r := newRunner(t, false)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, err := r.Run(context.Background(), tc.job)
			require.Error(t, err)
			assert.Equal(t, err, o.Err)
			var je *Error
			require.True(t, errors.As(err, &je))
			assert.Equal(t, tc.stage, je.Stage)
			assert.Equal(t, tc.job.ID, je.JobID)
			if tc.is != nil {
				assert.ErrorIs(t, err, tc.is)
			}
			assert.True(t, strings.HasPrefix(Notification(err), "Error creating stroke: "))
		})
	}
}

func TestRunPlacesIntoFrame(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "square.png")
	writeSquare(t, in, true)
	out := filepath.Join(dir, "framed.svg")
	job := NewJob(in, out, "contour", domain.DefaultParams())
	frame := vector.R(0, 0, 40, 40)
	job.Frame = &frame

	_, err := newRunner(t, false).Run(context.Background(), job)
	require.NoError(t, err)
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), `width="40px"`)
	assert.Contains(t, string(b), "M 10 10")
}

func TestRunBatchCollectsOutcomes(t *testing.T) {
	dir := t.TempDir()
	var jobs []Job
	for _, name := range []string{"a", "b", "c"} {
		in := filepath.Join(dir, name+".png")
		writeSquare(t, in, true)
		jobs = append(jobs, NewJob(in, OutputFor(in, filepath.Join(dir, "out"), "svg"), "distance", domain.DefaultParams()))
	}
	jobs = append(jobs, NewJob(filepath.Join(dir, "missing.png"), "", "distance", domain.DefaultParams()))

	outcomes, err := newRunner(t, true).RunBatch(context.Background(), jobs, 2)
	require.NoError(t, err)
	require.Len(t, outcomes, len(jobs))
	for i, o := range outcomes {
		assert.Equal(t, jobs[i].ID, o.Job.ID, "outcomes keep job order")
	}
	s := Summarize(outcomes)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	_, err = os.Stat(filepath.Join(dir, "out", "b.stroke.svg"))
	assert.NoError(t, err)
}

func TestRunBatchCancelled(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.png")
	writeSquare(t, in, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes, err := newRunner(t, false).RunBatch(ctx, []Job{NewJob(in, "", "contour", domain.DefaultParams())}, 1)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, context.Canceled)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := `{
  "outDir": "strokes",
  "defaults": {"algorithm": "distance", "width": 2, "format": "pdf"},
  "jobs": [
    {"input": "a.png"},
    {"input": "/abs/b.png", "output": "b.svg", "algorithm": "raster", "side": "outside", "color": "#ff0000"},
    {"input": "c.png", "frame": {"x": 10, "y": 10, "w": 100, "h": 50}}
  ]
}`
	path := filepath.Join(dir, "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	jobs, err := LoadManifest(path, config.Defaults().Stroke)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, filepath.Join(dir, "a.png"), jobs[0].Input)
	assert.Equal(t, filepath.Join(dir, "strokes", "a.stroke.pdf"), jobs[0].Output)
	assert.Equal(t, "distance", jobs[0].Algorithm)
	assert.Equal(t, 2.0, jobs[0].Params.StrokeWidth)

	assert.Equal(t, "/abs/b.png", jobs[1].Input)
	assert.Equal(t, filepath.Join(dir, "b.svg"), jobs[1].Output)
	assert.Equal(t, "raster", jobs[1].Algorithm)
	assert.Equal(t, domain.SideOutside, jobs[1].Params.Side)
	assert.Equal(t, [4]uint8{255, 0, 0, 255}, jobs[1].Params.StrokeColor.RGBA8())

	require.NotNil(t, jobs[2].Frame)
	assert.Equal(t, vector.R(10, 10, 100, 50), *jobs[2].Frame)
	assert.NotEqual(t, jobs[0].ID, jobs[1].ID)
}

func TestLoadManifestRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"no jobs":       `{"jobs": []}`,
		"bad algorithm": `{"jobs": [{"input": "a.png", "algorithm": "blur"}]}`,
		"bad color":     `{"jobs": [{"input": "a.png", "color": "red"}]}`,
		"unknown field": `{"jobs": [{"input": "a.png", "threshold": 3}]}`,
		"not json":      `{"jobs": [`,
	} {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".json")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := LoadManifest(path, config.Defaults().Stroke)
		assert.ErrorIs(t, err, ErrInvalidManifest, name)
	}
}

func TestWatchStrokesExistingAndNewImages(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeSquare(t, filepath.Join(in, "first.png"), true)
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("skip"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	outcomes := make(chan Outcome, 4)
	done := make(chan error, 1)
	r := newRunner(t, false)
	go func() {
		done <- r.Watch(ctx, WatchOptions{
			Dir: in, OutDir: out, Format: "svg", Algorithm: "contour",
			Params: domain.DefaultParams(), Debounce: 20 * time.Millisecond, Existing: true,
			OnOutcome: func(o Outcome) { outcomes <- o },
		})
	}()

	select {
	case o := <-outcomes:
		require.NoError(t, o.Err)
		assert.Equal(t, filepath.Join(out, "first.stroke.svg"), o.Job.Output)
	case <-time.After(5 * time.Second):
		t.Fatal("existing image was not stroked")
	}

	// rename into place so the watcher never sees a half-written file
	tmp := filepath.Join(in, ".second.png")
	writeSquare(t, tmp, true)
	require.NoError(t, os.Rename(tmp, filepath.Join(in, "second.png")))
	select {
	case o := <-outcomes:
		require.NoError(t, o.Err)
		assert.Equal(t, filepath.Join(out, "second.stroke.svg"), o.Job.Output)
	case <-time.After(5 * time.Second):
		t.Fatal("new image was not stroked")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchRejectsSameDir(t *testing.T) {
	dir := t.TempDir()
	err := newRunner(t, false).Watch(context.Background(), WatchOptions{Dir: dir, OutDir: dir})
	assert.Error(t, err)
}

func TestOutputFor(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "cat.stroke.svg"), OutputFor(filepath.Join("in", "cat.PNG"), "out", "svg"))
	assert.Equal(t, filepath.Join("in", "cat.stroke.pdf"), OutputFor(filepath.Join("in", "cat.png"), "", ".PDF"))
}
