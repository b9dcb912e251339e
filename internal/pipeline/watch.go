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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"imagestroke/internal/domain"
	"imagestroke/internal/imageio"
	applog "imagestroke/internal/log"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	Dir       string
	OutDir    string
	Format    string // output extension, e.g. "svg"
	Algorithm string
	Params    domain.Params
	// Debounce coalesces the burst of write events a single save produces.
	Debounce time.Duration
	// Existing strokes images already in Dir before watching starts.
	Existing bool
	// OnOutcome, if set, is called after every job.
	OnOutcome func(Outcome)
}

// Watch strokes images created or updated in opts.Dir until ctx is done.
// Jobs run one at a time in event order.
func (r *Runner) Watch(ctx context.Context, opts WatchOptions) error {
	l := applog.WithOperation(applog.WithComponent("pipeline"), "watch").With(
		slog.String("dir", opts.Dir), slog.String("out", opts.OutDir),
	)
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return err
	}
	outDir, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return err
	}
	if dir == outDir {
		return errors.New("output directory must differ from the watched directory")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if opts.Format == "" {
		opts.Format = "svg"
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	l.Info("watching")

	ready := make(chan string, 64)
	var (
		mu      sync.Mutex
		pending = map[string]*time.Timer{}
	)
	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok {
			t.Reset(opts.Debounce)
			return
		}
		pending[path] = time.AfterFunc(opts.Debounce, func() {
			mu.Lock()
			delete(pending, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	if opts.Existing {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("list %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() && watchable(e.Name()) {
				schedule(filepath.Join(dir, e.Name()))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			l.Info("watch stopped")
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !watchable(ev.Name) {
				continue
			}
			l.Debug("change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule(ev.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.Warn("watcher error", slog.Any("err", err))
		case path := <-ready:
			job := NewJob(path, OutputFor(path, outDir, opts.Format), opts.Algorithm, opts.Params)
			out, err := r.Run(ctx, job)
			if err != nil {
				l.Warn("watch job failed", slog.String("input", path), slog.String("notification", Notification(err)))
			}
			if opts.OnOutcome != nil {
				opts.OnOutcome(out)
			}
		}
	}
}

// watchable skips hidden and temp files, which editors and our own writers
// create next to real images.
func watchable(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && imageio.IsImageFile(base)
}
