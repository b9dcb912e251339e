/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in, anonymous usage events about stroke jobs
// and optional crash reports. Nothing is sent unless the user opts in and an
// endpoint is configured.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"imagestroke/internal/config"
	applog "imagestroke/internal/log"
	"imagestroke/internal/version"
)

// Event names.
const (
	EventStrokeCreated = "stroke_created"
	EventStrokeFailed  = "stroke_failed"
	EventBatchFinished = "batch_finished"
)

// Config holds runtime configuration for telemetry and crash uploads.
// If no URLs are set, events are dropped even if OptIn is true.
type Config struct {
	OptIn     bool
	EventsURL string
	CrashURL  string
	Timeout   time.Duration
}

// FromConfig maps the telemetry section of the app config.
func FromConfig(tc config.TelemetryConfig) Config {
	return Config{
		OptIn:     tc.OptIn,
		EventsURL: tc.EventsURL,
		CrashURL:  tc.CrashURL,
		Timeout:   tc.Timeout(),
	}
}

// Client is a small async sender; it drops events on errors or when its
// bounded queue is full so stroke jobs never wait on the network.
type Client struct {
	cfg      Config
	log      *slog.Logger
	cli      *http.Client
	q        chan map[string]any
	inflight sync.WaitGroup
	once     sync.Once
	closed   chan struct{}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// SetDefault installs c as the package-level client used by Event and UploadCrash.
func SetDefault(c *Client) {
	defaultMu.Lock()
	defaultClient = c
	defaultMu.Unlock()
}

// Default returns the installed client, or nil. A nil client is a valid no-op.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultClient
}

// New constructs a client and starts its sender goroutine.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events will be sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues a JSON event. props must not carry file names or pixel data.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	select {
	case <-c.closed:
		return
	default:
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		payload[k] = v
	}
	c.inflight.Add(1)
	select {
	case c.q <- payload:
	default:
		c.inflight.Done()
	}
}

// StrokeCreated records a finished stroke job.
func (c *Client) StrokeCreated(algorithm, kind string, contours int, elapsed time.Duration, cached bool) {
	c.Event(EventStrokeCreated, map[string]any{
		"algorithm":   algorithm,
		"kind":        kind,
		"duration_ms": elapsed.Milliseconds(),
		"contours":    contours,
		"cached":      cached,
	})
}

// StrokeFailed records a failed stroke job. reason is an error category, not a message.
func (c *Client) StrokeFailed(algorithm, reason string) {
	c.Event(EventStrokeFailed, map[string]any{"algorithm": algorithm, "reason": reason})
}

// Flush waits for queued events to be sent, or until ctx is done.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Close stops the sender goroutine. Queued events are dropped.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.closed) })
}

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			for {
				select {
				case <-c.q:
					c.inflight.Done()
				default:
					return
				}
			}
		case item := <-c.q:
			c.post(c.cfg.EventsURL, "application/json", mustJSON(item))
			c.inflight.Done()
		}
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (c *Client) post(url, contentType string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.log.Debug("telemetry request invalid", slog.Any("err", err))
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		c.log.Debug("telemetry send failed", slog.Any("err", err))
		return
	}
	_ = resp.Body.Close()
	c.log.Debug("telemetry sent", slog.String("url", url), slog.Int("status", resp.StatusCode))
}

// UploadCrash posts a crash report synchronously when opted in. It is called
// on the way out of a crashed process, so it must not be fire-and-forget.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", report)
}

// Event uses the default client.
func Event(name string, props map[string]any) { Default().Event(name, props) }

// UploadCrash uses the default client.
func UploadCrash(report []byte) { Default().UploadCrash(report) }
