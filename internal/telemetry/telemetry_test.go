/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imagestroke/internal/config"
)

type recorder struct {
	mu      sync.Mutex
	events  [][]byte
	crashes [][]byte
}

func (r *recorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.events = append(r.events, b)
		r.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.crashes = append(r.crashes, b)
		r.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_StrokeCreatedAndUploadCrash(t *testing.T) {
	var rec recorder
	srv := rec.server(t)

	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}

	c.StrokeCreated("distance", "vector", 2, 12*time.Millisecond, true)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Flush(ctx)

	rec.mu.Lock()
	if len(rec.events) != 1 {
		rec.mu.Unlock()
		t.Fatalf("events = %d, want 1", len(rec.events))
	}
	var m map[string]any
	if err := json.Unmarshal(rec.events[0], &m); err != nil {
		rec.mu.Unlock()
		t.Fatalf("bad event json: %v", err)
	}
	rec.mu.Unlock()
	if m["name"] != EventStrokeCreated || m["algorithm"] != "distance" || m["cached"] != true {
		t.Fatalf("unexpected payload: %v", m)
	}
	if _, ok := m["ts"].(string); !ok {
		t.Fatalf("missing ts field")
	}

	c.UploadCrash([]byte("STACKTRACE"))
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.crashes) != 1 || string(rec.crashes[0]) != "STACKTRACE" {
		t.Fatalf("crash upload = %q", rec.crashes)
	}
}

func TestClient_DisabledAndEmptyEventName(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL, CrashURL: srv.URL})
	defer c.Close()
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	c.StrokeFailed("contour", "invalid_image")
	c.UploadCrash([]byte("ignored"))

	c2 := New(Config{OptIn: true, EventsURL: srv.URL})
	defer c2.Close()
	c2.Event("", nil)
	c2.Flush(context.Background())
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestClient_SendErrorsAreSwallowed(t *testing.T) {
	c := New(Config{OptIn: true, EventsURL: "http://127.0.0.1:1/events", CrashURL: "http://127.0.0.1:1/crash", Timeout: 50 * time.Millisecond})
	defer c.Close()
	c.Event("err", map[string]any{"a": 1})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Flush(ctx)
	c.UploadCrash([]byte("oops"))
}

func TestNilClientIsNoop(t *testing.T) {
	var c *Client
	c.StrokeCreated("raster", "raster", 0, time.Second, false)
	c.UploadCrash([]byte("x"))
	c.Flush(context.Background())
	c.Close()
	SetDefault(nil)
	Event("x", nil)
	UploadCrash(nil)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.TelemetryConfig{OptIn: true, EventsURL: "u", CrashURL: "c", TimeoutMs: 200})
	if !cfg.OptIn || cfg.EventsURL != "u" || cfg.CrashURL != "c" || cfg.Timeout != 200*time.Millisecond {
		t.Fatalf("FromConfig = %+v", cfg)
	}
	if got := FromConfig(config.TelemetryConfig{}).Timeout; got != 1500*time.Millisecond {
		t.Fatalf("default timeout = %v", got)
	}
}
