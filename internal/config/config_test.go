/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"imagestroke/internal/domain"
)

func isolate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigPath, path)
	for _, env := range envKeys {
		t.Setenv(env, "")
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("Load() = %+v, want defaults", cfg)
	}
}

func TestEnvOverridesStroke(t *testing.T) {
	isolate(t)
	t.Setenv(EnvStrokeAlgorithm, "Distance")
	t.Setenv(EnvStrokeWidth, "7.5")
	t.Setenv(EnvStrokeColor, "#ff0000")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Stroke.Algorithm, "distance"; got != want {
		t.Fatalf("Stroke.Algorithm = %q, want %q", got, want)
	}
	if cfg.Stroke.Width != 7.5 {
		t.Fatalf("Stroke.Width = %v", cfg.Stroke.Width)
	}
	if cfg.Stroke.Color != "#ff0000" {
		t.Fatalf("Stroke.Color = %q", cfg.Stroke.Color)
	}
}

func TestEnvOverridesIgnoreInvalidNumbers(t *testing.T) {
	isolate(t)
	t.Setenv(EnvStrokeWidth, "-1")
	t.Setenv(EnvCacheMaxBytes, "lots")
	t.Setenv(EnvBatchConcurrency, "x")
	cfg, _ := Load()
	d := Defaults()
	if cfg.Stroke.Width != d.Stroke.Width || cfg.Cache.MaxBytes != d.Cache.MaxBytes || cfg.Batch.Concurrency != d.Batch.Concurrency {
		t.Fatalf("invalid env values applied: %+v", cfg)
	}
}

func TestEnvOverridesTelemetry(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTelemetryOptIn, "true")
	t.Setenv(EnvTelemetryURL, "https://example.test/events")
	t.Setenv(EnvTelemetryTimeoutMs, "250")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Telemetry.OptIn {
		t.Fatalf("Telemetry.OptIn expected true from env override")
	}
	if cfg.Telemetry.EventsURL != "https://example.test/events" {
		t.Fatalf("Telemetry.EventsURL = %q", cfg.Telemetry.EventsURL)
	}
	if cfg.Telemetry.Timeout() != 250*time.Millisecond {
		t.Fatalf("Timeout() = %v", cfg.Telemetry.Timeout())
	}
}

func TestFileValuesMergeOverDefaults(t *testing.T) {
	path := isolate(t)
	yml := "stroke:\n  algorithm: raster\n  side: outside\ncache:\n  enabled: false\n  max_bytes: 1024\nbatch:\n  concurrency: 3\nlogging:\n  level: DEBUG\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Stroke.Algorithm != "raster" || cfg.Stroke.Side != "outside" {
		t.Fatalf("stroke not merged: %+v", cfg.Stroke)
	}
	if cfg.Stroke.Width != 4 || cfg.Stroke.Color != "#000000" {
		t.Fatalf("unset stroke fields should keep defaults: %+v", cfg.Stroke)
	}
	if cfg.Cache.Enabled {
		t.Fatalf("explicit cache.enabled=false was ignored")
	}
	if cfg.Cache.MaxBytes != 1024 || cfg.Batch.Concurrency != 3 {
		t.Fatalf("numbers not merged: %+v", cfg)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	path := isolate(t)
	if err := os.WriteFile(path, []byte("cache:\n  enabled: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvCacheEnabled, "0")
	cfg, _ := Load()
	if cfg.Cache.Enabled {
		t.Fatalf("env override should disable cache")
	}
}

func TestMalformedFileReportsErrorWithDefaults(t *testing.T) {
	path := isolate(t)
	if err := os.WriteFile(path, []byte("stroke: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if cfg.Stroke.Algorithm != Defaults().Stroke.Algorithm {
		t.Fatalf("defaults not returned on parse error: %+v", cfg)
	}
}

func TestSaveThenLoad(t *testing.T) {
	isolate(t)
	cfg := Defaults()
	cfg.Stroke.Algorithm = "distance"
	cfg.Stroke.Width = 2
	cfg.Telemetry.OptIn = true
	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != cfg {
		t.Fatalf("roundtrip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestEnvOverrideFor(t *testing.T) {
	isolate(t)
	if _, ok := EnvOverrideFor("stroke.width"); ok {
		t.Fatalf("no override expected")
	}
	t.Setenv(EnvStrokeWidth, "3")
	env, ok := EnvOverrideFor("stroke.width")
	if !ok || env != EnvStrokeWidth {
		t.Fatalf("EnvOverrideFor = %q %v", env, ok)
	}
	if _, ok := EnvOverrideFor("nope"); ok {
		t.Fatalf("unknown key reported as overridden")
	}
}

func TestStrokeParams(t *testing.T) {
	p, err := StrokeConfig{Width: 6, Color: "#00ff00", Side: "outside"}.Params()
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}
	if p.StrokeWidth != 6 || p.Side != domain.SideOutside {
		t.Fatalf("Params() = %+v", p)
	}
	if c := p.StrokeColor.RGBA8(); c[0] != 0 || c[1] != 255 || c[2] != 0 {
		t.Fatalf("color = %v", c)
	}
	if _, err := (StrokeConfig{Color: "green-ish"}).Params(); err == nil {
		t.Fatalf("expected color error")
	}
	if _, err := (StrokeConfig{Side: "left"}).Params(); err == nil {
		t.Fatalf("expected side error")
	}
}

func TestLogOptionsAndWorkers(t *testing.T) {
	o := LoggingConfig{Level: "warn", Format: "json", Source: true, File: "x.log"}.LogOptions()
	if o.Level != "warn" || o.Format != "json" || !o.AddSource || o.File != "x.log" {
		t.Fatalf("LogOptions() = %+v", o)
	}
	if got := (BatchConfig{Concurrency: 5}).Workers(); got != 5 {
		t.Fatalf("Workers() = %d", got)
	}
	if got := (BatchConfig{}).Workers(); got != runtime.NumCPU() {
		t.Fatalf("Workers() = %d, want NumCPU", got)
	}
}
