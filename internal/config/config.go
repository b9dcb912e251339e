/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"imagestroke/internal/domain"
	applog "imagestroke/internal/log"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type StrokeConfig struct {
	Algorithm string  `yaml:"algorithm"` // "contour" | "distance" | "raster"
	Width     float64 `yaml:"width"`
	Color     string  `yaml:"color"`  // #rrggbb
	Side      string  `yaml:"side"`   // "inside" | "outside", raster only
	Format    string  `yaml:"format"` // default output extension for batch/watch
}

type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"` // empty means the per-user cache dir
	MaxBytes int64  `yaml:"max_bytes"`
}

type BatchConfig struct {
	Concurrency int `yaml:"concurrency"` // 0 means one worker per CPU
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type TelemetryConfig struct {
	OptIn     bool   `yaml:"opt_in"`
	EventsURL string `yaml:"events_url"`
	CrashURL  string `yaml:"crash_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	Stroke        StrokeConfig    `yaml:"stroke"`
	Cache         CacheConfig     `yaml:"cache"`
	Batch         BatchConfig     `yaml:"batch"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Stroke:        StrokeConfig{Algorithm: "contour", Width: 4, Color: "#000000", Side: "inside", Format: "svg"},
		Cache:         CacheConfig{Enabled: true, MaxBytes: 64 * 1024 * 1024},
		Batch:         BatchConfig{Concurrency: 0},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
		Telemetry:     TelemetryConfig{OptIn: false, TimeoutMs: 1500},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath = "ISK_CONFIG"

	EnvStrokeAlgorithm = "ISK_STROKE_ALGORITHM"
	EnvStrokeWidth     = "ISK_STROKE_WIDTH"
	EnvStrokeColor     = "ISK_STROKE_COLOR"
	EnvStrokeSide      = "ISK_STROKE_SIDE"

	EnvCacheEnabled  = "ISK_CACHE_ENABLED"
	EnvCacheDir      = "ISK_CACHE_DIR"
	EnvCacheMaxBytes = "ISK_CACHE_MAX_BYTES"

	EnvBatchConcurrency = "ISK_BATCH_CONCURRENCY"

	EnvTelemetryOptIn     = "ISK_TELEMETRY_OPT_IN"
	EnvTelemetryURL       = "ISK_TELEMETRY_URL"
	EnvCrashUploadURL     = "ISK_CRASH_UPLOAD_URL"
	EnvTelemetryTimeoutMs = "ISK_TELEMETRY_TIMEOUT_MS"

	// Logging envs are shared with the log package.
	EnvLogLevel  = applog.EnvLevel
	EnvLogFormat = applog.EnvFormat
	EnvLogSource = applog.EnvSource
	EnvLogFile   = applog.EnvFile
)

// ConfigPath returns the per-user config file path. ISK_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "ImageStroke")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "ImageStroke")
	default: // linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "imagestroke")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "imagestroke")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file. A missing file is not an error; a
// malformed one is reported, and defaults plus env overrides are still returned.
func LoadFrom(path string) (AppConfig, error) {
	cfg := Defaults()
	var ferr error
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			ferr = fmt.Errorf("parse %s: %w", path, err)
		} else {
			mergeInto(&cfg, &fileCfg, data)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, ferr
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes cfg to path, creating parent directories.
func SaveTo(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// mergeInto copies values set in the file over defaults. raw is the file
// content, used to tell an explicit false from an absent boolean.
func mergeInto(dst *AppConfig, src *AppConfig, raw []byte) {
	var present struct {
		Cache map[string]any `yaml:"cache"`
	}
	_ = yaml.Unmarshal(raw, &present)

	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// stroke
	if v := strings.TrimSpace(src.Stroke.Algorithm); v != "" {
		dst.Stroke.Algorithm = strings.ToLower(v)
	}
	if src.Stroke.Width > 0 {
		dst.Stroke.Width = src.Stroke.Width
	}
	if v := strings.TrimSpace(src.Stroke.Color); v != "" {
		dst.Stroke.Color = v
	}
	if v := strings.TrimSpace(src.Stroke.Side); v != "" {
		dst.Stroke.Side = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Stroke.Format); v != "" {
		dst.Stroke.Format = strings.ToLower(strings.TrimPrefix(v, "."))
	}
	// cache
	if _, ok := present.Cache["enabled"]; ok {
		dst.Cache.Enabled = src.Cache.Enabled
	}
	if v := strings.TrimSpace(src.Cache.Dir); v != "" {
		dst.Cache.Dir = v
	}
	if src.Cache.MaxBytes != 0 {
		dst.Cache.MaxBytes = src.Cache.MaxBytes
	}
	// batch
	if src.Batch.Concurrency > 0 {
		dst.Batch.Concurrency = src.Batch.Concurrency
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
	// telemetry: booleans copied directly so user preferences persist
	dst.Telemetry.OptIn = src.Telemetry.OptIn
	if v := strings.TrimSpace(src.Telemetry.EventsURL); v != "" {
		dst.Telemetry.EventsURL = v
	}
	if v := strings.TrimSpace(src.Telemetry.CrashURL); v != "" {
		dst.Telemetry.CrashURL = v
	}
	if src.Telemetry.TimeoutMs > 0 {
		dst.Telemetry.TimeoutMs = src.Telemetry.TimeoutMs
	}
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvStrokeAlgorithm)); v != "" {
		cfg.Stroke.Algorithm = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStrokeWidth)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Stroke.Width = f
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvStrokeColor)); v != "" {
		cfg.Stroke.Color = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStrokeSide)); v != "" {
		cfg.Stroke.Side = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheEnabled)); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheDir)); v != "" {
		cfg.Cache.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheMaxBytes)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Cache.MaxBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBatchConcurrency)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Batch.Concurrency = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.Telemetry.OptIn = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryURL)); v != "" {
		cfg.Telemetry.EventsURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCrashUploadURL)); v != "" {
		cfg.Telemetry.CrashURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Telemetry.TimeoutMs = n
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"stroke.algorithm":     EnvStrokeAlgorithm,
	"stroke.width":         EnvStrokeWidth,
	"stroke.color":         EnvStrokeColor,
	"stroke.side":          EnvStrokeSide,
	"cache.enabled":        EnvCacheEnabled,
	"cache.dir":            EnvCacheDir,
	"cache.max_bytes":      EnvCacheMaxBytes,
	"batch.concurrency":    EnvBatchConcurrency,
	"telemetry.opt_in":     EnvTelemetryOptIn,
	"telemetry.events_url": EnvTelemetryURL,
	"telemetry.crash_url":  EnvCrashUploadURL,
	"telemetry.timeout_ms": EnvTelemetryTimeoutMs,
	"logging.level":        EnvLogLevel,
	"logging.format":       EnvLogFormat,
	"logging.source":       EnvLogSource,
	"logging.file":         EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Params converts the stroke section into core parameters.
func (s StrokeConfig) Params() (domain.Params, error) {
	p := domain.DefaultParams()
	if s.Width > 0 {
		p.StrokeWidth = s.Width
	}
	if strings.TrimSpace(s.Color) != "" {
		c, err := domain.ParseColor(s.Color)
		if err != nil {
			return domain.Params{}, err
		}
		p.StrokeColor = c
	}
	side, err := domain.ParseSide(s.Side)
	if err != nil {
		return domain.Params{}, err
	}
	p.Side = side
	return p, nil
}

// LogOptions maps the logging section to logger options.
func (l LoggingConfig) LogOptions() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}

// Timeout returns the telemetry request timeout.
func (t TelemetryConfig) Timeout() time.Duration {
	if t.TimeoutMs <= 0 {
		return time.Duration(Defaults().Telemetry.TimeoutMs) * time.Millisecond
	}
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// Workers resolves the batch concurrency.
func (b BatchConfig) Workers() int {
	if b.Concurrency > 0 {
		return b.Concurrency
	}
	return runtime.NumCPU()
}
