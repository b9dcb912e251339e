/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pipeline

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"imagestroke/internal/config"
	"imagestroke/internal/vector"
)

//go:embed manifest.schema.json
var manifestSchema []byte

// ErrInvalidManifest is returned when a manifest fails schema validation.
var ErrInvalidManifest = errors.New("invalid manifest")

type manifestFrame struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	W float32 `json:"w"`
	H float32 `json:"h"`
}

type manifestStroke struct {
	Algorithm string  `json:"algorithm"`
	Width     float64 `json:"width"`
	Color     string  `json:"color"`
	Side      string  `json:"side"`
	Format    string  `json:"format"`
}

type manifestJob struct {
	Input     string         `json:"input"`
	Output    string         `json:"output"`
	Algorithm string         `json:"algorithm"`
	Width     float64        `json:"width"`
	Color     string         `json:"color"`
	Side      string         `json:"side"`
	Frame     *manifestFrame `json:"frame"`
}

// Manifest is a batch description as stored on disk.
type Manifest struct {
	Version  int            `json:"version"`
	OutDir   string         `json:"outDir"`
	Defaults manifestStroke `json:"defaults"`
	Jobs     []manifestJob  `json:"jobs"`
}

// ValidateManifest checks raw JSON against the embedded manifest schema.
func ValidateManifest(data []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(manifestSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(msgs, "; "))
	}
	return nil
}

// LoadManifest reads and validates a manifest and expands it into jobs.
// Relative paths resolve against the manifest's directory. Fields missing on
// a job come from the manifest defaults, then from def.
func LoadManifest(path string, def config.StrokeConfig) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := ValidateManifest(data); err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return m.Expand(filepath.Dir(path), def)
}

// Expand turns manifest entries into jobs. base is the directory relative
// paths are resolved against.
func (m Manifest) Expand(base string, def config.StrokeConfig) ([]Job, error) {
	outDir := resolve(base, m.OutDir)
	format := strings.ToLower(pick(m.Defaults.Format, def.Format, "svg"))
	jobs := make([]Job, 0, len(m.Jobs))
	for i, mj := range m.Jobs {
		sc := config.StrokeConfig{
			Algorithm: pick(mj.Algorithm, m.Defaults.Algorithm, def.Algorithm),
			Width:     pickFloat(mj.Width, m.Defaults.Width, def.Width),
			Color:     pick(mj.Color, m.Defaults.Color, def.Color),
			Side:      pick(mj.Side, m.Defaults.Side, def.Side),
		}
		params, err := sc.Params()
		if err != nil {
			return nil, fmt.Errorf("%w: job %d: %v", ErrInvalidManifest, i, err)
		}
		input := resolve(base, mj.Input)
		output := resolve(base, mj.Output)
		if output == "" {
			output = OutputFor(input, outDir, format)
		}
		job := NewJob(input, output, sc.Algorithm, params)
		if f := mj.Frame; f != nil {
			r := vector.R(f.X, f.Y, f.W, f.H)
			job.Frame = &r
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func pick(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func pickFloat(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
