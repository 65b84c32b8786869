// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/derobins/go-chunked/appender"
)

// fileConfig is the YAML shape of the writer configuration. All fields are
// optional; unset fields keep their current value.
type fileConfig struct {
	File      string  `yaml:"file"`
	Dataset   string  `yaml:"dataset"`
	ChunkSize *uint64 `yaml:"chunk_size"`
	Interval  string  `yaml:"interval"`
	Compress  *bool   `yaml:"compress"`
	Level     *int    `yaml:"level"`
	FillValue *int32  `yaml:"fill_value"`
}

// loadConfig applies the YAML file at path onto cfg, reporting whether the
// file chose a container path.
func loadConfig(path string, cfg *appender.Config) (pathSet bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	var fc fileConfig

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return false, fmt.Errorf("failed to parse config: %w", err)
	}

	if fc.File != "" {
		cfg.Path = fc.File
		pathSet = true
	}

	if fc.Dataset != "" {
		cfg.DatasetName = fc.Dataset
	}

	if fc.ChunkSize != nil {
		cfg.ChunkSize = *fc.ChunkSize
	}

	if fc.Interval != "" {
		interval, err := time.ParseDuration(fc.Interval)
		if err != nil {
			return pathSet, fmt.Errorf("failed to parse interval: %w", err)
		}

		cfg.Interval = interval
	}

	if fc.Compress != nil {
		cfg.Compress = *fc.Compress
	}

	if fc.Level != nil {
		cfg.Level = *fc.Level
	}

	if fc.FillValue != nil {
		cfg.FillValue = *fc.FillValue
	}

	return pathSet, nil
}

// applyPathDefault switches to the compressed-variant file name when neither
// a flag nor the config file chose a path.
func applyPathDefault(cfg *appender.Config, pathSet bool) {
	if !pathSet && cfg.Compress {
		cfg.Path = "direct_chunk_zlib.bin"
	}
}
