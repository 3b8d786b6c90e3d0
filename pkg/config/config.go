/*
Copyright 2025 The slowpoll Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads analysis settings from a YAML file, so teams can
// check their thresholds into the repo instead of repeating flags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses Go duration strings like "5ms" from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q", n.Value)
	}

	*d = Duration(v)

	return nil
}

// Config holds the analysis settings of one run. Flags override any
// value set here.
type Config struct {
	// MinPoll is the retention threshold: polls at least this long are
	// reported.
	MinPoll Duration `yaml:"min_poll"`
	// StackDepth caps frames shown per poll in the text report.
	// Zero or negative means unlimited.
	StackDepth int `yaml:"stack_depth"`

	Export struct {
		// Records is a path for the compact poll-record stream.
		Records string `yaml:"records"`
		// Pprof is a path for a pprof profile of the retained polls.
		Pprof string `yaml:"pprof"`
		// HTML is a path for a standalone timeline page.
		HTML string `yaml:"html"`
	} `yaml:"export"`

	// HTTP is an optional endpoint serving the timeline page.
	HTTP string `yaml:"http"`
}

// Default returns the settings used when no config file is given.
func Default() *Config {
	c := &Config{}
	c.StackDepth = 5

	return c
}

// Load reads settings from a YAML file, filling in defaults for fields
// the file leaves unset.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if c.MinPoll < 0 {
		return nil, fmt.Errorf("parse %s: min_poll must not be negative", path)
	}

	return c, nil
}
