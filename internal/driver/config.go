// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package driver

import (
	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Config controls a benchmark run.
type Config struct {
	// Limit is the number of keys inserted and then looked up.
	Limit int `toml:"limit"`
	// Stride spaces the keys: key i is i*Stride.
	Stride int `toml:"stride"`
	// InitialCapacity is passed to indexmap.New.
	InitialCapacity int `toml:"initial-capacity"`
	// BatchSize is the number of operations between cancellation checks.
	BatchSize int `toml:"batch-size"`
	// LogLevel is a zap level name.
	LogLevel string `toml:"log-level"`
}

// DefaultConfig returns the configuration of the classic run: 100000 keys
// spaced 3 apart.
func DefaultConfig() Config {
	return Config{
		Limit:     100000,
		Stride:    3,
		BatchSize: 4096,
		LogLevel:  "info",
	}
}

// LoadConfig decodes the TOML file at path over DefaultConfig. Keys absent
// from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decoding config %q", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Newf("config %q: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// Validate checks the configuration for values Run cannot work with.
func (c Config) Validate() error {
	if c.Limit < 0 {
		return errors.Newf("limit must be non-negative, got %d", c.Limit)
	}
	if c.Stride <= 0 {
		return errors.Newf("stride must be positive, got %d", c.Stride)
	}
	if c.InitialCapacity < 0 {
		return errors.Newf("initial-capacity must be non-negative, got %d", c.InitialCapacity)
	}
	if c.BatchSize <= 0 {
		return errors.Newf("batch-size must be positive, got %d", c.BatchSize)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zapcore.Level, error) {
	l, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return l, errors.Wrap(err, "log-level")
	}
	return l, nil
}
