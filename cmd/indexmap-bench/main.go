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


package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/indexmap/internal/driver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath      string
	limit           int
	stride          int
	initialCapacity int
	logLevel        string
)

var rootCmd = &cobra.Command{
	Use:   "indexmap-bench",
	Short: "Time bulk insertion and lookup on an indexmap",
	Long: `indexmap-bench inserts --limit integer keys spaced --stride apart into
an indexmap and then looks each of them up, reporting the time spent in each
phase.

Example:
  indexmap-bench
  indexmap-bench --limit 1000000 --stride 7
  indexmap-bench --config bench.toml --log-level debug`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench(cmd)
	},
}

func init() {
	def := driver.DefaultConfig()
	rootCmd.Flags().StringVar(&configPath, "config", "", "TOML config file")
	rootCmd.Flags().IntVar(&limit, "limit", def.Limit, "Number of keys")
	rootCmd.Flags().IntVar(&stride, "stride", def.Stride, "Spacing between keys")
	rootCmd.Flags().IntVar(&initialCapacity, "initial-capacity", def.InitialCapacity,
		"Initial capacity of the map")
	rootCmd.Flags().StringVar(&logLevel, "log-level", def.LogLevel, "Log level")
}

// loadConfig builds the run configuration. Flags set on the command line
// override the config file, which overrides the defaults.
func loadConfig(cmd *cobra.Command) (driver.Config, error) {
	cfg := driver.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = driver.LoadConfig(configPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("limit") {
		cfg.Limit = limit
	}
	if flags.Changed("stride") {
		cfg.Stride = stride
	}
	if flags.Changed("initial-capacity") {
		cfg.InitialCapacity = initialCapacity
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg driver.Config) (*zap.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "console"
	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger, nil
}

func runBench(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := driver.Run(ctx, cfg, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "insert: %d keys in %s\n", res.Inserted, res.InsertDuration)
	fmt.Fprintf(cmd.OutOrStdout(), "lookup: %d keys in %s\n", res.Found, res.LookupDuration)
	fmt.Fprintf(cmd.OutOrStdout(), "capacity: %d\n", res.Capacity)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
