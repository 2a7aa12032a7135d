// Copyright 2025 The Scout Authors
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

// Command scout is the CLI for the scout research service.
//
// Usage:
//
//	scout serve --config config.yaml
//	scout run --config config.yaml "What happened in AI labs this week?"
//	scout validate ./strategies
//	scout import --config config.yaml ./strategies
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP service."`
	Run      RunCmd      `cmd:"" help:"Execute one research request and print the briefing."`
	Validate ValidateCmd `cmd:"" help:"Validate a strategy directory."`
	Import   ImportCmd   `cmd:"" help:"Import strategy documents into the sqlite store."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for config or strategy documents."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"scout.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("scout version %s\n", version)
	return nil
}

// loadConfig reads the config file, layering CLI logging flags over it,
// and installs the logger. Returns the config and the logger cleanup.
func loadConfig(cli *CLI) (*config.Config, func(), error) {
	// A .env next to the working directory is a dev convenience; absence
	// is not an error.
	_ = config.LoadEnvFile(".env")

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}

	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFile != "" {
		cfg.Logging.File = cli.LogFile
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}

	cleanup, err := logger.Setup(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, cleanup, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("scout"),
		kong.Description("Scheduled research and briefing service."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "scout: %v\n", err)
		os.Exit(1)
	}
}
