// Command tftstats collects ranked TFT matches from the top of a ladder
// and turns them into a flat per-player table.
//
// Usage:
//
//	tftstats collect --platform na1 --tier challenger --count 20
//	tftstats shape tft_data/parsed/NA1_1_NA1_9_80.json --top-n 4
//	tftstats reparse tft_data/raw
//	tftstats schedule --cron "@every 6h"
//	tftstats check-key
//	tftstats region euw1
package main

import (
	"github.com/alecthomas/kong"

	"tftstats/internal/config"
	"tftstats/internal/logging"
)

// CLI defines the command-line interface.
type CLI struct {
	Collect  CollectCmd  `cmd:"" help:"Collect ranked matches once and write the parsed and cleaned artifacts."`
	Shape    ShapeCmd    `cmd:"" help:"Filter and flatten parsed records into a CSV."`
	Reparse  ReparseCmd  `cmd:"" help:"Rebuild parsed records and the CSV from the raw match archive."`
	Schedule ScheduleCmd `cmd:"" help:"Run collect repeatedly on a cron schedule."`
	CheckKey CheckKeyCmd `cmd:"" name:"check-key" help:"Check that the API key is accepted."`
	Region   RegionCmd   `cmd:"" help:"Show the routing region of a platform."`

	Platform  string `short:"p" help:"Platform routing value (e.g. na1, euw1, kr). Overrides TFT_PLATFORM."`
	OutputDir string `name:"out" short:"o" help:"Output directory. Overrides TFT_OUTPUT_DIR." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides LOG_LEVEL."`
	LogFormat string `help:"Log format (console, json). Overrides LOG_FORMAT."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("tftstats"),
		kong.Description("Ranked TFT match collection."),
		kong.UsageOnError(),
	)
	err := kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}

// overrides turns the global flags into config overrides; unset flags
// leave the environment value alone.
func (c *CLI) overrides(extra ...config.Override) []config.Override {
	return append([]config.Override{func(cfg *config.Config) {
		if c.Platform != "" {
			cfg.Platform = c.Platform
		}
		if c.OutputDir != "" {
			cfg.OutputDir = c.OutputDir
		}
		if c.LogLevel != "" {
			cfg.LogLevel = c.LogLevel
		}
		if c.LogFormat != "" {
			cfg.LogFormat = c.LogFormat
		}
	}}, extra...)
}

// load builds the configuration and installs the process logger.
func (c *CLI) load(online bool, extra ...config.Override) (config.Config, *logging.Logger, error) {
	loadFn := config.LoadOffline
	if online {
		loadFn = config.Load
	}
	cfg, err := loadFn(c.overrides(extra...)...)
	if err != nil {
		return config.Config{}, nil, err
	}

	logger := logging.New(cfg.Level(), cfg.LogFormat)
	logging.SetDefault(logger)
	return cfg, logger, nil
}
