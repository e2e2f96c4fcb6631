package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"tftstats/internal/collector"
	"tftstats/internal/config"
	"tftstats/internal/db"
	"tftstats/internal/discord"
	"tftstats/internal/riot"
	"tftstats/internal/shaper"
	"tftstats/internal/storage"
)

// ShapeCmd re-runs the filters and flattening over records already
// collected, from a parsed artifact or from the record store.
type ShapeCmd struct {
	Input  string `arg:"" optional:"" type:"existingfile" help:"Parsed records file (JSON array). Omit to read from --store."`
	Store  string `help:"Postgres URL or SQLite path to read records from."`
	Set    int    `help:"Keep only this set. Overrides TFT_TARGET_SET."`
	TopN   int    `name:"top-n" help:"Keep placements 1..N. Overrides TFT_TOP_N."`
	Cutoff string `help:"Drop records played before this RFC 3339 time. Overrides TFT_PATCH_CUTOFF."`
	Output string `short:"w" help:"CSV destination. Defaults to cleaned_csv under the output directory." type:"path"`
}

func (c *ShapeCmd) Run(cli *CLI) error {
	cfg, logger, err := cli.load(false, func(cfg *config.Config) {
		if c.Set > 0 {
			cfg.TargetSet = c.Set
		}
		if c.TopN > 0 {
			cfg.TopN = c.TopN
		}
		if c.Cutoff != "" {
			cfg.PatchCutoff = c.Cutoff
		}
		applyStore(cfg, c.Store)
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	records, err := c.records(ctx, cfg)
	if err != nil {
		return err
	}

	path, rows, err := shapeRecords(cfg, records, c.Output)
	if err != nil {
		return err
	}
	logger.Info("Records shaped", "records", len(records), "rows", rows, "path", path)
	return nil
}

func (c *ShapeCmd) records(ctx context.Context, cfg config.Config) ([]storage.PlayerRecord, error) {
	if c.Input != "" {
		return storage.ReadParsed(c.Input)
	}

	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = cfg.SQLitePath
	}
	if dsn == "" {
		return nil, errors.New("nothing to shape: pass a parsed records file or --store")
	}

	store, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Records(ctx, cfg.TargetSet)
}

// shapeRecords filters and flattens records and writes the CSV to dest, or
// to the cleaned artifact path when dest is empty.
func shapeRecords(cfg config.Config, records []storage.PlayerRecord, dest string) (string, int, error) {
	if len(records) == 0 {
		return "", 0, storage.ErrNoRecords
	}

	table, err := shaper.Shape(records, cfg.ShaperOptions())
	if err != nil {
		return "", 0, err
	}
	write := func(w io.Writer) error { return shaper.WriteCSV(w, table) }

	if dest == "" {
		sink, err := storage.NewFileSink(cfg.OutputDir)
		if err != nil {
			return "", 0, err
		}
		path, err := sink.WriteCleaned(storage.ArtifactName(records), write)
		return path, len(table.Rows), err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", 0, errors.Wrap(err, "create output directory")
	}
	if err := storage.WriteFileAtomic(dest, write); err != nil {
		return "", 0, err
	}
	return dest, len(table.Rows), nil
}

// ReparseCmd rebuilds the parsed and cleaned artifacts from the raw
// archive without calling the API.
type ReparseCmd struct {
	Dir   string `arg:"" optional:"" type:"existingdir" help:"Raw archive directory. Defaults to raw under the output directory."`
	Store string `help:"Postgres URL or SQLite path receiving the parsed records."`
}

func (c *ReparseCmd) Run(cli *CLI) error {
	cfg, logger, err := cli.load(false, func(cfg *config.Config) { applyStore(cfg, c.Store) })
	if err != nil {
		return err
	}
	defer logger.Sync()

	dir := c.Dir
	if dir == "" {
		dir = filepath.Join(cfg.OutputDir, rawDir)
	}
	records, _, err := collector.Replay(dir, logger)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.Wrapf(storage.ErrNoRecords, "archive %s", dir)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	p := &pipeline{cfg: cfg, logger: logger}
	out := &outcome{}
	if err := p.writeOutputs(ctx, records, out); err != nil {
		return err
	}
	logger.Info("Archive reparsed", "records", len(records), "rows", out.Rows,
		"parsed", out.ParsedPath, "cleaned", out.CleanedPath, "stored", out.Stored)
	return nil
}

// CheckKeyCmd asks the status endpoint whether the key is accepted.
type CheckKeyCmd struct {
	Notify bool `help:"Post a Discord alert when the key is rejected."`
}

func (c *CheckKeyCmd) Run(cli *CLI) error {
	cfg, logger, err := cli.load(true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = riot.NewKeyValidator(cfg.Platform, riot.WithTimeout(cfg.RequestTimeout)).ValidateKey(ctx, cfg.APIKey)
	if err == nil {
		fmt.Printf("API key accepted on %s\n", cfg.Platform)
		return nil
	}

	if errors.Is(err, riot.ErrUnauthorized) && c.Notify && cfg.DiscordWebhookURL != "" {
		if sendErr := discord.NewWebhookClient(cfg.DiscordWebhookURL).SendKeyRejected(ctx, cfg.APIKey, cfg.Platform); sendErr != nil {
			logger.Warn("Failed to send key alert", "error", sendErr)
		}
	}
	return err
}

// RegionCmd prints the routing region of one platform, or the whole table.
type RegionCmd struct {
	Platform string `arg:"" optional:"" help:"Platform to resolve. Omit to list every platform."`
}

func (c *RegionCmd) Run() error {
	return c.print(os.Stdout, riot.DefaultRegions())
}

func (c *RegionCmd) print(w io.Writer, table *riot.RegionTable) error {
	if c.Platform != "" {
		region, err := table.Resolve(c.Platform)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, region)
		return err
	}

	for _, platform := range table.Platforms() {
		region, _ := table.Resolve(platform)
		if _, err := fmt.Fprintf(w, "%-5s %s\n", platform, region); err != nil {
			return err
		}
	}
	return nil
}
