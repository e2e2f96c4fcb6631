package main

import (
	"context"
	"strings"

	"tftstats/internal/config"
	"tftstats/internal/logging"
	"tftstats/internal/metrics"
)

// CollectFlags are the per-run settings shared by collect and schedule.
type CollectFlags struct {
	Tier       string `help:"League tier to sample (challenger, grandmaster). Overrides TFT_TIER."`
	Count      int    `help:"Match IDs to request per player. Overrides TFT_MATCH_COUNT."`
	MaxPlayers int    `name:"max-players" help:"Players to sample from the listing, 0 for all. Overrides TFT_MAX_PLAYERS."`
	RiotID     string `name:"riot-id" help:"Sample one player by Riot ID (name#tag) instead of a league listing."`
	Workers    int    `help:"Concurrent match-detail fetches. Overrides TFT_WORKERS."`
	Store      string `help:"Postgres URL or SQLite path receiving the parsed records."`
	SeenIndex  string `name:"seen-index" help:"File remembering fetched match IDs across runs. Overrides SEEN_INDEX_PATH." type:"path"`
}

func (f CollectFlags) override() config.Override {
	return func(cfg *config.Config) {
		if f.Tier != "" {
			cfg.Tier = f.Tier
		}
		if f.Count > 0 {
			cfg.MatchCount = f.Count
		}
		if f.MaxPlayers > 0 {
			cfg.MaxPlayers = f.MaxPlayers
		}
		if f.Workers > 0 {
			cfg.Workers = f.Workers
		}
		if f.SeenIndex != "" {
			cfg.SeenIndexPath = f.SeenIndex
		}
		applyStore(cfg, f.Store)
	}
}

// applyStore routes a --store value to the Postgres URL or the SQLite path.
func applyStore(cfg *config.Config, store string) {
	switch {
	case store == "":
	case strings.HasPrefix(store, "postgres://"), strings.HasPrefix(store, "postgresql://"):
		cfg.DatabaseURL = store
	default:
		cfg.DatabaseURL = ""
		cfg.SQLitePath = store
	}
}

// CollectCmd runs one collection.
type CollectCmd struct {
	Flags CollectFlags `embed:""`
}

func (c *CollectCmd) Run(cli *CLI) error {
	cfg, logger, err := cli.load(true, c.Flags.override())
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := SetupSignalHandler(logger, nil)
	m := metrics.New()
	serveMetrics(ctx, cfg.MetricsAddr, m, logger)

	p := &pipeline{cfg: cfg, riotID: c.Flags.RiotID, logger: logger, metrics: m}
	_, err = p.run(ctx)
	return err
}

// serveMetrics exposes /metrics in the background until ctx is done.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *logging.Logger) {
	if addr == "" {
		return
	}
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := m.Serve(ctx, addr); err != nil {
			logger.Error("Metrics server stopped", "error", err)
		}
	}()
}
