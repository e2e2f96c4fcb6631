package main

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"tftstats/internal/collector"
	"tftstats/internal/config"
	"tftstats/internal/db"
	"tftstats/internal/discord"
	"tftstats/internal/logging"
	"tftstats/internal/metrics"
	"tftstats/internal/riot"
	"tftstats/internal/shaper"
	"tftstats/internal/storage"
)

const rawDir = "raw"

// errZeroSuccess ends a run that asked for matches and parsed none.
var errZeroSuccess = errors.New("no matches were fetched successfully")

// pipeline runs one collection end to end: roster, match IDs, details,
// parsed artifact, cleaned CSV, optional store and notification.
type pipeline struct {
	cfg     config.Config
	riotID  string
	logger  *logging.Logger
	metrics *metrics.Metrics

	// endpoint overrides the API host mapping; nil uses the public hosts.
	endpoint func(host string) string
}

type outcome struct {
	Report      collector.Report
	ParsedPath  string
	CleanedPath string
	Rows        int
	Stored      int
}

func (p *pipeline) run(ctx context.Context) (*outcome, error) {
	clientCfg := p.cfg.ClientConfig(p.logger, p.metrics)
	clientCfg.Endpoint = p.endpoint
	client, err := riot.NewClient(clientCfg)
	if err != nil {
		return nil, err
	}

	var seen *collector.SeenIndex
	if p.cfg.SeenIndexPath != "" {
		if seen, err = collector.LoadSeenIndex(p.cfg.SeenIndexPath); err != nil {
			return nil, err
		}
	}

	rotator, err := storage.NewFileRotator(filepath.Join(p.cfg.OutputDir, rawDir), storage.WithRotatorLogger(p.logger))
	if err != nil {
		return nil, err
	}

	collectorCfg := p.cfg.CollectorConfig()
	collectorCfg.RiotID = p.riotID
	col := collector.New(client, collectorCfg,
		collector.WithSeenIndex(seen),
		collector.WithRawSink(rotator),
		collector.WithLogger(p.logger),
		collector.WithMetrics(p.metrics),
	)

	result, runErr := col.Run(ctx)
	if err := rotator.Close(); err != nil {
		p.logger.Warn("Failed to archive raw matches", "error", err)
	}
	if runErr != nil && ctx.Err() != nil {
		p.logger.Warn("Run cancelled, writing partial results", "records", len(result.Records))
	}

	// outputs are written even when the run was cancelled
	writeCtx := context.WithoutCancel(ctx)
	out := &outcome{Report: result.Report}
	outErr := p.writeOutputs(writeCtx, result.Records, out)

	if seen != nil {
		if err := seen.Save(); err != nil {
			outErr = errors.CombineErrors(outErr, err)
		}
	}

	p.logger.Info("Collection finished", "summary", result.Report.String(),
		"parsed", out.ParsedPath, "cleaned", out.CleanedPath)

	finalErr := errors.CombineErrors(runErr, outErr)
	if finalErr == nil && result.Report.ZeroSuccess() {
		p.logger.Warn("No matches were fetched successfully", "platform", p.cfg.Platform)
		finalErr = errZeroSuccess
	}

	p.notify(writeCtx, out, finalErr)
	return out, finalErr
}

func (p *pipeline) writeOutputs(ctx context.Context, records []storage.PlayerRecord, out *outcome) error {
	if len(records) == 0 {
		return nil
	}

	sink, err := storage.NewFileSink(p.cfg.OutputDir)
	if err != nil {
		return err
	}
	if out.ParsedPath, err = sink.WriteParsed(records); err != nil {
		return err
	}

	opts := p.cfg.ShaperOptions()
	table, err := shaper.Shape(records, opts)
	if err != nil {
		// the records are still worth keeping; only the CSV would be empty
		p.logger.Warn("Filters removed every record, cleaned CSV not written",
			append([]any{"records", len(records)}, opts.Fields()...)...)
		return errors.CombineErrors(err, p.store(ctx, records, out))
	}
	out.Rows = len(table.Rows)
	out.CleanedPath, err = sink.WriteCleaned(storage.ArtifactName(records), func(w io.Writer) error {
		return shaper.WriteCSV(w, table)
	})
	if err != nil {
		return err
	}

	return p.store(ctx, records, out)
}

func (p *pipeline) store(ctx context.Context, records []storage.PlayerRecord, out *outcome) error {
	dsn := p.cfg.DatabaseURL
	if dsn == "" {
		dsn = p.cfg.SQLitePath
	}
	if dsn == "" {
		return nil
	}

	store, err := db.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	if out.Stored, err = store.SaveRecords(ctx, records); err != nil {
		return err
	}
	p.logger.Info("Records stored", "records", out.Stored)
	return nil
}

func (p *pipeline) notify(ctx context.Context, out *outcome, runErr error) {
	if p.cfg.DiscordWebhookURL == "" {
		return
	}
	webhook := discord.NewWebhookClient(p.cfg.DiscordWebhookURL)

	if errors.Is(runErr, riot.ErrUnauthorized) {
		if err := webhook.SendKeyRejected(ctx, p.cfg.APIKey, p.cfg.Platform); err != nil {
			p.logger.Warn("Failed to send key alert", "error", err)
		}
	}

	report := out.Report
	summary := discord.RunSummary{
		Platform:         p.cfg.Platform,
		Tier:             p.cfg.Tier,
		PlayersRequested: report.PlayersRequested,
		PlayersSucceeded: report.PlayersSucceeded,
		MatchesRequested: report.MatchesRequested(),
		MatchesFetched:   report.MatchesFetched,
		MatchesSkipped:   report.MatchesSkipped,
		Records:          report.RecordsParsed,
		Rows:             out.Rows,
		Duration:         report.Duration(),
		FinishedAt:       time.Now(),
	}
	if out.CleanedPath != "" {
		summary.Artifact = filepath.Base(out.CleanedPath)
	}
	if runErr != nil && !errors.Is(runErr, errZeroSuccess) && !errors.Is(runErr, shaper.ErrNoRows) {
		summary.Err = runErr
	}

	if err := webhook.SendRunSummary(ctx, summary); err != nil {
		p.logger.Warn("Failed to send run summary", "error", err)
	}
}
