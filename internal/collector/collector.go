package collector

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc/pool"

	"tftstats/internal/logging"
	"tftstats/internal/metrics"
	"tftstats/internal/riot"
	"tftstats/internal/storage"
)

const (
	// Largest page the match-id listing accepts
	DefaultPageSize      = 200
	DefaultMatchCount    = 5
	DefaultProgressEvery = 10
)

// MatchClient is the subset of the API client the collector drives.
type MatchClient interface {
	ListTopLeague(ctx context.Context, platform string, tier riot.LeagueTier) ([]string, error)
	ListMatchIDs(ctx context.Context, puuid, platform string, count, start int) ([]string, error)
	FetchMatchDetail(ctx context.Context, matchID, platform string) (*riot.RawMatch, error)
	GetAccountByRiotID(ctx context.Context, gameName, tagLine, platform string) (*riot.AccountResponse, error)
}

// RawSink archives match payloads as they are fetched.
type RawSink interface {
	WriteRaw(matchID string, body []byte) error
}

// Config holds configuration for a collection run
type Config struct {
	Platform string
	Tier     riot.LeagueTier
	// RiotID ("name#tag") seeds the roster from one player instead of a
	// league listing.
	RiotID string

	MatchCount    int // match IDs per player
	MaxPlayers    int // 0 keeps the whole listing
	PageSize      int
	Workers       int // concurrent match-detail fetches
	ProgressEvery int
}

// Result is the outcome of one run. Records is in match-ID order, then
// participant order.
type Result struct {
	Records []storage.PlayerRecord
	Report  Report
}

// Collector turns a roster into parsed player records.
type Collector struct {
	client  MatchClient
	cfg     Config
	seen    *SeenIndex
	raw     RawSink
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// Option configures a Collector
type Option func(*Collector)

// WithSeenIndex skips match IDs recorded by earlier runs and records the
// ones fetched by this run.
func WithSeenIndex(idx *SeenIndex) Option {
	return func(c *Collector) { c.seen = idx }
}

// WithRawSink archives every fetched payload.
func WithRawSink(sink RawSink) Option {
	return func(c *Collector) { c.raw = sink }
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *Collector) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// New creates a collector
func New(client MatchClient, cfg Config, opts ...Option) *Collector {
	if cfg.Tier == "" {
		cfg.Tier = riot.TierChallenger
	}
	if cfg.MatchCount <= 0 {
		cfg.MatchCount = DefaultMatchCount
	}
	if cfg.PageSize <= 0 || cfg.PageSize > DefaultPageSize {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}

	c := &Collector{client: client, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	c.logger = c.logger.With("component", "collector", "platform", cfg.Platform)
	return c
}

// Run resolves the roster, collects and deduplicates match IDs, fetches and
// parses each match. Per-player and per-match failures are logged and
// skipped. On a fatal error or cancellation the partial result is returned
// together with the error.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	result := &Result{Report: Report{Platform: c.cfg.Platform, Started: time.Now()}}
	defer func() { result.Report.Finished = time.Now() }()

	roster, err := c.Roster(ctx)
	if err != nil {
		return result, err
	}

	ids, err := c.CollectMatchIDs(ctx, roster, &result.Report)
	if err != nil {
		return result, err
	}

	result.Records, err = c.FetchMatches(ctx, ids.IDs(), &result.Report)
	return result, err
}

// Roster returns the players to sample, in listing order without repeats.
func (c *Collector) Roster(ctx context.Context) ([]string, error) {
	if c.cfg.RiotID != "" {
		puuid, err := c.ResolveRiotID(ctx, c.cfg.RiotID)
		if err != nil {
			return nil, err
		}
		return []string{puuid}, nil
	}

	puuids, err := c.client.ListTopLeague(ctx, c.cfg.Platform, c.cfg.Tier)
	if err != nil {
		return nil, errors.Wrap(err, "resolve roster")
	}
	roster := uniqueStrings(puuids)
	if c.cfg.MaxPlayers > 0 && len(roster) > c.cfg.MaxPlayers {
		roster = roster[:c.cfg.MaxPlayers]
	}
	c.logger.Info("Roster resolved", "tier", c.cfg.Tier, "players", len(roster))
	return roster, nil
}

// ResolveRiotID looks up the player identifier for "gameName#tagLine".
func (c *Collector) ResolveRiotID(ctx context.Context, riotID string) (string, error) {
	gameName, tagLine, ok := strings.Cut(riotID, "#")
	if !ok || gameName == "" || tagLine == "" {
		return "", errors.Newf("riot id %q must look like name#tag", riotID)
	}
	account, err := c.client.GetAccountByRiotID(ctx, gameName, tagLine, c.cfg.Platform)
	if err != nil {
		return "", err
	}
	c.logger.Info("Seeded from Riot ID", "riot_id", riotID)
	return account.PUUID, nil
}

// CollectMatchIDs lists recent match IDs for each player, one player at a
// time, into a set. A failing player is logged and skipped unless the
// failure is fatal to the run.
func (c *Collector) CollectMatchIDs(ctx context.Context, puuids []string, report *Report) (*MatchIDSet, error) {
	set := NewMatchIDSet()
	players := make(map[string]struct{}, len(puuids))

	for _, puuid := range puuids {
		if _, dup := players[puuid]; dup {
			continue
		}
		players[puuid] = struct{}{}
		report.PlayersRequested++

		ids, err := c.listPlayerMatches(ctx, puuid)
		if err != nil {
			if riot.IsFatal(err) {
				report.MatchIDs = set.Len()
				return set, err
			}
			report.PlayersFailed++
			c.metrics.ObserveItem("player", "failed")
			c.logger.Warn("Skipping player", "puuid", shortID(puuid), "error", err)
			continue
		}

		report.PlayersSucceeded++
		c.metrics.ObserveItem("player", "ok")
		for _, id := range ids {
			set.Add(id)
		}

		if report.PlayersRequested%c.cfg.ProgressEvery == 0 {
			c.logger.Info("Collecting match ids",
				"players", report.PlayersRequested, "of", len(puuids), "unique_matches", set.Len())
		}
	}

	report.MatchIDs = set.Len()
	c.logger.Info("Match ids collected",
		"players_ok", report.PlayersSucceeded, "players_failed", report.PlayersFailed, "unique_matches", set.Len())
	return set, nil
}

// listPlayerMatches pages through a player's history up to MatchCount.
func (c *Collector) listPlayerMatches(ctx context.Context, puuid string) ([]string, error) {
	var all []string
	for start := 0; start < c.cfg.MatchCount; start += c.cfg.PageSize {
		count := min(c.cfg.PageSize, c.cfg.MatchCount-start)
		page, err := c.client.ListMatchIDs(ctx, puuid, c.cfg.Platform, count, start)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < count {
			break
		}
	}
	return all, nil
}

// FetchMatches fetches and parses each match. A failing match is logged
// and skipped. With Workers > 1 fetches run concurrently; they still share
// the client's rate limiter and the result keeps the order of ids.
func (c *Collector) FetchMatches(ctx context.Context, ids []string, report *Report) ([]storage.PlayerRecord, error) {
	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		if c.seen != nil && c.seen.Seen(id) {
			report.MatchesSkipped++
			c.metrics.ObserveItem("match", "seen")
			continue
		}
		pending = append(pending, id)
	}
	if report.MatchIDs < len(ids) {
		report.MatchIDs = len(ids)
	}

	parsed := make([][]storage.PlayerRecord, len(pending))
	var (
		mu   sync.Mutex
		done int
	)
	fetchOne := func(ctx context.Context, i int) error {
		records, err := c.fetchMatch(ctx, pending[i])

		mu.Lock()
		defer mu.Unlock()
		done++
		if err != nil {
			if riot.IsFatal(err) {
				return err
			}
			report.MatchesFailed++
			c.metrics.ObserveItem("match", "failed")
			c.logger.Warn("Skipping match", "match_id", pending[i], "error", err)
		} else {
			parsed[i] = records
			report.MatchesFetched++
			report.RecordsParsed += len(records)
			c.metrics.ObserveItem("match", "ok")
		}
		if done%c.cfg.ProgressEvery == 0 {
			c.logger.Info("Fetching matches", "done", done, "of", len(pending), "failed", report.MatchesFailed)
		}
		return nil
	}

	var err error
	if c.cfg.Workers > 1 {
		p := pool.New().WithMaxGoroutines(c.cfg.Workers).WithContext(ctx).WithCancelOnError().WithFirstError()
		for i := range pending {
			p.Go(func(ctx context.Context) error { return fetchOne(ctx, i) })
		}
		err = p.Wait()
	} else {
		for i := range pending {
			if err = fetchOne(ctx, i); err != nil {
				break
			}
		}
	}
	if err == nil {
		err = ctx.Err()
	}

	var records []storage.PlayerRecord
	for _, batch := range parsed {
		records = append(records, batch...)
	}

	c.logger.Info("Matches fetched",
		"ok", report.MatchesFetched, "failed", report.MatchesFailed, "skipped", report.MatchesSkipped,
		"records", len(records))
	return records, err
}

// fetchMatch downloads, archives and parses one match.
func (c *Collector) fetchMatch(ctx context.Context, matchID string) ([]storage.PlayerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := c.client.FetchMatchDetail(ctx, matchID, c.cfg.Platform)
	if err != nil {
		return nil, err
	}

	records, err := ParseMatch(raw)
	if err != nil {
		return nil, err
	}

	if c.raw != nil {
		if err := c.raw.WriteRaw(matchID, raw.Body); err != nil {
			// archive is best effort; parsed records are still kept
			c.logger.Warn("Failed to archive raw match", "match_id", matchID, "error", err)
		}
	}
	if c.seen != nil {
		c.seen.Mark(matchID)
	}
	return records, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func shortID(id string) string {
	return id[:min(16, len(id))]
}
