package riot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"tftstats/internal/logging"
	"tftstats/internal/metrics"
)

const (
	// Host template for platform and regional routing values
	defaultHostFormat = "https://%s.api.riotgames.com"

	defaultRequestTimeout = 10 * time.Second
	defaultMaxRetries     = 3
	defaultRetryAfter     = 10 * time.Second
	defaultMaxRetryAfter  = 2 * time.Minute
	maxResponseBytes      = 8 << 20
	rankedQueue           = "RANKED_TFT"
	apiKeyHeader          = "X-Riot-Token"
	operationLeague       = "league"
	operationMatchIDs     = "match_ids"
	operationMatch        = "match"
	operationAccount      = "account"
)

// ClientConfig is the immutable configuration of a Client.
type ClientConfig struct {
	APIKey string

	// Regions resolves platforms to routing regions. Defaults to DefaultRegions().
	Regions *RegionTable
	// Limiter gates every outbound request. Defaults to DefaultLimitConfig().
	Limiter *RateLimiter

	HTTPClient *http.Client
	// Endpoint maps a routing value (platform or region) to a base URL.
	Endpoint func(host string) string

	// RequestTimeout bounds each individual HTTP attempt.
	RequestTimeout time.Duration
	// MaxRetries bounds how many times a 429 response is retried. Zero
	// selects the default, a negative value disables retries.
	MaxRetries int
	// DefaultRetryAfter is used when a 429 carries no Retry-After header.
	DefaultRetryAfter time.Duration
	// MaxRetryAfter caps the honoured Retry-After value.
	MaxRetryAfter time.Duration
	// Sleep suspends between 429 retries. Defaults to SleepContext.
	Sleep Sleeper

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Client is a rate-limited TFT API client
type Client struct {
	apiKey     string
	regions    *RegionTable
	limiter    *RateLimiter
	httpClient *http.Client
	endpoint   func(host string) string

	requestTimeout    time.Duration
	maxRetries        int
	defaultRetryAfter time.Duration
	maxRetryAfter     time.Duration
	sleep             Sleeper

	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewClient creates a new API client
func NewClient(cfg ClientConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.Wrap(ErrUnauthorized, "API key cannot be empty")
	}

	c := &Client{
		apiKey:            apiKey,
		regions:           cfg.Regions,
		limiter:           cfg.Limiter,
		httpClient:        cfg.HTTPClient,
		endpoint:          cfg.Endpoint,
		requestTimeout:    cfg.RequestTimeout,
		maxRetries:        cfg.MaxRetries,
		defaultRetryAfter: cfg.DefaultRetryAfter,
		maxRetryAfter:     cfg.MaxRetryAfter,
		sleep:             cfg.Sleep,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	c.logger = c.logger.With("component", "riot")
	if c.regions == nil {
		c.regions = DefaultRegions()
	}
	if c.limiter == nil {
		c.limiter = NewRateLimiter(DefaultLimitConfig(), WithLimiterLogger(c.logger))
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.endpoint == nil {
		c.endpoint = func(host string) string { return fmt.Sprintf(defaultHostFormat, host) }
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultRequestTimeout
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	} else if c.maxRetries == 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.defaultRetryAfter <= 0 {
		c.defaultRetryAfter = defaultRetryAfter
	}
	if c.maxRetryAfter <= 0 {
		c.maxRetryAfter = defaultMaxRetryAfter
	}
	if c.sleep == nil {
		c.sleep = SleepContext
	}

	return c, nil
}

// Regions returns the region table the client routes with.
func (c *Client) Regions() *RegionTable {
	return c.regions
}

// ListTopLeague returns the player identifiers of a top-of-ladder listing,
// in listing order.
func (c *Client) ListTopLeague(ctx context.Context, platform string, tier LeagueTier) ([]string, error) {
	if !tier.Valid() {
		return nil, errors.Newf("unsupported league tier %q", tier)
	}
	if _, err := c.regions.Resolve(platform); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/tft/league/v1/%s?queue=%s",
		c.endpoint(strings.ToLower(platform)), tier, rankedQueue)

	var league LeagueListResponse
	if _, err := c.doJSON(ctx, operationLeague, u, &league); err != nil {
		return nil, errors.Wrapf(err, "list %s league on %s", tier, platform)
	}

	puuids := make([]string, 0, len(league.Entries))
	for _, entry := range league.Entries {
		if entry.PUUID != "" {
			puuids = append(puuids, entry.PUUID)
		}
	}
	if len(puuids) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "%s league on %s has no entries", tier, platform)
	}
	return puuids, nil
}

// ListMatchIDs fetches one page of match IDs for a player, newest first.
func (c *Client) ListMatchIDs(ctx context.Context, puuid, platform string, count, start int) ([]string, error) {
	region, err := c.regions.Resolve(platform)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/tft/match/v1/matches/by-puuid/%s/ids?start=%d&count=%d",
		c.endpoint(string(region)), url.PathEscape(puuid), start, count)

	var matchIDs []string
	if _, err := c.doJSON(ctx, operationMatchIDs, u, &matchIDs); err != nil {
		return nil, errors.Wrapf(err, "list match ids for %s", shortID(puuid))
	}
	return matchIDs, nil
}

// FetchMatchDetail fetches one match and keeps the raw payload alongside
// its decoded form.
func (c *Client) FetchMatchDetail(ctx context.Context, matchID, platform string) (*RawMatch, error) {
	region, err := c.regions.Resolve(platform)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/tft/match/v1/matches/%s", c.endpoint(string(region)), url.PathEscape(matchID))

	raw := &RawMatch{MatchID: matchID}
	body, err := c.doJSON(ctx, operationMatch, u, &raw.Match)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch match %s", matchID)
	}
	if raw.Match.Metadata.MatchID == "" {
		return nil, errors.Mark(errors.Newf("match %s: metadata.match_id missing", matchID), ErrDecode)
	}
	raw.Body = body
	return raw, nil
}

// GetAccountByRiotID fetches account info by Riot ID (gameName#tagLine)
func (c *Client) GetAccountByRiotID(ctx context.Context, gameName, tagLine, platform string) (*AccountResponse, error) {
	region, err := c.regions.Resolve(platform)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		c.endpoint(string(region)), url.PathEscape(gameName), url.PathEscape(tagLine))

	var account AccountResponse
	if _, err := c.doJSON(ctx, operationAccount, u, &account); err != nil {
		return nil, errors.Wrapf(err, "lookup %s#%s", gameName, tagLine)
	}
	if account.PUUID == "" {
		return nil, errors.Wrapf(ErrNotFound, "account %s#%s has no puuid", gameName, tagLine)
	}
	return &account, nil
}

// doJSON performs a request and decodes a 2xx body into result.
func (c *Client) doJSON(ctx context.Context, operation, u string, result any) ([]byte, error) {
	body, err := c.doRequest(ctx, operation, u)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode %s response", operation), ErrDecode)
	}
	return body, nil
}

// doRequest makes a rate-limited GET, retrying 429 responses at most
// maxRetries times.
func (c *Client) doRequest(ctx context.Context, operation, u string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Admit(ctx); err != nil {
			return nil, err
		}

		status, header, body, err := c.get(ctx, operation, u)
		if err != nil {
			return nil, err
		}

		if status >= 200 && status < 300 {
			return body, nil
		}

		if status == http.StatusTooManyRequests && attempt < c.maxRetries {
			wait := c.retryAfter(header)
			c.logger.Warn("429 rate limited, waiting",
				"operation", operation, "wait", wait, "attempt", attempt+1, "max_retries", c.maxRetries)
			c.metrics.ObserveRetry(operation)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		return nil, classifyStatus(status, u, body)
	}
}

// get performs one HTTP attempt bounded by the request timeout.
func (c *Client) get(ctx context.Context, operation, u string) (int, http.Header, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, nil, errors.Mark(errors.Wrap(err, "build request"), ErrRequestFailed)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(operation, 0, time.Since(started))
		return 0, nil, nil, transportError(ctx, err, "GET "+operation)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.ObserveRequest(operation, resp.StatusCode, time.Since(started))
	if err != nil {
		return 0, nil, nil, transportError(ctx, err, "read "+operation+" response")
	}
	return resp.StatusCode, resp.Header, body, nil
}

// transportError reports a failed attempt. Cancellation of the caller's ctx
// is returned as is; anything else, including the attempt's own timeout,
// becomes ErrRequestFailed with the cause flattened to text so that
// context.DeadlineExceeded only ever means the caller's deadline.
func transportError(ctx context.Context, err error, what string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errors.Mark(errors.Newf("%s: %s", what, err.Error()), ErrRequestFailed)
}

// retryAfter reads Retry-After as seconds or an HTTP date.
func (c *Client) retryAfter(header http.Header) time.Duration {
	wait := c.defaultRetryAfter
	if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			wait = time.Duration(seconds) * time.Second
		} else if at, err := http.ParseTime(v); err == nil {
			wait = time.Until(at)
		}
	}
	if wait < 0 {
		wait = 0
	}
	if wait > c.maxRetryAfter {
		wait = c.maxRetryAfter
	}
	return wait
}

func shortID(id string) string {
	return id[:min(16, len(id))]
}
