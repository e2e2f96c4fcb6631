// Package config builds the run configuration from .env files, the
// environment and command-line overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"tftstats/internal/collector"
	"tftstats/internal/logging"
	"tftstats/internal/metrics"
	"tftstats/internal/riot"
	"tftstats/internal/shaper"
)

// ErrInvalid marks configuration that failed validation.
var ErrInvalid = errors.New("invalid configuration")

// Locations searched for a .env file, first hit wins.
var DotEnvPaths = []string{".env", "../.env"}

const PatchCutoffLayout = time.RFC3339

// Config is the immutable configuration of one process.
type Config struct {
	APIKey   string `validate:"required"`
	Platform string `validate:"required,platform"`
	Tier     string `validate:"oneof=challenger grandmaster"`

	MatchCount int `validate:"min=1"`
	MaxPlayers int `validate:"min=0"`
	Workers    int `validate:"min=1,max=32"`

	RateLimitBuffer    float64       `validate:"gt=0,lte=1"`
	PerSecondLimit     int           `validate:"min=1"`
	PerTwoMinutesLimit int           `validate:"min=1"`
	MaxRetries         int           `validate:"min=0"`
	RequestTimeout     time.Duration `validate:"gt=0"`

	TargetSet   int    `validate:"min=0"`
	PatchCutoff string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	TopN        int    `validate:"min=0,max=8"`
	QueueIDs    []int  `validate:"dive,min=1"`

	OutputDir         string `validate:"required"`
	DatabaseURL       string `validate:"omitempty,url"`
	SQLitePath        string
	DiscordWebhookURL string `validate:"omitempty,url"`
	MetricsAddr       string `validate:"omitempty,hostname_port"`
	SeenIndexPath     string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`
}

// Override adjusts a Config after the environment has been read and
// before it is validated.
type Override func(*Config)

// Load reads the first .env file found, then the environment, applies
// overrides in order and validates the result.
func Load(overrides ...Override) (Config, error) {
	return load(nil, overrides)
}

// LoadOffline is Load for commands that never call the API: the key may
// be missing.
func LoadOffline(overrides ...Override) (Config, error) {
	return load([]string{"APIKey"}, overrides)
}

func load(skip []string, overrides []Override) (Config, error) {
	loadDotEnv()

	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	cfg.Platform = strings.ToLower(strings.TrimSpace(cfg.Platform))
	cfg.Tier = strings.ToLower(strings.TrimSpace(cfg.Tier))

	if err := cfg.Validate(skip...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv() {
	for _, path := range DotEnvPaths {
		// existing variables win over the file
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

// FromEnv reads every setting from the environment, falling back to
// defaults. It does not validate.
func FromEnv() (Config, error) {
	cfg := Config{
		APIKey:            strings.TrimSpace(getEnv("RIOT_API_KEY", os.Getenv("RIOT-DEV-KEY"))),
		Platform:          getEnv("TFT_PLATFORM", "na1"),
		Tier:              getEnv("TFT_TIER", string(riot.TierChallenger)),
		PatchCutoff:       strings.TrimSpace(os.Getenv("TFT_PATCH_CUTOFF")),
		OutputDir:         strings.Trim(getEnv("TFT_OUTPUT_DIR", getEnv("BLOB_STORAGE_PATH", "tft_data")), "\""),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:        strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		DiscordWebhookURL: strings.TrimSpace(os.Getenv("DISCORD_WEBHOOK")),
		MetricsAddr:       strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		SeenIndexPath:     strings.TrimSpace(os.Getenv("SEEN_INDEX_PATH")),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "console")),
	}

	var err error
	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"TFT_MATCH_COUNT", collector.DefaultMatchCount, &cfg.MatchCount},
		{"TFT_MAX_PLAYERS", 0, &cfg.MaxPlayers},
		{"TFT_WORKERS", 1, &cfg.Workers},
		{"RATE_LIMIT_PER_SECOND", riot.DefaultPerSecond, &cfg.PerSecondLimit},
		{"RATE_LIMIT_PER_TWO_MINUTES", riot.DefaultPerTwoMinutes, &cfg.PerTwoMinutesLimit},
		{"RIOT_MAX_RETRIES", 3, &cfg.MaxRetries},
		{"TFT_TARGET_SET", 16, &cfg.TargetSet},
		{"TFT_TOP_N", 0, &cfg.TopN},
	}
	for _, f := range ints {
		if *f.dst, err = getEnvAsInt(f.key, f.fallback); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", f.key)
		}
	}

	if cfg.RateLimitBuffer, err = getEnvAsFloat("RATE_LIMIT_BUFFER", riot.DefaultBuffer); err != nil {
		return Config{}, errors.Wrap(err, "parse RATE_LIMIT_BUFFER")
	}
	if cfg.RequestTimeout, err = time.ParseDuration(getEnv("RIOT_REQUEST_TIMEOUT", "10s")); err != nil {
		return Config{}, errors.Wrap(err, "parse RIOT_REQUEST_TIMEOUT")
	}
	if cfg.QueueIDs, err = parseIntList(os.Getenv("TFT_QUEUE_IDS")); err != nil {
		return Config{}, errors.Wrap(err, "parse TFT_QUEUE_IDS")
	}

	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	regions := riot.DefaultRegions()
	_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		_, err := regions.Resolve(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks every field but the skipped ones against its tag.
func (c Config) Validate(skip ...string) error {
	var err error
	if len(skip) > 0 {
		err = validate.StructExcept(c, skip...)
	} else {
		err = validate.Struct(c)
	}
	if err != nil {
		return errors.Mark(errors.Wrap(err, "validate configuration"), ErrInvalid)
	}
	return nil
}

// Cutoff returns the parsed patch cutoff, or the zero time when unset.
func (c Config) Cutoff() time.Time {
	if c.PatchCutoff == "" {
		return time.Time{}
	}
	t, err := time.Parse(PatchCutoffLayout, c.PatchCutoff)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// LimitConfig returns the limiter settings.
func (c Config) LimitConfig() riot.LimitConfig {
	return riot.LimitConfig{
		PerSecond:     c.PerSecondLimit,
		PerTwoMinutes: c.PerTwoMinutesLimit,
		Buffer:        c.RateLimitBuffer,
	}
}

// ClientConfig returns API client settings with a fresh limiter wired to
// logger and m. m may be nil.
func (c Config) ClientConfig(logger *logging.Logger, m *metrics.Metrics) riot.ClientConfig {
	limiterOpts := []riot.LimiterOption{riot.WithLimiterLogger(logger)}
	if m != nil {
		limiterOpts = append(limiterOpts, riot.WithWaitHook(m.ObserveLimiterWait))
	}

	maxRetries := c.MaxRetries
	if maxRetries == 0 {
		// zero means "use the default" to the client
		maxRetries = -1
	}

	return riot.ClientConfig{
		APIKey:         c.APIKey,
		Regions:        riot.DefaultRegions(),
		Limiter:        riot.NewRateLimiter(c.LimitConfig(), limiterOpts...),
		RequestTimeout: c.RequestTimeout,
		MaxRetries:     maxRetries,
		Logger:         logger,
		Metrics:        m,
	}
}

// CollectorConfig returns the settings of one collection run.
func (c Config) CollectorConfig() collector.Config {
	return collector.Config{
		Platform:      c.Platform,
		Tier:          riot.LeagueTier(c.Tier),
		MatchCount:    c.MatchCount,
		MaxPlayers:    c.MaxPlayers,
		PageSize:      collector.DefaultPageSize,
		Workers:       c.Workers,
		ProgressEvery: collector.DefaultProgressEvery,
	}
}

// ShaperOptions returns the record filters to apply before flattening.
func (c Config) ShaperOptions() shaper.Options {
	return shaper.Options{
		TargetSet:   c.TargetSet,
		PatchCutoff: c.Cutoff(),
		TopN:        c.TopN,
		QueueIDs:    c.QueueIDs,
	}
}

// Level returns the parsed log level.
func (c Config) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return strings.TrimSpace(value)
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	return strconv.Atoi(value)
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	return strconv.ParseFloat(value, 64)
}

func parseIntList(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		n, err := strconv.Atoi(item)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid item %q", item)
		}
		out = append(out, n)
	}
	return out, nil
}
