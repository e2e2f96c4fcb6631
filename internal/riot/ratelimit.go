package riot

import (
	"context"
	"math"
	"sync"
	"time"

	"tftstats/internal/logging"
)

const (
	shortWindow = time.Second
	longWindow  = 2 * time.Minute

	// Development key limits as advertised by the API
	DefaultPerSecond     = 20
	DefaultPerTwoMinutes = 100
	DefaultBuffer        = 0.9
)

// LimitConfig describes the advertised hard limits and the fraction of
// them this process is allowed to use.
type LimitConfig struct {
	PerSecond     int
	PerTwoMinutes int
	Buffer        float64
}

// DefaultLimitConfig returns the development key limits with a 0.9 buffer.
func DefaultLimitConfig() LimitConfig {
	return LimitConfig{
		PerSecond:     DefaultPerSecond,
		PerTwoMinutes: DefaultPerTwoMinutes,
		Buffer:        DefaultBuffer,
	}
}

// Caps returns the effective admissions allowed per window.
func (c LimitConfig) Caps() (perSecond, perTwoMinutes int) {
	buffer := c.Buffer
	if buffer <= 0 || buffer > 1 {
		buffer = DefaultBuffer
	}
	perSecond = int(math.Floor(float64(c.PerSecond) * buffer))
	perTwoMinutes = int(math.Floor(float64(c.PerTwoMinutes) * buffer))
	return max(perSecond, 1), max(perTwoMinutes, 1)
}

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RateLimiter enforces a 1-second and a 2-minute sliding window. Both
// windows hold admission times in enqueue order, oldest first.
type RateLimiter struct {
	maxPerSecond     int
	maxPerTwoMinutes int

	now    func() time.Time
	sleep  Sleeper
	onWait func(window string, d time.Duration)
	logger *logging.Logger

	mu    sync.Mutex
	short []time.Time
	long  []time.Time
}

// LimiterOption configures a RateLimiter
type LimiterOption func(*RateLimiter)

// WithClock replaces the time source and sleeper (useful for testing)
func WithClock(now func() time.Time, sleep Sleeper) LimiterOption {
	return func(l *RateLimiter) {
		l.now = now
		l.sleep = sleep
	}
}

// WithWaitHook registers a callback invoked before every suspension.
func WithWaitHook(fn func(window string, d time.Duration)) LimiterOption {
	return func(l *RateLimiter) {
		l.onWait = fn
	}
}

// WithLimiterLogger sets the logger used for wait messages.
func WithLimiterLogger(logger *logging.Logger) LimiterOption {
	return func(l *RateLimiter) {
		l.logger = logger
	}
}

// NewRateLimiter creates a limiter with caps derived from cfg.
func NewRateLimiter(cfg LimitConfig, opts ...LimiterOption) *RateLimiter {
	perSecond, perTwoMinutes := cfg.Caps()
	l := &RateLimiter{
		maxPerSecond:     perSecond,
		maxPerTwoMinutes: perTwoMinutes,
		now:              time.Now,
		sleep:            SleepContext,
		logger:           logging.Default(),
		short:            make([]time.Time, 0, perSecond),
		long:             make([]time.Time, 0, perTwoMinutes),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit blocks until one more request fits in both windows, then records
// it. It returns early only when ctx is done.
func (l *RateLimiter) Admit(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.evict(now)

		window, wait := "", time.Duration(0)
		if len(l.short) >= l.maxPerSecond {
			window, wait = "1s", shortWindow-now.Sub(l.short[0])
		} else if len(l.long) >= l.maxPerTwoMinutes {
			window, wait = "2m", longWindow-now.Sub(l.long[0])
		}

		if window == "" {
			if err := ctx.Err(); err != nil {
				l.mu.Unlock()
				return err
			}
			l.short = append(l.short, now)
			l.long = append(l.long, now)
			l.mu.Unlock()
			return nil
		}

		shortCount, longCount := len(l.short), len(l.long)
		l.mu.Unlock()

		l.logger.Debug("rate limit reached, waiting",
			"window", window, "wait", wait,
			"short", shortCount, "short_cap", l.maxPerSecond,
			"long", longCount, "long_cap", l.maxPerTwoMinutes)
		if l.onWait != nil {
			l.onWait(window, wait)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// evict drops entries that have aged out of each window. Callers hold mu.
func (l *RateLimiter) evict(now time.Time) {
	l.short = dropOlder(l.short, now.Add(-shortWindow))
	l.long = dropOlder(l.long, now.Add(-longWindow))
}

func dropOlder(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return window
	}
	return append(window[:0], window[i:]...)
}

// Usage reports the number of admissions currently in each window.
func (l *RateLimiter) Usage() (short, long int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.short), len(l.long)
}

// Caps reports the effective per-window caps.
func (l *RateLimiter) Caps() (perSecond, perTwoMinutes int) {
	return l.maxPerSecond, l.maxPerTwoMinutes
}
