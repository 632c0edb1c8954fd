// Package ratelimit paces requests to the same host with a token bucket per
// host and slows a host's bucket exponentially after failures.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/metrics"
)

const (
	defaultBaseDelay = 2 * time.Second
	defaultMaxDelay  = 30 * time.Second
	maxFailures      = 5
)

// Clock supplies monotonic time and sleeping. Tests script it.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Config holds rate limiter configuration.
type Config struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

type hostState struct {
	limiter  *rate.Limiter
	failures int
}

// Limiter manages per-host pacing. It is safe for concurrent use; waits on
// one host never block callers targeting another.
type Limiter struct {
	mu       sync.Mutex
	hosts    map[string]*hostState
	lastSeen time.Time
	base     time.Duration
	max      time.Duration
	clock    Clock
	logger   *zap.Logger
}

// New creates a new Limiter. A nil clock uses wall time.
func New(cfg Config, clock Clock, logger *zap.Logger) *Limiter {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		hosts:  make(map[string]*hostState),
		base:   cfg.BaseDelay,
		max:    cfg.MaxDelay,
		clock:  clock,
		logger: logger,
	}
}

// Acquire blocks until a request to rawURL's host may start. Unparseable
// URLs pass through without delay.
func (l *Limiter) Acquire(ctx context.Context, rawURL string) error {
	host, ok := hostOf(rawURL)
	if !ok {
		l.logger.Debug("rate limiter skipping unparseable url", zap.String("url", rawURL))
		return nil
	}

	l.mu.Lock()
	now := l.clock.Now()
	if now.Before(l.lastSeen) {
		l.mu.Unlock()
		return fmt.Errorf("rate limiter clock moved backwards from %s to %s: %w",
			l.lastSeen.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), camp.ErrInvariant)
	}
	l.lastSeen = now
	res := l.state(host).limiter.ReserveN(now, 1)
	l.mu.Unlock()

	wait := res.DelayFrom(now)
	if wait <= 0 {
		return nil
	}
	metrics.ObserveRateLimitDelay(host, wait)
	l.logger.Debug("rate limiter waiting", zap.String("host", host), zap.Duration("delay", wait))
	if err := l.clock.Sleep(ctx, wait); err != nil {
		res.CancelAt(l.clock.Now())
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// RecordSuccess resets the failure count for rawURL's host.
func (l *Limiter) RecordSuccess(rawURL string) {
	l.setFailures(rawURL, func(int) int { return 0 })
}

// RecordFailure increments the failure count for rawURL's host.
func (l *Limiter) RecordFailure(rawURL string) {
	l.setFailures(rawURL, func(f int) int { return min(f+1, maxFailures) })
}

// Failures returns the current failure count for rawURL's host.
func (l *Limiter) Failures(rawURL string) int {
	host, ok := hostOf(rawURL)
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, exists := l.hosts[host]; exists {
		return st.failures
	}
	return 0
}

// Delay returns the spacing currently enforced for rawURL's host.
func (l *Limiter) Delay(rawURL string) time.Duration {
	return l.delayFor(l.Failures(rawURL))
}

func (l *Limiter) setFailures(rawURL string, next func(int) int) {
	host, ok := hostOf(rawURL)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	st := l.state(host)
	f := next(st.failures)
	if f == st.failures {
		return
	}
	st.failures = f
	st.limiter.SetLimitAt(now, rate.Every(l.delayFor(f)))
}

func (l *Limiter) state(host string) *hostState {
	st, ok := l.hosts[host]
	if !ok {
		st = &hostState{limiter: rate.NewLimiter(rate.Every(l.base), 1)}
		l.hosts[host] = st
	}
	return st
}

func (l *Limiter) delayFor(failures int) time.Duration {
	d := l.base << min(failures, maxFailures)
	if d > l.max {
		d = l.max
	}
	return d
}

func hostOf(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
