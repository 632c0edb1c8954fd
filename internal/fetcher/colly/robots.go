package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var robotsRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

const allowAllRobots = "User-agent: *\nAllow: /"

// robotsGuard passes page requests straight through. Requests for
// /robots.txt that keep failing with transient TLS or timeout errors are
// answered with an allow-all policy so the page fetch itself can proceed.
type robotsGuard struct {
	base   http.RoundTripper
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func newRobotsGuard(base http.RoundTripper, logger *zap.Logger) *robotsGuard {
	return &robotsGuard{base: base, logger: logger, sleep: sleepWithContext}
}

func (g *robotsGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots guard received nil request")
	}
	if !isRobotsTxtRequest(req) {
		resp, err := g.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("roundtrip %s: %w", req.URL.Host, err)
		}
		return resp, nil
	}

	for attempt := 0; ; attempt++ {
		resp, err := g.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTransientTLSError(err) {
			return nil, fmt.Errorf("robots.txt %s: %w", req.URL.Host, err)
		}
		if attempt == len(robotsRetryBackoff) {
			g.logger.Warn("robots.txt unreachable, assuming allow-all",
				zap.String("host", req.URL.Host), zap.Error(err))
			return &http.Response{
				StatusCode:    http.StatusOK,
				Status:        "200 OK",
				Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
				ContentLength: int64(len(allowAllRobots)),
				Header:        make(http.Header),
				Request:       req,
			}, nil
		}
		if err := g.sleep(req.Context(), robotsRetryBackoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots.txt backoff: %w", err)
		}
	}
}

func isRobotsTxtRequest(req *http.Request) bool {
	return req.URL != nil && strings.EqualFold(req.URL.Path, "/robots.txt")
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTransientTLSError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
