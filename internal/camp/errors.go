package camp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Error kinds shared across the pipeline. Wrap them with fmt.Errorf("...: %w").
var (
	// ErrNetwork marks DNS, connection and HTTP status failures. Retryable.
	ErrNetwork = errors.New("network error")
	// ErrTimeout marks navigation or fetch deadlines. Retryable.
	ErrTimeout = errors.New("timeout")
	// ErrParse marks malformed input (baseline CSV, LLM output).
	ErrParse = errors.New("parse error")
	// ErrInvariant marks internal contract violations.
	ErrInvariant = errors.New("invariant violation")
	// ErrPersistence marks failures writing a data store.
	ErrPersistence = errors.New("persistence error")
	// ErrStrategyUnavailable marks a mode that cannot run in this configuration.
	ErrStrategyUnavailable = errors.New("strategy unavailable")
	// ErrRendererDisabled marks a disabled headless browser.
	ErrRendererDisabled = errors.New("headless renderer disabled")
)

// FetchError ties a failure to the URL that was being loaded.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("load %s: %v", e.URL, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// FailedURL returns the URL carried by a FetchError in err's chain, or "".
func FailedURL(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.URL
	}
	return ""
}

// IsRetryable reports whether the strategy runner should try again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

// Classify maps a low-level transport error onto ErrNetwork or ErrTimeout.
// Errors that already carry a kind are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrNetwork, ErrTimeout, ErrParse, ErrInvariant, ErrStrategyUnavailable, ErrRendererDisabled} {
		if errors.Is(err, kind) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return joinKind(ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return joinKind(ErrTimeout, err)
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return joinKind(ErrNetwork, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || errors.As(err, &netErr) {
		return joinKind(ErrNetwork, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return joinKind(ErrTimeout, err)
	}
	return joinKind(ErrNetwork, err)
}

type kindError struct {
	kind error
	err  error
}

func joinKind(kind, err error) error { return &kindError{kind: kind, err: err} }

func (e *kindError) Error() string { return e.kind.Error() + ": " + e.err.Error() }

func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }
