package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"
)

// HealthURL returns the probe URL for host:port.
func HealthURL(host string, port int, path string) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

// HealthChecker polls a server's health endpoint.
type HealthChecker struct {
	client   *http.Client
	path     string
	interval time.Duration
	logger   *slog.Logger

	// probes counts the requests sent by the last WaitUntilHealthy call.
	probes atomic.Int32
}

// NewHealthChecker creates a checker probing path every interval.
func NewHealthChecker(path string, interval time.Duration, logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		client:   &http.Client{},
		path:     path,
		interval: interval,
		logger:   logger,
	}
}

// Probes returns the number of probes sent by the last WaitUntilHealthy call.
func (h *HealthChecker) Probes() int {
	return int(h.probes.Load())
}

// WaitUntilHealthy polls until the endpoint answers 200 (true, nil), the
// timeout elapses (false, nil) or ctx is cancelled (false, ctx.Err()).
// Connection errors and non-200 answers both mean "not ready yet".
func (h *HealthChecker) WaitUntilHealthy(ctx context.Context, host string, port int, timeout time.Duration) (bool, error) {
	url := HealthURL(host, port, h.path)
	h.probes.Store(0)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var lastErr error
	for {
		attempt := h.probes.Add(1)
		err := h.probe(waitCtx, url)
		if err == nil {
			h.logger.Debug("Health check passed", "url", url, "attempt", attempt)
			return true, nil
		}
		lastErr = err

		// The overall deadline and the caller's cancellation both end the
		// wait, even when they fire in the middle of a probe.
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if waitCtx.Err() != nil {
			h.logger.Debug("Health check deadline reached", "url", url, "attempts", attempt, "last_error", lastErr)
			return false, nil
		}

		h.logger.Debug("Server not ready yet", "url", url, "attempt", attempt, "class", classifyProbeError(err), "error", err)

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-waitCtx.Done():
			h.logger.Debug("Health check deadline reached", "url", url, "attempts", attempt, "last_error", lastErr)
			return false, nil
		case <-ticker.C:
		}
	}
}

// probe sends a single health request bounded by one poll interval.
func (h *HealthChecker) probe(ctx context.Context, url string) error {
	probeCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// StatusError is a health answer other than 200.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server not healthy: status %d", e.Code)
}

// classifyProbeError labels a failed probe for the debug log.
func classifyProbeError(err error) string {
	var statusErr *StatusError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection_refused"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
