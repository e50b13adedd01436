/*
PURPOSE:
  Readiness check for the inference server before a sweep starts.
  Polls a health endpoint until it answers 200 or retries run out.

REQUIREMENTS:
  User-specified:
  - Avoid burning sweep combinations against a server that is still loading.

  Implementation-discovered:
  - Needs http.Client with timeouts; header timeout separates
    "cannot connect" from "server busy loading".

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (sweep --wait-ready)
  - Uses: internal/output

ERROR HANDLING:
  - Returns the last error once retries are exhausted.
  - Honours context cancellation between attempts.

IMPLEMENTATION RULES:
  - Use net/http.
  - Does not model the benchmark protocol; only the health endpoint.

USAGE:
  p := engine.NewProbe(5*time.Second, 60, 5*time.Second)
  err := p.WaitReady(ctx, "http://localhost:30000/health")

SELF-HEALING INSTRUCTIONS:
  - If the server moves its health route, pass the new URL via config.

RELATED FILES:
  - internal/cli/sweep.go

MAINTENANCE:
  - None.
*/

package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"github.com/daryltucker/bench-sweep/internal/output"
)

// Probe polls a server health endpoint.
type Probe struct {
	Client     *http.Client
	MaxRetries int
	RetryDelay time.Duration
}

// NewProbe creates a Probe whose requests time out after timeout.
func NewProbe(timeout time.Duration, maxRetries int, retryDelay time.Duration) *Probe {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// A server still loading weights may accept the connection but not
	// answer; bound the wait for headers separately.
	transport.ResponseHeaderTimeout = timeout

	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Probe{
		Client: &http.Client{
			Transport: transport,
			Timeout:   timeout * 2,
		},
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
	}
}

// WaitReady returns nil as soon as url answers 200 OK.
func (p *Probe) WaitReady(ctx context.Context, url string) error {
	var lastErr error
	for i := 0; i < p.MaxRetries; i++ {
		if i > 0 {
			output.Logger.Info("Server not ready, retrying...", "url", url, "attempt", i+1, "error", lastErr)
			if err := SleepContext(ctx, p.RetryDelay); err != nil {
				return err
			}
		}

		lastErr = p.check(ctx, url)
		if lastErr == nil {
			output.Logger.Info("Server ready", "url", url)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("server at %s not ready after %d attempts: %w", url, p.MaxRetries, lastErr)
}

func (p *Probe) check(ctx context.Context, url string) error {
	trace := &httptrace.ClientTrace{
		GotConn: func(connInfo httptrace.GotConnInfo) {
			output.Logger.Debug("Network: Connected", "remote", connInfo.Conn.RemoteAddr(), "reused", connInfo.Reused)
		},
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		if strings.Contains(err.Error(), "awaiting headers") {
			return fmt.Errorf("header timeout (model loading?): %w", err)
		}
		return fmt.Errorf("network/connection error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bad status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
