package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrReadinessTimeout is returned when the node did not answer its health
// endpoint within the configured bound.
var ErrReadinessTimeout = errors.New("validator did not become ready")

// Readiness controls how long the caller waits before treating a freshly
// started session as ready.
type Readiness struct {
	Delay   time.Duration // fixed wait used when URL is empty
	URL     string        // optional health endpoint to poll instead
	Timeout time.Duration // bound on the poll
	Client  *http.Client  // defaults to a client with a short timeout
}

// WaitReady blocks until the session can be used. With no URL it sleeps
// for Delay and assumes readiness; nothing is probed. With a URL it polls
// until the endpoint answers 2xx, backing off exponentially, and fails
// with ErrReadinessTimeout once Timeout has elapsed. Cancelling ctx
// returns ctx.Err().
func WaitReady(ctx context.Context, r Readiness) error {
	if r.URL == "" {
		return sleep(ctx, r.Delay)
	}

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return fmt.Errorf("readiness url: %w", err)
	}

	probe := func() error {
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("health check %s: %s", r.URL, resp.Status)
		}
		return nil
	}

	err = backoff.Retry(probe, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w after %s: %v", ErrReadinessTimeout, timeout, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
