// Package adapter wraps each discovery source behind a common interface
// producing normalized DeviceObservations. Adapters are independent:
// each carries its own rate limiter and retry budget, and a failure in
// one never blocks another.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"topolens/internal/domain"
)

// Adapter is one discovery source. Fetch returns the observations seen
// for a scope, or an error that the orchestrator records as source
// unavailability.
type Adapter interface {
	// Name returns the unique identifier for this adapter instance.
	Name() string

	// Source returns which discovery source this adapter feeds.
	Source() domain.Source

	// Fetch queries the source and normalizes its records. Observations
	// with unparseable MACs are dropped and logged, never returned.
	Fetch(ctx context.Context, scope string) ([]domain.DeviceObservation, error)
}

// Doer sends an authenticated HTTP request. The primary-vendor adapters
// use the session manager; the secondary vendor brings its own client.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Options configure an adapter's self-throttling.
type Options struct {
	// RateLimit is the minimum delay between calls to the target.
	RateLimit time.Duration
	// MaxRetries bounds rate-limit retry attempts before the call
	// degrades to source unavailability.
	MaxRetries uint64
}

func (o *Options) applyDefaults() {
	if o.RateLimit <= 0 {
		o.RateLimit = 2 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
}

// restClient is the shared GET-and-decode helper: waits on the adapter's
// own limiter, retries HTTP 429 with exponential backoff, and treats
// every other failure as permanent for this cycle.
type restClient struct {
	doer       Doer
	limiter    *rate.Limiter
	maxRetries uint64
}

func newRESTClient(doer Doer, opts Options) *restClient {
	opts.applyDefaults()
	return &restClient{
		doer:       doer,
		limiter:    rate.NewLimiter(rate.Every(opts.RateLimit), 1),
		maxRetries: opts.MaxRetries,
	}
}

func (c *restClient) getJSON(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.doer.Do(ctx, req)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return domain.ErrRateLimited
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return backoff.Permanent(fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, body))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("GET %s: decode: %w", url, err))
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(attempt, bo); err != nil {
		return err
	}
	return nil
}

// normalizeMAC parses a raw MAC, logging and rejecting records whose
// MAC cannot be normalized. The rejection log carries the source and
// raw value for operability.
func normalizeMAC(source domain.Source, raw string) (domain.MAC, bool) {
	mac, err := domain.NormalizeMAC(raw)
	if err != nil {
		log.Printf("adapter %s: dropping record with unparseable MAC %q: %v", source, raw, err)
		return "", false
	}
	return mac, true
}
