// Package orchestrator fans a fetch cycle out across every configured
// discovery source concurrently, with per-source isolation: one slow or
// failing adapter neither delays nor cancels the others, and total
// cycle latency is bounded by the slowest single source.
package orchestrator

import (
	"context"
	"log"
	"time"

	"topolens/internal/adapter"
	"topolens/internal/domain"
	"topolens/internal/metrics"
)

// SourceFailure records one adapter's failure during a cycle.
type SourceFailure struct {
	Source domain.Source
	Err    error
}

// Result is the partial-success outcome of one fetch cycle.
type Result struct {
	Observations []domain.DeviceObservation
	Hints        []adapter.Hint
	Availability map[domain.Source]bool
	Failures     []SourceFailure
}

// Orchestrator invokes all configured adapters in parallel under a hard
// per-adapter timeout.
type Orchestrator struct {
	adapters       []adapter.Adapter
	hints          adapter.HintSource
	adapterTimeout time.Duration
	metrics        *metrics.Registry
}

// New creates an orchestrator. hints may be nil when no scraper is
// deployed.
func New(adapters []adapter.Adapter, hints adapter.HintSource, adapterTimeout time.Duration, m *metrics.Registry) *Orchestrator {
	if adapterTimeout <= 0 {
		adapterTimeout = 30 * time.Second
	}
	return &Orchestrator{
		adapters:       adapters,
		hints:          hints,
		adapterTimeout: adapterTimeout,
		metrics:        m,
	}
}

type fetchOutcome struct {
	source domain.Source
	obs    []domain.DeviceObservation
	err    error
}

// FetchAll runs one discovery cycle for a scope. It returns
// domain.ErrNoSources only when every identity adapter failed; any
// partial result is a success. The caller's context carries the overall
// cycle deadline, which cancels outstanding adapter calls on expiry.
func (o *Orchestrator) FetchAll(ctx context.Context, scope string) (*Result, error) {
	res := &Result{Availability: make(map[domain.Source]bool, len(o.adapters)+1)}
	for _, a := range o.adapters {
		res.Availability[a.Source()] = false
	}

	outcomes := make(chan fetchOutcome, len(o.adapters))
	for _, a := range o.adapters {
		go func(a adapter.Adapter) {
			actx, cancel := context.WithTimeout(ctx, o.adapterTimeout)
			defer cancel()

			start := time.Now()
			obs, err := a.Fetch(actx, scope)
			if err != nil {
				log.Printf("orchestrator: source %s failed after %s: %v", a.Source(), time.Since(start).Round(time.Millisecond), err)
			}
			outcomes <- fetchOutcome{source: a.Source(), obs: obs, err: err}
		}(a)
	}

	// Scraped hints run alongside the identity adapters but are pure
	// visualization metadata: their failure never counts toward total
	// source unavailability.
	hintCh := make(chan []adapter.Hint, 1)
	if o.hints != nil {
		go func() {
			actx, cancel := context.WithTimeout(ctx, o.adapterTimeout)
			defer cancel()
			hints, err := o.hints.Hints(actx, scope)
			if err != nil {
				log.Printf("orchestrator: scraped hints unavailable: %v", err)
				hintCh <- nil
				return
			}
			hintCh <- hints
		}()
	}

	available := 0
	for range o.adapters {
		out := <-outcomes
		if out.err != nil {
			res.Failures = append(res.Failures, SourceFailure{Source: out.source, Err: &domain.SourceError{Source: out.source, Err: out.err}})
			if o.metrics != nil {
				o.metrics.SourceFailuresTotal.WithLabelValues(string(out.source)).Inc()
			}
			continue
		}
		available++
		res.Availability[out.source] = true
		res.Observations = append(res.Observations, out.obs...)
	}

	if o.hints != nil {
		res.Hints = <-hintCh
		res.Availability[domain.SourceScraped] = res.Hints != nil
	}

	if o.metrics != nil {
		for src, up := range res.Availability {
			v := 0.0
			if up {
				v = 1
			}
			o.metrics.SourceUp.WithLabelValues(string(src)).Set(v)
		}
	}

	// Hints never count: a cycle with no identity source is a failed
	// cycle even when the scraper answered.
	if available == 0 {
		return res, domain.ErrNoSources
	}
	return res, nil
}
