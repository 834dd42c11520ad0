// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/luxfi/geth/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/loom/events"
	loomprom "github.com/luxfi/loom/metrics/prometheus"
)

// healthMetrics turns the events.HealthEvent stream into named counters on a
// geth-style metrics.Registry, exposed over HTTP in the Prometheus exposition
// format via metrics/prometheus.Gatherer, per spec.md §6's health-event
// variants (SwapLineEstimationError, PoolDisabled, QueueOverflow).
type healthMetrics struct {
	registry metrics.Registry

	swapLineEstimationError *metrics.Counter
	poolDisabled            *metrics.Counter
	queueOverflow           *metrics.Counter
}

func newHealthMetrics() *healthMetrics {
	r := metrics.NewRegistry()
	return &healthMetrics{
		registry:                 r,
		swapLineEstimationError:  metrics.NewRegisteredCounter("loom/health/swapline_estimation_error", r),
		poolDisabled:             metrics.NewRegisteredCounter("loom/health/pool_disabled", r),
		queueOverflow:            metrics.NewRegisteredCounter("loom/health/queue_overflow", r),
	}
}

// handle implements the events.Pump handler signature for events.HealthEvent.
func (h *healthMetrics) handle(_ context.Context, evt events.HealthEvent) error {
	switch {
	case evt.SwapLineEstimationError != nil:
		h.swapLineEstimationError.Inc(1)
	case evt.PoolDisabled != nil:
		h.poolDisabled.Inc(1)
	case evt.QueueOverflow != nil:
		h.queueOverflow.Inc(1)
	}
	return nil
}

// serve exposes h's registry at addr/metrics until ctx is cancelled. An empty
// addr disables the endpoint without erroring, for deployments that scrape
// via a sidecar or don't scrape at all.
func (h *healthMetrics) serve(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(loomprom.NewGatherer(h.registry), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("cmd/loom: metrics server: %w", err)
		}
		return nil
	}
}
