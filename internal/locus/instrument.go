package locus

import (
	"context"
	"time"

	"locuscore/internal/metrics"
)

// InstrumentedClient wraps a Client with Prometheus counters and latency
// histograms. Wrap the production client once at the composition root.
type InstrumentedClient struct {
	next Client
}

// Instrument wraps the given client.
func Instrument(next Client) *InstrumentedClient {
	return &InstrumentedClient{next: next}
}

// Append implements Client.
func (c *InstrumentedClient) Append(ctx context.Context, req AppendRequest) (AppendResult, error) {
	start := time.Now()
	res, err := c.next.Append(ctx, req)
	metrics.StoreCallDuration.WithLabelValues("append").Observe(time.Since(start).Seconds())
	metrics.StoreCallsTotal.WithLabelValues("append", appendOutcome(res, err)).Inc()
	return res, err
}

// Search implements Client.
func (c *InstrumentedClient) Search(ctx context.Context, req SearchRequest) ([]Event, error) {
	start := time.Now()
	events, err := c.next.Search(ctx, req)
	metrics.StoreCallDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.StoreCallsTotal.WithLabelValues("search", outcome).Inc()
	return events, err
}

func appendOutcome(res AppendResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case !res.Stored():
		return "rejected"
	default:
		return "ok"
	}
}
