package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/climate-query-service/internal/observability"
)

// InFlightTracker counts requests currently being served so shutdown can
// wait for them to drain.
type InFlightTracker struct {
	count atomic.Int64
}

func (t *InFlightTracker) Increment() {
	t.count.Add(1)
	observability.HTTPRequestsInFlight.Inc()
}

func (t *InFlightTracker) Decrement() {
	t.count.Add(-1)
	observability.HTTPRequestsInFlight.Dec()
}

func (t *InFlightTracker) Count() int64 {
	return t.count.Load()
}

// WaitForZero blocks until the count reaches zero or ctx is done, re-checking every checkInterval.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if t.Count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Middleware counts the wrapped request as in flight until it returns.
func (t *InFlightTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Increment()
		defer t.Decrement()
		next.ServeHTTP(w, r)
	})
}

var globalInFlightTracker = &InFlightTracker{}

// InFlightCount returns the number of requests the router is serving.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// WaitForInFlight blocks until router requests drain or ctx is done.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return globalInFlightTracker.WaitForZero(ctx, checkInterval)
}
