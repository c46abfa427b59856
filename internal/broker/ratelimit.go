package broker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter holds one token bucket per broker: RequestsPerMinute tokens
// refilled across a rolling minute, with a burst of the same size.
// It is shared by every Source of the process.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	catalog  Catalog

	// OnWait, if set, is called after each Wait with the time spent blocked.
	OnWait func(broker string, waited time.Duration)
}

// NewRateLimiter creates a limiter sized from catalog.
func NewRateLimiter(catalog Catalog) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		catalog:  catalog,
	}
}

func (r *RateLimiter) limiter(broker string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[broker]; ok {
		return l
	}
	n := r.catalog[broker].RequestsPerMinute
	if n <= 0 {
		n = 10
	}
	l := rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	r.limiters[broker] = l
	return l
}

// Wait blocks until broker has a request token or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, broker string) error {
	start := time.Now()
	err := r.limiter(broker).Wait(ctx)
	if r.OnWait != nil {
		r.OnWait(broker, time.Since(start))
	}
	return err
}

// Allow reports whether a request to broker may proceed now without waiting.
func (r *RateLimiter) Allow(broker string) bool {
	return r.limiter(broker).Allow()
}
