package processor

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/merchantpulse/attribution/internal/logger"
)

// RateLimiter paces database page scans so diagnostics reports never
// starve the session store.
type RateLimiter struct {
	limiter *rate.Limiter
	logger  logger.Logger
}

// NewRateLimiter creates a new rate limiter.
// rps: requests per second
// burst: maximum burst size
func NewRateLimiter(rps, burst int, log logger.Logger) *RateLimiter {
	if rps <= 0 {
		rps = 100
	}
	if burst <= 0 {
		burst = rps
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  log,
	}
}

// Wait waits until rate limit allows the operation
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		r.logger.Warn("rate limiter wait failed", logger.Error(err))
		return err
	}
	return nil
}

// Allow checks if an operation is allowed without waiting
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Reserve reserves a token and returns a reservation
func (r *RateLimiter) Reserve() *rate.Reservation {
	return r.limiter.Reserve()
}

// SetLimit updates the rate limit
func (r *RateLimiter) SetLimit(rps int) {
	r.limiter.SetLimit(rate.Limit(rps))
	r.logger.Info("rate limit updated", logger.Int("new_rps", rps))
}

// SetBurst updates the burst size
func (r *RateLimiter) SetBurst(burst int) {
	r.limiter.SetBurst(burst)
	r.logger.Info("burst size updated", logger.Int("new_burst", burst))
}
