package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle handling.
var (
	throttleWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "readwise_throttle_waits_total",
		Help: "Total number of waits caused by API throttling",
	})

	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "readwise_throttle_wait_seconds",
		Help:    "Server-specified throttle wait durations",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})

	throttleLimitExceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "readwise_throttle_limit_exceeded_total",
		Help: "Total number of walks aborted because a throttle limit was reached",
	})
)

var (
	// ErrThrottleLimitExceeded is returned when a configured wait limit is reached.
	ErrThrottleLimitExceeded = errors.New("throttle limit exceeded")

	// ErrWaitCancelled is returned when the context ends during a wait.
	ErrWaitCancelled = errors.New("throttle wait cancelled")
)

// Config bounds how long a walk may keep waiting on throttling.
// Zero values mean unbounded, which matches the API contract of retrying
// until the server lets the request through.
type Config struct {
	// MaxConsecutiveWaits caps waits on a single page (0 = unbounded).
	MaxConsecutiveWaits int

	// MaxTotalWait caps cumulative wait time across the walk (0 = unbounded).
	MaxTotalWait time.Duration
}

// DefaultConfig returns the unbounded configuration.
func DefaultConfig() Config {
	return Config{}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Waiter blocks the fetch pipeline for server-specified throttle delays.
// A Waiter belongs to one fetch walk and is not safe for concurrent use.
type Waiter struct {
	config Config
	logger zerolog.Logger
	sleep  SleepFunc
	now    func() time.Time
	state  ThrottleState
}

// NewWaiter creates a new throttle waiter.
func NewWaiter(cfg Config, logger zerolog.Logger) *Waiter {
	return &Waiter{
		config: cfg,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// SetSleepFunc replaces the sleep implementation (for testing).
func (w *Waiter) SetSleepFunc(fn SleepFunc) {
	w.sleep = fn
}

// Wait blocks for the server-specified delay before the same page is retried.
func (w *Waiter) Wait(ctx context.Context, wait time.Duration) error {
	if wait < 0 {
		wait = 0
	}

	if limit := w.config.MaxConsecutiveWaits; limit > 0 && w.state.ConsecutiveWaits >= limit {
		throttleLimitExceededTotal.Inc()
		w.logger.Error().
			Int("consecutive_waits", w.state.ConsecutiveWaits).
			Int("max_consecutive_waits", limit).
			Msg("Throttle wait limit reached")
		return fmt.Errorf("%w: %d consecutive waits", ErrThrottleLimitExceeded, w.state.ConsecutiveWaits)
	}

	if limit := w.config.MaxTotalWait; limit > 0 && w.state.TotalWaited+wait > limit {
		throttleLimitExceededTotal.Inc()
		w.logger.Error().
			Dur("total_waited", w.state.TotalWaited).
			Dur("requested_wait", wait).
			Dur("max_total_wait", limit).
			Msg("Cumulative throttle wait limit reached")
		return fmt.Errorf("%w: waited %s, next wait %s exceeds %s",
			ErrThrottleLimitExceeded, w.state.TotalWaited, wait, limit)
	}

	w.state.recordWait(w.now(), wait)
	throttleWaitsTotal.Inc()
	throttleWaitSeconds.Observe(wait.Seconds())

	w.logger.Warn().
		Dur("wait", wait).
		Int("consecutive_waits", w.state.ConsecutiveWaits).
		Time("resume_at", w.state.ResumeAt).
		Msg("Request throttled, waiting before retry")

	if err := w.sleep(ctx, wait); err != nil {
		w.logger.Warn().Err(err).Msg("Context cancelled during throttle wait")
		return fmt.Errorf("%w: %v", ErrWaitCancelled, err)
	}
	return nil
}

// Succeeded marks the current page as fetched, resetting the consecutive count.
func (w *Waiter) Succeeded() {
	w.state.recordSuccess()
}

// State returns a copy of the current throttle state.
func (w *Waiter) State() ThrottleState {
	return w.state
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
