package inflight

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Throttle limits submission to a number of payload bytes per second. A nil
// Throttle, or one built with a non-positive rate, never waits.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle allows bytesPerSecond on average with bursts of up to burst
// bytes. A burst below bytesPerSecond is raised to it.
func NewThrottle(bytesPerSecond, burst int) *Throttle {
	if bytesPerSecond <= 0 {
		return &Throttle{}
	}
	if burst < bytesPerSecond {
		burst = bytesPerSecond
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst)}
}

// Wait blocks until n bytes may be submitted. Requests larger than the
// burst are clamped to it, so an oversized batch waits for a full bucket
// rather than failing. Wait only returns an error once ctx is done: a wait
// that would outlast the ctx deadline still runs until the deadline fires.
func (t *Throttle) Wait(ctx context.Context, n int) error {
	if t == nil || t.limiter == nil || n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b := t.limiter.Burst(); n > b {
		n = b
	}

	r := t.limiter.ReserveN(time.Now(), n)
	if !r.OK() {
		return fmt.Errorf("throttle: cannot reserve %d bytes with burst %d", n, t.limiter.Burst())
	}

	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limit is the configured rate in bytes per second, +Inf when unlimited.
func (t *Throttle) Limit() float64 {
	if t == nil || t.limiter == nil {
		return math.Inf(1)
	}
	return float64(t.limiter.Limit())
}
