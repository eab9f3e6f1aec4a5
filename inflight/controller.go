// Package inflight bounds the number of concurrent batch writes and,
// optionally, the byte rate at which batches are submitted.
package inflight

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const DefaultMaxInFlight = 16

// Controller hands out at most a fixed number of permits. Waiters are served
// in the order they called Acquire.
type Controller struct {
	sem      *semaphore.Weighted
	max      int
	inFlight atomic.Int64
}

// Permit is held for the duration of one batch write.
type Permit struct {
	c    *Controller
	once sync.Once
}

func NewController(maxInFlight int) (*Controller, error) {
	if maxInFlight < 1 {
		return nil, fmt.Errorf("inflight: max in flight must be at least 1, got %d", maxInFlight)
	}

	return &Controller{
		sem: semaphore.NewWeighted(int64(maxInFlight)),
		max: maxInFlight,
	}, nil
}

// Acquire blocks until a permit is free or ctx is done.
func (c *Controller) Acquire(ctx context.Context) (*Permit, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	c.inFlight.Add(1)
	return &Permit{c: c}, nil
}

// TryAcquire takes a permit only when one is free right now.
func (c *Controller) TryAcquire() (*Permit, bool) {
	if !c.sem.TryAcquire(1) {
		return nil, false
	}
	c.inFlight.Add(1)
	return &Permit{c: c}, true
}

// Release returns p to the controller. Releasing a permit more than once,
// or a nil permit, does nothing.
func (c *Controller) Release(p *Permit) {
	if p == nil || p.c != c {
		return
	}
	p.once.Do(
		func() {
			c.inFlight.Add(-1)
			c.sem.Release(1)
		},
	)
}

// Release is shorthand for returning the permit to its controller.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.c.Release(p)
}

func (c *Controller) InFlight() int {
	return int(c.inFlight.Load())
}

func (c *Controller) Max() int {
	return c.max
}

// Wait blocks until every permit has been returned or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, int64(c.max)); err != nil {
		return err
	}
	c.sem.Release(int64(c.max))
	return nil
}
