// Package concurrency holds the gateway's general-purpose concurrency
// primitives — currently a single bounded semaphore, pulled out of a
// larger suite of per-org locking/dedup/counter primitives down to the
// one this gateway actually needs: capping Argon2id's parallelism so a
// burst of login/register attempts cannot starve the HTTP worker pool
// with CPU-bound KDF work (spec §5).
package concurrency

import (
	"context"
	"time"
)

// Semaphore bounds concurrent holders of a single resource.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a semaphore allowing up to limit concurrent
// holders. limit<=0 is treated as 1, so only one holder at a time.
func NewSemaphore(limit int) *Semaphore {
	if limit <= 0 {
		limit = 1
	}
	return &Semaphore{slots: make(chan struct{}, limit)}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AcquireTimeout is a convenience wrapper for callers without an
// existing context.
func (s *Semaphore) AcquireTimeout(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Acquire(ctx) == nil
}

// Release frees a slot. Calling Release without a matching Acquire is
// a programmer error and is ignored rather than panicking.
func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
	}
}

// InUse reports how many slots are currently held.
func (s *Semaphore) InUse() int {
	return len(s.slots)
}
