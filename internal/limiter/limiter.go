// Package limiter provides a bounded-parallelism runner with FIFO admission.
package limiter

import (
	"container/list"
	"context"
	"sync"
)

// DefaultLimit is the admission bound used when none is configured.
const DefaultLimit = 6

// Limiter admits at most limit submitted functions to run concurrently.
// Waiting submissions are admitted in submission order; completion of any
// running item immediately admits the head of the queue. One item failing
// never blocks or cancels the others.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	running int
	waiters *list.List // of chan struct{}
}

func New(limit int) *Limiter {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Limiter{limit: limit, waiters: list.New()}
}

// Do runs fn once a slot is available and returns fn's error. It blocks the
// caller until fn has completed or ctx is cancelled while still queued; a
// function already admitted always runs to completion.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return fn()
}

// Running reports the number of currently admitted items.
func (l *Limiter) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Limiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.running < l.limit && l.waiters.Len() == 0 {
		l.running++
		l.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	elem := l.waiters.PushBack(ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-ready:
			// Admitted between ctx firing and taking the lock; give the
			// slot to the next waiter instead of leaking it.
			l.releaseLocked()
			l.mu.Unlock()
			return ctx.Err()
		default:
		}
		l.waiters.Remove(elem)
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	l.releaseLocked()
	l.mu.Unlock()
}

// releaseLocked hands the freed slot to the oldest waiter, keeping the
// running count unchanged, or decrements it when the queue is empty.
func (l *Limiter) releaseLocked() {
	if front := l.waiters.Front(); front != nil {
		l.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	l.running--
}
