// ABOUTME: Fixed-window admission control keyed by (operation, principal)
// ABOUTME: Buckets are process-local and reset when their window elapses

package ratelimit

import (
	"sync"
	"time"
)

// Limit configures the admission policy for a single operation.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of an admission check. RetryAfter is set only
// when the request was denied.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// bucket tracks request counts within the current fixed window.
type bucket struct {
	count     int
	windowEnd time.Time
}

// Limiter applies fixed-window rate limits per (operation, principal) pair.
// Operations with no configured limit are always allowed. Buckets live in
// process memory only; a restart resets them, which is acceptable since the
// limiter bounds abuse rather than guaranteeing correctness.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	buckets map[string]*bucket
	done    chan struct{}
	closed  bool
}

// New creates a limiter with the given per-operation limits.
// A background goroutine periodically drops buckets whose window has passed.
func New(limits map[string]Limit) *Limiter {
	l := &Limiter{
		limits:  limits,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.cleanupWorker()
	return l
}

// Admit checks whether a request for op by principal fits within the
// current window. It never denies while capacity remains.
func (l *Limiter) Admit(op, principal string) Decision {
	spec, ok := l.limits[op]
	if !ok {
		return Decision{Allowed: true}
	}

	key := op + ":" + principal
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.After(b.windowEnd) {
		l.buckets[key] = &bucket{count: 1, windowEnd: now.Add(spec.Window)}
		return Decision{Allowed: true}
	}

	if b.count < spec.Limit {
		b.count++
		return Decision{Allowed: true}
	}

	return Decision{Allowed: false, RetryAfter: b.windowEnd.Sub(now)}
}

// cleanupWorker periodically removes buckets whose window has elapsed.
func (l *Limiter) cleanupWorker() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.done:
			return
		}
	}
}

// cleanup removes expired buckets. An expired bucket would be reset on the
// next Admit anyway; this just bounds memory for one-off principals.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, b := range l.buckets {
		if now.After(b.windowEnd) {
			delete(l.buckets, key)
		}
	}
}

// Close stops the cleanup worker. It is safe to call multiple times.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
}
