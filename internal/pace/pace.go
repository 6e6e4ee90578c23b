// Package pace enforces minimum spacing between external calls. The
// remote platform penalizes high-frequency automation, so every call
// site goes through a shared Pacer rather than sleeping on its own.
package pace

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Class names an independently paced group of external calls.
type Class string

const (
	// ClassFetch covers the bulk read calls issued during analysis.
	ClassFetch Class = "fetch"
	// ClassUnfollow covers unfollow actions, spaced much wider.
	ClassUnfollow Class = "unfollow"
)

// Pacer serializes calls per class. One limiter per class, burst 1, so
// the first call proceeds immediately and each subsequent call waits out
// the configured interval. Waiters within a class are served in arrival
// order; classes never block each other.
type Pacer struct {
	mu       sync.Mutex
	limiters map[Class]*rate.Limiter
}

func New() *Pacer {
	return &Pacer{limiters: make(map[Class]*rate.Limiter)}
}

// SetInterval configures the minimum gap between calls of a class.
// A non-positive interval disables pacing for the class.
func (p *Pacer) SetInterval(class Class, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if interval <= 0 {
		delete(p.limiters, class)
		return
	}
	p.limiters[class] = rate.NewLimiter(rate.Every(interval), 1)
}

// Acquire blocks until a call of the given class may proceed, or until
// ctx is cancelled. Unconfigured classes pass through immediately.
func (p *Pacer) Acquire(ctx context.Context, class Class) error {
	p.mu.Lock()
	l := p.limiters[class]
	p.mu.Unlock()
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}
