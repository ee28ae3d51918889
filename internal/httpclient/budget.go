package httpclient

import (
	"context"
	"sync"
	"time"
)

type budgetKey struct{}

// budget is a deadline that only runs while nobody is queued for a shared
// resource.
type budget struct {
	mu      sync.Mutex
	timer   *time.Timer
	left    time.Duration
	since   time.Time
	waiters int
	expired bool
}

// WithBudget returns a context that is cancelled with cause
// context.DeadlineExceeded once d of working time has passed. Time spent
// between Waiting and its resume is not charged, so work queued behind a
// per-host gate or a probe slot keeps its full allowance.
func WithBudget(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	b := &budget{left: d, since: time.Now()}
	b.timer = time.AfterFunc(d, func() {
		b.mu.Lock()
		b.expired = true
		b.mu.Unlock()
		cancel(context.DeadlineExceeded)
	})
	stop := func() {
		b.timer.Stop()
		cancel(context.Canceled)
	}
	return context.WithValue(ctx, budgetKey{}, b), stop
}

// Waiting stops charging ctx's budget until resume is called. It is a no-op
// when ctx carries no budget. resume may be called more than once.
func Waiting(ctx context.Context) (resume func()) {
	b, _ := ctx.Value(budgetKey{}).(*budget)
	if b == nil {
		return func() {}
	}
	b.pause()
	var once sync.Once
	return func() { once.Do(b.resume) }
}

func (b *budget) pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiters++
	if b.waiters > 1 || b.expired {
		return
	}
	if b.timer.Stop() {
		b.left -= time.Since(b.since)
	}
}

func (b *budget) resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiters--
	if b.waiters > 0 || b.expired {
		return
	}
	b.since = time.Now()
	b.timer.Reset(max(b.left, 0))
}

// Cause returns why ctx ended, preferring a budget's DeadlineExceeded over
// the plain Canceled that ctx.Err reports for it.
func Cause(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}
