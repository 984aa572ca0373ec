package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 2 * time.Minute
)

// Limiter paces calls to one upstream API and tracks a 429 backoff.
type Limiter struct {
	limiter *rate.Limiter
	name    string

	mu      sync.Mutex
	backoff time.Duration
	until   time.Time
}

// NewLimiter allows perMinute calls with a small burst.
func NewLimiter(name string, perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		name:    name,
	}
}

// Wait blocks until a token is available and any active backoff has elapsed.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	wait := time.Until(l.until)
	l.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return l.limiter.Wait(ctx)
}

// SignalRateLimited doubles the backoff after a 429.
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.backoff == 0 {
		l.backoff = minBackoff
	} else {
		l.backoff *= 2
	}
	if l.backoff > maxBackoff {
		l.backoff = maxBackoff
	}
	l.until = time.Now().Add(l.backoff)
}

// ResetBackoff clears the backoff after a successful call.
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = 0
	l.until = time.Time{}
}

func (l *Limiter) Backoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

func (l *Limiter) Name() string {
	return l.name
}

// KeyedLimiter keeps one token bucket per key, e.g. per client IP on the trigger endpoint.
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*keyedBucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
}

type keyedBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows perMinute events per key. Buckets idle longer than
// ten minutes are dropped on the next call.
func NewKeyedLimiter(perMinute int) *KeyedLimiter {
	if perMinute <= 0 {
		perMinute = 6
	}
	burst := perMinute / 3
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{
		buckets: make(map[string]*keyedBucket),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		idle:    10 * time.Minute,
	}
}

// Allow consumes one token for key if available.
func (k *KeyedLimiter) Allow(key string) bool {
	now := time.Now()

	k.mu.Lock()
	defer k.mu.Unlock()

	for id, b := range k.buckets {
		if now.Sub(b.lastSeen) > k.idle {
			delete(k.buckets, id)
		}
	}

	b, ok := k.buckets[key]
	if !ok {
		b = &keyedBucket{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}
