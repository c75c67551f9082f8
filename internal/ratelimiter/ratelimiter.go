package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter throttles events per key using one token bucket per key.
//
// It wraps golang.org/x/time/rate and is used to slow down repeated failed
// logins for the same username:
//   - Blocked reports whether the key has run out of tokens, without consuming one
//   - Record consumes a token for the key (one failed attempt)
//   - Reset forgets the key (e.g. after a successful login)
//
// Buckets that have refilled completely carry no information and are pruned
// lazily, so the number of tracked keys stays bounded by recent activity.
//
// Thread safety:
// All methods are safe for concurrent use.
type KeyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	buckets  map[string]*rate.Limiter
	now      func() time.Time
	lastScan time.Time
}

// pruneInterval bounds how often idle buckets are swept.
const pruneInterval = time.Minute

// NewKeyed creates a limiter allowing perMinute events per key per minute
// with the given burst.
//
// Special cases:
//   - perMinute = 0: No limiting (Blocked always returns false)
//   - burst = 0: Defaults to perMinute
//
// Example:
//
//	// 5 failed logins per minute per username, at most 5 in a row
//	limiter := NewKeyed(5, 5)
func NewKeyed(perMinute, burst uint) *KeyedLimiter {
	l := &KeyedLimiter{
		limit:   rate.Inf,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
	if perMinute == 0 {
		return l
	}
	if burst == 0 {
		burst = perMinute
	}
	l.limit = rate.Every(time.Minute / time.Duration(perMinute))
	l.burst = int(burst)
	return l
}

// WithClock replaces time.Now, for tests.
func (l *KeyedLimiter) WithClock(now func() time.Time) *KeyedLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// Enabled reports whether the limiter restricts anything.
func (l *KeyedLimiter) Enabled() bool {
	return l.limit != rate.Inf
}

// Blocked reports whether key has no token left. It never consumes a token.
func (l *KeyedLimiter) Blocked(key string) bool {
	if !l.Enabled() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		return false
	}
	return bucket.TokensAt(l.now()) < 1
}

// Record consumes one token for key and reports whether one was available.
func (l *KeyedLimiter) Record(key string) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = bucket
	}
	return bucket.AllowN(now, 1)
}

// Reset forgets everything recorded for key.
func (l *KeyedLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of keys currently tracked.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// pruneLocked drops buckets that refilled to capacity. Caller holds mu.
func (l *KeyedLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastScan) < pruneInterval {
		return
	}
	l.lastScan = now

	for key, bucket := range l.buckets {
		if bucket.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}
