package gate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// stale caller buckets are evicted after this much inactivity.
	bucketTTL = 3 * time.Minute
	// sweeps run at most this often, piggybacked on bucket lookups.
	sweepInterval = time.Minute
)

// TokenBucketLimiter is a per-caller RateLimiter backed by token buckets.
// Allow peeks at the caller's bucket without consuming; Record consumes one
// token. Callers with no activity for a few minutes are evicted to keep the
// bucket map bounded.
type TokenBucketLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*callerBucket
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter creates a limiter allowing rps requests per second
// with the given burst per caller.
func NewTokenBucketLimiter(rps float64, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		buckets:   make(map[string]*callerBucket),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// Allow reports whether the caller currently has capacity. No capacity is
// consumed; the gate records consumption separately after a successful
// invocation.
func (l *TokenBucketLimiter) Allow(req Request) bool {
	return l.bucket(req).Tokens() >= 1
}

// Record consumes one token from the caller's bucket.
func (l *TokenBucketLimiter) Record(req Request) {
	l.bucket(req).AllowN(time.Now(), 1)
}

func (l *TokenBucketLimiter) bucket(req Request) *rate.Limiter {
	key := req.Caller
	if key == "" {
		key = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > sweepInterval {
		for caller, b := range l.buckets {
			if now.Sub(b.lastSeen) > bucketTTL {
				delete(l.buckets, caller)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &callerBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}
