package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mnehpets/sigrpc/jsonrpc"
)

// DefaultIdleTimeout is how long a client's bucket is kept after its last call.
const DefaultIdleTimeout = 10 * time.Minute

// RateLimiter limits each client address to a steady call rate with bursts.
// It implements jsonrpc.Validator.
type RateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateOption configures a RateLimiter.
type RateOption func(*RateLimiter)

// WithIdleTimeout sets how long an unused client bucket is retained.
func WithIdleTimeout(d time.Duration) RateOption {
	return func(l *RateLimiter) { l.idle = d }
}

// WithClock replaces the limiter's time source.
func WithClock(now func() time.Time) RateOption {
	return func(l *RateLimiter) { l.now = now }
}

// NewRateLimiter returns a limiter allowing perSecond calls per client, with
// bursts of up to burst calls. A burst below 1 is treated as 1.
func NewRateLimiter(perSecond float64, burst int, opts ...RateOption) *RateLimiter {
	l := &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   max(burst, 1),
		idle:    DefaultIdleTimeout,
		now:     time.Now,
		clients: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// ValidateCall implements jsonrpc.Validator.
func (l *RateLimiter) ValidateCall(_ context.Context, call *jsonrpc.Call, _ *jsonrpc.Request) error {
	now := l.now()
	if l.bucket(call.ClientAddr, now).AllowN(now, 1) {
		return nil
	}
	return jsonrpc.ServerError(CodeRateLimited, "Rate limit exceeded",
		fmt.Sprintf("At most %g calls per second are allowed, in bursts of %d.", float64(l.limit), l.burst))
}

func (l *RateLimiter) bucket(addr string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idle {
		for k, b := range l.clients {
			if now.Sub(b.seen) >= l.idle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.clients[addr]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[addr] = b
	}
	b.seen = now
	return b.lim
}

// Len reports the number of client buckets currently held.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
