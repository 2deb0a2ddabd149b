package api

import (
	"context"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientIdleTTL is how long a client's bucket survives without traffic.
const clientIdleTTL = 3 * time.Minute

// ClientLimiter gives every client address its own token bucket.
type ClientLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	*rate.Limiter
	seen time.Time
}

// NewClientLimiter allows rps requests per second per client, with bursts
// up to burst. Idle buckets are dropped until ctx ends.
func NewClientLimiter(ctx context.Context, rps float64, burst int) *ClientLimiter {
	cl := &ClientLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	go sweepEvery(ctx, time.Minute, cl.forgetIdle)
	return cl
}

func (cl *ClientLimiter) bucketFor(client string) *bucket {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	b, ok := cl.buckets[client]
	if !ok {
		b = &bucket{Limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.buckets[client] = b
	}
	b.seen = cl.now()
	return b
}

func (cl *ClientLimiter) forgetIdle(now time.Time) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for client, b := range cl.buckets {
		if now.Sub(b.seen) > clientIdleTTL {
			delete(cl.buckets, client)
		}
	}
}

// Clients reports how many buckets are live.
func (cl *ClientLimiter) Clients() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.buckets)
}

// Middleware rejects requests over the client's rate with 429. Retry-After
// is the wait until the next token, rounded up to whole seconds.
func (cl *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := cl.bucketFor(clientIP(r))
		res := b.ReserveN(cl.now(), 1)
		if !res.OK() {
			WriteTooManyRequests(w, 1)
			return
		}
		if wait := res.DelayFrom(cl.now()); wait > 0 {
			res.CancelAt(cl.now())
			WriteTooManyRequests(w, int(math.Ceil(wait.Seconds())))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}
