package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
)

// replay is a stored response plus a fingerprint of the request that
// produced it. A replay that is not done holds the key for a request
// still being served.
type replay struct {
	fingerprint [sha256.Size]byte
	done        bool
	status      int
	header      http.Header
	body        []byte
	expires     time.Time
}

// ReplayCache remembers responses to POSTs that carried an
// Idempotency-Key, so a client retrying a calculate call gets the first
// answer back instead of a second history entry.
type ReplayCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*replay
}

// NewReplayCache keeps responses for ttl. Expired entries are dropped
// until ctx ends.
func NewReplayCache(ctx context.Context, ttl time.Duration) *ReplayCache {
	c := &ReplayCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*replay),
	}
	go sweepEvery(ctx, ttl/2, c.expire)
	return c
}

// claim returns the live entry for key, or reserves key for the caller.
// owned is true when the caller made the reservation and must finish or
// release it.
func (c *ReplayCache) claim(key string, fp [sha256.Size]byte) (rp replay, owned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if cur, ok := c.entries[key]; ok && now.Before(cur.expires) {
		return *cur, false
	}
	c.entries[key] = &replay{fingerprint: fp, expires: now.Add(c.ttl)}
	return replay{}, true
}

func (c *ReplayCache) finish(key string, status int, header http.Header, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rp, ok := c.entries[key]
	if !ok || rp.done {
		return
	}
	rp.done = true
	rp.status = status
	rp.header = header
	rp.body = body
	rp.expires = c.now().Add(c.ttl)
}

// release drops an unfinished reservation so the request can be retried.
func (c *ReplayCache) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rp, ok := c.entries[key]; ok && !rp.done {
		delete(c.entries, key)
	}
}

func (c *ReplayCache) expire(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, rp := range c.entries {
		if !now.Before(rp.expires) {
			delete(c.entries, k)
		}
	}
}

// Len reports how many responses are cached.
func (c *ReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// responseCapture tees the response so it can be stored after the
// handler returns.
type responseCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.status = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Middleware replays the stored response when a POST repeats an
// Idempotency-Key on the same path with the same body. Reusing a key with
// a different body is a 409, and so is repeating it while the first
// request is still being served. Server errors and 429s are not stored,
// so those requests can be retried.
func (c *ReplayCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyKeyHeader)
		if r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		key = r.URL.Path + "\x00" + key

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			WriteBadRequest(w, r, "could not read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		fp := sha256.Sum256(body)

		rp, owned := c.claim(key, fp)
		if !owned {
			if rp.fingerprint != fp {
				WriteConflict(w, r, "Idempotency-Key was already used with a different request body")
				return
			}
			if !rp.done {
				WriteConflict(w, r, "A request with this Idempotency-Key is still in progress")
				return
			}
			for k, vals := range rp.header {
				if k == requestIDHeader {
					continue
				}
				w.Header()[k] = append([]string(nil), vals...)
			}
			w.Header().Set(replayedHeader, "true")
			w.WriteHeader(rp.status)
			_, _ = w.Write(rp.body)
			return
		}

		defer c.release(key)
		capture := &responseCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(capture, r)

		if capture.status < http.StatusInternalServerError && capture.status != http.StatusTooManyRequests {
			c.finish(key, capture.status, w.Header().Clone(), bytes.Clone(capture.body.Bytes()))
		}
	})
}
