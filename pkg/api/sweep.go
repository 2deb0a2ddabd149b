package api

import (
	"context"
	"time"
)

// sweepEvery calls fn every interval until ctx ends. The session store,
// the client limiter and the replay cache all expire entries this way.
func sweepEvery(ctx context.Context, interval time.Duration, fn func(now time.Time)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(now)
		}
	}
}
