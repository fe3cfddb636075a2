// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"time"
)

// maxSweepInterval caps how long a persistent store waits between sweeps.
const maxSweepInterval = 24 * time.Hour

// cutoff returns the oldest last access time a live key may have at now.
func cutoff(now time.Time, ttl time.Duration) time.Time {
	return now.Add(-ttl)
}

// sweepInterval returns how often expired keys are removed for ttl.
func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Minute
	}
	return min(ttl/2, maxSweepInterval)
}

// sweepLoop calls sweep every interval until ctx is canceled.
func sweepLoop(ctx context.Context, interval time.Duration, sweep func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}
