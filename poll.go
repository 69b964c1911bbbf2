package viewcache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// poll calls tick every interval until ctx is done. The timer is rearmed only
// after tick returns, so ticks never overlap and a slow fetch delays the next.
func poll(ctx context.Context, clock clockwork.Clock, interval time.Duration, tick func(ctx context.Context)) {
	for {
		t := clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.Chan():
		}
		tick(ctx)
	}
}
