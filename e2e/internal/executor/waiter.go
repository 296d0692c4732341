package executor

import (
	"context"
	"time"
)

// sleepCtx sleeps for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// waitUntil blocks until offset seconds have passed since start
func (r *Runner) waitUntil(ctx context.Context, start time.Time, offset int) error {
	target := start.Add(time.Duration(offset) * time.Second)
	return r.sleep(ctx, target.Sub(r.now()))
}
