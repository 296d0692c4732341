package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Guard wraps a subsystem for an errgroup. A panic is logged and swallowed so
// sibling subsystems keep running; ordinary errors are returned.
func Guard(ctx context.Context, logger *slog.Logger, name string, fn func(ctx context.Context) error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Subsystem panicked",
					"subsystem", name,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()))
				err = nil
			}
		}()
		return fn(ctx)
	}
}
