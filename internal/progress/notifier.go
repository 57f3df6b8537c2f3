package progress

import (
	"context"
	"time"
)

// Emitter pushes a snapshot to a single connected client. Returning an
// error stops the notifier (e.g. the client went away mid-write).
type Emitter func(Snapshot) error

// Notify samples the source once per interval and hands each snapshot to
// emit, until the context is cancelled (the client disconnected) or emit
// fails. The ticker is always released before returning.
func Notify(ctx context.Context, interval time.Duration, source Source, emit Emitter) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := emit(source()); err != nil {
				return err
			}
		}
	}
}
