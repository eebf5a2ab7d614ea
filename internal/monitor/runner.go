package monitor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunAll starts every loop and blocks until ctx is cancelled, then stops
// them concurrently, giving each stopTimeout to finish an in-flight cycle.
// Each loop polls its own source against its own checkpoint, so sources
// advance independently.
func RunAll(ctx context.Context, stopTimeout time.Duration, loops ...*Loop) error {
	started := make([]*Loop, 0, len(loops))
	for _, l := range loops {
		if err := l.Start(ctx); err != nil {
			stopAll(started, stopTimeout)
			return fmt.Errorf("start loop %s: %w", l.source.Name(), err)
		}
		started = append(started, l)
	}

	<-ctx.Done()
	return stopAll(started, stopTimeout)
}

func stopAll(loops []*Loop, stopTimeout time.Duration) error {
	var g errgroup.Group
	for _, l := range loops {
		l := l
		g.Go(func() error {
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return l.Stop(stopCtx)
		})
	}
	return g.Wait()
}
