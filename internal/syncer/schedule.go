package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// RunScheduled runs a cycle now and then on every tick of the cron
// expression until ctx is done. Failed cycles are logged, not returned.
func (s *Syncer) RunScheduled(ctx context.Context, schedule string) error {
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(schedule, func() { s.runLogged(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.logger.Info("Starting scheduler.", "schedule", schedule)
	s.runLogged(ctx)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunEvery runs a cycle now and then every interval until ctx is done.
func (s *Syncer) RunEvery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}
	s.logger.Info("Starting watcher.", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.runLogged(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Syncer) runLogged(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Sync(ctx); err != nil {
		s.logger.Error("Sync cycle failed", "error", err)
	}
}
