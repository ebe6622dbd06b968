// Package service provides the background cleanup scheduler removing expired
// jobs independently of request traffic.
package service

import (
	"context"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/robfig/cron/v3"
)

// Purger removes expired jobs from the store.
type Purger interface {
	PurgeExpired(ctx context.Context) error
}

// Cleaner purges expired jobs once at startup and then on a fixed interval.
// A tick is skipped if the previous purge hasn't completed, slow purges never
// stack. Purge failures are logged and don't stop the schedule.
type Cleaner struct {
	Purger   Purger
	Interval time.Duration
}

// Do is the blocking entry point. It runs an immediate purge, starts the
// periodic schedule and terminates on ctx cancellation, waiting for an
// in-flight purge to finish.
func (c *Cleaner) Do(ctx context.Context) {
	interval := c.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	c.purge(ctx)

	cr := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	cr.Schedule(cron.Every(interval), cron.FuncJob(func() { c.purge(ctx) }))
	cr.Start()
	log.Printf("[INFO] cleanup scheduler started, interval %v", interval)

	<-ctx.Done()
	log.Print("[DEBUG] cleanup scheduler terminating")
	<-cr.Stop().Done()
}

func (c *Cleaner) purge(ctx context.Context) {
	if err := c.Purger.PurgeExpired(ctx); err != nil {
		log.Printf("[WARN] cleanup failed: %v", err)
	}
}
