package jobs

import (
	"context"
	"log"
	"time"
)

// Sweeper is the slice of the response cache the maintenance loop
// needs: periodic removal of entries past their retention window.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// maintenanceJobs are enqueued on every maintenance tick. Types already
// running are skipped by the scheduler, which is exactly what we want
// for a background sweep.
var maintenanceJobs = []Type{
	TypeEntityExtract,
	TypeEntityCleanup,
	TypeIndexRebuild,
}

// Maintenance periodically enqueues housekeeping jobs and sweeps the
// response cache.
type Maintenance struct {
	sched    *Scheduler
	sweeper  Sweeper
	interval time.Duration
}

// NewMaintenance creates the maintenance loop. A zero interval defaults
// to daily.
func NewMaintenance(sched *Scheduler, sweeper Sweeper, interval time.Duration) *Maintenance {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Maintenance{sched: sched, sweeper: sweeper, interval: interval}
}

// Start runs the loop until ctx is done. Call in its own goroutine.
func (m *Maintenance) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Maintenance) tick(ctx context.Context) {
	for _, jobType := range maintenanceJobs {
		job, err := m.sched.Enqueue(ctx, jobType, "maintenance", nil)
		if err != nil {
			log.Printf("jobs: maintenance enqueue %s: %v", jobType, err)
			continue
		}
		if job.Status == StatusSkipped {
			log.Printf("jobs: maintenance %s skipped, already running", jobType)
		}
	}

	if m.sweeper != nil {
		removed, err := m.sweeper.Sweep(ctx)
		if err != nil {
			log.Printf("jobs: cache sweep: %v", err)
		} else if removed > 0 {
			log.Printf("jobs: cache sweep removed %d entries", removed)
		}
	}
}
