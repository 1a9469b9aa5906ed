package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/consultix/consultix/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

// Default schedules, overridable per job through the environment.
const (
	defaultExpirySweepSpec    = "0 6 * * *"
	defaultMonthlyInvoiceSpec = "0 6 1 * *"
	defaultUsageCleanupSpec   = "0 4 * * *"
)

// Registry owns the cron runner for the three maintenance jobs. Each job is
// wrapped with SkipIfStillRunning so a slow sweep is never overlapped by its
// next tick, and with Recover so a panicking job cannot take the process down.
type Registry struct {
	cron *cron.Cron
	jobs *Jobs

	mu      sync.Mutex
	running bool
}

// NewRegistry schedules the jobs in loc. Schedule specs come from
// SCHEDULE_EXPIRY_SWEEP, SCHEDULE_MONTHLY_INVOICES and SCHEDULE_USAGE_CLEANUP
// when set.
func NewRegistry(jobs *Jobs, loc *time.Location) (*Registry, error) {
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
	)

	r := &Registry{cron: c, jobs: jobs}
	entries := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"expiry-sweep", env.GetEnv("SCHEDULE_EXPIRY_SWEEP", defaultExpirySweepSpec), jobs.RunExpirySweep},
		{"monthly-invoices", env.GetEnv("SCHEDULE_MONTHLY_INVOICES", defaultMonthlyInvoiceSpec), jobs.RunMonthlyInvoiceGeneration},
		{"usage-cleanup", env.GetEnv("SCHEDULE_USAGE_CLEANUP", defaultUsageCleanupSpec), jobs.RunUsageCleanup},
	}
	for _, e := range entries {
		name, run := e.name, e.run
		if _, err := c.AddFunc(e.spec, func() {
			if err := run(context.Background()); err != nil {
				log.Errorf("[Scheduler] job %s: %v", name, err)
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", e.name, e.spec, err)
		}
	}
	return r, nil
}

// Start launches the cron runner. Safe to call more than once.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	log.Info("[Scheduler] starting background jobs")
	r.cron.Start()
}

// Stop halts scheduling and waits for any running job to finish.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	log.Info("[Scheduler] stopping background jobs")
	<-r.cron.Stop().Done()
}

// cronLogger adapts the cron library's logging calls onto the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Infof("[Scheduler] %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Errorf("[Scheduler] %s: %v %v", msg, err, keysAndValues)
}
