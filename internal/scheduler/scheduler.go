// Package scheduler runs named periodic jobs with an at-most-one-concurrent-
// run guarantee per job. Job state lives in memory only; a process restart
// resets every job to "never run".
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultTick = 10 * time.Second

// JobFunc is a job handler. A non-nil error means the run failed and the
// job's last-run time is not advanced.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	handler  JobFunc
	lastRun  time.Time
	running  bool
}

// Scheduler owns its job list and lifecycle; construct one at process start
// and pass it to whatever starts the process.
type Scheduler struct {
	mu   sync.Mutex
	jobs []*job
	tick time.Duration
	now  func() time.Time
	wg   sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick overrides the driver tick period.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{tick: defaultTick, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a named periodic job. Jobs registered after Start are picked
// up on the next tick.
func (s *Scheduler) Register(name string, interval time.Duration, handler JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, interval: interval, handler: handler})
	log.Info().Str("job", name).Dur("interval", interval).Msg("scheduler: job registered")
}

// Start runs the driver loop until ctx is cancelled, then waits for in-flight
// jobs to finish.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Dur("tick", s.tick).Msg("scheduler: started")
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	// Run due jobs immediately rather than waiting out the first tick.
	s.runDue(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler: stopping, waiting for running jobs")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue starts every job that is due and not already running. A job that
// outlives its interval is skipped, not queued, until it finishes.
func (s *Scheduler) runDue(ctx context.Context) {
	tickTime := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.running {
			continue
		}
		if !j.lastRun.IsZero() && tickTime.Sub(j.lastRun) < j.interval {
			continue
		}

		j.running = true
		s.wg.Add(1)
		go s.run(ctx, j, tickTime)
	}
}

func (s *Scheduler) run(ctx context.Context, j *job, tickTime time.Time) {
	defer s.wg.Done()

	start := time.Now()
	err := j.handler(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	j.running = false
	if err == nil {
		j.lastRun = tickTime
	}
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("job", j.name).Dur("elapsed", elapsed).Msg("scheduler: job failed")
		return
	}
	log.Info().Str("job", j.name).Dur("elapsed", elapsed).Msg("scheduler: job completed")
}
