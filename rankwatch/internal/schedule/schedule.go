// Package schedule triggers collection runs on a fixed cadence.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config configures the scheduler.
type Config struct {
	// Interval between runs. Default: 10 minutes. Sub-second values round up to 1s.
	Interval time.Duration
	// InitialDelay before the first run. Default: 10 seconds.
	InitialDelay time.Duration
	// Spec is an optional standard cron expression ("*/10 * * * *",
	// "@hourly") that replaces Interval.
	Spec string
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
}

// RunFunc is one scheduled unit of work.
type RunFunc func(ctx context.Context)

// Scheduler runs a RunFunc once after the initial delay and then on every
// tick. A tick that fires while the previous run is still executing is
// skipped; panics are recovered and logged.
type Scheduler struct {
	cfg      Config
	run      RunFunc
	logger   *slog.Logger
	cron     *cron.Cron
	schedule cron.Schedule

	mu      sync.Mutex
	timer   *time.Timer
	cancel  context.CancelFunc
	running sync.WaitGroup // initial run only; cron tracks ticks
	stopped bool
}

// New creates a Scheduler. It fails when cfg.Spec does not parse.
func New(cfg Config, run RunFunc, logger *slog.Logger) (*Scheduler, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	var sched cron.Schedule = cron.Every(cfg.Interval)
	if cfg.Spec != "" {
		var err error
		if sched, err = cron.ParseStandard(cfg.Spec); err != nil {
			return nil, fmt.Errorf("schedule: parse %q: %w", cfg.Spec, err)
		}
	}

	cl := cronLogger{logger: logger}
	return &Scheduler{
		cfg:      cfg,
		run:      run,
		logger:   logger,
		schedule: sched,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}, nil
}

// Start arms the scheduler. Runs receive a context derived from ctx that
// is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.stopped {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	job := cron.FuncJob(func() { s.run(ctx) })
	// Ticks go through the cron chain; the initial run shares its skip lock.
	entry := s.cron.Schedule(s.schedule, job)
	wrapped := s.cron.Entry(entry).WrappedJob

	s.timer = time.AfterFunc(s.cfg.InitialDelay, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.running.Add(1)
		s.cron.Start()
		s.mu.Unlock()

		defer s.running.Done()
		wrapped.Run()
	})

	s.logger.Info("schedule: started",
		"initial_delay", s.cfg.InitialDelay, "interval", s.cfg.Interval, "spec", s.cfg.Spec)
}

// Stop prevents further runs, cancels the running one and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	done := s.cron.Stop()
	s.mu.Unlock()

	<-done.Done()
	s.running.Wait()
	s.logger.Info("schedule: stopped")
}

// Next returns the next tick time, or the zero time before the first run.
func (s *Scheduler) Next() time.Time {
	for _, e := range s.cron.Entries() {
		return e.Next
	}
	return time.Time{}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("schedule: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("schedule: "+msg, append(keysAndValues, "error", err)...)
}
