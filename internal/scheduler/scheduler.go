// Package scheduler runs named periodic jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultStopTimeout = 10 * time.Second

// JobFunc is a scheduled job. ctx is cancelled when the scheduler stops.
type JobFunc func(ctx context.Context) error

// Scheduler wraps a cron runner with logging and a shared context
type Scheduler struct {
	cron        *cron.Cron
	logger      *zap.Logger
	stopTimeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// New creates a scheduler. Specs accept the standard five fields and descriptors like "@every 5m".
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:        cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		logger:      logger,
		stopTimeout: defaultStopTimeout,
		ctx:         ctx,
		cancel:      cancel,
		entries:     make(map[string]cron.EntryID),
	}
}

// AddFunc registers fn under name. A name can only be registered once.
func (s *Scheduler) AddFunc(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", spec, name, err)
	}
	s.entries[name] = id
	s.logger.Info("job_scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Next returns when name fires next, or false if it is not scheduled
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// run executes one firing and keeps panics from killing the runner
func (s *Scheduler) run(name string, fn JobFunc) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled_job_panic", zap.String("job", name), zap.Any("panic", r))
		}
	}()

	if err := fn(s.ctx); err != nil {
		s.logger.Error("scheduled_job_failed", zap.String("job", name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Debug("scheduled_job_completed", zap.String("job", name), zap.Duration("duration", time.Since(start)))
}

// Start begins firing jobs and stops the scheduler when ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
}

// Stop cancels running jobs and waits for them up to the stop timeout
func (s *Scheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(s.stopTimeout):
		s.logger.Warn("scheduler_stop_timeout")
	}
}
