// Package scheduler runs the control plane's periodic jobs. Each job owns
// its own ticker and can be cancelled independently; Stop cancels everything
// and waits for in-flight iterations, so shutdown never abandons a cycle.
package scheduler

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// JobFunc is one iteration of a periodic job. The context is cancelled when
// the job, or the whole scheduler, stops.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
	cancel   context.CancelFunc
}

// Scheduler owns named periodic jobs.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]*job)}
}

// Start makes the scheduler live. Jobs added before Start begin ticking now;
// jobs added afterwards begin immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	for _, j := range s.jobs {
		s.launch(j)
	}

	logger.WithFields(map[string]interface{}{
		"component": "Scheduler",
		"jobs":      len(s.jobs),
	}).Info("Scheduler started")
}

// AddJob registers a named periodic job. Returns false if the name is taken.
func (s *Scheduler) AddJob(name string, interval time.Duration, fn JobFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return false
	}

	j := &job{name: name, interval: interval, fn: fn}
	s.jobs[name] = j
	if s.started {
		s.launch(j)
	}
	return true
}

// CancelJob stops one job without touching the others.
func (s *Scheduler) CancelJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[name]; ok {
		if j.cancel != nil {
			j.cancel()
		}
		delete(s.jobs, name)
	}
}

// launch starts the job goroutine. Caller holds s.mu.
func (s *Scheduler) launch(j *job) {
	ctx, cancel := context.WithCancel(s.ctx)
	j.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx, j)
			}
		}
	}()
}

// runOnce executes one iteration behind a recover boundary. A panicking job
// must never take down the process or its sibling jobs.
func (s *Scheduler) runOnce(ctx context.Context, j *job) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(map[string]interface{}{
				"component": "Scheduler",
				"job":       j.name,
				"panic":     r,
			}).Error("Job panicked, continuing on next tick")
		}
	}()

	if err := j.fn(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"component": "Scheduler",
			"job":       j.name,
		}).Warn("Job iteration failed")
	}
}

// Stop cancels every job and blocks until all in-flight iterations return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
	logger.WithField("component", "Scheduler").Info("Scheduler stopped")
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	return out
}
