package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// schedulerTick is the scheduler's evaluation resolution; daily jobs
// match on the wall-clock minute.
const schedulerTick = time.Minute

type job struct {
	name     string
	interval time.Duration // interval jobs
	at       string        // "HH:MM" for daily jobs
	lastRun  time.Time
	fn       func()
}

// Scheduler runs registered callbacks on a fixed interval or once per
// day at a given wall-clock minute, from a single goroutine. Deliberately
// minimal: the job table is static after Start.
type Scheduler struct {
	logger *zap.Logger

	mu   sync.Mutex
	jobs []*job

	now func() time.Time
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger, now: time.Now}
}

// Every registers fn to run each time interval has elapsed since its
// previous run.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, interval: interval, fn: fn, lastRun: s.now()})
}

// DailyAt registers fn to run once per day at hhmm ("HH:MM", local time).
func (s *Scheduler) DailyAt(name, hhmm string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, at: hhmm, fn: fn})
}

// Start runs the scheduler loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunPending(s.now())
		}
	}
}

// RunPending fires every job due at now. Callbacks run inline on the
// scheduler goroutine; they are expected to be short or to spawn their
// own work.
func (s *Scheduler) RunPending(now time.Time) {
	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if s.isDue(j, now) {
			j.lastRun = now
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.logger.Info("scheduled job firing", zap.String("job", j.name))
		j.fn()
	}
}

func (s *Scheduler) isDue(j *job, now time.Time) bool {
	if j.interval > 0 {
		return now.Sub(j.lastRun) >= j.interval
	}
	if now.Format("15:04") != j.at {
		return false
	}
	// Once per day: skip if already fired this calendar day.
	return j.lastRun.IsZero() || j.lastRun.Format("2006-01-02") != now.Format("2006-01-02")
}
