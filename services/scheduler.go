package services

import (
	"context"
	"log"
	"sync"
	"time"

	"gymAccessAPI/internal/clock"
)

// Job is one reconciliation task: a stateless, idempotent batch that
// re-derives persisted state from the current time and business rules. Jobs
// have no caller waiting on them; a failed run is retried only by the next
// tick, never immediately.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context, now time.Time) error
}

// Scheduler runs each job on its own fixed-interval ticker, in parallel with
// the other jobs and with live request handling.
type Scheduler struct {
	jobs     []Job
	clock    clock.Clock
	onRun    func(job string, err error)
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler(clk clock.Clock, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		clock:    clk,
		stopChan: make(chan struct{}),
	}
}

// OnRun installs a hook called after every job run, used for metrics.
func (s *Scheduler) OnRun(fn func(job string, err error)) {
	s.onRun = fn
}

func (s *Scheduler) Start() {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(job)
	}
	log.Printf("Scheduler: started %d reconciliation jobs", len(s.jobs))
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	// First run shortly after boot so a restart never skips a day.
	timer := time.NewTimer(10 * time.Second)
	defer timer.Stop()

	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			s.runOne(job)
		case <-ticker.C:
			s.runOne(job)
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) runOne(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := s.clock.Now()
	start := time.Now()
	log.Printf("Scheduler: job %s starting", job.Name())

	err := job.Run(ctx, now)
	if err != nil {
		log.Printf("Scheduler: job %s failed after %s: %v", job.Name(), time.Since(start), err)
	} else {
		log.Printf("Scheduler: job %s completed in %s", job.Name(), time.Since(start))
	}

	if s.onRun != nil {
		s.onRun(job.Name(), err)
	}
}

// Stop shuts the scheduler down and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	log.Println("Stopping reconciliation scheduler...")
	close(s.stopChan)
	s.wg.Wait()
	log.Println("Reconciliation scheduler stopped")
}
