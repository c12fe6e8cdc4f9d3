package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"concierge/pkg/bus"
	"concierge/pkg/routing"
	"concierge/pkg/turn"
)

// TurnRunner submits one session-guarded turn. *turn.Executor satisfies it.
type TurnRunner interface {
	Run(ctx context.Context, decision routing.RoutingDecision, text string) (string, error)
}

// Scheduler fires each job exactly once per schedule tick and routes the
// resulting response through the delivery router.
//
// Scheduling state is the per-job last-fired instant. The next fire is always
// computed strictly after that instant, never after wall-clock now, so an
// early wakeup a few milliseconds before the target can never make the same
// tick due twice.
type Scheduler struct {
	jobs    []*Job
	runner  TurnRunner
	deliver *Router
	events  *bus.MessageBus
	log     *slog.Logger

	// Injected for tests; defaults are time.Now and a timer-based sleep.
	now        func() time.Time
	sleepUntil func(ctx context.Context, at time.Time) bool

	mu        sync.Mutex
	lastFired map[string]time.Time

	inflight sync.WaitGroup
}

func NewScheduler(jobs []*Job, runner TurnRunner, deliver *Router, events *bus.MessageBus, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}

	s := &Scheduler{
		jobs:      jobs,
		runner:    runner,
		deliver:   deliver,
		events:    events,
		log:       log.With("component", "cron.scheduler"),
		now:       time.Now,
		lastFired: make(map[string]time.Time),
	}
	s.sleepUntil = s.timerSleep
	return s
}

// Run blocks until ctx ends, firing due jobs on each wakeup. It returns after
// in-flight job turns spawned by the scheduler have completed.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		s.log.Info("Cron scheduler idle, no jobs configured")
		return nil
	}

	s.log.Info("Cron scheduler started", "jobs", len(s.jobs))
	defer s.inflight.Wait()

	for {
		// The fire plan is computed once per iteration, before sleeping, so
		// a job anchored at "now" still matches its own target on wakeup.
		targets := s.fireTargets()
		wakeAt := earliest(targets)

		if !s.sleepUntil(ctx, wakeAt) {
			s.log.Info("Cron scheduler stopped")
			return nil
		}

		for _, job := range s.jobs {
			if targets[job.Name].Equal(wakeAt) {
				s.markFired(job.Name, wakeAt)
				s.spawn(ctx, job, wakeAt)
			}
		}
	}
}

// fireTargets computes every job's next fire instant: strictly after its last
// fire when one is recorded, strictly after now otherwise.
func (s *Scheduler) fireTargets() map[string]time.Time {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	targets := make(map[string]time.Time, len(s.jobs))
	for _, job := range s.jobs {
		anchor, fired := s.lastFired[job.Name]
		if !fired {
			anchor = now
		}
		targets[job.Name] = job.Schedule.Next(anchor)
	}
	return targets
}

func earliest(targets map[string]time.Time) time.Time {
	var min time.Time
	for _, at := range targets {
		if min.IsZero() || at.Before(min) {
			min = at
		}
	}
	return min
}

func (s *Scheduler) markFired(name string, at time.Time) {
	s.mu.Lock()
	s.lastFired[name] = at
	s.mu.Unlock()
}

// LastFired returns the job's recorded last fire instant.
func (s *Scheduler) LastFired(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.lastFired[name]
	return at, ok
}

// spawn runs one job turn as an independent task. Jobs due at the same
// instant start on the same wakeup and never serialize against each other.
func (s *Scheduler) spawn(ctx context.Context, job *Job, firedAt time.Time) {
	s.log.Info("Cron job fired", "name", job.Name, "at", firedAt)
	s.publishEvent(ctx, bus.Event{Type: bus.EventCronFired, Job: job.Name, SessionKey: job.SessionKey().String()})

	// The turn outlives the scheduler loop's cancellation so shutdown can
	// let a firing job finish instead of aborting it mid-prompt.
	turnCtx := context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		decision := routing.RoutingDecision{SessionKey: job.SessionKey(), Trust: job.Trust}
		response, err := s.runner.Run(turnCtx, decision, s.turnText(job))
		if err != nil {
			if errors.Is(err, turn.ErrSessionBusy) {
				s.log.Warn("Cron job skipped, previous turn still running", "name", job.Name)
				return
			}
			s.log.Warn("Cron job turn failed", "name", job.Name, "error", err)
			return
		}

		if s.deliver != nil {
			s.deliver.Deliver(turnCtx, job, response)
		}
	}()
}

// turnText builds the synthetic message for a job turn. Delivering jobs get a
// short machine note so the turn knows its reply will be transmitted.
func (s *Scheduler) turnText(job *Job) string {
	if job.Deliver == nil {
		return job.Message
	}

	return fmt.Sprintf("[scheduled job %q: your reply will be sent to %s via %s]\n%s",
		job.Name, job.Deliver.To, job.Deliver.Channel, job.Message)
}

// timerSleep waits until the target instant. It reports false when ctx ended
// before the target.
func (s *Scheduler) timerSleep(ctx context.Context, at time.Time) bool {
	wait := at.Sub(s.now())
	if wait <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) publishEvent(ctx context.Context, event bus.Event) {
	if s.events == nil {
		return
	}
	s.events.PublishEvent(ctx, event)
}
