// Package scheduler runs a bounded batch of video generation jobs against a
// remote long-running operation service. Admission is gated by a concurrency
// cap and a sliding-window rate limit; every admitted job is submitted,
// polled until done and materialized independently of the others.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"veobatch/internal/domain"
	"veobatch/internal/i18n"
	"veobatch/internal/infra"
)

// OperationService is the remote side of a generation job.
type OperationService interface {
	Submit(ctx context.Context, spec domain.JobSpec) (domain.OperationHandle, error)
	Poll(ctx context.Context, handle domain.OperationHandle) (domain.PollResult, error)
	// Materialize turns a durable locator into a locally consumable handle.
	Materialize(ctx context.Context, jobID, locator string) (string, error)
}

// Change describes one job transition. Previous is empty for a freshly
// enqueued job. Cleared marks removals caused by Reset rather than Remove.
type Change struct {
	Job      domain.Job
	Previous domain.JobStatus
	Removed  bool
	Cleared  bool
}

// Listener observes job changes. Listeners run synchronously on the goroutine
// that performed the change and must not call back into the Scheduler.
type Listener func(Change)

// Stats summarizes the worklist.
type Stats struct {
	Running    bool
	Total      int
	Queued     int
	Processing int
	Succeeded  int
	Failed     int
}

// Completed counts jobs in a terminal state.
func (s Stats) Completed() int { return s.Succeeded + s.Failed }

// Scheduler owns the worklist and the admission ledger. All mutation happens
// under mu; remote calls never run while it is held.
type Scheduler struct {
	svc    OperationService
	opts   Options
	log    infra.Logger
	msgs   *i18n.Catalog
	phrase []string

	mu         sync.Mutex
	jobs       []*domain.Job
	admissions []time.Time
	running    bool
	started    bool
	cancel     context.CancelFunc
	done       chan struct{}
	listeners  map[int]Listener
	nextListen int

	wake chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Scheduler. Capacity limits must be positive.
func New(svc OperationService, opts Options) (*Scheduler, error) {
	if svc == nil {
		return nil, errors.New("scheduler: operation service is required")
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	phrases := opts.Messages.ProgressPhrases()
	if len(phrases) == 0 {
		return nil, errors.New("scheduler: progress phrases are required")
	}
	closed := make(chan struct{})
	close(closed)
	return &Scheduler{
		svc:       svc,
		opts:      opts,
		log:       opts.Logger.With().Str("component", "scheduler").Logger(),
		msgs:      opts.Messages,
		phrase:    phrases,
		done:      closed,
		listeners: make(map[int]Listener),
		wake:      make(chan struct{}, 1),
	}, nil
}

// Subscribe registers l and returns a function removing it.
func (s *Scheduler) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Enqueue adds a job in the queued state and returns its id.
func (s *Scheduler) Enqueue(spec domain.JobSpec) (string, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return "", domain.ErrRunStarted
	}
	if len(s.jobs) >= s.opts.MaxJobs {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: limit is %d jobs", domain.ErrWorklistFull, s.opts.MaxJobs)
	}
	now := s.opts.Clock.Now()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Spec:      spec,
		Status:    domain.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs = append(s.jobs, job)
	change := Change{Job: *job}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.log.Debug().Str("job_id", job.ID).Str("input", spec.InputType()).Msg("scheduler: job enqueued")
	notify(listeners, change)
	return job.ID, nil
}

// Remove deletes a queued job before the run starts.
func (s *Scheduler) Remove(jobID string) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return domain.ErrRunStarted
	}
	idx := s.indexLocked(jobID)
	if idx < 0 {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	job := s.jobs[idx]
	if job.Status != domain.JobStatusQueued {
		s.mu.Unlock()
		return domain.ErrInvalidState
	}
	s.jobs = append(s.jobs[:idx], s.jobs[idx+1:]...)
	change := Change{Job: *job, Previous: job.Status, Removed: true}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, change)
	return nil
}

// Reset discards the whole run so a new batch can be assembled.
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	if s.running || s.activeLocked() {
		s.mu.Unlock()
		return domain.ErrRunActive
	}
	removed := make([]Change, 0, len(s.jobs))
	for _, job := range s.jobs {
		removed = append(removed, Change{Job: *job, Previous: job.Status, Removed: true, Cleared: true})
	}
	s.jobs = nil
	s.admissions = nil
	s.started = false
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, change := range removed {
		notify(listeners, change)
	}
	return nil
}

// Start activates the admission loop. Calling Start on a running scheduler is
// a no-op; calling it after the loop went idle resumes admission, which is how
// retried jobs get picked up once a run has drained.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if len(s.jobs) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: worklist is empty", domain.ErrInvalidState)
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running = true
	s.started = true
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.log.Info().
		Int("max_concurrent", s.opts.MaxConcurrent).
		Int("rate_limit_count", s.opts.RateLimitCount).
		Dur("rate_limit_window", s.opts.RateLimitWindow).
		Msg("scheduler: started")

	go s.loop(runCtx, cancel, done)
	return nil
}

// Stop halts admission and polling. In-flight jobs fail with a stopped
// message; their remote operations are not aborted server-side.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-done
	s.wg.Wait()
}

// IsRunning reports whether the admission loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done is closed when the current run goes idle or is stopped.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the run drains, then waits for executions to return.
func (s *Scheduler) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		s.wg.Wait()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry re-queues a failed job, keeping its id and spec.
func (s *Scheduler) Retry(jobID string) error {
	s.mu.Lock()
	idx := s.indexLocked(jobID)
	if idx < 0 {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	job := s.jobs[idx]
	if job.Status != domain.JobStatusFailed {
		s.mu.Unlock()
		return domain.ErrInvalidState
	}
	prev := job.Status
	job.Status = domain.JobStatusQueued
	clearAttempt(job)
	touch(job, s.opts.Clock.Now())
	change := Change{Job: *job, Previous: prev}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.log.Info().Str("job_id", jobID).Int("attempts", change.Job.Attempts).Msg("scheduler: job retried")
	notify(listeners, change)
	s.wakeUp()
	return nil
}

// Jobs returns a snapshot of the worklist in insertion order.
func (s *Scheduler) Jobs() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Job, len(s.jobs))
	for i, job := range s.jobs {
		out[i] = *job
	}
	return out
}

// Job returns a snapshot of one job.
func (s *Scheduler) Job(jobID string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(jobID)
	if idx < 0 {
		return domain.Job{}, domain.ErrNotFound
	}
	return *s.jobs[idx], nil
}

// Stats counts jobs per status.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Running: s.running, Total: len(s.jobs)}
	for _, job := range s.jobs {
		switch job.Status {
		case domain.JobStatusQueued:
			st.Queued++
		case domain.JobStatusProcessing:
			st.Processing++
		case domain.JobStatusSucceeded:
			st.Succeeded++
		case domain.JobStatusFailed:
			st.Failed++
		}
	}
	return st
}

// DownloadAll calls save for every succeeded job, at most MaxConcurrent at a
// time, and joins the per-job errors.
func (s *Scheduler) DownloadAll(ctx context.Context, save func(ctx context.Context, job domain.Job) error) error {
	var succeeded []domain.Job
	for _, job := range s.Jobs() {
		if job.Status == domain.JobStatusSucceeded && job.DownloadURL != "" {
			succeeded = append(succeeded, job)
		}
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(s.opts.MaxConcurrent)
	for _, job := range succeeded {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := save(ctx, job); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// DownloadFilename is the file name a succeeded job is saved under.
func DownloadFilename(jobID string) string {
	return fmt.Sprintf("ai-video-%s.mp4", jobID)
}

func (s *Scheduler) loop(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	timer := time.NewTimer(s.opts.TickInterval)
	defer timer.Stop()
	for {
		if idle := s.safeTick(ctx); idle {
			s.log.Info().Msg("scheduler: worklist drained, stopping")
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.opts.TickInterval)
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.log.Info().Msg("scheduler: stopped")
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// safeTick runs one admission step and launches the admitted jobs. A
// cancelled run admits nothing, even when a wake token is still pending.
func (s *Scheduler) safeTick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	admitted, changes, listeners, idle, ok := s.tryAdmit()
	if !ok {
		return false
	}
	for _, change := range changes {
		notify(listeners, change)
	}
	for _, job := range admitted {
		s.wg.Add(1)
		go s.execute(ctx, job.ID, job.Spec)
	}
	return idle
}

// tryAdmit wraps admit so a panic while computing eligibility skips the tick
// instead of killing the loop.
func (s *Scheduler) tryAdmit() (admitted []domain.Job, changes []Change, listeners []Listener, idle, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("scheduler: admission tick failed, skipping")
			admitted, changes, listeners, idle, ok = nil, nil, nil, false, false
		}
	}()
	admitted, changes, listeners, idle = s.admit()
	return admitted, changes, listeners, idle, true
}

// admit is the synchronous half of a tick: it recomputes the free slots from
// current state and flips the selected queued jobs to processing in one pass.
func (s *Scheduler) admit() ([]domain.Job, []Change, []Listener, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Clock.Now()
	s.pruneLocked(now)

	var (
		processing int
		queued     []*domain.Job
	)
	for _, job := range s.jobs {
		switch job.Status {
		case domain.JobStatusProcessing:
			processing++
		case domain.JobStatusQueued:
			queued = append(queued, job)
		}
	}

	concurrencySlots := max(0, s.opts.MaxConcurrent-processing)
	rateSlots := max(0, s.opts.RateLimitCount-len(s.admissions))
	admitCount := min(concurrencySlots, rateSlots, len(queued))
	if admitCount <= 0 {
		if len(queued) == 0 && processing == 0 {
			s.running = false
			return nil, nil, nil, true
		}
		return nil, nil, nil, false
	}

	admitted := make([]domain.Job, 0, admitCount)
	changes := make([]Change, 0, admitCount)
	for _, job := range queued[:admitCount] {
		prev := job.Status
		job.Status = domain.JobStatusProcessing
		clearAttempt(job)
		job.ProgressMessage = s.msgs.Starting()
		job.Attempts++
		job.StartedAt = touch(job, now)
		s.admissions = append(s.admissions, now)
		admitted = append(admitted, *job)
		changes = append(changes, Change{Job: *job, Previous: prev})
	}
	s.log.Debug().
		Int("admitted", admitCount).
		Int("processing", processing+admitCount).
		Int("window_admissions", len(s.admissions)).
		Msg("scheduler: admitted jobs")
	return admitted, changes, s.listenersLocked(), false
}

// touch advances job.UpdatedAt to now at microsecond precision, keeping it
// strictly increasing per job so journal writes can be ordered by it even
// when the clock has not moved.
func touch(job *domain.Job, now time.Time) time.Time {
	now = now.Truncate(time.Microsecond)
	if !now.After(job.UpdatedAt) {
		now = job.UpdatedAt.Add(time.Microsecond)
	}
	job.UpdatedAt = now
	return now
}

// pruneLocked drops admission timestamps that left the trailing window.
func (s *Scheduler) pruneLocked(now time.Time) {
	keep := s.admissions[:0]
	for _, ts := range s.admissions {
		if now.Sub(ts) < s.opts.RateLimitWindow {
			keep = append(keep, ts)
		}
	}
	s.admissions = keep
}

func (s *Scheduler) activeLocked() bool {
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusProcessing {
			return true
		}
	}
	return false
}

func (s *Scheduler) indexLocked(jobID string) int {
	for i, job := range s.jobs {
		if job.ID == jobID {
			return i
		}
	}
	return -1
}

func (s *Scheduler) listenersLocked() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.nextListen; i++ {
		if l, ok := s.listeners[i]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (s *Scheduler) wakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func clearAttempt(job *domain.Job) {
	job.ProgressMessage = ""
	job.ErrorMessage = ""
	job.ErrorKind = ""
	job.ResultURL = ""
	job.DownloadURL = ""
	job.FinishedAt = time.Time{}
}

func notify(listeners []Listener, change Change) {
	for _, l := range listeners {
		l(change)
	}
}
