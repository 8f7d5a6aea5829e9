package scheduler

import (
	"context"
	"errors"
	"time"

	"veobatch/internal/domain"
)

// execute drives one admitted job to a terminal state. It never holds the
// scheduler lock across a remote call.
func (s *Scheduler) execute(ctx context.Context, jobID string, spec domain.JobSpec) {
	defer s.wg.Done()
	defer s.wakeUp()

	log := s.log.With().Str("job_id", jobID).Logger()
	log.Info().Str("input", spec.InputType()).Str("model", spec.Model).Msg("scheduler: job started")

	resultURL, locator, err := s.run(ctx, jobID, spec)
	if err != nil {
		kind := domain.ClassifyFailure(err)
		log.Warn().Err(err).Str("kind", string(kind)).Msg("scheduler: job failed")
		s.fail(jobID, kind, s.failureMessage(err))
		return
	}
	log.Info().Str("result", resultURL).Msg("scheduler: job succeeded")
	s.succeed(jobID, resultURL, locator)
}

func (s *Scheduler) run(ctx context.Context, jobID string, spec domain.JobSpec) (string, string, error) {
	s.progress(jobID, s.phrase[0])
	handle, err := s.svc.Submit(ctx, spec)
	if err != nil {
		if stopped(ctx) {
			return "", "", domain.ErrStopped
		}
		var subErr *domain.SubmissionError
		if !errors.As(err, &subErr) {
			err = &domain.SubmissionError{Err: err}
		}
		return "", "", err
	}

	s.progress(jobID, s.phrase[min(1, len(s.phrase)-1)])
	locator, err := s.await(ctx, jobID, handle)
	if err != nil {
		return "", "", err
	}
	s.progress(jobID, s.phrase[len(s.phrase)-1])

	s.progress(jobID, s.msgs.Downloading())
	resultURL, err := s.svc.Materialize(ctx, jobID, locator)
	if err != nil {
		if stopped(ctx) {
			return "", "", domain.ErrStopped
		}
		var fetchErr *domain.FetchError
		if !errors.As(err, &fetchErr) {
			err = &domain.FetchError{Locator: locator, Err: err}
		}
		return "", "", err
	}
	return resultURL, locator, nil
}

// await polls the operation until it reports done. Each unfinished poll
// advances the progress phrase, starting at the third one and wrapping.
func (s *Scheduler) await(ctx context.Context, jobID string, handle domain.OperationHandle) (string, error) {
	var deadline <-chan time.Time
	if s.opts.MaxPollDuration > 0 {
		t := time.NewTimer(s.opts.MaxPollDuration)
		defer t.Stop()
		deadline = t.C
	}

	for idx := 2; ; idx++ {
		res, err := s.svc.Poll(ctx, handle)
		if err != nil {
			if stopped(ctx) {
				return "", domain.ErrStopped
			}
			var pollErr *domain.PollError
			if !errors.As(err, &pollErr) && !errors.Is(err, domain.ErrQuotaExceeded) {
				err = &domain.PollError{Handle: handle, Err: err}
			}
			return "", err
		}
		if res.Error != "" {
			return "", &domain.OperationError{Handle: handle, Message: res.Error}
		}
		if res.Done {
			if res.Locator == "" {
				return "", &domain.IncompleteResultError{Handle: handle}
			}
			return res.Locator, nil
		}

		s.progress(jobID, s.phrase[idx%len(s.phrase)])

		wait := time.NewTimer(s.opts.PollInterval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return "", domain.ErrStopped
		case <-deadline:
			wait.Stop()
			return "", &domain.TimeoutError{Handle: handle, After: s.opts.MaxPollDuration}
		case <-wait.C:
		}
	}
}

func (s *Scheduler) failureMessage(err error) string {
	var (
		timeoutErr *domain.TimeoutError
		opErr      *domain.OperationError
	)
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		return s.msgs.QuotaExceeded()
	case errors.Is(err, domain.ErrStopped):
		return s.msgs.Stopped()
	case errors.As(err, &timeoutErr):
		return s.msgs.Timeout(timeoutErr.After.String())
	case errors.As(err, &opErr):
		return s.msgs.GenerationFailed(opErr.Message)
	default:
		return s.msgs.GenerationFailed(err.Error())
	}
}

// progress updates the message of a job that is still processing. Updates
// for a job that already left processing (removed by Reset, or finished) are
// dropped.
func (s *Scheduler) progress(jobID, msg string) {
	s.mu.Lock()
	idx := s.indexLocked(jobID)
	if idx < 0 || s.jobs[idx].Status != domain.JobStatusProcessing {
		s.mu.Unlock()
		return
	}
	job := s.jobs[idx]
	job.ProgressMessage = msg
	touch(job, s.opts.Clock.Now())
	change := Change{Job: *job, Previous: job.Status}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, change)
}

func (s *Scheduler) succeed(jobID, resultURL, locator string) {
	s.finish(jobID, func(job *domain.Job) {
		job.Status = domain.JobStatusSucceeded
		job.ResultURL = resultURL
		job.DownloadURL = locator
		job.ProgressMessage = ""
		job.ErrorMessage = ""
		job.ErrorKind = ""
	})
}

func (s *Scheduler) fail(jobID string, kind domain.FailureKind, msg string) {
	s.finish(jobID, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.ErrorKind = kind
		job.ErrorMessage = msg
		job.ProgressMessage = ""
		job.ResultURL = ""
		job.DownloadURL = ""
	})
}

func (s *Scheduler) finish(jobID string, apply func(job *domain.Job)) {
	s.mu.Lock()
	idx := s.indexLocked(jobID)
	if idx < 0 || s.jobs[idx].Status != domain.JobStatusProcessing {
		s.mu.Unlock()
		return
	}
	job := s.jobs[idx]
	prev := job.Status
	apply(job)
	job.FinishedAt = touch(job, s.opts.Clock.Now())
	change := Change{Job: *job, Previous: prev}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, change)
	// a freed slot may admit the next queued job before the next tick.
	s.wakeUp()
}

func stopped(ctx context.Context) bool {
	return ctx.Err() != nil
}
