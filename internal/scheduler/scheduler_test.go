package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veobatch/internal/domain"
	"veobatch/internal/i18n"
)

// fakeService completes an operation after a per-prompt number of polls.
type fakeService struct {
	mu        sync.Mutex
	submitted []string
	polls     map[string]int
	pending   map[string]int
	inFlight  int
	maxFlight int

	// gate, when set, blocks Submit until a value is received.
	gate chan struct{}

	submitErr   map[string]error
	pollErr     map[string]error
	remoteErr   map[string]string
	noLocator   map[string]bool
	fetchErr    map[string]error
	neverFinish bool
}

func newFakeService() *fakeService {
	return &fakeService{
		polls:     map[string]int{},
		pending:   map[string]int{},
		submitErr: map[string]error{},
		pollErr:   map[string]error{},
		remoteErr: map[string]string{},
		noLocator: map[string]bool{},
		fetchErr:  map[string]error{},
	}
}

func (f *fakeService) Submit(ctx context.Context, spec domain.JobSpec) (domain.OperationHandle, error) {
	prompt := spec.Input.PromptText()
	f.mu.Lock()
	f.submitted = append(f.submitted, prompt)
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	gate := f.gate
	err := f.submitErr[prompt]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			f.release()
			return domain.OperationHandle{}, ctx.Err()
		}
	}
	if err != nil {
		f.release()
		return domain.OperationHandle{}, err
	}
	return domain.OperationHandle{Name: "operations/" + prompt}, nil
}

func (f *fakeService) Poll(_ context.Context, handle domain.OperationHandle) (domain.PollResult, error) {
	prompt := handle.Name[len("operations/"):]
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[prompt]++
	if err := f.pollErr[prompt]; err != nil {
		f.inFlight--
		return domain.PollResult{}, err
	}
	if msg := f.remoteErr[prompt]; msg != "" {
		f.inFlight--
		return domain.PollResult{Done: true, Error: msg}, nil
	}
	if f.neverFinish || f.polls[prompt] <= f.pending[prompt] {
		return domain.PollResult{}, nil
	}
	if f.noLocator[prompt] {
		f.inFlight--
		return domain.PollResult{Done: true}, nil
	}
	return domain.PollResult{Done: true, Locator: "https://remote.test/" + prompt}, nil
}

func (f *fakeService) Materialize(_ context.Context, jobID, locator string) (string, error) {
	defer f.release()
	for prompt, err := range f.fetchErrors() {
		if locator == "https://remote.test/"+prompt {
			return "", err
		}
	}
	return "/static/" + jobID + ".mp4", nil
}

func (f *fakeService) fetchErrors() map[string]error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]error, len(f.fetchErr))
	for k, v := range f.fetchErr {
		out[k] = v
	}
	return out
}

func (f *fakeService) release() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeService) submissions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func (f *fakeService) peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxFlight
}

func textSpec(prompt string) domain.JobSpec {
	return domain.JobSpec{Input: domain.TextInput{Prompt: prompt}}
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.RateLimitCount = 100
	opts.TickInterval = 5 * time.Millisecond
	opts.PollInterval = time.Millisecond
	return opts
}

func newTestScheduler(t *testing.T, svc OperationService, opts Options) *Scheduler {
	t.Helper()
	s, err := New(svc, opts)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func runToCompletion(t *testing.T, s *Scheduler) {
	t.Helper()
	require.NoError(t, s.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	assert.False(t, s.IsRunning())
}

func TestNewRejectsNonPositiveLimits(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"max concurrent", func(o *Options) { o.MaxConcurrent = 0 }},
		{"rate count", func(o *Options) { o.RateLimitCount = -1 }},
		{"rate window", func(o *Options) { o.RateLimitWindow = 0 }},
		{"max jobs", func(o *Options) { o.MaxJobs = 0 }},
		{"tick", func(o *Options) { o.TickInterval = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mutate(&opts)
			_, err := New(newFakeService(), opts)
			require.Error(t, err)
		})
	}

	_, err := New(nil, DefaultOptions())
	require.Error(t, err)
}

func TestEnqueueValidatesAndBoundsWorklist(t *testing.T) {
	opts := fastOptions()
	opts.MaxJobs = 2
	s := newTestScheduler(t, newFakeService(), opts)

	_, err := s.Enqueue(domain.JobSpec{Input: domain.TextInput{Prompt: "  "}})
	require.ErrorIs(t, err, domain.ErrInvalidSpec)

	_, err = s.Enqueue(domain.JobSpec{Input: domain.ImageInput{Prompt: "cat"}})
	require.ErrorIs(t, err, domain.ErrInvalidSpec)

	first, err := s.Enqueue(textSpec("a"))
	require.NoError(t, err)
	_, err = s.Enqueue(textSpec("b"))
	require.NoError(t, err)
	_, err = s.Enqueue(textSpec("c"))
	require.ErrorIs(t, err, domain.ErrWorklistFull)

	job, err := s.Job(first)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, domain.DefaultVideoModel, job.Spec.Model)
	assert.Equal(t, domain.DefaultAspectRatio, job.Spec.AspectRatio)
	assert.Equal(t, domain.QualityStandard, job.Spec.Quality)
}

func TestRemoveOnlyQueuedJobsBeforeStart(t *testing.T) {
	s := newTestScheduler(t, newFakeService(), fastOptions())

	id, err := s.Enqueue(textSpec("a"))
	require.NoError(t, err)
	require.ErrorIs(t, s.Remove("missing"), domain.ErrNotFound)
	require.NoError(t, s.Remove(id))
	assert.Empty(t, s.Jobs())

	_, err = s.Enqueue(textSpec("b"))
	require.NoError(t, err)
	runToCompletion(t, s)

	_, err = s.Enqueue(textSpec("c"))
	require.ErrorIs(t, err, domain.ErrRunStarted)
	require.ErrorIs(t, s.Remove(s.Jobs()[0].ID), domain.ErrRunStarted)

	require.NoError(t, s.Reset())
	assert.Empty(t, s.Jobs())
	_, err = s.Enqueue(textSpec("c"))
	require.NoError(t, err)
}

func TestStartOnEmptyWorklist(t *testing.T) {
	s := newTestScheduler(t, newFakeService(), fastOptions())
	require.ErrorIs(t, s.Start(context.Background()), domain.ErrInvalidState)
	assert.False(t, s.IsRunning())
}

func TestAdmissionHonorsConcurrencyAndRateWindow(t *testing.T) {
	mock := clock.NewMockClock()
	svc := newFakeService()
	svc.gate = make(chan struct{})

	opts := DefaultOptions()
	opts.Clock = mock
	opts.PollInterval = time.Millisecond
	s := newTestScheduler(t, svc, opts)

	for i := 0; i < 5; i++ {
		_, err := s.Enqueue(textSpec(fmt.Sprintf("job-%d", i)))
		require.NoError(t, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.False(t, s.safeTick(ctx))
	st := s.Stats()
	assert.Equal(t, 2, st.Processing)
	assert.Equal(t, 3, st.Queued)

	// Both slots are taken: another tick admits nothing.
	require.False(t, s.safeTick(ctx))
	assert.Equal(t, 2, s.Stats().Processing)

	svc.gate <- struct{}{}
	svc.gate <- struct{}{}
	require.Eventually(t, func() bool { return s.Stats().Succeeded == 2 }, 2*time.Second, time.Millisecond)

	// Concurrency is free but the window still holds two admissions.
	require.False(t, s.safeTick(ctx))
	assert.Equal(t, 0, s.Stats().Processing)

	mock.AddTime(30 * time.Second)
	require.False(t, s.safeTick(ctx))
	assert.Equal(t, 0, s.Stats().Processing)

	mock.AddTime(31 * time.Second)
	require.False(t, s.safeTick(ctx))
	assert.Equal(t, 2, s.Stats().Processing)
	assert.Equal(t, 1, s.Stats().Queued)

	svc.gate <- struct{}{}
	svc.gate <- struct{}{}
	require.Eventually(t, func() bool { return s.Stats().Succeeded == 4 }, 2*time.Second, time.Millisecond)

	mock.AddTime(time.Minute)
	require.False(t, s.safeTick(ctx))
	svc.gate <- struct{}{}
	require.Eventually(t, func() bool { return s.Stats().Succeeded == 5 }, 2*time.Second, time.Millisecond)

	assert.True(t, s.safeTick(ctx), "drained worklist should report idle")
	assert.Equal(t, []string{"job-0", "job-1", "job-2", "job-3", "job-4"}, svc.submissions())
}

func TestRunAdmitsInInsertionOrderWithinConcurrencyCap(t *testing.T) {
	svc := newFakeService()
	for i := 0; i < 6; i++ {
		svc.pending[fmt.Sprintf("p%d", i)] = 2
	}
	opts := fastOptions()
	opts.MaxConcurrent = 2
	s := newTestScheduler(t, svc, opts)

	var (
		mu    sync.Mutex
		order []string
	)
	s.Subscribe(func(c Change) {
		if c.Job.Status != domain.JobStatusProcessing || c.Previous != domain.JobStatusQueued {
			return
		}
		mu.Lock()
		order = append(order, c.Job.Spec.Input.PromptText())
		mu.Unlock()
	})

	for i := 0; i < 6; i++ {
		_, err := s.Enqueue(textSpec(fmt.Sprintf("p%d", i)))
		require.NoError(t, err)
	}
	runToCompletion(t, s)

	st := s.Stats()
	assert.Equal(t, 6, st.Succeeded)
	assert.Equal(t, 6, st.Completed())
	assert.LessOrEqual(t, svc.peak(), 2)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"p0", "p1", "p2", "p3", "p4", "p5"}, order)
}

func TestSucceededJobCarriesResultAndNoError(t *testing.T) {
	svc := newFakeService()
	s := newTestScheduler(t, svc, fastOptions())

	id, err := s.Enqueue(textSpec("sunset"))
	require.NoError(t, err)
	runToCompletion(t, s)

	job, err := s.Job(id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Equal(t, "/static/"+id+".mp4", job.ResultURL)
	assert.Equal(t, "https://remote.test/sunset", job.DownloadURL)
	assert.Empty(t, job.ErrorMessage)
	assert.Empty(t, job.ErrorKind)
	assert.Empty(t, job.ProgressMessage)
	assert.Equal(t, 1, job.Attempts)
	assert.False(t, job.FinishedAt.IsZero())
}

func TestProgressPhrasesFollowPollCount(t *testing.T) {
	svc := newFakeService()
	svc.pending["slow"] = 3
	msgs := i18n.New("en")
	opts := fastOptions()
	opts.Messages = msgs
	s := newTestScheduler(t, svc, opts)

	var (
		mu   sync.Mutex
		seen []string
	)
	s.Subscribe(func(c Change) {
		if c.Job.Status != domain.JobStatusProcessing {
			return
		}
		mu.Lock()
		seen = append(seen, c.Job.ProgressMessage)
		mu.Unlock()
	})

	_, err := s.Enqueue(textSpec("slow"))
	require.NoError(t, err)
	runToCompletion(t, s)

	phrases := msgs.ProgressPhrases()
	want := []string{
		msgs.Starting(),
		phrases[0],
		phrases[1],
		phrases[2],
		phrases[3],
		phrases[4],
		phrases[len(phrases)-1],
		msgs.Downloading(),
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, seen)
}

func TestProgressPhrasesWrapAround(t *testing.T) {
	svc := newFakeService()
	svc.pending["long"] = 12
	msgs := i18n.New("vi")
	opts := fastOptions()
	opts.Messages = msgs
	s := newTestScheduler(t, svc, opts)

	var (
		mu   sync.Mutex
		seen []string
	)
	s.Subscribe(func(c Change) {
		if c.Job.Status == domain.JobStatusProcessing {
			mu.Lock()
			seen = append(seen, c.Job.ProgressMessage)
			mu.Unlock()
		}
	})
	_, err := s.Enqueue(textSpec("long"))
	require.NoError(t, err)
	runToCompletion(t, s)

	phrases := msgs.ProgressPhrases()
	mu.Lock()
	defer mu.Unlock()
	// starting, submit, awaiting, then one phrase per unfinished poll.
	require.Len(t, seen, 3+12+2)
	for i := 0; i < 12; i++ {
		assert.Equal(t, phrases[(i+2)%len(phrases)], seen[3+i], "poll %d", i)
	}
}

func TestFailureKindsAndMessages(t *testing.T) {
	msgs := i18n.New("en")
	svc := newFakeService()
	svc.submitErr["quota"] = fmt.Errorf("submit: %w", domain.ErrQuotaExceeded)
	svc.submitErr["rejected"] = errors.New("bad request")
	svc.pollErr["flaky"] = errors.New("connection reset")
	svc.remoteErr["unsafe"] = "content filtered"
	svc.noLocator["empty"] = true
	svc.fetchErr["broken"] = errors.New("403 forbidden")

	opts := fastOptions()
	opts.Messages = msgs
	opts.MaxConcurrent = 6
	s := newTestScheduler(t, svc, opts)

	ids := map[string]string{}
	for _, p := range []string{"quota", "rejected", "flaky", "unsafe", "empty", "broken"} {
		id, err := s.Enqueue(textSpec(p))
		require.NoError(t, err)
		ids[p] = id
	}
	runToCompletion(t, s)

	tests := []struct {
		prompt string
		kind   domain.FailureKind
		msg    string
	}{
		{"quota", domain.FailureQuota, msgs.QuotaExceeded()},
		{"rejected", domain.FailureSubmission, msgs.GenerationFailed("submit operation: bad request")},
		{"flaky", domain.FailurePoll, msgs.GenerationFailed("poll operation operations/flaky: connection reset")},
		{"unsafe", domain.FailureOperation, msgs.GenerationFailed("content filtered")},
		{"empty", domain.FailureIncomplete, msgs.GenerationFailed("operation operations/empty completed but no result was provided")},
		{"broken", domain.FailureFetch, msgs.GenerationFailed("fetch result: 403 forbidden")},
	}
	for _, tc := range tests {
		t.Run(tc.prompt, func(t *testing.T) {
			job, err := s.Job(ids[tc.prompt])
			require.NoError(t, err)
			assert.Equal(t, domain.JobStatusFailed, job.Status)
			assert.Equal(t, tc.kind, job.ErrorKind)
			assert.Equal(t, tc.msg, job.ErrorMessage)
			assert.Empty(t, job.ResultURL)
			assert.Empty(t, job.DownloadURL)
		})
	}
}

func TestRetryRequeuesFailedJob(t *testing.T) {
	svc := newFakeService()
	svc.remoteErr["again"] = "transient"
	s := newTestScheduler(t, svc, fastOptions())

	id, err := s.Enqueue(textSpec("again"))
	require.NoError(t, err)
	runToCompletion(t, s)

	job, err := s.Job(id)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusFailed, job.Status)

	require.ErrorIs(t, s.Retry("missing"), domain.ErrNotFound)

	svc.mu.Lock()
	delete(svc.remoteErr, "again")
	svc.mu.Unlock()

	require.NoError(t, s.Retry(id))
	job, err = s.Job(id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Empty(t, job.ErrorMessage)
	assert.Empty(t, job.ErrorKind)
	assert.Empty(t, job.ProgressMessage)

	runToCompletion(t, s)
	job, err = s.Job(id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, id, s.Jobs()[0].ID)

	require.ErrorIs(t, s.Retry(id), domain.ErrInvalidState)
}

func TestPollTimeout(t *testing.T) {
	svc := newFakeService()
	svc.neverFinish = true
	opts := fastOptions()
	opts.MaxPollDuration = 30 * time.Millisecond
	s := newTestScheduler(t, svc, opts)

	id, err := s.Enqueue(textSpec("stuck"))
	require.NoError(t, err)
	runToCompletion(t, s)

	job, err := s.Job(id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, domain.FailureTimeout, job.ErrorKind)
}

func TestStopFailsInFlightJobs(t *testing.T) {
	svc := newFakeService()
	svc.neverFinish = true
	opts := fastOptions()
	opts.MaxConcurrent = 1
	opts.PollInterval = time.Hour
	s := newTestScheduler(t, svc, opts)

	id, err := s.Enqueue(textSpec("forever"))
	require.NoError(t, err)
	queued, err := s.Enqueue(textSpec("later"))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		job, _ := s.Job(id)
		return job.Status == domain.JobStatusProcessing && job.ProgressMessage != ""
	}, 2*time.Second, time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	select {
	case <-s.Done():
	default:
		t.Fatal("done channel should be closed after Stop")
	}

	job, err := s.Job(id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, domain.FailureStopped, job.ErrorKind)

	later, err := s.Job(queued)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, later.Status)
	assert.Zero(t, later.Attempts)
	assert.Equal(t, []string{"forever"}, svc.submissions())
}

func TestTickAfterCancelAdmitsNothing(t *testing.T) {
	svc := newFakeService()
	s := newTestScheduler(t, svc, fastOptions())
	id, err := s.Enqueue(textSpec("pending"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, s.safeTick(ctx))

	job, err := s.Job(id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Empty(t, svc.submissions())

	// The cancelled tick took no rate-window slot.
	require.False(t, s.safeTick(context.Background()))
	assert.Equal(t, 1, s.Stats().Processing)
}

func TestConcurrentTicksAdmitEachJobOnce(t *testing.T) {
	const jobs, tickers = 10, 16
	svc := newFakeService()
	svc.gate = make(chan struct{})
	opts := fastOptions()
	s := newTestScheduler(t, svc, opts)

	var (
		mu         sync.Mutex
		admissions = map[string]int{}
	)
	s.Subscribe(func(c Change) {
		if c.Previous == domain.JobStatusQueued && c.Job.Status == domain.JobStatusProcessing {
			mu.Lock()
			admissions[c.Job.ID]++
			mu.Unlock()
		}
	})
	admitted := func() (total int, dup bool) {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range admissions {
			total += n
			dup = dup || n > 1
		}
		return total, dup
	}

	for i := 0; i < jobs; i++ {
		_, err := s.Enqueue(textSpec(fmt.Sprintf("job-%d", i)))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	burst := func() {
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < tickers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				s.safeTick(ctx)
			}()
		}
		close(start)
		wg.Wait()
	}

	burst()
	total, dup := admitted()
	assert.Equal(t, opts.MaxConcurrent, total)
	assert.False(t, dup)
	assert.Equal(t, opts.MaxConcurrent, s.Stats().Processing)
	require.Eventually(t, func() bool { return len(svc.submissions()) == total }, 2*time.Second, time.Millisecond)

	close(svc.gate)
	require.Eventually(t, func() bool {
		burst()
		assert.LessOrEqual(t, s.Stats().Processing, opts.MaxConcurrent)
		return s.Stats().Succeeded == jobs
	}, 5*time.Second, 2*time.Millisecond)

	total, dup = admitted()
	assert.Equal(t, jobs, total)
	assert.False(t, dup)
	assert.Len(t, svc.submissions(), jobs)
	assert.LessOrEqual(t, svc.peak(), opts.MaxConcurrent)
}

func TestResetRefusedWhileRunning(t *testing.T) {
	svc := newFakeService()
	svc.gate = make(chan struct{})
	s := newTestScheduler(t, svc, fastOptions())

	_, err := s.Enqueue(textSpec("a"))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second Start is a no-op")

	require.Eventually(t, func() bool { return s.Stats().Processing == 1 }, 2*time.Second, time.Millisecond)
	require.ErrorIs(t, s.Reset(), domain.ErrRunActive)

	svc.gate <- struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	require.NoError(t, s.Reset())
}

// panickyClock panics on the next Now call once armed.
type panickyClock struct {
	clock.Clock
	armed atomic.Bool
}

func (c *panickyClock) Now() time.Time {
	if c.armed.CompareAndSwap(true, false) {
		panic("clock exploded")
	}
	return c.Clock.Now()
}

func TestTickPanicSkipsTick(t *testing.T) {
	clk := &panickyClock{Clock: clock.C}
	opts := fastOptions()
	opts.Clock = clk
	s := newTestScheduler(t, newFakeService(), opts)

	_, err := s.Enqueue(textSpec("a"))
	require.NoError(t, err)

	clk.armed.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.False(t, s.safeTick(ctx))
	assert.Equal(t, 1, s.Stats().Queued)

	assert.False(t, s.safeTick(ctx))
	require.Eventually(t, func() bool { return s.Stats().Succeeded == 1 }, 2*time.Second, time.Millisecond)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	s := newTestScheduler(t, newFakeService(), fastOptions())
	var calls int
	unsubscribe := s.Subscribe(func(Change) { calls++ })

	_, err := s.Enqueue(textSpec("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	unsubscribe()
	_, err = s.Enqueue(textSpec("b"))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDownloadAllSavesSucceededJobs(t *testing.T) {
	svc := newFakeService()
	svc.remoteErr["bad"] = "nope"
	s := newTestScheduler(t, svc, fastOptions())

	for _, p := range []string{"one", "bad", "two"} {
		_, err := s.Enqueue(textSpec(p))
		require.NoError(t, err)
	}
	runToCompletion(t, s)

	var (
		mu    sync.Mutex
		saved []string
	)
	err := s.DownloadAll(context.Background(), func(_ context.Context, job domain.Job) error {
		mu.Lock()
		defer mu.Unlock()
		saved = append(saved, job.Spec.Input.PromptText())
		if job.Spec.Input.PromptText() == "two" {
			return errors.New("disk full")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.ElementsMatch(t, []string{"one", "two"}, saved)
	assert.Equal(t, "ai-video-abc.mp4", DownloadFilename("abc"))
}
