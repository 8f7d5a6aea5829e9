package scheduler

import (
	"fmt"
	"io"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/rs/zerolog"

	"veobatch/internal/i18n"
	"veobatch/internal/infra"
)

const (
	DefaultMaxConcurrent   = 2
	DefaultRateLimitCount  = 2
	DefaultRateLimitWindow = time.Minute
	DefaultMaxJobs         = 20
	DefaultTickInterval    = time.Second
	DefaultPollInterval    = 10 * time.Second
)

// Options controls the capacity limits and timing of a Scheduler.
type Options struct {
	// MaxConcurrent caps the number of jobs in the processing state.
	MaxConcurrent int
	// RateLimitCount caps admissions within RateLimitWindow.
	RateLimitCount  int
	RateLimitWindow time.Duration
	// MaxJobs bounds the worklist.
	MaxJobs int

	TickInterval time.Duration
	PollInterval time.Duration
	// MaxPollDuration fails a job whose operation is still running after
	// this long. Zero polls until the operation reports done.
	MaxPollDuration time.Duration

	Clock    clock.Clock
	Logger   *infra.Logger
	Messages *i18n.Catalog
}

// DefaultOptions mirrors the limits the Veo quota tolerates on free tiers.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent:   DefaultMaxConcurrent,
		RateLimitCount:  DefaultRateLimitCount,
		RateLimitWindow: DefaultRateLimitWindow,
		MaxJobs:         DefaultMaxJobs,
		TickInterval:    DefaultTickInterval,
		PollInterval:    DefaultPollInterval,
	}
}

func (o Options) validate() error {
	if o.MaxConcurrent <= 0 {
		return fmt.Errorf("scheduler: max concurrent must be positive, got %d", o.MaxConcurrent)
	}
	if o.RateLimitCount <= 0 {
		return fmt.Errorf("scheduler: rate limit count must be positive, got %d", o.RateLimitCount)
	}
	if o.RateLimitWindow <= 0 {
		return fmt.Errorf("scheduler: rate limit window must be positive, got %s", o.RateLimitWindow)
	}
	if o.MaxJobs <= 0 {
		return fmt.Errorf("scheduler: max jobs must be positive, got %d", o.MaxJobs)
	}
	if o.TickInterval <= 0 {
		return fmt.Errorf("scheduler: tick interval must be positive, got %s", o.TickInterval)
	}
	if o.PollInterval < 0 || o.MaxPollDuration < 0 {
		return fmt.Errorf("scheduler: poll durations must not be negative")
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.C
	}
	if o.Logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		o.Logger = &l
	}
	if o.Messages == nil {
		o.Messages = i18n.New("en")
	}
	return o
}
