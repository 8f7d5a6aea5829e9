package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidSpec   = errors.New("invalid job spec")
	ErrWorklistFull  = errors.New("worklist full")
	ErrInvalidState  = errors.New("invalid job state")
	ErrRunStarted    = errors.New("batch run already started")
	ErrRunActive     = errors.New("batch run is active")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrStopped       = errors.New("scheduler stopped")
)

func invalidSpec(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpec, msg)
}

// FailureKind classifies why a job ended in the failed state.
type FailureKind string

const (
	FailureSubmission FailureKind = "submission"
	FailureQuota      FailureKind = "quota"
	FailurePoll       FailureKind = "poll"
	FailureOperation  FailureKind = "operation"
	FailureIncomplete FailureKind = "incomplete_result"
	FailureFetch      FailureKind = "fetch"
	FailureTimeout    FailureKind = "timeout"
	FailureStopped    FailureKind = "stopped"
	FailureUnknown    FailureKind = "unknown"
)

// SubmissionError is returned when the remote service rejects a job at submit time.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return "submit operation: " + e.Err.Error() }
func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError is returned when querying an operation fails in transport.
type PollError struct {
	Handle OperationHandle
	Err    error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll operation %s: %v", e.Handle.Name, e.Err)
}
func (e *PollError) Unwrap() error { return e.Err }

// OperationError is returned when the remote operation itself reports a failure.
type OperationError struct {
	Handle  OperationHandle
	Message string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s failed: %s", e.Handle.Name, e.Message)
}

// IncompleteResultError is returned when an operation completes without a
// usable result locator.
type IncompleteResultError struct {
	Handle OperationHandle
}

func (e *IncompleteResultError) Error() string {
	return fmt.Sprintf("operation %s completed but no result was provided", e.Handle.Name)
}

// FetchError is returned when a result locator cannot be materialized.
type FetchError struct {
	Locator string
	Err     error
}

func (e *FetchError) Error() string { return "fetch result: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// TimeoutError is returned when polling exceeds the configured maximum wait.
type TimeoutError struct {
	Handle OperationHandle
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s did not complete within %s", e.Handle.Name, e.After)
}

// ClassifyFailure maps an execution error to its FailureKind.
func ClassifyFailure(err error) FailureKind {
	var (
		subErr     *SubmissionError
		pollErr    *PollError
		opErr      *OperationError
		incomplete *IncompleteResultError
		fetchErr   *FetchError
		timeoutErr *TimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStopped):
		return FailureStopped
	case errors.Is(err, ErrQuotaExceeded):
		return FailureQuota
	case errors.As(err, &subErr):
		return FailureSubmission
	case errors.As(err, &timeoutErr):
		return FailureTimeout
	case errors.As(err, &pollErr):
		return FailurePoll
	case errors.As(err, &opErr):
		return FailureOperation
	case errors.As(err, &incomplete):
		return FailureIncomplete
	case errors.As(err, &fetchErr):
		return FailureFetch
	default:
		return FailureUnknown
	}
}
