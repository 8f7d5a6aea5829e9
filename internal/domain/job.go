package domain

import (
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status ends the current attempt.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Quality selects the prompt modifiers appended before submission.
type Quality string

const (
	QualityStandard     Quality = "standard"
	QualityEnhanced     Quality = "enhanced"
	QualityProfessional Quality = "professional"
)

// NormalizeQuality sanitizes free-form user input into a supported tier.
func NormalizeQuality(q string) Quality {
	switch Quality(strings.ToLower(strings.TrimSpace(q))) {
	case QualityEnhanced:
		return QualityEnhanced
	case QualityProfessional:
		return QualityProfessional
	default:
		return QualityStandard
	}
}

const (
	DefaultVideoModel  = "veo-2.0-generate-001"
	DefaultAspectRatio = "16:9"
)

// Input is the generation source of a job: either text only or text plus a
// conditioning image.
type Input interface {
	PromptText() string
	isInput()
}

// TextInput generates a video from a prompt alone.
type TextInput struct {
	Prompt string
}

func (TextInput) isInput() {}

// PromptText returns the user prompt.
func (t TextInput) PromptText() string { return t.Prompt }

// ImageInput generates a video from a prompt and a source image.
type ImageInput struct {
	Prompt string
	Image  SourceImage
}

func (ImageInput) isInput() {}

// PromptText returns the user prompt.
func (i ImageInput) PromptText() string { return i.Prompt }

// SourceImage describes an uploaded image used as the first frame.
type SourceImage struct {
	Data     []byte
	MIME     string
	Filename string
}

// JobSpec holds the immutable generation parameters of a job. The scheduler
// never inspects it beyond validation; it is handed to the operation service
// untouched.
type JobSpec struct {
	Input       Input
	AudioPrompt string
	Model       string
	AspectRatio string
	Quality     Quality
}

// InputType names the variant held by Input.
func (s JobSpec) InputType() string {
	if _, ok := s.Input.(ImageInput); ok {
		return "image"
	}
	return "text"
}

// WithDefaults fills the optional fields left empty by callers.
func (s JobSpec) WithDefaults() JobSpec {
	if strings.TrimSpace(s.Model) == "" {
		s.Model = DefaultVideoModel
	}
	if strings.TrimSpace(s.AspectRatio) == "" {
		s.AspectRatio = DefaultAspectRatio
	}
	s.Quality = NormalizeQuality(string(s.Quality))
	return s
}

// Validate checks a JobSpec before it enters the worklist.
func (s JobSpec) Validate() error {
	switch in := s.Input.(type) {
	case TextInput:
		if strings.TrimSpace(in.Prompt) == "" {
			return invalidSpec("prompt is required")
		}
	case ImageInput:
		if strings.TrimSpace(in.Prompt) == "" {
			return invalidSpec("prompt is required")
		}
		if len(in.Image.Data) == 0 {
			return invalidSpec("image input requires image data")
		}
		if !strings.HasPrefix(strings.ToLower(in.Image.MIME), "image/") {
			return invalidSpec("image input requires an image mime type")
		}
	case nil:
		return invalidSpec("input is required")
	}
	switch strings.TrimSpace(s.AspectRatio) {
	case "", "16:9", "9:16", "1:1", "4:3":
	default:
		return invalidSpec("unsupported aspect ratio " + s.AspectRatio)
	}
	return nil
}

// Job is one unit of scheduled work. Result and error fields are populated
// only in the matching terminal status.
type Job struct {
	ID              string
	Spec            JobSpec
	Status          JobStatus
	ProgressMessage string
	ErrorMessage    string
	ErrorKind       FailureKind
	ResultURL       string
	DownloadURL     string
	Attempts        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       time.Time
	FinishedAt      time.Time
}

// OperationHandle identifies a remote long-running operation.
type OperationHandle struct {
	Name string
}

// PollResult is the observed state of a remote operation.
type PollResult struct {
	Done    bool
	Locator string
	// Error is set when the remote side reports the operation failed or
	// refused to produce a result.
	Error string
}
