// Package video adapts the Veo client to the operation contract used by the
// batch scheduler and stores finished videos locally.
package video

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"veobatch/internal/domain"
	"veobatch/internal/infra"
	"veobatch/internal/providers/genai"
)

// Backend is the subset of the Veo client the service depends on.
type Backend interface {
	SubmitVideo(ctx context.Context, req genai.VideoRequest) (string, error)
	GetOperation(ctx context.Context, name string) (*genai.Operation, error)
	Download(ctx context.Context, uri string) ([]byte, string, error)
}

// Store persists downloaded videos.
type Store interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Service submits, polls and materializes Veo video operations.
type Service struct {
	backend Backend
	store   Store
	baseURL string
	logger  *infra.Logger
}

// NewService wires a Service. baseURL is the public prefix under which the
// store's keys are served.
func NewService(backend Backend, store Store, baseURL string, logger *infra.Logger) *Service {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Service{
		backend: backend,
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Submit builds the final prompt and starts a remote operation.
func (s *Service) Submit(ctx context.Context, spec domain.JobSpec) (domain.OperationHandle, error) {
	req := genai.VideoRequest{
		Prompt:      BuildPrompt(spec),
		Model:       spec.Model,
		AspectRatio: spec.AspectRatio,
	}
	if in, ok := spec.Input.(domain.ImageInput); ok {
		req.Image = &genai.InlineImage{Data: in.Image.Data, MIME: in.Image.MIME}
	}
	name, err := s.backend.SubmitVideo(ctx, req)
	if err != nil {
		return domain.OperationHandle{}, &domain.SubmissionError{Err: err}
	}
	return domain.OperationHandle{Name: name}, nil
}

// Poll reports the state of an operation. Quota failures surface as errors
// matching domain.ErrQuotaExceeded.
func (s *Service) Poll(ctx context.Context, handle domain.OperationHandle) (domain.PollResult, error) {
	op, err := s.backend.GetOperation(ctx, handle.Name)
	if err != nil {
		return domain.PollResult{}, &domain.PollError{Handle: handle, Err: err}
	}
	return domain.PollResult{Done: op.Done, Locator: op.VideoURI, Error: op.Error}, nil
}

// Materialize downloads the video behind locator and returns its public URL.
func (s *Service) Materialize(ctx context.Context, jobID, locator string) (string, error) {
	data, mime, err := s.backend.Download(ctx, locator)
	if err != nil {
		return "", &domain.FetchError{Locator: locator, Err: err}
	}
	if len(data) == 0 {
		return "", &domain.FetchError{Locator: locator, Err: fmt.Errorf("empty body")}
	}
	key, err := s.store.Write(ctx, StorageKey(jobID), data)
	if err != nil {
		return "", &domain.FetchError{Locator: locator, Err: err}
	}
	s.logger.Debug().
		Str("job_id", jobID).
		Str("key", key).
		Str("mime", mime).
		Int("bytes", len(data)).
		Msg("video: stored generated video")
	return s.baseURL + "/" + key, nil
}

// StorageKey is where a job's video is stored.
func StorageKey(jobID string) string {
	return path.Join("generated", "videos", jobID, "video.mp4")
}
