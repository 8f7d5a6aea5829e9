package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"veobatch/internal/domain"
	"veobatch/internal/i18n"
	"veobatch/internal/infra"
	"veobatch/internal/middleware"
	"veobatch/internal/scheduler"
	"veobatch/internal/storage"
)

const defaultMaxUploadBytes = 20 << 20

// App holds the dependencies of the batch HTTP handlers.
type App struct {
	Scheduler *scheduler.Scheduler
	Store     *storage.FileStore
	// Journal is optional; without it history endpoints return 404.
	Journal domain.JobJournal
	Logger  infra.Logger
	// RunContext bounds runs started over HTTP. It outlives single requests.
	RunContext     context.Context
	MaxUploadBytes int64
	// DefaultModel replaces an empty model in enqueued specs.
	DefaultModel string
}

func NewApp(s *scheduler.Scheduler, store *storage.FileStore, journal domain.JobJournal, logger infra.Logger) *App {
	return &App{
		Scheduler:      s,
		Store:          store,
		Journal:        journal,
		Logger:         logger,
		RunContext:     context.Background(),
		MaxUploadBytes: defaultMaxUploadBytes,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type jobView struct {
	ID              string     `json:"id"`
	InputType       string     `json:"input_type"`
	Prompt          string     `json:"prompt"`
	AudioPrompt     string     `json:"audio_prompt,omitempty"`
	Model           string     `json:"model"`
	AspectRatio     string     `json:"aspect_ratio"`
	Quality         string     `json:"quality"`
	ImageName       string     `json:"image_name,omitempty"`
	Status          string     `json:"status"`
	StatusLabel     string     `json:"status_label"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ErrorKind       string     `json:"error_kind,omitempty"`
	ResultURL       string     `json:"result_url,omitempty"`
	DownloadURL     string     `json:"download_url,omitempty"`
	Attempts        int        `json:"attempts"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

func newJobView(job domain.Job, msgs *i18n.Catalog) jobView {
	v := jobView{
		ID:              job.ID,
		InputType:       job.Spec.InputType(),
		Model:           job.Spec.Model,
		AspectRatio:     job.Spec.AspectRatio,
		Quality:         string(job.Spec.Quality),
		AudioPrompt:     job.Spec.AudioPrompt,
		Status:          string(job.Status),
		StatusLabel:     msgs.StatusLabel(job.Status),
		ProgressMessage: job.ProgressMessage,
		ErrorMessage:    job.ErrorMessage,
		ErrorKind:       string(job.ErrorKind),
		ResultURL:       job.ResultURL,
		DownloadURL:     job.DownloadURL,
		Attempts:        job.Attempts,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	if job.Spec.Input != nil {
		v.Prompt = job.Spec.Input.PromptText()
	}
	if in, ok := job.Spec.Input.(domain.ImageInput); ok {
		v.ImageName = in.Image.Filename
	}
	if !job.StartedAt.IsZero() {
		t := job.StartedAt
		v.StartedAt = &t
	}
	if !job.FinishedAt.IsZero() {
		t := job.FinishedAt
		v.FinishedAt = &t
	}
	return v
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, errorResponse{Error: kind, Message: msg})
}

// fail maps domain errors onto HTTP statuses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidSpec):
		a.error(w, http.StatusBadRequest, "invalid_spec", err.Error())
	case errors.Is(err, domain.ErrWorklistFull):
		a.error(w, http.StatusConflict, "worklist_full", err.Error())
	case errors.Is(err, domain.ErrRunStarted), errors.Is(err, domain.ErrRunActive):
		a.error(w, http.StatusConflict, "run_state", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "invalid_state", err.Error())
	default:
		a.Logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
