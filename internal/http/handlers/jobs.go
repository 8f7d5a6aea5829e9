package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"veobatch/internal/domain"
	"veobatch/internal/middleware"
	"veobatch/internal/scheduler"
)

type enqueueRequest struct {
	Prompt      string `json:"prompt"`
	AudioPrompt string `json:"audio_prompt"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspect_ratio"`
	Quality     string `json:"quality"`
	ImageBase64 string `json:"image_base64"`
	ImageMIME   string `json:"image_mime"`
	ImageName   string `json:"image_name"`
}

func (req enqueueRequest) spec() (domain.JobSpec, error) {
	spec := domain.JobSpec{
		AudioPrompt: strings.TrimSpace(req.AudioPrompt),
		Model:       strings.TrimSpace(req.Model),
		AspectRatio: strings.TrimSpace(req.AspectRatio),
		Quality:     domain.NormalizeQuality(req.Quality),
	}
	if req.ImageBase64 == "" {
		spec.Input = domain.TextInput{Prompt: req.Prompt}
		return spec, nil
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return spec, fmt.Errorf("%w: image_base64 is not valid base64", domain.ErrInvalidSpec)
	}
	spec.Input = domain.ImageInput{
		Prompt: req.Prompt,
		Image:  domain.SourceImage{Data: data, MIME: req.ImageMIME, Filename: req.ImageName},
	}
	return spec, nil
}

type statusResponse struct {
	Running    bool    `json:"running"`
	Total      int     `json:"total"`
	Queued     int     `json:"queued"`
	Processing int     `json:"processing"`
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	Completed  int     `json:"completed"`
	Progress   float64 `json:"progress"`
}

func newStatusResponse(st scheduler.Stats) statusResponse {
	resp := statusResponse{
		Running:    st.Running,
		Total:      st.Total,
		Queued:     st.Queued,
		Processing: st.Processing,
		Succeeded:  st.Succeeded,
		Failed:     st.Failed,
		Completed:  st.Completed(),
	}
	if st.Total > 0 {
		resp.Progress = float64(st.Completed()) / float64(st.Total)
	}
	return resp
}

// EnqueueJob accepts either a JSON body or a multipart form with an "image"
// file part.
func (a *App) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)

	var (
		spec domain.JobSpec
		err  error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		spec, err = a.multipartSpec(r)
	} else {
		var req enqueueRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
			return
		}
		spec, err = req.spec()
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if spec.Model == "" {
		spec.Model = a.DefaultModel
	}

	id, err := a.Scheduler.Enqueue(spec)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	job, err := a.Scheduler.Job(id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, newJobView(job, middleware.MessagesFromContext(r.Context())))
}

func (a *App) multipartSpec(r *http.Request) (domain.JobSpec, error) {
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		return domain.JobSpec{}, fmt.Errorf("%w: %v", domain.ErrInvalidSpec, err)
	}
	req := enqueueRequest{
		Prompt:      r.FormValue("prompt"),
		AudioPrompt: r.FormValue("audio_prompt"),
		Model:       r.FormValue("model"),
		AspectRatio: r.FormValue("aspect_ratio"),
		Quality:     r.FormValue("quality"),
	}
	spec, _ := req.spec()

	file, header, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return spec, nil
	}
	if err != nil {
		return domain.JobSpec{}, fmt.Errorf("%w: %v", domain.ErrInvalidSpec, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return domain.JobSpec{}, err
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	spec.Input = domain.ImageInput{
		Prompt: req.Prompt,
		Image:  domain.SourceImage{Data: data, MIME: contentType, Filename: header.Filename},
	}
	return spec, nil
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	msgs := middleware.MessagesFromContext(r.Context())
	jobs := a.Scheduler.Jobs()
	items := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, newJobView(job, msgs))
	}
	a.json(w, http.StatusOK, map[string]any{
		"items":  items,
		"status": newStatusResponse(a.Scheduler.Stats()),
	})
}

// GetJob serves the live job, falling back to the journal for jobs of a
// previous run.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs := middleware.MessagesFromContext(r.Context())
	job, err := a.Scheduler.Job(id)
	if err == nil {
		a.json(w, http.StatusOK, newJobView(job, msgs))
		return
	}
	if a.Journal == nil {
		a.fail(w, r, err)
		return
	}
	stored, jerr := a.Journal.GetByID(r.Context(), id)
	if jerr != nil {
		a.fail(w, r, jerr)
		return
	}
	a.json(w, http.StatusOK, newJobView(*stored, msgs))
}

func (a *App) RemoveJob(w http.ResponseWriter, r *http.Request) {
	if err := a.Scheduler.Remove(chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryJob re-queues a failed job and makes sure the loop picks it up.
func (a *App) RetryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Scheduler.Retry(id); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Scheduler.Start(a.RunContext); err != nil {
		a.fail(w, r, err)
		return
	}
	job, err := a.Scheduler.Job(id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, newJobView(job, middleware.MessagesFromContext(r.Context())))
}

func (a *App) StartBatch(w http.ResponseWriter, r *http.Request) {
	if err := a.Scheduler.Start(a.RunContext); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, newStatusResponse(a.Scheduler.Stats()))
}

func (a *App) StopBatch(w http.ResponseWriter, r *http.Request) {
	a.Scheduler.Stop()
	a.json(w, http.StatusOK, newStatusResponse(a.Scheduler.Stats()))
}

func (a *App) ResetBatch(w http.ResponseWriter, r *http.Request) {
	if err := a.Scheduler.Reset(); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) BatchStatus(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, newStatusResponse(a.Scheduler.Stats()))
}

func (a *App) History(w http.ResponseWriter, r *http.Request) {
	if a.Journal == nil {
		a.error(w, http.StatusNotFound, "not_found", "job history is not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	jobs, err := a.Journal.ListRecent(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	msgs := middleware.MessagesFromContext(r.Context())
	items := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, newJobView(job, msgs))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
