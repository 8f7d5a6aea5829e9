package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"veobatch/internal/domain"
	"veobatch/internal/providers/video"
	"veobatch/internal/scheduler"
	"veobatch/pkg/zip"
)

// DownloadJob streams the stored video of a succeeded job.
func (a *App) DownloadJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Scheduler.Job(id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if job.Status != domain.JobStatusSucceeded {
		a.error(w, http.StatusConflict, "invalid_state", "job has no finished video")
		return
	}
	rc, err := a.Store.Open(r.Context(), video.StorageKey(id))
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: %v", domain.ErrNotFound, err))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", scheduler.DownloadFilename(id)))
	if _, err := io.Copy(w, rc); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", id).Msg("http: video stream interrupted")
	}
}

// DownloadAll packs every succeeded video into one archive. Videos that fail
// to load are left out and reported in a header.
func (a *App) DownloadAll(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		assets []zip.Asset
	)
	err := a.Scheduler.DownloadAll(r.Context(), func(ctx context.Context, job domain.Job) error {
		data, err := a.Store.Read(ctx, video.StorageKey(job.ID))
		if err != nil {
			return err
		}
		mu.Lock()
		assets = append(assets, zip.Asset{
			Filename: scheduler.DownloadFilename(job.ID),
			MIME:     "video/mp4",
			Data:     data,
			Modified: job.FinishedAt,
		})
		mu.Unlock()
		return nil
	})
	if err != nil {
		a.Logger.Warn().Err(err).Int("archived", len(assets)).Msg("http: some videos were left out of the archive")
		w.Header().Set("X-Partial-Archive", "true")
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no finished videos to download")
		return
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Filename < assets[j].Filename })

	name := fmt.Sprintf("veo-batch-%s.zip", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := zip.WriteArchive(w, assets); err != nil {
		a.Logger.Error().Err(err).Msg("http: write archive")
	}
}
