package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"veobatch/internal/domain"
	"veobatch/internal/infra"
	"veobatch/internal/sqlinline"
)

// JobJournalPG implements domain.JobJournal on PostgreSQL. Source image bytes
// are not persisted; only their mime type and file name are.
type JobJournalPG struct {
	sql infra.SQLExecutor
}

// NewJobJournal creates a journal backed by the given executor.
func NewJobJournal(sql infra.SQLExecutor) *JobJournalPG {
	return &JobJournalPG{sql: sql}
}

// EnsureSchema creates the batch tables when missing.
func (r *JobJournalPG) EnsureSchema(ctx context.Context) error {
	_, err := r.sql.Exec(ctx, sqlinline.QEnsureBatchSchema)
	return err
}

// Save inserts or updates a job snapshot.
func (r *JobJournalPG) Save(ctx context.Context, job domain.Job) error {
	var imageMIME, imageName string
	if in, ok := job.Spec.Input.(domain.ImageInput); ok {
		imageMIME, imageName = in.Image.MIME, in.Image.Filename
	}
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertBatchJob,
		job.ID,
		job.Spec.InputType(),
		job.Spec.Input.PromptText(),
		job.Spec.AudioPrompt,
		job.Spec.Model,
		job.Spec.AspectRatio,
		string(job.Spec.Quality),
		imageMIME,
		imageName,
		string(job.Status),
		job.ProgressMessage,
		job.ErrorMessage,
		string(job.ErrorKind),
		job.ResultURL,
		job.DownloadURL,
		job.Attempts,
		job.CreatedAt,
		job.UpdatedAt,
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Delete removes a job snapshot.
func (r *JobJournalPG) Delete(ctx context.Context, jobID string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QDeleteBatchJob, jobID)
	return err
}

// GetByID fetches a job snapshot by its identifier.
func (r *JobJournalPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectBatchJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListRecent returns up to limit snapshots, newest first.
func (r *JobJournalPG) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListRecentBatchJobs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                   domain.Job
		inputType, prompt     string
		imageMIME, imageName  string
		quality, status, kind string
		startedAt, finishedAt *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&inputType,
		&prompt,
		&job.Spec.AudioPrompt,
		&job.Spec.Model,
		&job.Spec.AspectRatio,
		&quality,
		&imageMIME,
		&imageName,
		&status,
		&job.ProgressMessage,
		&job.ErrorMessage,
		&kind,
		&job.ResultURL,
		&job.DownloadURL,
		&job.Attempts,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}
	if inputType == "image" {
		job.Spec.Input = domain.ImageInput{Prompt: prompt, Image: domain.SourceImage{MIME: imageMIME, Filename: imageName}}
	} else {
		job.Spec.Input = domain.TextInput{Prompt: prompt}
	}
	job.Spec.Quality = domain.Quality(quality)
	job.Status = domain.JobStatus(status)
	job.ErrorKind = domain.FailureKind(kind)
	if startedAt != nil {
		job.StartedAt = *startedAt
	}
	if finishedAt != nil {
		job.FinishedAt = *finishedAt
	}
	return &job, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ domain.JobJournal = (*JobJournalPG)(nil)
