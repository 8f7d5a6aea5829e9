package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veobatch/internal/domain"
	"veobatch/internal/sqlinline"
)

type stubExecutor struct {
	row     []any
	err     error
	queries []string
	args    [][]any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	return stubRow{values: s.row, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d dest for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = r.values[i].(string)
		case *int:
			*ptr = r.values[i].(int)
		case *time.Time:
			*ptr = r.values[i].(time.Time)
		case **time.Time:
			if v, ok := r.values[i].(time.Time); ok {
				*ptr = &v
			}
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

func TestJournalSaveImageJob(t *testing.T) {
	exec := &stubExecutor{}
	journal := NewJobJournal(exec)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	err := journal.Save(context.Background(), domain.Job{
		ID: "5b0c3a9e-0000-4000-8000-000000000001",
		Spec: domain.JobSpec{
			Input:       domain.ImageInput{Prompt: "wave", Image: domain.SourceImage{Data: []byte{1}, MIME: "image/jpeg", Filename: "me.jpg"}},
			Model:       domain.DefaultVideoModel,
			AspectRatio: "1:1",
			Quality:     domain.QualityEnhanced,
		},
		Status:    domain.JobStatusProcessing,
		Attempts:  1,
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: now,
	})
	require.NoError(t, err)
	require.Len(t, exec.queries, 1)
	assert.True(t, strings.HasPrefix(exec.queries[0], "--sql "))
	assert.Equal(t, sqlinline.QUpsertBatchJob, exec.queries[0])
	assert.Contains(t, exec.queries[0], "where batch_jobs.updated_at <= excluded.updated_at")

	args := exec.args[0]
	require.Len(t, args, 20)
	assert.Equal(t, "image", args[1])
	assert.Equal(t, "image/jpeg", args[7])
	assert.Equal(t, "me.jpg", args[8])
	assert.Equal(t, "processing", args[9])
	assert.Equal(t, now, args[17])
	assert.NotNil(t, args[18])
	assert.Nil(t, args[19])
}

func TestJournalGetByID(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := created.Add(2 * time.Minute)
	exec := &stubExecutor{row: []any{
		"job-1", "text", "city lights", "jazz", domain.DefaultVideoModel, "16:9", "professional", "", "",
		"succeeded", "", "", "", "/static/v.mp4", "https://files.test/v", 1,
		created, finished, created, finished,
	}}
	journal := NewJobJournal(exec)

	job, err := journal.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TextInput{Prompt: "city lights"}, job.Spec.Input)
	assert.Equal(t, "jazz", job.Spec.AudioPrompt)
	assert.Equal(t, domain.QualityProfessional, job.Spec.Quality)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Equal(t, finished, job.FinishedAt)
	assert.Equal(t, "/static/v.mp4", job.ResultURL)
}

func TestJournalGetByIDNotFound(t *testing.T) {
	journal := NewJobJournal(&stubExecutor{err: pgx.ErrNoRows})
	_, err := journal.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJournalEnsureSchemaAndDelete(t *testing.T) {
	exec := &stubExecutor{}
	journal := NewJobJournal(exec)
	require.NoError(t, journal.EnsureSchema(context.Background()))
	require.NoError(t, journal.Delete(context.Background(), "job-1"))
	assert.Equal(t, []string{sqlinline.QEnsureBatchSchema, sqlinline.QDeleteBatchJob}, exec.queries)
	assert.Equal(t, []any{"job-1"}, exec.args[1])
}
