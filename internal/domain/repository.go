package domain

import "context"

// JobJournal persists job snapshots so a batch run stays inspectable after
// the process exits.
type JobJournal interface {
	Save(ctx context.Context, job Job) error
	Delete(ctx context.Context, jobID string) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListRecent(ctx context.Context, limit int) ([]Job, error)
}
