package repository

import (
	"context"
	"iter"

	"event-companion-sync/internal/domain/model"
)

// JobPatch mutates a copy of a stored job. Returning an error discards the
// copy, leaving the stored record untouched.
type JobPatch func(job *model.SyncJob) error

// SyncJobRepository owns the set of sync jobs. It checks record existence
// only; lifecycle rules live in the use case.
type SyncJobRepository interface {
	// Create inserts a new job. Returns domain.ErrDuplicateID if the id is taken.
	Create(ctx context.Context, tx Tx, job *model.SyncJob) error
	// Get returns a copy of the job or domain.ErrNotFound.
	Get(ctx context.Context, tx Tx, id string) (*model.SyncJob, error)
	// Update applies patch atomically and returns the stored result.
	Update(ctx context.Context, tx Tx, id string, patch JobPatch) (*model.SyncJob, error)
	// List yields jobs matching filter in insertion order. Every range over
	// the returned sequence reads the store again.
	List(ctx context.Context, tx Tx, filter model.JobFilter) iter.Seq2[*model.SyncJob, error]
}
