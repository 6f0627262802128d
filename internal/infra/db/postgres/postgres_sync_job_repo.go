package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"event-companion-sync/internal/domain"
	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/domain/ports/repository"
)

var _ repository.SyncJobRepository = (*syncJobRepo)(nil)

const syncJobColumns = `id, object_type, status, source, start_time, end_time, duration_seconds,
  records_processed, records_total, error_message, retry_count, max_retries, updated_at`

type syncJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
	now  func() time.Time
}

func NewSyncJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *syncJobRepo {
	return &syncJobRepo{pool: pool, tm: tm, now: time.Now}
}

func (r *syncJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.SyncJob) error {
	if job.IsZero() {
		return domain.ErrInvalidArgument
	}
	updatedAt := job.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}

	const q = `
INSERT INTO sync_jobs (` + syncJobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, string(job.ObjectType), string(job.Status), string(job.Source),
		job.StartTime, job.EndTime, job.Duration,
		job.RecordsProcessed, job.RecordsTotal, job.ErrorMessage,
		job.RetryCount, job.MaxRetries, updatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateID
		}
		return err
	}
	return nil
}

func (r *syncJobRepo) Get(ctx context.Context, tx repository.Tx, id string) (*model.SyncJob, error) {
	q := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE id = $1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanSyncJob(row)
}

// Update locks the row for the length of the transaction, so concurrent
// patches on one job from any process are applied one after another.
func (r *syncJobRepo) Update(ctx context.Context, tx repository.Tx, id string, patch repository.JobPatch) (*model.SyncJob, error) {
	if _, ok := tx.(pgx.Tx); ok {
		return r.update(ctx, tx, id, patch)
	}
	var out *model.SyncJob
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		j, err := r.update(ctx, tx, id, patch)
		out = j
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *syncJobRepo) update(ctx context.Context, tx repository.Tx, id string, patch repository.JobPatch) (*model.SyncJob, error) {
	job, err := r.Get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	prev := job.UpdatedAt
	if err := patch(job); err != nil {
		return nil, err
	}
	job.ID = id
	job.UpdatedAt = model.NextUpdatedAt(prev, r.now())

	const q = `
UPDATE sync_jobs SET
  status = $2,
  start_time = $3,
  end_time = $4,
  duration_seconds = $5,
  records_processed = $6,
  records_total = $7,
  error_message = $8,
  retry_count = $9,
  max_retries = $10,
  updated_at = $11
WHERE id = $1;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		job.ID, string(job.Status), job.StartTime, job.EndTime, job.Duration,
		job.RecordsProcessed, job.RecordsTotal, job.ErrorMessage,
		job.RetryCount, job.MaxRetries, job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (r *syncJobRepo) List(ctx context.Context, tx repository.Tx, filter model.JobFilter) iter.Seq2[*model.SyncJob, error] {
	return func(yield func(*model.SyncJob, error) bool) {
		const q = `
SELECT ` + syncJobColumns + `
FROM sync_jobs
WHERE ($1 = '' OR status = $1) AND ($2 = '' OR object_type = $2)
ORDER BY seq;`

		rows, err := queryRows(ctx, r.pool, tx, q, string(filter.Status), string(filter.ObjectType))
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			j, err := scanSyncJob(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			// status and type are matched in SQL; this applies the free-text query
			if !filter.Match(j) {
				continue
			}
			if !yield(j, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func scanSyncJob(row pgx.Row) (*model.SyncJob, error) {
	var (
		j                          model.SyncJob
		objectType, status, source string
	)
	err := row.Scan(
		&j.ID, &objectType, &status, &source, &j.StartTime, &j.EndTime, &j.Duration,
		&j.RecordsProcessed, &j.RecordsTotal, &j.ErrorMessage, &j.RetryCount, &j.MaxRetries, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	j.ObjectType = model.ObjectType(objectType)
	j.Status = model.SyncStatus(status)
	j.Source = model.SyncSource(source)
	return &j, nil
}
