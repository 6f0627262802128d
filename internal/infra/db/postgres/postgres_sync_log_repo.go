package postgres

import (
	"context"
	"encoding/json"
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

var _ repository.SyncLogRepository = (*syncLogRepo)(nil)

type syncLogRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewSyncLogRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *syncLogRepo {
	return &syncLogRepo{pool: pool, tm: tm}
}

// Append stores entry. A zero Timestamp is stamped by the database. Any
// timestamp is raised to the job's latest entry so a job's log never goes
// back in time; the stored value is written back to entry.
func (r *syncLogRepo) Append(ctx context.Context, tx repository.Tx, entry *model.SyncLogEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if _, ok := tx.(pgx.Tx); ok {
		return r.append(ctx, tx, entry)
	}
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return r.append(ctx, tx, entry)
	})
}

func (r *syncLogRepo) append(ctx context.Context, tx repository.Tx, entry *model.SyncLogEntry) error {
	// appends to one job queue up behind each other until commit
	if _, err := execSQL(ctx, r.pool, tx, `SELECT pg_advisory_xact_lock(hashtext($1));`, entry.JobID); err != nil {
		return err
	}

	var details *string
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("%w: details: %v", domain.ErrInvalidArgument, err)
		}
		s := string(b)
		details = &s
	}
	var stamp *time.Time
	if !entry.Timestamp.IsZero() {
		t := entry.Timestamp
		stamp = &t
	}

	const q = `
INSERT INTO sync_logs (id, job_id, logged_at, level, message, details)
VALUES (
  $1, $2,
  GREATEST(COALESCE($3::timestamptz, clock_timestamp()), (SELECT MAX(logged_at) FROM sync_logs WHERE job_id = $2)),
  $4, $5, $6::jsonb
)
RETURNING logged_at;`

	row, err := pickRow(ctx, r.pool, tx, q,
		entry.ID, entry.JobID, stamp, string(entry.Level), entry.Message, details)
	if err != nil {
		return err
	}
	if err := row.Scan(&entry.Timestamp); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateID
		}
		return err
	}
	return nil
}

func (r *syncLogRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) iter.Seq2[*model.SyncLogEntry, error] {
	return func(yield func(*model.SyncLogEntry, error) bool) {
		const q = `
SELECT id, job_id, logged_at, level, message, COALESCE(details::text, '')
FROM sync_logs
WHERE job_id = $1
ORDER BY seq;`

		rows, err := queryRows(ctx, r.pool, tx, q, jobID)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanSyncLog(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func scanSyncLog(row pgx.Row) (*model.SyncLogEntry, error) {
	var (
		e            model.SyncLogEntry
		level, extra string
	)
	if err := row.Scan(&e.ID, &e.JobID, &e.Timestamp, &level, &e.Message, &extra); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	e.Level = model.LogLevel(level)
	if extra != "" {
		if err := json.Unmarshal([]byte(extra), &e.Details); err != nil {
			return nil, fmt.Errorf("%w: details: %v", domain.ErrReadDatabaseRow, err)
		}
	}
	return &e, nil
}
