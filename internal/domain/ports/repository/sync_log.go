package repository

import (
	"context"
	"iter"

	"event-companion-sync/internal/domain/model"
)

// -----------------------------
// Sync job audit log
// -----------------------------

type SyncLogRepository interface {
	// Append stores an entry. Entries are never updated or removed.
	Append(ctx context.Context, tx Tx, entry *model.SyncLogEntry) error
	// ListByJob yields the entries of one job in append order.
	ListByJob(ctx context.Context, tx Tx, jobID string) iter.Seq2[*model.SyncLogEntry, error]
}
