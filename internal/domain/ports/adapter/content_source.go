package adapter

import (
	"context"

	"event-companion-sync/internal/domain/model"
)

// Batch is one page pulled from the content source.
type Batch struct {
	Records int
	Done    bool
}

// ContentSource is the port for the external system the app syncs from
// (the event's WordPress site in production).
type ContentSource interface {
	// Count returns how many records of the given type are pending.
	Count(ctx context.Context, objectType model.ObjectType) (int, error)

	// FetchBatch pulls up to limit records starting at offset.
	// A returned error wrapped with ErrRecoverable may be retried.
	FetchBatch(ctx context.Context, objectType model.ObjectType, offset, limit int) (Batch, error)
}
