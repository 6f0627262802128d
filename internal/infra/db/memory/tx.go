package memory

import (
	"context"

	"github.com/jackc/pgx/v4"

	"event-companion-sync/internal/domain/ports/repository"
)

var _ repository.TransactionManager = TxManager{}

// TxManager satisfies repository.TransactionManager for the in-memory
// stores, which are atomic per call and need no transaction handle.
type TxManager struct{}

func (TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}
