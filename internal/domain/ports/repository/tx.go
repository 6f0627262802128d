package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a storage transaction and passes the
// backend's tx handle through `tx`.
//
// Repositories accept a nil tx and fall back to their non-transactional
// path; the in-memory stores ignore tx entirely and rely on their own
// mutex for atomicity.
//
// USAGE
// tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
// job, err := jobs.Get(ctx, tx, id)
// ...
// return err
// })
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
