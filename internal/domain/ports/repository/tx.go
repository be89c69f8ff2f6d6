package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// TransactionManager runs fn inside one database transaction, handing the
// transaction to repositories through tx. Repositories accept a nil tx and
// then run on the pool.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//		ok, err := payments.TransitionStatus(ctx, tx, id, from, to, change)
//		...
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
