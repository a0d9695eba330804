package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction, passing the
// infra-defined handle (pgx.Tx for Postgres) as tx.
//
// Repository methods accept that handle, take row locks (SELECT ... FOR
// UPDATE) when they see one, and fall back to the pool when given NoTX.
// fn returning an error rolls the transaction back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
