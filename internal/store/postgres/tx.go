package postgres

import (
	"context"
	"database/sql"
	"time"

	dErrors "lineageforge/pkg/domain-errors"
	txcontext "lineageforge/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// StoreTx runs functions in a database/sql transaction. RunStore and the
// audit outbox store pick the transaction up from the context.
type StoreTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewStoreTx(db *sql.DB) *StoreTx {
	return &StoreTx{db: db, timeout: defaultTxTimeout}
}

func (t *StoreTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}
