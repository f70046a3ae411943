package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dErrors "github.com/akanksha509/backend-task/pkg/domain-errors"
	txcontext "github.com/akanksha509/backend-task/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// TxRunner executes one identify request inside a serializable transaction.
// Serializable isolation is what prevents two concurrent merges from each
// reading a pre-merge cluster view and committing divergent results; a
// weaker level would need explicit version stamps instead.
type TxRunner struct {
	db      *sql.DB
	timeout time.Duration
}

// NewTxRunner wraps db with the given per-attempt timeout (0 means the 5s
// default). The timeout bounds both resource acquisition (lock_timeout) and
// total attempt duration.
func NewTxRunner(db *sql.DB, timeout time.Duration) *TxRunner {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &TxRunner{db: db, timeout: timeout}
}

func (t *TxRunner) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", MapError(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	lockTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.timeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, lockTimeout); err != nil {
		return fmt.Errorf("set lock timeout: %w", MapError(err))
	}

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", MapError(err))
	}
	return nil
}
