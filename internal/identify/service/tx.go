package service

import (
	"context"
	"sync"
	"time"

	dErrors "github.com/akanksha509/backend-task/pkg/domain-errors"
)

// StoreTx provides the atomic boundary for one identify request. The
// postgres implementation wraps a serializable database transaction; the
// in-memory implementation serializes behind a single lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// defaultTxTimeout bounds how long one attempt may hold the boundary.
const defaultTxTimeout = 5 * time.Second

// inMemoryStoreTx uses one coarse lock rather than sharding: a merge can
// span clusters reached through arbitrary identifiers, so there is no key to
// shard on without re-deriving cluster membership first.
type inMemoryStoreTx struct {
	mu      sync.Mutex
	timeout time.Duration
}

func newInMemoryStoreTx() *inMemoryStoreTx {
	return &inMemoryStoreTx{}
}

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}
