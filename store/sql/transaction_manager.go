package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goliatone/go-payments/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type txContextKey struct{}

// BunTransactionManager begins bun transactions and carries them on the
// returned context. Stores built by the same factory join that transaction.
type BunTransactionManager struct {
	db *bun.DB
}

func NewBunTransactionManager(db *bun.DB) (*BunTransactionManager, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &BunTransactionManager{db: db}, nil
}

func (m *BunTransactionManager) Begin(ctx context.Context, opts core.TxOptions) (context.Context, core.Transaction, error) {
	if m == nil || m.db == nil {
		return ctx, nil, fmt.Errorf("sqlstore: transaction manager is not configured")
	}
	if _, nested := txFromContext(ctx); nested {
		return ctx, nil, fmt.Errorf("sqlstore: nested transactions are not supported")
	}
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: isolationLevel(m.db.Dialect().Name(), opts.Isolation),
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return ctx, nil, classifyDriverError("begin transaction", err)
	}
	return context.WithValue(ctx, txContextKey{}, tx), &bunTransaction{tx: tx}, nil
}

// isolationLevel maps the requested level onto the driver. SQLite only runs
// serializable transactions and rejects explicit levels.
func isolationLevel(name dialect.Name, level core.IsolationLevel) sql.IsolationLevel {
	if name == dialect.SQLite {
		return sql.LevelDefault
	}
	switch level {
	case core.IsolationReadCommitted:
		return sql.LevelReadCommitted
	case core.IsolationRepeatableRead:
		return sql.LevelRepeatableRead
	case core.IsolationSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

type bunTransaction struct {
	tx bun.Tx
}

func (t *bunTransaction) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return classifyDriverError("commit", err)
	}
	return nil
}

func (t *bunTransaction) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return classifyDriverError("rollback", err)
	}
	return nil
}

func txFromContext(ctx context.Context) (bun.Tx, bool) {
	if ctx == nil {
		return bun.Tx{}, false
	}
	tx, ok := ctx.Value(txContextKey{}).(bun.Tx)
	return tx, ok
}

// conn returns the transaction on ctx or db.
func conn(ctx context.Context, db *bun.DB) bun.IDB {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return db
}
