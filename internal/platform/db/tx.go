package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Transactor runs fn inside one atomic unit. Calls made while a unit is already
// open on ctx join it instead of starting a new one.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Session tracks the open transaction of a context and its after-commit hooks.
type Session struct {
	tx    pgx.Tx
	hooks []func(context.Context)
}

type sessionKey struct{}

// Begin attaches a new session to ctx. tx may be nil for non-SQL backends.
func Begin(ctx context.Context, tx pgx.Tx) (context.Context, *Session) {
	sess := &Session{tx: tx}
	return context.WithValue(ctx, sessionKey{}, sess), sess
}

// SessionFrom returns the session carried by ctx, if any.
func SessionFrom(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey{}).(*Session)
	return sess
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	return SessionFrom(ctx) != nil
}

// AfterCommit defers fn until the outermost transaction on ctx commits. Hooks are
// dropped on rollback. Without a transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	if sess := SessionFrom(ctx); sess != nil {
		sess.hooks = append(sess.hooks, fn)
		return
	}
	fn(ctx)
}

// Committed runs the registered hooks with the caller's (session-free) context.
func (s *Session) Committed(ctx context.Context) {
	hooks := s.hooks
	s.hooks = nil
	for _, hook := range hooks {
		hook(ctx)
	}
}

// TxManager opens read-committed transactions on a pool. Row locks taken with
// SELECT ... FOR UPDATE serialise writers per entity.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager constructs a TxManager.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithinTx executes fn within a transaction, joining one already open on ctx.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txCtx, sess := Begin(ctx, tx)
	if err := fn(txCtx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	sess.Committed(ctx)
	return nil
}

// Conn returns the transaction carried by ctx, or the pool when none is open.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if sess := SessionFrom(ctx); sess != nil && sess.tx != nil {
		return sess.tx
	}
	return pool
}
