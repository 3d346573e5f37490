package zorm

import (
	"context"
	"database/sql"
	"sync"
)

// Tx wraps sql.Tx.
// Statements on a Tx are serialized, so a Tx may be shared by goroutines.
type Tx struct {
	tx *sql.Tx
	db *DB
	mu sync.Mutex
}

// Dialect returns the SQL dialect in use.
func (tx *Tx) Dialect() *Dialect { return tx.db.dialect }

func (tx *Tx) registry() *DB { return tx.db }

// Exec runs a statement inside the transaction.
func (tx *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = tx.db.dialect.Rebind(query)
	tx.db.logStatement(ctx, query, args)

	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.tx.ExecContext(ctx, query, args...)
}

// Query runs a statement inside the transaction and drains the rows
// before another statement may start.
func (tx *Tx) Query(ctx context.Context, query string, args ...any) ([]Values, error) {
	query = tx.db.dialect.Rebind(query)
	tx.db.logStatement(ctx, query, args)

	tx.mu.Lock()
	defer tx.mu.Unlock()
	rows, err := tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return bind(rows)
}

// Commit commits the transaction.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.tx.Commit()
}

// Rollback aborts the transaction.
func (tx *Tx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.tx.Rollback()
}

// Transaction executes fn within a transaction.
// The transaction is rolled back when fn returns an error or panics.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.Begin(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
