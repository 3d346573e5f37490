package zorm

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
)

// Mock Driver
type mockDriver struct {
	conn *mockConn
}

func (d *mockDriver) Open(name string) (driver.Conn, error) {
	return d.conn, nil
}

type mockConn struct {
	tx  *mockTx
	err error
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("mock: prepare not supported")
}

func (c *mockConn) Close() error {
	return nil
}

func (c *mockConn) Begin() (driver.Tx, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.tx, nil
}

type mockTx struct {
	committed  bool
	rolledBack bool
	err        error
}

func (t *mockTx) Commit() error {
	if t.err != nil {
		return t.err
	}
	t.committed = true
	return nil
}

func (t *mockTx) Rollback() error {
	t.rolledBack = true
	return nil
}

func openMock(t *testing.T, name string, conn *mockConn) *DB {
	t.Helper()
	sql.Register(name, &mockDriver{conn: conn})

	sqlDB, err := sql.Open(name, "")
	if err != nil {
		t.Fatal(err)
	}
	return New(sqlDB, Dialects.PostgreSQL)
}

func TestDB_Transaction(t *testing.T) {
	tx := &mockTx{}
	conn := &mockConn{tx: tx}
	db := openMock(t, "mock_transaction", conn)

	// Test Commit
	err := db.Transaction(context.Background(), func(tx *Tx) error {
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !tx.committed {
		t.Error("expected commit")
	}

	// Test Rollback on Error
	tx = &mockTx{}
	conn.tx = tx
	err = db.Transaction(context.Background(), func(tx *Tx) error {
		return errors.New("fail")
	})
	if err == nil || err.Error() != "fail" {
		t.Errorf("expected the callback error, got %v", err)
	}
	if !tx.rolledBack {
		t.Error("expected rollback")
	}
	if tx.committed {
		t.Error("unexpected commit")
	}

	// Test Rollback on Panic
	tx = &mockTx{}
	conn.tx = tx
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic")
		}
		if !tx.rolledBack {
			t.Error("expected rollback on panic")
		}
	}()
	db.Transaction(context.Background(), func(tx *Tx) error {
		panic("boom")
	})
}

func TestDB_Transaction_BeginError(t *testing.T) {
	conn := &mockConn{err: errors.New("begin failed")}
	db := openMock(t, "mock_begin_error", conn)

	called := false
	err := db.Transaction(context.Background(), func(tx *Tx) error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("expected begin error")
	}
	if called {
		t.Error("callback should not run without a transaction")
	}
}

func TestDB_Transaction_CommitError(t *testing.T) {
	tx := &mockTx{err: errors.New("commit failed")}
	db := openMock(t, "mock_commit_error", &mockConn{tx: tx})

	err := db.Transaction(context.Background(), func(tx *Tx) error {
		return nil
	})
	if err == nil || err.Error() != "commit failed" {
		t.Errorf("expected commit error, got %v", err)
	}
}

func TestTx_SerializesStatements(t *testing.T) {
	db := setupLibraryDB(t)
	ctx := context.Background()
	books := mustModel(t, db, "Book")

	err := db.Transaction(ctx, func(tx *Tx) error {
		errs := make(chan error, 10)
		for i := range 10 {
			go func() {
				_, err := books.Create(ctx, tx, Values{"title": i})
				errs <- err
			}()
		}
		for range 10 {
			if err := <-errs; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	count, err := books.Count(ctx, db, nil)
	if err != nil {
		t.Fatal(err)
	}
	if count != 10 {
		t.Errorf("expected 10 books, got %d", count)
	}
}
