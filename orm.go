package zorm

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

// Values is a row or attribute set keyed by attribute name.
type Values map[string]any

// Clone returns a shallow copy of v.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Querier runs statements against either a connection pool or a transaction.
// It is implemented by *DB and *Tx only.
type Querier interface {
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	// Query runs a statement and drains every returned row.
	Query(ctx context.Context, query string, args ...any) ([]Values, error)
	// Dialect returns the SQL dialect in use.
	Dialect() *Dialect

	registry() *DB
}

// Beginner starts transactions.
type Beginner interface {
	Begin(ctx context.Context, opts *sql.TxOptions) (*Tx, error)
}

// DBConfig configures the connection pool settings.
type DBConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c DBConfig) apply(db *sql.DB) {
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}
	if c.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
	}
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for statement logging.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithPool applies connection pool settings.
func WithPool(cfg DBConfig) Option {
	return func(db *DB) {
		cfg.apply(db.sql)
	}
}

// DB owns a connection pool, its dialect and the model registry.
type DB struct {
	sql     *sql.DB
	dialect *Dialect
	logger  *slog.Logger

	mu     sync.RWMutex
	models map[string]*Model
	order  []string
}

// New wraps an existing connection pool.
func New(db *sql.DB, dialect *Dialect, opts ...Option) *DB {
	d := &DB{
		sql:     db,
		dialect: dialect,
		logger:  slog.New(slog.DiscardHandler),
		models:  make(map[string]*Model),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open opens a connection pool for driverName and wraps it.
func Open(driverName, dsn string, opts ...Option) (*DB, error) {
	dialect, err := DialectFor(driverName)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	return New(db, dialect, opts...), nil
}

// SQL returns the underlying connection pool.
func (db *DB) SQL() *sql.DB { return db.sql }

// Logger returns the configured logger.
func (db *DB) Logger() *slog.Logger { return db.logger }

// Close closes the connection pool.
func (db *DB) Close() error { return db.sql.Close() }

// Dialect returns the SQL dialect in use.
func (db *DB) Dialect() *Dialect { return db.dialect }

func (db *DB) registry() *DB { return db }

// Exec runs a statement on the pool.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = db.dialect.Rebind(query)
	db.logStatement(ctx, query, args)
	return db.sql.ExecContext(ctx, query, args...)
}

// Query runs a statement on the pool and drains the rows.
func (db *DB) Query(ctx context.Context, query string, args ...any) ([]Values, error) {
	query = db.dialect.Rebind(query)
	db.logStatement(ctx, query, args)
	rows, err := db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return bind(rows)
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.sql.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	db.logger.DebugContext(ctx, "zorm: transaction started")
	return &Tx{tx: tx, db: db}, nil
}

func (db *DB) logStatement(ctx context.Context, query string, args []any) {
	db.logger.DebugContext(ctx, "zorm: statement", slog.String("query", query), slog.Any("args", args))
}
