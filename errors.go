package zorm

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Sentinel errors for common failure cases
var (
	// ErrRecordNotFound is returned when a query returns no results
	ErrRecordNotFound = errors.New("zorm: record not found")

	// ErrModelNotFound is returned when a model name is not registered
	ErrModelNotFound = errors.New("zorm: model not registered")

	// ErrModelExists is returned when a model name is registered twice
	ErrModelExists = errors.New("zorm: model already registered")

	// ErrRelationNotFound is returned when an association alias is unknown
	ErrRelationNotFound = errors.New("zorm: relation not found")

	// ErrInvalidRelation is returned when relation type is invalid
	ErrInvalidRelation = errors.New("zorm: invalid relation type")

	// ErrDuplicateKey is returned for unique constraint violations
	ErrDuplicateKey = errors.New("zorm: duplicate key violation")

	// ErrForeignKey is returned for foreign key constraint violations
	ErrForeignKey = errors.New("zorm: foreign key constraint violation")

	// ErrInvalidConfig is returned when model or relation config is invalid
	ErrInvalidConfig = errors.New("zorm: invalid config")

	// ErrMissingPrimaryKey is returned when a row carries no primary key value
	ErrMissingPrimaryKey = errors.New("zorm: missing primary key value")
)

// QueryError wraps database errors with query context for better debugging
type QueryError struct {
	Query     string // The SQL query that failed
	Args      []any  // The query arguments
	Operation string // Operation type: SELECT, INSERT, UPDATE, DELETE
	Err       error  // The underlying error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("zorm: %s failed: %v\nQuery: %s\nArgs: %s",
		e.Operation, e.Err, e.Query, formatArgs(e.Args))
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// RelationError wraps relation configuration and linking failures with context
type RelationError struct {
	Relation string // Alias of the relation
	Model    string // Name of the source model
	Err      error  // The underlying error
}

func (e *RelationError) Error() string {
	return fmt.Sprintf("zorm: relation '%s' error on model %s: %v",
		e.Relation, e.Model, e.Err)
}

func (e *RelationError) Unwrap() error {
	return e.Err
}

// WrapQueryError wraps a database error with query context.
// Constraint violations reported by the MySQL, PostgreSQL and SQLite drivers
// are tagged with ErrDuplicateKey or ErrForeignKey.
func WrapQueryError(operation, query string, args []any, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordNotFound
	}

	if sentinel := classify(err); sentinel != nil {
		err = fmt.Errorf("%w: %w", sentinel, err)
	}

	return &QueryError{
		Query:     query,
		Args:      args,
		Operation: operation,
		Err:       err,
	}
}

func classify(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			return ErrDuplicateKey
		case 1451, 1452:
			return ErrForeignKey
		}
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateKey
		case "23503":
			return ErrForeignKey
		}
		return nil
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return ErrDuplicateKey
		case sqlite3.ErrConstraintForeignKey:
			return ErrForeignKey
		}
		return nil
	}

	// drivers that do not expose typed errors
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return ErrDuplicateKey
	case strings.Contains(msg, "foreign key"):
		return ErrForeignKey
	}
	return nil
}

// WrapRelationError wraps a relation error with context
func WrapRelationError(relation, model string, err error) error {
	if err == nil {
		return nil
	}
	return &RelationError{
		Relation: relation,
		Model:    model,
		Err:      err,
	}
}

// IsNotFound checks if the error is ErrRecordNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) || errors.Is(err, sql.ErrNoRows)
}

// IsConstraintViolation checks if the error is a constraint violation
func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrForeignKey)
}

// IsDuplicateKey checks if the error is a duplicate key violation
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsForeignKeyViolation checks if the error is a foreign key violation
func IsForeignKeyViolation(err error) bool {
	return errors.Is(err, ErrForeignKey)
}

// formatArgs formats query arguments for error messages
func formatArgs(args []any) string {
	if len(args) == 0 {
		return "[]"
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprintf("%v", arg)
	}

	// Limit output length
	result := "[" + strings.Join(parts, ", ") + "]"
	if len(result) > 200 {
		return result[:197] + "...]"
	}
	return result
}
