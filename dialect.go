package zorm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialect describes the SQL flavour spoken by a driver.
type Dialect struct {
	Name                 string
	DriverName           string
	PlaceHolderGenerator func(n int) []string
	QuoteChar            byte
	// Returning reports whether INSERT ... RETURNING is supported.
	Returning bool
	// FirstInsertID reports whether LastInsertId of a multi-row insert is
	// the id of the first row rather than the last.
	FirstInsertID bool
	// EmptyInsert is the VALUES clause used when a row has no columns.
	EmptyInsert      string
	QueryListTables  string
	QueryTableSchema string
}

// Quote quotes an identifier.
func (d *Dialect) Quote(ident string) string {
	q := string(d.QuoteChar)
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// Rebind rewrites '?' placeholders into the dialect's placeholder style.
func (d *Dialect) Rebind(query string) string {
	n := strings.Count(query, "?")
	if n == 0 {
		return query
	}

	phs := d.PlaceHolderGenerator(n)
	if phs[0] == "?" {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + n*2)
	i := 0
	for _, r := range query {
		if r == '?' {
			sb.WriteString(phs[i])
			i++
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

type columnSpec struct {
	Name         string
	Type         string
	Nullable     bool
	DefaultValue sql.NullString
	IsPrimaryKey bool
}

func listTables(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx, q.Dialect().QueryListTables)
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		for _, v := range row {
			tables = append(tables, fmt.Sprint(v))
		}
	}
	return tables, nil
}

func tableSchema(ctx context.Context, q Querier, table string) ([]columnSpec, error) {
	d := q.Dialect()
	query := d.QueryTableSchema
	var args []any
	if strings.Contains(query, "%s") {
		query = fmt.Sprintf(query, table)
	} else {
		args = append(args, table)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	output := make([]columnSpec, 0, len(rows))
	for _, row := range rows {
		cs := columnSpec{
			Name: fmt.Sprint(row["name"]),
			Type: fmt.Sprint(row["type"]),
		}
		cs.Nullable = truthy(row["nullable"])
		if v := row["dflt"]; v != nil {
			cs.DefaultValue = sql.NullString{String: fmt.Sprint(v), Valid: true}
		}
		cs.IsPrimaryKey = truthy(row["pk"])
		output = append(output, cs)
	}
	return output, nil
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case string:
		switch strings.ToUpper(v) {
		case "YES", "PRI", "1", "TRUE", "T":
			return true
		}
	}
	return false
}

// Dialects holds the supported SQL dialects.
var Dialects = &struct {
	MySQL      *Dialect
	PostgreSQL *Dialect
	SQLite3    *Dialect
}{
	MySQL: &Dialect{
		Name:                 "mysql",
		DriverName:           "mysql",
		PlaceHolderGenerator: questionMarks,
		QuoteChar:            '`',
		FirstInsertID:        true,
		EmptyInsert:          "() VALUES ()",
		QueryListTables:      "SHOW TABLES",
		QueryTableSchema: "SELECT column_name AS name, data_type AS type, is_nullable AS nullable, " +
			"column_default AS dflt, column_key AS pk FROM information_schema.columns " +
			"WHERE table_schema = DATABASE() AND table_name = ?",
	},

	PostgreSQL: &Dialect{
		Name:                 "postgres",
		DriverName:           "pgx",
		PlaceHolderGenerator: postgresPlaceholder,
		QuoteChar:            '"',
		Returning:            true,
		EmptyInsert:          "DEFAULT VALUES",
		QueryListTables:      "SELECT tablename FROM pg_tables WHERE schemaname = 'public'",
		QueryTableSchema: "SELECT c.column_name AS name, c.data_type AS type, c.is_nullable AS nullable, " +
			"c.column_default AS dflt, EXISTS (SELECT 1 FROM information_schema.table_constraints tc " +
			"JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name " +
			"WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_name = c.table_name " +
			"AND kcu.column_name = c.column_name) AS pk FROM information_schema.columns c WHERE c.table_name = ?",
	},

	SQLite3: &Dialect{
		Name:                 "sqlite3",
		DriverName:           "sqlite3",
		PlaceHolderGenerator: questionMarks,
		QuoteChar:            '"',
		Returning:            true,
		EmptyInsert:          "DEFAULT VALUES",
		QueryListTables:      "SELECT name FROM sqlite_schema WHERE type='table' AND name NOT LIKE 'sqlite_%'",
		QueryTableSchema:     `SELECT name, type, CASE "notnull" WHEN 0 THEN 'YES' ELSE 'NO' END AS nullable, dflt_value AS dflt, pk FROM PRAGMA_TABLE_INFO('%s')`,
	},
}

// DialectFor returns the dialect registered for a database/sql driver name.
func DialectFor(driverName string) (*Dialect, error) {
	switch driverName {
	case "mysql":
		return Dialects.MySQL, nil
	case "pgx", "postgres":
		return Dialects.PostgreSQL, nil
	case "sqlite3", "sqlite":
		return Dialects.SQLite3, nil
	}
	return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, driverName)
}

func postgresPlaceholder(n int) []string {
	output := make([]string, 0, n)
	for i := 1; i < n+1; i++ {
		output = append(output, fmt.Sprintf("$%d", i))
	}

	return output
}

func questionMarks(n int) []string {
	output := make([]string, 0, n)
	for range n {
		output = append(output, "?")
	}

	return output
}
