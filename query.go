package zorm

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Where is an equality predicate keyed by attribute name.
// A slice value matches with IN, a nil value with IS NULL.
type Where map[string]any

// Keys returns the predicate attributes, sorted.
func (w Where) Keys() []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// column maps an attribute name to its quoted column.
// A nil model, as used for bare join tables, maps names unchanged.
func (m *Model) column(d *Dialect, attr string) string {
	if m == nil {
		return d.Quote(attr)
	}
	if f, ok := m.byName[attr]; ok {
		return d.Quote(f.Column)
	}
	return d.Quote(attr)
}

// fromRow maps a column-keyed row back to attribute names.
func (m *Model) fromRow(row Values) Values {
	if m == nil {
		return row
	}
	out := make(Values, len(row))
	for _, f := range m.fields {
		if v, ok := row[f.Column]; ok {
			out[f.Name] = v
		}
	}
	for k, v := range row {
		if _, mapped := out[k]; mapped {
			continue
		}
		if _, isColumn := m.columnOwner(k); !isColumn {
			out[k] = v
		}
	}
	return out
}

func (m *Model) columnOwner(column string) (*FieldInfo, bool) {
	for _, f := range m.fields {
		if f.Column == column {
			return f, true
		}
	}
	return nil, false
}

type whereClause struct {
	model *Model
	where Where
}

func (w whereClause) ToSql(d *Dialect) (string, []any) {
	if len(w.where) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(w.where))
	var args []any
	for _, key := range w.where.Keys() {
		col := w.model.column(d, key)
		value := w.where[key]

		if value == nil {
			parts = append(parts, col+" IS NULL")
			continue
		}

		if list, ok := asList(value); ok {
			if len(list) == 0 {
				parts = append(parts, "1 = 0")
				continue
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col, strings.Join(questionMarks(len(list)), ", ")))
			args = append(args, list...)
			continue
		}

		parts = append(parts, col+" = ?")
		args = append(args, value)
	}

	return " WHERE " + strings.Join(parts, " AND "), args
}

// asList expands slice values, leaving []byte alone.
func asList(v any) ([]any, bool) {
	switch v := v.(type) {
	case []any:
		return v, true
	case []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

type insertStmt struct {
	Dialect   *Dialect
	Table     string
	Columns   []string
	Values    [][]any
	Returning bool
}

func (i insertStmt) flatValues() []any {
	if len(i.Columns) == 0 {
		return nil
	}
	values := make([]any, 0, len(i.Values)*len(i.Columns))
	for _, row := range i.Values {
		values = append(values, row...)
	}

	return values
}

func (i insertStmt) ToSql() (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(i.Dialect.Quote(i.Table))

	if len(i.Columns) == 0 {
		sb.WriteString(" ")
		sb.WriteString(i.Dialect.EmptyInsert)
	} else {
		quoted := make([]string, len(i.Columns))
		for n, c := range i.Columns {
			quoted[n] = i.Dialect.Quote(c)
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(quoted, ", "))
		sb.WriteString(") VALUES ")

		row := "(" + strings.Join(questionMarks(len(i.Columns)), ", ") + ")"
		for n := range i.Values {
			if n > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(row)
		}
	}

	if i.Returning {
		sb.WriteString(" RETURNING *")
	}

	return sb.String(), i.flatValues()
}

type updateStmt struct {
	Dialect *Dialect
	Model   *Model
	Table   string
	Set     Values
	Where   Where
}

func (u updateStmt) ToSql() (string, []any) {
	keys := make([]string, 0, len(u.Set))
	for k := range u.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		sets = append(sets, u.Model.column(u.Dialect, k)+" = ?")
		args = append(args, u.Set[k])
	}

	where, whereArgs := whereClause{model: u.Model, where: u.Where}.ToSql(u.Dialect)
	query := fmt.Sprintf("UPDATE %s SET %s%s", u.Dialect.Quote(u.Table), strings.Join(sets, ", "), where)
	return query, append(args, whereArgs...)
}

type deleteStmt struct {
	Dialect *Dialect
	Model   *Model
	Table   string
	Where   Where
}

func (d deleteStmt) ToSql() (string, []any) {
	where, args := whereClause{model: d.Model, where: d.Where}.ToSql(d.Dialect)
	return fmt.Sprintf("DELETE FROM %s%s", d.Dialect.Quote(d.Table), where), args
}

type selectStmt struct {
	Dialect *Dialect
	Model   *Model
	Table   string
	Count   bool
	Where   Where
	OrderBy []string
}

func (s selectStmt) ToSql() (string, []any) {
	var sb strings.Builder
	if s.Count {
		sb.WriteString("SELECT COUNT(*) AS n FROM ")
	} else {
		sb.WriteString("SELECT * FROM ")
	}
	sb.WriteString(s.Dialect.Quote(s.Table))

	where, args := whereClause{model: s.Model, where: s.Where}.ToSql(s.Dialect)
	sb.WriteString(where)

	if len(s.OrderBy) > 0 {
		orders := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			dir := "ASC"
			if strings.HasPrefix(o, "-") {
				dir = "DESC"
				o = o[1:]
			}
			orders[i] = s.Model.column(s.Dialect, o) + " " + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orders, ", "))
	}

	return sb.String(), args
}
