package zorm

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// insertValues selects the model attributes present in attrs, filling
// generated defaults. Attributes unknown to the model are ignored.
func (m *Model) insertValues(attrs Values) (columns []string, names []string, values []any) {
	for _, f := range m.fields {
		v, ok := attrs[f.Name]
		if !ok {
			if f.Default == nil {
				continue
			}
			v = f.Default()
		}
		columns = append(columns, f.Column)
		names = append(names, f.Name)
		values = append(values, v)
	}
	return columns, names, values
}

// Create inserts one row and returns it as stored, including generated keys.
func (m *Model) Create(ctx context.Context, q Querier, attrs Values) (Values, error) {
	d := q.Dialect()
	columns, names, values := m.insertValues(attrs)

	stmt := insertStmt{
		Dialect:   d,
		Table:     m.table,
		Columns:   columns,
		Values:    [][]any{values},
		Returning: d.Returning,
	}
	query, args := stmt.ToSql()

	if d.Returning {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return nil, WrapQueryError("INSERT", query, args, err)
		}
		if len(rows) != 1 {
			return nil, WrapQueryError("INSERT", query, args, fmt.Errorf("expected 1 returned row, got %d", len(rows)))
		}
		return m.fromRow(rows[0]), nil
	}

	res, err := q.Exec(ctx, query, args...)
	if err != nil {
		return nil, WrapQueryError("INSERT", query, args, err)
	}

	var id any
	for i, name := range names {
		if name == m.primaryKey {
			id = values[i]
		}
	}
	if id == nil {
		lastID, err := res.LastInsertId()
		if err != nil {
			return nil, WrapQueryError("INSERT", query, args, err)
		}
		id = lastID
	}

	return m.FindByPK(ctx, q, id)
}

// BulkCreate inserts rows and returns them as stored, in input order.
// Rows sharing the same attribute set are written with a single statement.
func (m *Model) BulkCreate(ctx context.Context, q Querier, rows []Values) ([]Values, error) {
	if len(rows) == 0 {
		return []Values{}, nil
	}

	type prepared struct {
		columns []string
		names   []string
		values  []any
	}
	batch := make([]prepared, len(rows))
	uniform := true
	for i, row := range rows {
		c, n, v := m.insertValues(row)
		batch[i] = prepared{columns: c, names: n, values: v}
		if i > 0 && !sameColumns(batch[0].columns, c) {
			uniform = false
		}
	}

	if !uniform || len(batch[0].columns) == 0 {
		out := make([]Values, 0, len(rows))
		for _, row := range rows {
			created, err := m.Create(ctx, q, row)
			if err != nil {
				return nil, err
			}
			out = append(out, created)
		}
		return out, nil
	}

	d := q.Dialect()
	stmt := insertStmt{
		Dialect:   d,
		Table:     m.table,
		Columns:   batch[0].columns,
		Values:    make([][]any, len(batch)),
		Returning: d.Returning,
	}
	pkIndex := -1
	for i, name := range batch[0].names {
		if name == m.primaryKey {
			pkIndex = i
		}
	}
	for i, p := range batch {
		stmt.Values[i] = p.values
	}
	query, args := stmt.ToSql()

	var stored []Values
	ids := make([]any, len(rows))
	if d.Returning {
		returned, err := q.Query(ctx, query, args...)
		if err != nil {
			return nil, WrapQueryError("INSERT", query, args, err)
		}
		if len(returned) != len(rows) {
			return nil, WrapQueryError("INSERT", query, args, fmt.Errorf("expected %d returned rows, got %d", len(rows), len(returned)))
		}
		stored = make([]Values, len(returned))
		for i, r := range returned {
			stored[i] = m.fromRow(r)
		}
		if pkIndex < 0 {
			// generated keys grow with insertion order
			sort.SliceStable(stored, func(i, j int) bool {
				return lessID(stored[i][m.primaryKey], stored[j][m.primaryKey])
			})
			for i := range stored {
				ids[i] = stored[i][m.primaryKey]
			}
		}
	} else {
		res, err := q.Exec(ctx, query, args...)
		if err != nil {
			return nil, WrapQueryError("INSERT", query, args, err)
		}
		if pkIndex < 0 {
			first, err := res.LastInsertId()
			if err != nil {
				return nil, WrapQueryError("INSERT", query, args, err)
			}
			if !d.FirstInsertID {
				first -= int64(len(rows) - 1)
			}
			for i := range ids {
				ids[i] = first + int64(i)
			}
		}
	}

	if pkIndex >= 0 {
		for i, p := range batch {
			ids[i] = p.values[pkIndex]
		}
	}

	if stored == nil {
		var err error
		stored, err = m.FindAll(ctx, q, Where{m.primaryKey: ids})
		if err != nil {
			return nil, err
		}
	}

	byID := make(map[string]Values, len(stored))
	for _, row := range stored {
		byID[IDKey(row[m.primaryKey])] = row
	}

	out := make([]Values, len(ids))
	for i, id := range ids {
		row, ok := byID[IDKey(id)]
		if !ok {
			return nil, fmt.Errorf("%w: inserted %s row %v", ErrRecordNotFound, m.name, id)
		}
		out[i] = row
	}
	return out, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lessID(a, b any) bool {
	ka, kb := IDKey(a), IDKey(b)
	na, errA := strconv.ParseInt(ka, 10, 64)
	nb, errB := strconv.ParseInt(kb, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return ka < kb
}

// Update writes the model attributes in attrs to every row matching where
// and returns the number of affected rows. Unknown attributes are ignored.
func (m *Model) Update(ctx context.Context, q Querier, attrs Values, where Where) (int64, error) {
	set := make(Values, len(attrs))
	for k, v := range attrs {
		if m.HasField(k) {
			set[k] = v
		}
	}
	if len(set) == 0 {
		return 0, nil
	}

	query, args := updateStmt{
		Dialect: q.Dialect(),
		Model:   m,
		Table:   m.table,
		Set:     set,
		Where:   where,
	}.ToSql()

	res, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, WrapQueryError("UPDATE", query, args, err)
	}
	return res.RowsAffected()
}

// Delete removes every row matching where.
func (m *Model) Delete(ctx context.Context, q Querier, where Where) (int64, error) {
	query, args := deleteStmt{Dialect: q.Dialect(), Model: m, Table: m.table, Where: where}.ToSql()

	res, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, WrapQueryError("DELETE", query, args, err)
	}
	return res.RowsAffected()
}

// FindByPK returns the row with the given primary key or ErrRecordNotFound.
func (m *Model) FindByPK(ctx context.Context, q Querier, id any) (Values, error) {
	rows, err := m.FindAll(ctx, q, Where{m.primaryKey: id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %v", ErrRecordNotFound, m.name, id)
	}
	return rows[0], nil
}

// FindAll returns every row matching where. Order attributes prefixed
// with '-' sort descending.
func (m *Model) FindAll(ctx context.Context, q Querier, where Where, orderBy ...string) ([]Values, error) {
	query, args := selectStmt{
		Dialect: q.Dialect(),
		Model:   m,
		Table:   m.table,
		Where:   where,
		OrderBy: orderBy,
	}.ToSql()

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, WrapQueryError("SELECT", query, args, err)
	}

	out := make([]Values, len(rows))
	for i, row := range rows {
		out[i] = m.fromRow(row)
	}
	return out, nil
}

// Count returns the number of rows matching where.
func (m *Model) Count(ctx context.Context, q Querier, where Where) (int64, error) {
	query, args := selectStmt{
		Dialect: q.Dialect(),
		Model:   m,
		Table:   m.table,
		Count:   true,
		Where:   where,
	}.ToSql()

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return 0, WrapQueryError("SELECT", query, args, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return strconv.ParseInt(IDKey(rows[0]["n"]), 10, 64)
}
