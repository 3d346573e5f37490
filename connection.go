package zorm

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/table"
)

// InferredTables collects every table the registry expects, including join
// tables of many-to-many relations. The result is sorted.
func (db *DB) InferredTables() ([]string, error) {
	seen := make(map[string]bool)
	for _, m := range db.declaredModels() {
		seen[m.table] = true

		assocs, err := db.Associations(m.name)
		if err != nil {
			return nil, err
		}
		for _, a := range assocs {
			if a.Type == RelationBelongsToMany {
				seen[a.Through.Table] = true
			}
		}
	}

	tables := make([]string, 0, len(seen))
	for t := range seen {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables, nil
}

// Validate checks the registry against the live database: every inferred
// table must exist, every declared attribute must have a column and every
// foreign key must be present on the table that holds it.
func (db *DB) Validate(ctx context.Context) error {
	tables, err := listTables(ctx, db)
	if err != nil {
		return err
	}

	schema := make(map[string][]columnSpec, len(tables))
	for _, t := range tables {
		spec, err := tableSchema(ctx, db, t)
		if err != nil {
			return err
		}
		schema[t] = spec
	}

	inferred, err := db.InferredTables()
	if err != nil {
		return err
	}
	for _, t := range inferred {
		if _, exists := schema[t]; !exists {
			return fmt.Errorf("zorm: inferred table %s is not found in your database, database is out of sync", t)
		}
	}

	hasColumn := func(table, column string) bool {
		for _, c := range schema[table] {
			if c.Name == column {
				return true
			}
		}
		return false
	}

	for _, m := range db.declaredModels() {
		for _, f := range m.fields {
			if !hasColumn(m.table, f.Column) {
				return fmt.Errorf("zorm: column %s.%s not found while it was inferred", m.table, f.Column)
			}
		}

		assocs, err := db.Associations(m.name)
		if err != nil {
			return err
		}
		for _, a := range assocs {
			if a.Inverse {
				continue
			}
			switch a.Type {
			case RelationBelongsTo:
				if !hasColumn(m.table, columnName(m, a.ForeignKey)) {
					return fmt.Errorf("zorm: cannot find foreign key %s on %s for relation %s", a.ForeignKey, m.table, a.Name)
				}
			case RelationHasOne, RelationHasMany:
				target, err := db.Model(a.Target)
				if err != nil {
					return err
				}
				if !hasColumn(target.table, columnName(target, a.ForeignKey)) {
					return fmt.Errorf("zorm: cannot find foreign key %s on %s for relation %s", a.ForeignKey, target.table, a.Name)
				}
			case RelationBelongsToMany:
				if !hasColumn(a.Through.Table, a.ForeignKey) || !hasColumn(a.Through.Table, a.OtherKey) {
					return fmt.Errorf("zorm: table schema for %s is not correct one of foreign keys is not present", a.Through.Table)
				}
			}
		}
	}

	return nil
}

func columnName(m *Model, attr string) string {
	if f, ok := m.Field(attr); ok {
		return f.Column
	}
	return attr
}

// Describe writes a table per registered model with its attributes and
// associations.
func (db *DB) Describe(w io.Writer) error {
	fmt.Fprintf(w, "SQL Dialect: %s\n", db.dialect.Name)

	for _, name := range db.Models() {
		m, err := db.Model(name)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s (%s)\n", m.name, m.table)
		fields := table.NewWriter()
		fields.AppendHeader(table.Row{"Attribute", "Column", "Is Primary Key", "Unique", "Auto Increment"})
		for _, f := range m.fields {
			fields.AppendRow(table.Row{f.Name, f.Column, f.IsPrimary, f.Unique, f.AutoIncrement})
		}
		fmt.Fprintln(w, fields.Render())

		assocs, err := db.Associations(m.name)
		if err != nil {
			return err
		}
		if len(assocs) > 0 {
			rels := table.NewWriter()
			rels.AppendHeader(table.Row{"Alias", "Type", "Target", "Foreign Key", "Other Key", "Through", "Inverse"})
			for _, a := range assocs {
				rels.AppendRow(table.Row{a.Name, a.Type, a.Target, a.ForeignKey, a.OtherKey, a.Through.Table, a.Inverse})
			}
			fmt.Fprintln(w, rels.Render())
		}

		fmt.Fprintln(w)
	}
	return nil
}
