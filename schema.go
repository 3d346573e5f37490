package zorm

import (
	"github.com/gertd/go-pluralize"
	"github.com/iancoleman/strcase"
)

var plural = pluralize.NewClient()

// FieldInfo holds data about a single attribute of a model.
type FieldInfo struct {
	Name          string // Attribute name used in Values
	Column        string // DB column name
	IsPrimary     bool
	AutoIncrement bool
	Unique        bool
	// Default produces a value when a row is created without this attribute.
	Default func() any
}

// Model is a registered model definition.
type Model struct {
	db         *DB
	name       string
	table      string
	primaryKey string
	fields     []*FieldInfo
	byName     map[string]*FieldInfo
	relations  []relationDecl
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Table returns the table name.
func (m *Model) Table() string { return m.table }

// PrimaryKey returns the primary key attribute name.
func (m *Model) PrimaryKey() string { return m.primaryKey }

// Fields returns the model attributes in declaration order.
func (m *Model) Fields() []*FieldInfo {
	out := make([]*FieldInfo, len(m.fields))
	copy(out, m.fields)
	return out
}

// Field returns the attribute with the given name.
func (m *Model) Field(name string) (*FieldInfo, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// HasField reports whether name is an attribute of the model.
func (m *Model) HasField(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// tableName derives the default table name: "UserProfile" becomes "user_profiles".
func tableName(model string) string {
	return plural.Plural(strcase.ToSnake(model))
}

// foreignKeyFor derives a foreign key attribute from a model or alias name.
func foreignKeyFor(name string) string {
	return plural.Singular(strcase.ToSnake(name)) + "_id"
}

// aliasFor derives the default association alias for a target model.
func aliasFor(target string, many bool) string {
	alias := strcase.ToLowerCamel(target)
	if many {
		return plural.Plural(alias)
	}
	return alias
}

func (m *Model) fieldOrNil(name string) (*FieldInfo, bool) {
	if m == nil {
		return nil, false
	}
	return m.Field(name)
}
