package zorm

import (
	"fmt"

	"github.com/google/uuid"
)

// HasOneConfig configures a one-to-one relation owned by the other side.
type HasOneConfig struct {
	As         string // Alias, defaults to the lower camel target name
	ForeignKey string // Attribute on the target, defaults to <source>_id
	SourceKey  string // Attribute on the source, defaults to its primary key
}

// HasManyConfig configures a one-to-many relation.
type HasManyConfig struct {
	As         string // Alias, defaults to the plural lower camel target name
	ForeignKey string // Attribute on the target, defaults to <source>_id
	SourceKey  string // Attribute on the source, defaults to its primary key
}

// BelongsToConfig configures a relation where the source holds the foreign key.
type BelongsToConfig struct {
	As         string // Alias, defaults to the lower camel target name
	ForeignKey string // Attribute on the source, defaults to <alias>_id
	TargetKey  string // Attribute on the target, defaults to its primary key
}

// BelongsToManyConfig configures a many-to-many relation through a join table.
type BelongsToManyConfig struct {
	As           string // Alias, defaults to the plural lower camel target name
	Through      string // Join table name
	ThroughModel string // Join model name, used instead of Through
	ForeignKey   string // Join column pointing at the source, defaults to <source>_id
	OtherKey     string // Join column pointing at the target, defaults to <target>_id
	SourceKey    string // Attribute on the source, defaults to its primary key
	TargetKey    string // Attribute on the target, defaults to its primary key
}

type relationDecl struct {
	kind   RelationType
	target string
	config any
}

type EntityConfigurator struct {
	name              string
	table             string
	relations         []relationDecl
	columnConstraints []*FieldConfigurator
	errs              []error
}

func newEntityConfigurator(name string) *EntityConfigurator {
	return &EntityConfigurator{name: name}
}

func (ec *EntityConfigurator) Table(name string) *EntityConfigurator {
	ec.table = name

	return ec
}

func (ec *EntityConfigurator) HasOne(target string, config HasOneConfig) *EntityConfigurator {
	ec.relations = append(ec.relations, relationDecl{kind: RelationHasOne, target: target, config: config})

	return ec
}

func (ec *EntityConfigurator) HasMany(target string, config HasManyConfig) *EntityConfigurator {
	ec.relations = append(ec.relations, relationDecl{kind: RelationHasMany, target: target, config: config})

	return ec
}

func (ec *EntityConfigurator) BelongsTo(target string, config BelongsToConfig) *EntityConfigurator {
	ec.relations = append(ec.relations, relationDecl{kind: RelationBelongsTo, target: target, config: config})

	return ec
}

// BelongsToMany configures a many-to-many relationship with the given target model.
// The join table must be configured explicitly.
func (ec *EntityConfigurator) BelongsToMany(target string, config BelongsToManyConfig) *EntityConfigurator {
	if config.Through == "" && config.ThroughModel == "" {
		ec.errs = append(ec.errs, fmt.Errorf("%w: join table must be explicitly configured for many-to-many relation %s.%s",
			ErrInvalidConfig, ec.name, aliasFor(target, true)))
	}
	ec.relations = append(ec.relations, relationDecl{kind: RelationBelongsToMany, target: target, config: config})

	return ec
}

type FieldConfigurator struct {
	fieldName     string
	primaryKey    bool
	autoIncrement bool
	unique        bool
	column        string
	defaultValue  func() any
}

func (ec *EntityConfigurator) Field(name string) *FieldConfigurator {
	cc := &FieldConfigurator{fieldName: name}
	ec.columnConstraints = append(ec.columnConstraints, cc)

	return cc
}

// Fields declares several plain attributes at once.
func (ec *EntityConfigurator) Fields(names ...string) *EntityConfigurator {
	for _, name := range names {
		ec.Field(name)
	}

	return ec
}

func (fc *FieldConfigurator) IsPrimaryKey() *FieldConfigurator {
	fc.primaryKey = true
	fc.unique = true

	return fc
}

func (fc *FieldConfigurator) AutoIncrement() *FieldConfigurator {
	fc.autoIncrement = true

	return fc
}

func (fc *FieldConfigurator) Unique() *FieldConfigurator {
	fc.unique = true

	return fc
}

// UUID generates a random UUID string when a row is created without a value.
func (fc *FieldConfigurator) UUID() *FieldConfigurator {
	fc.defaultValue = func() any { return uuid.NewString() }

	return fc
}

// Default generates a value when a row is created without one.
func (fc *FieldConfigurator) Default(fn func() any) *FieldConfigurator {
	fc.defaultValue = fn

	return fc
}

func (fc *FieldConfigurator) ColumnName(name string) *FieldConfigurator {
	fc.column = name

	return fc
}

// build turns the collected configuration into a model.
// A model with no primary key gets an auto-increment "id".
func (ec *EntityConfigurator) build(db *DB) (*Model, error) {
	if len(ec.errs) > 0 {
		return nil, ec.errs[0]
	}

	m := &Model{
		db:        db,
		name:      ec.name,
		table:     ec.table,
		byName:    make(map[string]*FieldInfo),
		relations: ec.relations,
	}
	if m.table == "" {
		m.table = tableName(ec.name)
	}

	for _, fc := range ec.columnConstraints {
		if _, dup := m.byName[fc.fieldName]; dup {
			return nil, fmt.Errorf("%w: field %s declared twice on %s", ErrInvalidConfig, fc.fieldName, ec.name)
		}

		f := &FieldInfo{
			Name:          fc.fieldName,
			Column:        fc.column,
			IsPrimary:     fc.primaryKey,
			AutoIncrement: fc.autoIncrement,
			Unique:        fc.unique,
			Default:       fc.defaultValue,
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		if f.IsPrimary {
			if m.primaryKey != "" {
				return nil, fmt.Errorf("%w: composite primary keys are not supported on %s", ErrInvalidConfig, ec.name)
			}
			m.primaryKey = f.Name
		}

		m.fields = append(m.fields, f)
		m.byName[f.Name] = f
	}

	// foreign keys held by this model are attributes even when not declared
	for _, decl := range ec.relations {
		cfg, ok := decl.config.(BelongsToConfig)
		if !ok {
			continue
		}
		fk := orDefault(cfg.ForeignKey, foreignKeyFor(orDefault(cfg.As, aliasFor(decl.target, false))))
		if _, declared := m.byName[fk]; !declared {
			f := &FieldInfo{Name: fk, Column: fk}
			m.fields = append(m.fields, f)
			m.byName[fk] = f
		}
	}

	if m.primaryKey == "" {
		if f, ok := m.byName["id"]; ok {
			f.IsPrimary = true
			f.Unique = true
		} else {
			f := &FieldInfo{Name: "id", Column: "id", IsPrimary: true, AutoIncrement: true, Unique: true}
			m.fields = append([]*FieldInfo{f}, m.fields...)
			m.byName["id"] = f
		}
		m.primaryKey = "id"
	}

	return m, nil
}
