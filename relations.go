package zorm

import (
	"fmt"
)

// RelationType defines the type of relationship between two models in the ORM.
type RelationType string

const (
	// RelationHasOne represents a one-to-one relationship where the current
	// model owns a single related record.
	RelationHasOne RelationType = "HasOne"

	// RelationHasMany represents a one-to-many relationship where the current
	// model owns multiple related records.
	RelationHasMany RelationType = "HasMany"

	// RelationBelongsTo represents an inverse one-to-one or one-to-many
	// relationship where the current model references a parent record.
	RelationBelongsTo RelationType = "BelongsTo"

	// RelationBelongsToMany represents a many-to-many relationship between
	// two models, connected through a join table.
	RelationBelongsToMany RelationType = "BelongsToMany"
)

// JoinRef points at the join table of a many-to-many relation.
// Model is empty when the join table has no registered model.
type JoinRef struct {
	Model string
	Table string
}

// Association is a resolved relation of a source model.
type Association struct {
	Name   string // Alias used as payload key
	Type   RelationType
	Source string // Source model name
	Target string // Target model name

	// HasOne/HasMany: attribute on the target.
	// BelongsTo: attribute on the source.
	// BelongsToMany: join column pointing at the source.
	ForeignKey string
	// Source attribute referenced by ForeignKey (HasOne, HasMany, BelongsToMany).
	SourceKey string
	// Target attribute referenced by the relation (BelongsTo, BelongsToMany).
	TargetKey string
	// Join column pointing at the target (BelongsToMany).
	OtherKey string
	Through  JoinRef

	// Inverse marks a reflection registered on the target side of a
	// relation declared by another model.
	Inverse bool
}

// Associations returns the resolved relations of the named model: the ones it
// declares, in declaration order, followed by inverse reflections of relations
// declared by other models. Nothing is cached; every call reads the registry.
func (db *DB) Associations(model string) ([]Association, error) {
	m, err := db.Model(model)
	if err != nil {
		return nil, err
	}

	var out []Association
	taken := make(map[string]bool)
	for _, decl := range m.relations {
		a, err := db.resolveRelation(m, decl)
		if err != nil {
			return nil, WrapRelationError(a.Name, m.name, err)
		}
		if taken[a.Name] {
			return nil, WrapRelationError(a.Name, m.name, fmt.Errorf("%w: alias declared twice", ErrInvalidConfig))
		}
		taken[a.Name] = true
		out = append(out, a)
	}

	for _, other := range db.declaredModels() {
		for _, decl := range other.relations {
			if decl.target != m.name {
				continue
			}
			a, err := db.resolveRelation(other, decl)
			if err != nil {
				return nil, WrapRelationError(a.Name, other.name, err)
			}
			inv := inverseOf(a, other)
			if taken[inv.Name] {
				continue
			}
			taken[inv.Name] = true
			out = append(out, inv)
		}
	}

	return out, nil
}

// Associations returns the resolved relations of m.
func (m *Model) Associations() ([]Association, error) {
	return m.db.Associations(m.name)
}

// Association returns the resolved relation with the given alias.
func (m *Model) Association(alias string) (Association, error) {
	all, err := m.Associations()
	if err != nil {
		return Association{}, err
	}
	for _, a := range all {
		if a.Name == alias {
			return a, nil
		}
	}
	return Association{}, WrapRelationError(alias, m.name, ErrRelationNotFound)
}

func (db *DB) resolveRelation(source *Model, decl relationDecl) (Association, error) {
	a := Association{Type: decl.kind, Source: source.name, Target: decl.target}

	switch cfg := decl.config.(type) {
	case HasOneConfig:
		a.Name = orDefault(cfg.As, aliasFor(decl.target, false))
		a.ForeignKey = orDefault(cfg.ForeignKey, foreignKeyFor(source.name))
		a.SourceKey = orDefault(cfg.SourceKey, source.primaryKey)
	case HasManyConfig:
		a.Name = orDefault(cfg.As, aliasFor(decl.target, true))
		a.ForeignKey = orDefault(cfg.ForeignKey, foreignKeyFor(source.name))
		a.SourceKey = orDefault(cfg.SourceKey, source.primaryKey)
	case BelongsToConfig:
		a.Name = orDefault(cfg.As, aliasFor(decl.target, false))
		a.ForeignKey = orDefault(cfg.ForeignKey, foreignKeyFor(a.Name))
		a.TargetKey = cfg.TargetKey
	case BelongsToManyConfig:
		a.Name = orDefault(cfg.As, aliasFor(decl.target, true))
		a.ForeignKey = orDefault(cfg.ForeignKey, foreignKeyFor(source.name))
		a.OtherKey = orDefault(cfg.OtherKey, foreignKeyFor(decl.target))
		a.SourceKey = orDefault(cfg.SourceKey, source.primaryKey)
		a.TargetKey = cfg.TargetKey
		a.Through = JoinRef{Model: cfg.ThroughModel, Table: cfg.Through}
		if cfg.ThroughModel != "" {
			join, err := db.Model(cfg.ThroughModel)
			if err != nil {
				return a, err
			}
			a.Through.Table = join.table
		}
	default:
		return a, ErrInvalidRelation
	}

	target, err := db.Model(decl.target)
	if err != nil {
		return a, err
	}
	if a.TargetKey == "" && (a.Type == RelationBelongsTo || a.Type == RelationBelongsToMany) {
		a.TargetKey = target.primaryKey
	}

	return a, nil
}

// inverseOf builds the reflection of a on its target model.
func inverseOf(a Association, source *Model) Association {
	inv := Association{
		Source:  a.Target,
		Target:  a.Source,
		Inverse: true,
	}

	switch a.Type {
	case RelationHasOne, RelationHasMany:
		inv.Type = RelationBelongsTo
		inv.Name = aliasFor(source.name, false)
		inv.ForeignKey = a.ForeignKey
		inv.TargetKey = a.SourceKey
	case RelationBelongsTo:
		inv.Type = RelationHasMany
		inv.Name = aliasFor(source.name, true)
		inv.ForeignKey = a.ForeignKey
		inv.SourceKey = a.TargetKey
	case RelationBelongsToMany:
		inv.Type = RelationBelongsToMany
		inv.Name = aliasFor(source.name, true)
		inv.ForeignKey = a.OtherKey
		inv.OtherKey = a.ForeignKey
		inv.SourceKey = a.TargetKey
		inv.TargetKey = a.SourceKey
		inv.Through = a.Through
	}
	return inv
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
