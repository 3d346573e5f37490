// Package nested writes a record together with its related records.
//
// A payload passed to Create, BulkCreate or Update may carry, next to the
// model's own attributes, entries keyed by association alias. Each entry
// either creates related rows or attaches existing ones by identifier, and
// the whole call runs in one transaction.
package nested

import (
	"github.com/rezakhademix/zorm"
)

// Kind is the closed set of relationship kinds.
type Kind int

const (
	KindBelongsTo Kind = iota + 1
	KindHasOne
	KindHasMany
	KindBelongsToMany
)

func (k Kind) String() string {
	switch k {
	case KindBelongsTo:
		return "BelongsTo"
	case KindHasOne:
		return "HasOne"
	case KindHasMany:
		return "HasMany"
	case KindBelongsToMany:
		return "BelongsToMany"
	}
	return "Unknown"
}

// Plural reports whether the kind takes a list payload.
func (k Kind) Plural() bool {
	return k == KindHasMany || k == KindBelongsToMany
}

// Descriptor describes one association of a model. The only
// implementations are BelongsTo, HasOne, HasMany and BelongsToMany.
type Descriptor interface {
	// Name is the alias used as payload key.
	Name() string
	Kind() Kind
	// Related is the target model name.
	Related() string
	// Identifier is the related attribute that marks an attach directive.
	Identifier() string

	descriptor()
}

// BelongsTo is an association whose foreign key lives on the source row.
type BelongsTo struct {
	Alias       string
	Model       string
	ForeignKey  string // on the source
	TargetKey   string // on the target
	IDAttribute string
}

// HasOne is a singular association whose foreign key lives on the target row.
type HasOne struct {
	Alias       string
	Model       string
	ForeignKey  string // on the target
	SourceKey   string // on the source
	IDAttribute string
}

// HasMany is a plural association whose foreign key lives on the target rows.
type HasMany struct {
	Alias       string
	Model       string
	ForeignKey  string // on the target
	SourceKey   string // on the source
	IDAttribute string
}

// BelongsToMany is a plural association linked through a join table.
type BelongsToMany struct {
	Alias       string
	Model       string
	ForeignKey  string // join column referencing the source
	OtherKey    string // join column referencing the target
	SourceKey   string
	TargetKey   string
	Join        zorm.JoinRef
	IDAttribute string
}

func (d BelongsTo) Name() string       { return d.Alias }
func (d BelongsTo) Kind() Kind         { return KindBelongsTo }
func (d BelongsTo) Related() string    { return d.Model }
func (d BelongsTo) Identifier() string { return d.IDAttribute }
func (BelongsTo) descriptor()          {}

func (d HasOne) Name() string       { return d.Alias }
func (d HasOne) Kind() Kind         { return KindHasOne }
func (d HasOne) Related() string    { return d.Model }
func (d HasOne) Identifier() string { return d.IDAttribute }
func (HasOne) descriptor()          {}

func (d HasMany) Name() string       { return d.Alias }
func (d HasMany) Kind() Kind         { return KindHasMany }
func (d HasMany) Related() string    { return d.Model }
func (d HasMany) Identifier() string { return d.IDAttribute }
func (HasMany) descriptor()          {}

func (d BelongsToMany) Name() string       { return d.Alias }
func (d BelongsToMany) Kind() Kind         { return KindBelongsToMany }
func (d BelongsToMany) Related() string    { return d.Model }
func (d BelongsToMany) Identifier() string { return d.IDAttribute }
func (BelongsToMany) descriptor()          {}

// Associations is the ordered alias lookup of one model.
type Associations struct {
	order   []string
	byAlias map[string]Descriptor
}

// Aliases returns the aliases in declaration order.
func (a Associations) Aliases() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Lookup returns the descriptor for alias.
func (a Associations) Lookup(alias string) (Descriptor, bool) {
	d, ok := a.byAlias[alias]
	return d, ok
}

// Len returns the number of associations.
func (a Associations) Len() int { return len(a.order) }

// Resolve derives the association lookup of model from the live registry.
// Inverse reflections are excluded. Nothing is cached.
func Resolve(db *zorm.DB, model string) (Associations, error) {
	all, err := db.Associations(model)
	if err != nil {
		return Associations{}, err
	}

	out := Associations{byAlias: make(map[string]Descriptor, len(all))}
	for _, a := range all {
		if a.Inverse {
			continue
		}

		target, err := db.Model(a.Target)
		if err != nil {
			return Associations{}, err
		}

		var d Descriptor
		switch a.Type {
		case zorm.RelationBelongsTo:
			d = BelongsTo{
				Alias:       a.Name,
				Model:       a.Target,
				ForeignKey:  a.ForeignKey,
				TargetKey:   a.TargetKey,
				IDAttribute: identifier(target, a.TargetKey),
			}
		case zorm.RelationHasOne:
			d = HasOne{
				Alias:       a.Name,
				Model:       a.Target,
				ForeignKey:  a.ForeignKey,
				SourceKey:   a.SourceKey,
				IDAttribute: target.PrimaryKey(),
			}
		case zorm.RelationHasMany:
			d = HasMany{
				Alias:       a.Name,
				Model:       a.Target,
				ForeignKey:  a.ForeignKey,
				SourceKey:   a.SourceKey,
				IDAttribute: target.PrimaryKey(),
			}
		case zorm.RelationBelongsToMany:
			d = BelongsToMany{
				Alias:       a.Name,
				Model:       a.Target,
				ForeignKey:  a.ForeignKey,
				OtherKey:    a.OtherKey,
				SourceKey:   a.SourceKey,
				TargetKey:   a.TargetKey,
				Join:        a.Through,
				IDAttribute: identifier(target, a.TargetKey),
			}
		default:
			continue
		}

		out.order = append(out.order, a.Name)
		out.byAlias[a.Name] = d
	}
	return out, nil
}

// ResolveAll derives the association lookup of every registered model.
func ResolveAll(db *zorm.DB) (map[string]Associations, error) {
	out := make(map[string]Associations)
	for _, name := range db.Models() {
		a, err := Resolve(db, name)
		if err != nil {
			return nil, err
		}
		out[name] = a
	}
	return out, nil
}

// identifier picks the attribute that identifies an attached row: the
// declared target key when it is unique, the primary key otherwise.
func identifier(target *zorm.Model, targetKey string) string {
	if targetKey != "" {
		if f, ok := target.Field(targetKey); ok && f.Unique {
			return targetKey
		}
	}
	return target.PrimaryKey()
}
