package zorm

import (
	"context"
	"fmt"
	"strings"
)

// Link is one related row handed to a Linker.
type Link struct {
	Row     Values // Target row as stored
	Through Values // Join table attributes, BelongsToMany only
}

// Linker connects rows of a source model to rows of a related model
// through one association. It never deletes related rows; only foreign
// keys and join rows change.
type Linker struct {
	assoc  Association
	source *Model
	target *Model
	join   *Model // nil when the join table has no registered model
}

// Linker returns the linker for the association with the given alias.
func (m *Model) Linker(alias string) (*Linker, error) {
	a, err := m.Association(alias)
	if err != nil {
		return nil, err
	}

	target, err := m.db.Model(a.Target)
	if err != nil {
		return nil, WrapRelationError(alias, m.name, err)
	}

	l := &Linker{assoc: a, source: m, target: target}
	if a.Through.Model != "" {
		if l.join, err = m.db.Model(a.Through.Model); err != nil {
			return nil, WrapRelationError(alias, m.name, err)
		}
	}
	return l, nil
}

// Association returns the association served by the linker.
func (l *Linker) Association() Association { return l.assoc }

// Set makes links the complete set of rows related to owner.
func (l *Linker) Set(ctx context.Context, q Querier, owner Values, links ...Link) error {
	switch l.assoc.Type {
	case RelationBelongsTo:
		return l.setOwnerKey(ctx, q, owner, links)
	case RelationHasOne, RelationHasMany:
		if l.assoc.Type == RelationHasOne {
			if err := l.singular(links); err != nil {
				return err
			}
		}
		ownerKey, err := l.ownerKey(owner)
		if err != nil {
			return err
		}
		if err := l.detachTargetsExcept(ctx, q, ownerKey, l.targetIDs(links, l.target.primaryKey)); err != nil {
			return err
		}
		return l.attachTargets(ctx, q, ownerKey, links)
	case RelationBelongsToMany:
		ownerKey, err := l.ownerKey(owner)
		if err != nil {
			return err
		}
		if err := l.deleteJoinRowsExcept(ctx, q, ownerKey, l.targetIDs(links, l.assoc.TargetKey)); err != nil {
			return err
		}
		return l.upsertJoinRows(ctx, q, ownerKey, links)
	}
	return WrapRelationError(l.assoc.Name, l.source.name, ErrInvalidRelation)
}

// Add relates links to owner, keeping existing relations. Singular
// associations behave like Set.
func (l *Linker) Add(ctx context.Context, q Querier, owner Values, links ...Link) error {
	switch l.assoc.Type {
	case RelationBelongsTo, RelationHasOne:
		return l.Set(ctx, q, owner, links...)
	case RelationHasMany:
		ownerKey, err := l.ownerKey(owner)
		if err != nil {
			return err
		}
		return l.attachTargets(ctx, q, ownerKey, links)
	case RelationBelongsToMany:
		ownerKey, err := l.ownerKey(owner)
		if err != nil {
			return err
		}
		return l.upsertJoinRows(ctx, q, ownerKey, links)
	}
	return WrapRelationError(l.assoc.Name, l.source.name, ErrInvalidRelation)
}

// Remove unrelates links from owner.
func (l *Linker) Remove(ctx context.Context, q Querier, owner Values, links ...Link) error {
	if len(links) == 0 {
		return nil
	}

	switch l.assoc.Type {
	case RelationBelongsTo:
		pk, ok := owner[l.source.primaryKey]
		if !ok || pk == nil {
			return WrapRelationError(l.assoc.Name, l.source.name, ErrMissingPrimaryKey)
		}
		_, err := l.source.Update(ctx, q,
			Values{l.assoc.ForeignKey: nil},
			Where{l.source.primaryKey: pk, l.assoc.ForeignKey: l.targetIDs(links, l.assoc.TargetKey)})
		return err
	case RelationHasOne, RelationHasMany:
		ownerKey, err := l.ownerKey(owner)
		if err != nil {
			return err
		}
		_, err = l.target.Update(ctx, q,
			Values{l.assoc.ForeignKey: nil},
			Where{l.assoc.ForeignKey: ownerKey, l.target.primaryKey: l.targetIDs(links, l.target.primaryKey)})
		return err
	case RelationBelongsToMany:
		ownerKey, err := l.ownerKey(owner)
		if err != nil {
			return err
		}
		query, args := deleteStmt{
			Dialect: q.Dialect(),
			Model:   l.join,
			Table:   l.assoc.Through.Table,
			Where:   Where{l.assoc.ForeignKey: ownerKey, l.assoc.OtherKey: l.targetIDs(links, l.assoc.TargetKey)},
		}.ToSql()
		if _, err := q.Exec(ctx, query, args...); err != nil {
			return WrapQueryError("DELETE", query, args, err)
		}
		return nil
	}
	return WrapRelationError(l.assoc.Name, l.source.name, ErrInvalidRelation)
}

func (l *Linker) singular(links []Link) error {
	if len(links) > 1 {
		return WrapRelationError(l.assoc.Name, l.source.name,
			fmt.Errorf("%w: %s accepts a single row, got %d", ErrInvalidRelation, l.assoc.Type, len(links)))
	}
	return nil
}

func (l *Linker) ownerKey(owner Values) (any, error) {
	v, ok := owner[l.assoc.SourceKey]
	if !ok || v == nil {
		return nil, WrapRelationError(l.assoc.Name, l.source.name,
			fmt.Errorf("%w: owner has no %s", ErrMissingPrimaryKey, l.assoc.SourceKey))
	}
	return v, nil
}

func (l *Linker) targetIDs(links []Link, key string) []any {
	ids := make([]any, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.Row[key])
	}
	return ids
}

// setOwnerKey points the owner's foreign key at the single link, or clears it.
func (l *Linker) setOwnerKey(ctx context.Context, q Querier, owner Values, links []Link) error {
	if err := l.singular(links); err != nil {
		return err
	}
	pk, ok := owner[l.source.primaryKey]
	if !ok || pk == nil {
		return WrapRelationError(l.assoc.Name, l.source.name, ErrMissingPrimaryKey)
	}

	var value any
	if len(links) == 1 {
		value = links[0].Row[l.assoc.TargetKey]
	}
	_, err := l.source.Update(ctx, q, Values{l.assoc.ForeignKey: value}, Where{l.source.primaryKey: pk})
	return err
}

// detachTargetsExcept clears the foreign key of every target row pointing
// at ownerKey whose primary key is not in keep.
func (l *Linker) detachTargetsExcept(ctx context.Context, q Querier, ownerKey any, keep []any) error {
	d := q.Dialect()
	query := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = ?",
		d.Quote(l.target.table),
		l.target.column(d, l.assoc.ForeignKey),
		l.target.column(d, l.assoc.ForeignKey))
	args := []any{ownerKey}
	if len(keep) > 0 {
		query += fmt.Sprintf(" AND %s NOT IN (%s)",
			l.target.column(d, l.target.primaryKey), strings.Join(questionMarks(len(keep)), ", "))
		args = append(args, keep...)
	}

	if _, err := q.Exec(ctx, query, args...); err != nil {
		return WrapQueryError("UPDATE", query, args, err)
	}
	return nil
}

func (l *Linker) attachTargets(ctx context.Context, q Querier, ownerKey any, links []Link) error {
	if len(links) == 0 {
		return nil
	}
	_, err := l.target.Update(ctx, q,
		Values{l.assoc.ForeignKey: ownerKey},
		Where{l.target.primaryKey: l.targetIDs(links, l.target.primaryKey)})
	return err
}

// deleteJoinRowsExcept removes the owner's join rows whose target is not in keep.
func (l *Linker) deleteJoinRowsExcept(ctx context.Context, q Querier, ownerKey any, keep []any) error {
	d := q.Dialect()
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
		d.Quote(l.assoc.Through.Table), l.join.column(d, l.assoc.ForeignKey))
	args := []any{ownerKey}
	if len(keep) > 0 {
		query += fmt.Sprintf(" AND %s NOT IN (%s)",
			l.join.column(d, l.assoc.OtherKey), strings.Join(questionMarks(len(keep)), ", "))
		args = append(args, keep...)
	}

	if _, err := q.Exec(ctx, query, args...); err != nil {
		return WrapQueryError("DELETE", query, args, err)
	}
	return nil
}

// upsertJoinRows inserts a join row per link, or updates the join attributes
// of a row that already exists.
func (l *Linker) upsertJoinRows(ctx context.Context, q Querier, ownerKey any, links []Link) error {
	if len(links) == 0 {
		return nil
	}
	d := q.Dialect()

	query, args := selectStmt{
		Dialect: d,
		Model:   l.join,
		Table:   l.assoc.Through.Table,
		Where:   Where{l.assoc.ForeignKey: ownerKey, l.assoc.OtherKey: l.targetIDs(links, l.assoc.TargetKey)},
	}.ToSql()
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return WrapQueryError("SELECT", query, args, err)
	}

	otherColumn := l.assoc.OtherKey
	if f, ok := l.join.fieldOrNil(l.assoc.OtherKey); ok {
		otherColumn = f.Column
	}
	existing := make(map[string]bool, len(rows))
	for _, row := range rows {
		existing[IDKey(row[otherColumn])] = true
	}

	for _, link := range links {
		targetKey := link.Row[l.assoc.TargetKey]
		key := IDKey(targetKey)

		if existing[key] {
			if len(link.Through) == 0 {
				continue
			}
			query, args := updateStmt{
				Dialect: d,
				Model:   l.join,
				Table:   l.assoc.Through.Table,
				Set:     link.Through,
				Where:   Where{l.assoc.ForeignKey: ownerKey, l.assoc.OtherKey: targetKey},
			}.ToSql()
			if _, err := q.Exec(ctx, query, args...); err != nil {
				return WrapQueryError("UPDATE", query, args, err)
			}
			continue
		}

		row := link.Through.Clone()
		if row == nil {
			row = Values{}
		}
		row[l.assoc.ForeignKey] = ownerKey
		row[l.assoc.OtherKey] = targetKey
		if err := l.insertJoinRow(ctx, q, row); err != nil {
			return err
		}
		existing[key] = true
	}
	return nil
}

func (l *Linker) insertJoinRow(ctx context.Context, q Querier, row Values) error {
	if l.join != nil {
		_, err := l.join.Create(ctx, q, row)
		return err
	}

	keys := Where(row).Keys()
	values := make([]any, len(keys))
	for i, k := range keys {
		values[i] = row[k]
	}
	query, args := insertStmt{
		Dialect: q.Dialect(),
		Table:   l.assoc.Through.Table,
		Columns: keys,
		Values:  [][]any{values},
	}.ToSql()
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return WrapQueryError("INSERT", query, args, err)
	}
	return nil
}
