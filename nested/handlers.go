package nested

import (
	"context"
	"fmt"

	"github.com/rezakhademix/zorm"
	"golang.org/x/sync/errgroup"
)

// writeAlias runs the handler of one association for one parent row.
// BelongsTo aliases are handled before the parent write and are skipped here.
func (o *Orchestrator) writeAlias(ctx context.Context, q zorm.Querier, source *zorm.Model, owner zorm.Values, desc Descriptor, raw any, at string, m mode) ([]*Error, error) {
	switch d := desc.(type) {
	case BelongsTo:
		return nil, nil
	case HasOne:
		// linking a singular child always replaces the previous one
		return o.link(ctx, q, source, owner, d, raw, at, zorm.Values{d.ForeignKey: owner[d.SourceKey]}, m)
	case HasMany:
		return o.link(ctx, q, source, owner, d, raw, at, zorm.Values{d.ForeignKey: owner[d.SourceKey]}, m)
	case BelongsToMany:
		return o.link(ctx, q, source, owner, d, raw, at, nil, m)
	}
	return nil, fmt.Errorf("nested: unsupported association %T", desc)
}

// link resolves the items of raw and relates them to owner through the
// host linker: add keeps existing links, set replaces them.
func (o *Orchestrator) link(ctx context.Context, q zorm.Querier, source *zorm.Model, owner zorm.Values, d Descriptor, raw any, at string, extra zorm.Values, m mode) ([]*Error, error) {
	items, perr := parse(d, raw, at)
	if perr != nil {
		return []*Error{perr}, nil
	}
	if len(items) == 0 && m == modeAdd {
		return nil, nil
	}

	target, err := o.db.Model(d.Related())
	if err != nil {
		return nil, err
	}

	links, missing, err := resolveItems(ctx, q, target, d, items, extra)
	if err != nil || len(missing) > 0 {
		return missing, err
	}

	linker, err := source.Linker(d.Name())
	if err != nil {
		return nil, err
	}

	if m == modeSet {
		return nil, linker.Set(ctx, q, owner, links...)
	}
	return nil, linker.Add(ctx, q, owner, links...)
}

// writeRow runs every non-BelongsTo alias for one parent row, in alias
// order. Not-found errors are collected so every alias is checked; any other
// error stops the row.
func (o *Orchestrator) writeRow(ctx context.Context, q zorm.Querier, source *zorm.Model, assocs Associations, aliases []string, owner zorm.Values, payloads func(alias string) any, base string, m mode) ([]*Error, error) {
	var errs []*Error
	for _, alias := range aliases {
		d, _ := assocs.Lookup(alias)
		if d.Kind() == KindBelongsTo {
			continue
		}

		missing, err := o.writeAlias(ctx, q, source, owner, d, payloads(alias), base+pointer(alias), m)
		if err != nil {
			return nil, err
		}
		errs = append(errs, missing...)
	}
	return errs, nil
}

// fanOut runs fn for rows 0..n-1 with bounded concurrency. The first
// storage error wins and cancels the rest. Otherwise the structured errors
// of all rows are aggregated in row order.
func (o *Orchestrator) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int) ([]*Error, error)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	slots := make([][]*Error, n)
	for i := range n {
		g.Go(func() error {
			errs, err := fn(gctx, i)
			slots[i] = errs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var all []*Error
	for _, errs := range slots {
		all = append(all, errs...)
	}
	return Join(all...)
}
