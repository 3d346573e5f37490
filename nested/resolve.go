package nested

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/rezakhademix/zorm"
)

// throughKey carries the join row attributes of a BelongsToMany item.
const throughKey = "through"

// directive is one parsed item of an association sub-payload.
type directive struct {
	at      string // pointer to the item
	attach  bool
	id      any
	data    zorm.Values
	through zorm.Values
}

// mode selects how resolved rows are linked to their owner.
type mode int

const (
	modeAdd mode = iota // keep existing links
	modeSet             // replace existing links
)

// parse turns a raw sub-payload into directives. An item is an attach
// directive when it is a bare identifier or when it carries the identifying
// attribute, even with a nil value.
func parse(d Descriptor, raw any, at string) ([]directive, *Error) {
	if raw == nil {
		return nil, nil
	}

	if !d.Kind().Plural() {
		if _, isList := asItems(raw); isList {
			return nil, NewUnexpectedValue(fmt.Sprintf("%s expects a single object or identifier.", d.Name()), at)
		}
		item, err := parseItem(d, raw, at)
		if err != nil {
			return nil, err
		}
		return []directive{item}, nil
	}

	items, isList := asItems(raw)
	if !isList {
		return nil, NewUnexpectedValue(fmt.Sprintf("%s expects a list of objects or identifiers.", d.Name()), at)
	}

	out := make([]directive, 0, len(items))
	for i, raw := range items {
		item, err := parseItem(d, raw, at+pointer(i))
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func parseItem(d Descriptor, raw any, at string) (directive, *Error) {
	if raw == nil {
		return directive{}, NewUnexpectedValue(fmt.Sprintf("%s items must not be null.", d.Name()), at)
	}
	if _, isList := asItems(raw); isList {
		return directive{}, NewUnexpectedValue(fmt.Sprintf("%s items must be objects or identifiers.", d.Name()), at)
	}

	obj, isObject := asValues(raw)
	if !isObject {
		return directive{at: at, attach: true, id: raw}, nil
	}

	item := directive{at: at, data: obj.Clone()}
	if _, ok := d.(BelongsToMany); ok {
		if t, present := item.data[throughKey]; present {
			delete(item.data, throughKey)
			if t != nil {
				through, ok := asValues(t)
				if !ok {
					return directive{}, NewUnexpectedValue(fmt.Sprintf("%s.%s must be an object.", d.Name(), throughKey), at+pointer(throughKey))
				}
				item.through = through.Clone()
			}
		}
	}

	if id, ok := item.data[d.Identifier()]; ok {
		item.attach = true
		item.id = id
	}
	return item, nil
}

func asValues(v any) (zorm.Values, bool) {
	switch v := v.(type) {
	case zorm.Values:
		return v, true
	case map[string]any:
		return zorm.Values(v), true
	}
	return nil, false
}

func asItems(v any) ([]any, bool) {
	switch v := v.(type) {
	case []any:
		return v, true
	case []zorm.Values:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
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

// lookupItems finds the rows referenced by the attach directives of items,
// keyed by identifier. Missing rows are reported as not-found errors in item
// order.
func lookupItems(ctx context.Context, q zorm.Querier, target *zorm.Model, d Descriptor, items []directive) (map[string]zorm.Values, []*Error, error) {
	var ids []any
	for _, item := range items {
		if item.attach && item.id != nil {
			ids = append(ids, item.id)
		}
	}

	found := make(map[string]zorm.Values, len(ids))
	if len(ids) > 0 {
		rows, err := target.FindAll(ctx, q, zorm.Where{d.Identifier(): ids})
		if err != nil {
			return nil, nil, err
		}
		for _, row := range rows {
			found[zorm.IDKey(row[d.Identifier()])] = row
		}
	}

	var missing []*Error
	for _, item := range items {
		if !item.attach {
			continue
		}
		if _, ok := found[zorm.IDKey(item.id)]; item.id == nil || !ok {
			missing = append(missing, NewNotFound(
				fmt.Sprintf("Payload must include an ID of an existing '%s'. No '%s' with %s %v.",
					d.Related(), d.Related(), d.Identifier(), item.id),
				item.at))
		}
	}
	return found, missing, nil
}

// resolveItems checks that every attached row exists and creates the rows
// of create directives, with extra merged into each. It returns one link
// per directive in item order, or the not-found errors of missing rows.
// Rows are only created once every attached row has been found.
func resolveItems(ctx context.Context, q zorm.Querier, target *zorm.Model, d Descriptor, items []directive, extra zorm.Values) ([]zorm.Link, []*Error, error) {
	if len(items) == 0 {
		return nil, nil, nil
	}

	found, missing, err := lookupItems(ctx, q, target, d, items)
	if err != nil || len(missing) > 0 {
		return nil, missing, err
	}

	links := make([]zorm.Link, len(items))
	var creates []zorm.Values
	var createAt []int
	for i, item := range items {
		if item.attach {
			links[i] = zorm.Link{Row: found[zorm.IDKey(item.id)], Through: item.through}
			continue
		}
		row := item.data.Clone()
		for k, v := range extra {
			row[k] = v
		}
		creates = append(creates, row)
		createAt = append(createAt, i)
	}

	if len(creates) > 0 {
		created, err := target.BulkCreate(ctx, q, creates)
		if err != nil {
			return nil, nil, err
		}
		for n, i := range createAt {
			links[i] = zorm.Link{Row: created[n], Through: items[i].through}
		}
	}
	return links, nil, nil
}

// checkRow parses every alias of one parent row and verifies that all
// attached rows exist. It writes nothing, so the errors of every alias and
// row of a call can be gathered before the first insert.
func (o *Orchestrator) checkRow(ctx context.Context, q zorm.Querier, assocs Associations, aliases []string, payloads func(alias string) any, base string) ([]*Error, error) {
	var errs []*Error
	for _, alias := range aliases {
		d, _ := assocs.Lookup(alias)
		items, perr := parse(d, payloads(alias), base+pointer(alias))
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		if !slices.ContainsFunc(items, func(item directive) bool { return item.attach }) {
			continue
		}

		target, err := o.db.Model(d.Related())
		if err != nil {
			return nil, err
		}
		_, missing, err := lookupItems(ctx, q, target, d, items)
		if err != nil {
			return nil, err
		}
		errs = append(errs, missing...)
	}
	return errs, nil
}
