package nested

import (
	"context"

	"github.com/rezakhademix/zorm"
)

// resolveBelongsTo resolves a BelongsTo sub-payload to the value the
// owner's foreign key must hold. A nil payload resolves to nil.
func resolveBelongsTo(ctx context.Context, q zorm.Querier, db *zorm.DB, d BelongsTo, raw any, at string) (any, []*Error, error) {
	items, perr := parse(d, raw, at)
	if perr != nil {
		return nil, []*Error{perr}, nil
	}
	if len(items) == 0 {
		return nil, nil, nil
	}

	target, err := db.Model(d.Model)
	if err != nil {
		return nil, nil, err
	}

	links, missing, err := resolveItems(ctx, q, target, d, items, nil)
	if err != nil || len(missing) > 0 {
		return nil, missing, err
	}
	return links[0].Row[d.TargetKey], nil, nil
}

// applyBelongsTo writes the foreign keys of every BelongsTo alias in
// payloads into attrs. It runs before the parent row is written. A nil
// payload clears the foreign key in set mode; on create it leaves attrs
// untouched so an explicit foreign key column is kept.
func (o *Orchestrator) applyBelongsTo(ctx context.Context, q zorm.Querier, assocs Associations, aliases []string, attrs zorm.Values, payloads map[string]any, base string, m mode) ([]*Error, error) {
	var errs []*Error
	for _, alias := range aliases {
		desc, _ := assocs.Lookup(alias)
		d, ok := desc.(BelongsTo)
		if !ok {
			continue
		}
		if payloads[alias] == nil && m == modeAdd {
			continue
		}

		fk, missing, err := resolveBelongsTo(ctx, q, o.db, d, payloads[alias], base+pointer(alias))
		if err != nil {
			return nil, err
		}
		if len(missing) > 0 {
			errs = append(errs, missing...)
			continue
		}
		attrs[d.ForeignKey] = fk
	}
	return errs, nil
}
