package nested

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rezakhademix/zorm"
)

// CreateFunc inserts one row of m.
type CreateFunc func(ctx context.Context, q zorm.Querier, m *zorm.Model, attrs zorm.Values) (zorm.Values, error)

// BulkCreateFunc inserts rows of m and returns them in input order.
type BulkCreateFunc func(ctx context.Context, q zorm.Querier, m *zorm.Model, rows []zorm.Values) ([]zorm.Values, error)

// UpdateFunc updates rows of m matching where and returns the affected count.
type UpdateFunc func(ctx context.Context, q zorm.Querier, m *zorm.Model, attrs zorm.Values, where zorm.Where) (int64, error)

// WrappedUpdateFunc is an update that also reports the updated row.
type WrappedUpdateFunc func(ctx context.Context, q zorm.Querier, m *zorm.Model, attrs zorm.Values, where zorm.Where) (UpdateResult, error)

// NativeCreate is the single-table create of the host ORM.
func NativeCreate(ctx context.Context, q zorm.Querier, m *zorm.Model, attrs zorm.Values) (zorm.Values, error) {
	return m.Create(ctx, q, attrs)
}

// NativeBulkCreate is the single-table bulk create of the host ORM.
func NativeBulkCreate(ctx context.Context, q zorm.Querier, m *zorm.Model, rows []zorm.Values) ([]zorm.Values, error) {
	return m.BulkCreate(ctx, q, rows)
}

// NativeUpdate is the single-table update of the host ORM.
func NativeUpdate(ctx context.Context, q zorm.Querier, m *zorm.Model, attrs zorm.Values, where zorm.Where) (int64, error) {
	return m.Update(ctx, q, attrs, where)
}

// UpdateResult is the outcome of Update.
type UpdateResult struct {
	// Affected is the count reported by the native update of own attributes.
	Affected int64
	// Rows holds the updated row when association data was written.
	Rows []zorm.Values
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for transaction lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConcurrency bounds how many parent rows of a bulk call are resolved
// at once. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// Orchestrator runs nested writes against the models registered on a DB.
type Orchestrator struct {
	db          *zorm.DB
	logger      *slog.Logger
	concurrency int
}

// New returns an Orchestrator for db. It inherits the logger of db.
func New(db *zorm.DB, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		db:          db,
		logger:      db.Logger(),
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create inserts a row of model with its nested associations.
func (o *Orchestrator) Create(ctx context.Context, q zorm.Querier, model string, attrs zorm.Values) (zorm.Values, error) {
	m, err := o.db.Model(model)
	if err != nil {
		return nil, err
	}
	return o.WrapCreate(NativeCreate)(ctx, q, m, attrs)
}

// BulkCreate inserts rows of model with their nested associations.
func (o *Orchestrator) BulkCreate(ctx context.Context, q zorm.Querier, model string, rows []zorm.Values) ([]zorm.Values, error) {
	m, err := o.db.Model(model)
	if err != nil {
		return nil, err
	}
	return o.WrapBulkCreate(NativeBulkCreate)(ctx, q, m, rows)
}

// Update updates the row of model selected by where with its nested
// associations. Association data requires where to be exactly the primary key.
func (o *Orchestrator) Update(ctx context.Context, q zorm.Querier, model string, attrs zorm.Values, where zorm.Where) (UpdateResult, error) {
	m, err := o.db.Model(model)
	if err != nil {
		return UpdateResult{}, err
	}
	return o.WrapUpdate(NativeUpdate)(ctx, q, m, attrs, where)
}

// WrapCreate decorates native with nested association handling. Payloads
// without association keys go straight to native.
func (o *Orchestrator) WrapCreate(native CreateFunc) CreateFunc {
	return func(ctx context.Context, q zorm.Querier, m *zorm.Model, attrs zorm.Values) (zorm.Values, error) {
		assocs, err := Resolve(o.db, m.Name())
		if err != nil {
			return nil, err
		}

		p := Split(assocs, attrs)
		if len(p.Aliases) == 0 {
			o.logger.DebugContext(ctx, "nested: passthrough", "op", "create", "model", m.Name())
			return native(ctx, q, m, attrs)
		}

		var created zorm.Values
		err = o.inTx(ctx, q, "create", m.Name(), func(tx zorm.Querier) error {
			missing, err := o.checkRow(ctx, tx, assocs, p.Aliases, func(alias string) any {
				return p.Payloads[alias]
			}, "")
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return Join(missing...)
			}

			if missing, err = o.applyBelongsTo(ctx, tx, assocs, p.Aliases, p.Attributes, p.Payloads, "", modeAdd); err != nil {
				return err
			}
			if len(missing) > 0 {
				return Join(missing...)
			}

			if created, err = native(ctx, tx, m, p.Attributes); err != nil {
				return err
			}

			owner, err := o.locate(ctx, tx, m, created)
			if err != nil {
				return err
			}

			missing, err = o.writeRow(ctx, tx, m, assocs, p.Aliases, owner, func(alias string) any {
				return p.Payloads[alias]
			}, "", modeAdd)
			if err != nil {
				return err
			}
			return Join(missing...)
		})
		if err != nil {
			return nil, err
		}
		return created, nil
	}
}

// WrapBulkCreate decorates native with nested association handling.
// Association data of row i is linked to the i-th created row.
func (o *Orchestrator) WrapBulkCreate(native BulkCreateFunc) BulkCreateFunc {
	return func(ctx context.Context, q zorm.Querier, m *zorm.Model, rows []zorm.Values) ([]zorm.Values, error) {
		assocs, err := Resolve(o.db, m.Name())
		if err != nil {
			return nil, err
		}

		bp := SplitBulk(assocs, rows)
		if len(bp.Aliases) == 0 {
			o.logger.DebugContext(ctx, "nested: passthrough", "op", "bulk_create", "model", m.Name())
			return native(ctx, q, m, rows)
		}

		var created []zorm.Values
		err = o.inTx(ctx, q, "bulk_create", m.Name(), func(tx zorm.Querier) error {
			err := o.fanOut(ctx, len(bp.Rows), func(ctx context.Context, i int) ([]*Error, error) {
				return o.checkRow(ctx, tx, assocs, bp.Aliases, func(alias string) any {
					return bp.Payloads[alias][i]
				}, pointer(i))
			})
			if err != nil {
				return err
			}

			err = o.fanOut(ctx, len(bp.Rows), func(ctx context.Context, i int) ([]*Error, error) {
				payloads := make(map[string]any)
				var aliases []string
				for _, alias := range bp.Aliases {
					if v := bp.Payloads[alias][i]; v != nil {
						payloads[alias] = v
						aliases = append(aliases, alias)
					}
				}
				return o.applyBelongsTo(ctx, tx, assocs, aliases, bp.Rows[i], payloads, pointer(i), modeAdd)
			})
			if err != nil {
				return err
			}

			if created, err = native(ctx, tx, m, bp.Rows); err != nil {
				return err
			}

			owners, err := o.locateAll(ctx, tx, m, created)
			if err != nil {
				return err
			}

			return o.fanOut(ctx, len(owners), func(ctx context.Context, i int) ([]*Error, error) {
				return o.writeRow(ctx, tx, m, assocs, bp.Aliases, owners[i], func(alias string) any {
					return bp.Payloads[alias][i]
				}, pointer(i), modeAdd)
			})
		})
		if err != nil {
			return nil, err
		}
		return created, nil
	}
}

// WrapUpdate decorates native with nested association handling. Plural
// associations present in the payload replace the current links; a nil or
// empty value removes them without deleting related rows.
func (o *Orchestrator) WrapUpdate(native UpdateFunc) WrappedUpdateFunc {
	return func(ctx context.Context, q zorm.Querier, m *zorm.Model, attrs zorm.Values, where zorm.Where) (UpdateResult, error) {
		assocs, err := Resolve(o.db, m.Name())
		if err != nil {
			return UpdateResult{}, err
		}

		p := Split(assocs, attrs)
		if len(p.Aliases) == 0 {
			o.logger.DebugContext(ctx, "nested: passthrough", "op", "update", "model", m.Name())
			affected, err := native(ctx, q, m, attrs, where)
			return UpdateResult{Affected: affected}, err
		}

		id, perr := primaryKeyOf(m, where)
		if perr != nil {
			return UpdateResult{}, perr
		}

		var result UpdateResult
		err = o.inTx(ctx, q, "update", m.Name(), func(tx zorm.Querier) error {
			if _, err := m.FindByPK(ctx, tx, id); err != nil {
				if zorm.IsNotFound(err) {
					nf := NewNotFound(fmt.Sprintf("No '%s' with %s %v.", m.Name(), m.PrimaryKey(), id), "")
					nf.Source = &Source{Parameter: m.PrimaryKey()}
					return nf
				}
				return err
			}

			missing, err := o.checkRow(ctx, tx, assocs, p.Aliases, func(alias string) any {
				return p.Payloads[alias]
			}, "")
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return Join(missing...)
			}

			if missing, err = o.applyBelongsTo(ctx, tx, assocs, p.Aliases, p.Attributes, p.Payloads, "", modeSet); err != nil {
				return err
			}
			if len(missing) > 0 {
				return Join(missing...)
			}

			if result.Affected, err = native(ctx, tx, m, p.Attributes, zorm.Where{m.PrimaryKey(): id}); err != nil {
				return err
			}

			owner, err := m.FindByPK(ctx, tx, id)
			if err != nil {
				return NewServerError("Updated row could not be located.", fmt.Errorf("%w: %w", ErrParentMissing, err))
			}

			missing, err = o.writeRow(ctx, tx, m, assocs, p.Aliases, owner, func(alias string) any {
				return p.Payloads[alias]
			}, "", modeSet)
			if err != nil {
				return err
			}
			if err := Join(missing...); err != nil {
				return err
			}

			final, err := m.FindByPK(ctx, tx, id)
			if err != nil {
				return err
			}
			result.Rows = []zorm.Values{final}
			return nil
		})
		if err != nil {
			return UpdateResult{}, err
		}
		return result, nil
	}
}

// primaryKeyOf returns the primary key value of a where predicate that
// selects exactly one row by primary key.
func primaryKeyOf(m *zorm.Model, where zorm.Where) (any, *Error) {
	id, ok := where[m.PrimaryKey()]
	if len(where) != 1 || !ok || id == nil {
		e := NewUnexpectedValue(fmt.Sprintf("Updating '%s' with associations requires a where clause on %s only.", m.Name(), m.PrimaryKey()), "")
		e.Source = &Source{Parameter: m.PrimaryKey()}
		return nil, e
	}
	if _, isList := asItems(id); isList {
		e := NewUnexpectedValue(fmt.Sprintf("Updating '%s' with associations requires a single %s.", m.Name(), m.PrimaryKey()), "")
		e.Source = &Source{Parameter: m.PrimaryKey()}
		return nil, e
	}
	return id, nil
}

// locate re-reads a row just written inside the transaction.
func (o *Orchestrator) locate(ctx context.Context, q zorm.Querier, m *zorm.Model, row zorm.Values) (zorm.Values, error) {
	owners, err := o.locateAll(ctx, q, m, []zorm.Values{row})
	if err != nil {
		return nil, err
	}
	return owners[0], nil
}

// locateAll re-reads rows just written inside the transaction, in order.
func (o *Orchestrator) locateAll(ctx context.Context, q zorm.Querier, m *zorm.Model, rows []zorm.Values) ([]zorm.Values, error) {
	pk := m.PrimaryKey()
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row[pk]
	}

	found, err := m.FindAll(ctx, q, zorm.Where{pk: ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]zorm.Values, len(found))
	for _, row := range found {
		byID[zorm.IDKey(row[pk])] = row
	}

	out := make([]zorm.Values, len(ids))
	for i, id := range ids {
		row, ok := byID[zorm.IDKey(id)]
		if id == nil || !ok {
			return nil, NewServerError(fmt.Sprintf("'%s' row %d could not be located after creation.", m.Name(), i), ErrParentMissing)
		}
		out[i] = row
	}
	return out, nil
}

// inTx runs fn inside a transaction. A *zorm.Tx from the caller is used as
// is and never committed or rolled back here; otherwise a transaction is
// opened, committed on success and rolled back on error or panic. The error
// of fn is returned unchanged.
func (o *Orchestrator) inTx(ctx context.Context, q zorm.Querier, op, model string, fn func(tx zorm.Querier) error) (err error) {
	var db *zorm.DB
	switch q := q.(type) {
	case *zorm.Tx:
		return fn(q)
	case *zorm.DB:
		db = q
	default:
		return fmt.Errorf("nested: unsupported querier %T", q)
	}

	tx, err := db.Begin(ctx, nil)
	if err != nil {
		return err
	}
	o.logger.DebugContext(ctx, "nested: transaction opened", "op", op, "model", model)

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			o.logger.ErrorContext(ctx, "nested: rollback failed", "op", op, "model", model, "error", rbErr)
		} else {
			o.logger.InfoContext(ctx, "nested: transaction rolled back", "op", op, "model", model, "error", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	o.logger.DebugContext(ctx, "nested: transaction committed", "op", op, "model", model)
	return nil
}
